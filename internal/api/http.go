package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/leaderboard"
	"github.com/victornm/eduquiz/internal/quiz"
)

type (
	questionBody struct {
		Text            string            `json:"text" binding:"required"`
		Choices         []domain.Choice   `json:"choices" binding:"required,min=2,dive"`
		CorrectChoiceID string            `json:"correctChoiceId" binding:"required"`
		Difficulty      domain.Difficulty `json:"difficulty"`
		Subject         string            `json:"subject"`
		Tags            []string          `json:"tags"`
		Explanation     string            `json:"explanation"`
		Points          decimal.Decimal   `json:"points"`
	}

	questionPatch struct {
		Text            *string            `json:"text"`
		Choices         []domain.Choice    `json:"choices" binding:"omitempty,min=2,dive"`
		CorrectChoiceID *string            `json:"correctChoiceId"`
		Difficulty      *domain.Difficulty `json:"difficulty"`
		Subject         *string            `json:"subject"`
		Tags            []string           `json:"tags"`
		Explanation     *string            `json:"explanation"`
		Points          *decimal.Decimal   `json:"points"`
	}

	questionQuery struct {
		Subject        string            `form:"subject"`
		SubjectPattern string            `form:"subjectPattern"`
		Difficulty     domain.Difficulty `form:"difficulty"`
		CreatedBy      string            `form:"createdBy"`
	}

	importBody struct {
		Title       string              `json:"title"`
		Description string              `json:"description"`
		Settings    domain.QuizSettings `json:"settings"`
		Rows        []domain.ImportRow  `json:"rows"`
		ParseErrors []domain.RowError   `json:"parseErrors"`
	}

	quizBody struct {
		Title       string              `json:"title"`
		Description string              `json:"description"`
		QuestionIDs []string            `json:"questionIds"`
		Settings    domain.QuizSettings `json:"settings"`
		Status      domain.QuizStatus   `json:"status"`
	}

	builtInQuizBody struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		Filter      domain.BuiltInFilter `json:"filter"`
		Count       int                  `json:"count"`
		Settings    domain.QuizSettings  `json:"settings"`
	}

	quizQuery struct {
		CreatedBy string            `form:"createdBy"`
		Status    domain.QuizStatus `form:"status"`
	}

	statusBody struct {
		Status domain.QuizStatus `json:"status" binding:"required"`
	}

	practiceBody struct {
		Subjects []string `json:"subjects"`
		Limit    int      `json:"limit"`
	}

	submitBody struct {
		Answers []attempt.SubmittedAnswer `json:"answers"`
	}

	pageQuery struct {
		Page  int `form:"page"`
		Limit int `form:"limit"`
	}
)

// Questions

func (a *API) createQuestion(c *gin.Context) {
	var body questionBody
	if !a.bind(c, &body) {
		return
	}

	q, err := a.bs.CreateQuestion(c.Request.Context(), bank.CreateQuestionRequest{
		Actor:           actorOf(c),
		Text:            body.Text,
		Choices:         body.Choices,
		CorrectChoiceID: body.CorrectChoiceID,
		Difficulty:      body.Difficulty,
		Subject:         body.Subject,
		Tags:            body.Tags,
		Explanation:     body.Explanation,
		Points:          body.Points,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, q)
}

func (a *API) listQuestions(c *gin.Context) {
	var query questionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		a.abort(c, errors.InvalidArgument("invalid query: %v", err))
		return
	}

	qs, err := a.bs.ListQuestions(c.Request.Context(), actorOf(c), bank.QuestionFilter{
		Subject:        query.Subject,
		SubjectPattern: query.SubjectPattern,
		Difficulty:     query.Difficulty,
		CreatedBy:      query.CreatedBy,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

func (a *API) updateQuestion(c *gin.Context) {
	var body questionPatch
	if !a.bind(c, &body) {
		return
	}

	q, err := a.bs.UpdateQuestion(c.Request.Context(), bank.UpdateQuestionRequest{
		Actor:           actorOf(c),
		ID:              c.Param("id"),
		Text:            body.Text,
		Choices:         body.Choices,
		CorrectChoiceID: body.CorrectChoiceID,
		Difficulty:      body.Difficulty,
		Subject:         body.Subject,
		Tags:            body.Tags,
		Explanation:     body.Explanation,
		Points:          body.Points,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) deleteQuestion(c *gin.Context) {
	if err := a.bs.DeleteQuestion(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		a.abort(c, err)
		return
	}

	noContent(c)
}

func (a *API) importBuiltIn(c *gin.Context) {
	var body importBody
	if !a.bind(c, &body) {
		return
	}

	r, err := a.bs.ImportBuiltIn(c.Request.Context(), bank.ImportBuiltInRequest{
		Actor:       actorOf(c),
		Source:      domain.Source(c.Param("source")),
		Rows:        body.Rows,
		ParseErrors: body.ParseErrors,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// Quizzes

func (a *API) createQuiz(c *gin.Context) {
	var body quizBody
	if !a.bind(c, &body) {
		return
	}

	q, err := a.qs.CreateQuiz(c.Request.Context(), quiz.CreateQuizRequest{
		Actor:       actorOf(c),
		Title:       body.Title,
		Description: body.Description,
		QuestionIDs: body.QuestionIDs,
		Settings:    body.Settings,
		Status:      body.Status,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, q)
}

// importQuiz answers with the row report even when the upload is rejected.
func (a *API) importQuiz(c *gin.Context) {
	var body importBody
	if !a.bind(c, &body) {
		return
	}

	res, err := a.qs.CreateFromExcel(c.Request.Context(), quiz.CreateFromExcelRequest{
		Actor:       actorOf(c),
		Title:       body.Title,
		Description: body.Description,
		Settings:    body.Settings,
		Rows:        body.Rows,
		ParseErrors: body.ParseErrors,
	})
	if err != nil {
		e := errors.Convert(err)
		if res == nil || e.Code == errors.CodeInternal {
			a.abort(c, err)
			return
		}
		c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e, "report": res.Report})
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (a *API) createBuiltInQuiz(c *gin.Context) {
	var body builtInQuizBody
	if !a.bind(c, &body) {
		return
	}

	res, err := a.qs.CreateBuiltInQuiz(c.Request.Context(), quiz.CreateBuiltInQuizRequest{
		Actor:       actorOf(c),
		Title:       body.Title,
		Description: body.Description,
		Filter:      body.Filter,
		Count:       body.Count,
		Settings:    body.Settings,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (a *API) listQuizzes(c *gin.Context) {
	var query quizQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		a.abort(c, errors.InvalidArgument("invalid query: %v", err))
		return
	}

	qs, err := a.qs.ListQuizzes(c.Request.Context(), quiz.ListFilter{
		CreatedBy: query.CreatedBy,
		Status:    query.Status,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": qs})
}

func (a *API) getQuiz(c *gin.Context) {
	q, err := a.qs.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) getQuizByCode(c *gin.Context) {
	q, err := a.qs.GetQuizByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) updateQuizStatus(c *gin.Context) {
	var body statusBody
	if !a.bind(c, &body) {
		return
	}

	q, err := a.qs.UpdateStatus(c.Request.Context(), quiz.UpdateStatusRequest{
		Actor:  actorOf(c),
		ID:     c.Param("id"),
		Status: body.Status,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) deleteQuiz(c *gin.Context) {
	if err := a.qs.DeleteQuiz(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		a.abort(c, err)
		return
	}

	noContent(c)
}

// Attempts

func (a *API) startAttempt(c *gin.Context) {
	var ref domain.QuizRef
	if !a.bind(c, &ref) {
		return
	}

	res, err := a.as.Start(c.Request.Context(), attempt.StartRequest{
		Actor: actorOf(c),
		Quiz:  ref,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (a *API) startPractice(c *gin.Context) {
	var body practiceBody
	if !a.bind(c, &body) {
		return
	}

	res, err := a.as.Practice(c.Request.Context(), attempt.PracticeRequest{
		Actor:    actorOf(c),
		Subjects: body.Subjects,
		Limit:    body.Limit,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (a *API) submitAttempt(c *gin.Context) {
	var body submitBody
	if !a.bind(c, &body) {
		return
	}

	res, err := a.as.Submit(c.Request.Context(), attempt.SubmitRequest{
		Actor:     actorOf(c),
		AttemptID: c.Param("id"),
		Answers:   body.Answers,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (a *API) getAttempt(c *gin.Context) {
	at, err := a.as.GetByID(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, at)
}

func (a *API) listAttempts(c *gin.Context) {
	as, err := a.as.ListMine(c.Request.Context(), actorOf(c))
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": as})
}

// Leaderboard

func (a *API) getLeaderboard(c *gin.Context) {
	var query pageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		a.abort(c, errors.InvalidArgument("invalid query: %v", err))
		return
	}

	l, err := a.ls.GetTop(c.Request.Context(), leaderboard.GetTopRequest{
		Page:  query.Page,
		Limit: query.Limit,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func (a *API) getProfile(c *gin.Context) {
	p, err := a.ls.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}
