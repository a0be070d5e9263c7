package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eduquiz"

var (
	QuizzesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quizzes_created_total",
		Help:      "Quizzes assembled, by source (manual, excel, built-in, practice).",
	}, []string{"source"})

	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_rows_total",
		Help:      "Imported spreadsheet rows, by outcome (imported, reused, skipped).",
	}, []string{"outcome"})

	QuestionInsertRaces = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "question_insert_races_total",
		Help:      "Question inserts that lost a fingerprint race and were resolved by re-reading.",
	})

	AttemptsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_started_total",
		Help:      "Attempts started, by kind (quiz, practice).",
	}, []string{"kind"})

	AttemptsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_submitted_total",
		Help:      "Attempts scored and submitted.",
	})

	SubmitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempt_submit_conflicts_total",
		Help:      "Submissions rejected because the attempt was already submitted.",
	})

	LeaderboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_cache_requests_total",
		Help:      "Leaderboard page lookups, by result (hit, miss).",
	}, []string{"result"})
)
