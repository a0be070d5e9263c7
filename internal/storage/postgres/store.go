// Package postgres implements the storage ports on PostgreSQL through pgx.
package postgres

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/leaderboard"
	"github.com/victornm/eduquiz/internal/quiz"
)

const codeUniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

var (
	_ bank.Store        = (*Store)(nil)
	_ quiz.Store        = (*Store)(nil)
	_ attempt.Store     = (*Store)(nil)
	_ leaderboard.Store = (*Store)(nil)
)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// convert maps driver errors onto the error kinds the services branch on.
func convert(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound, errors.WithMessagef(format, args...))
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("%s already exists", pgErr.TableName),
			errors.WithCause(err),
		)
	}

	return fmt.Errorf(format+": %w", append(args, err)...)
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
