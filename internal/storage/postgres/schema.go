package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		total_score NUMERIC NOT NULL DEFAULT 0,
		total_correct_answers BIGINT NOT NULL DEFAULT 0,
		total_questions_answered BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_users_ranking ON users (role, total_score DESC, created_at ASC);`,

	// fingerprint is NULL for rows stored before fingerprints existed; UNIQUE ignores NULLs.
	`CREATE TABLE IF NOT EXISTS questions (
		question_id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		choices JSONB NOT NULL,
		correct_choice_id TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		tags TEXT[] NOT NULL DEFAULT '{}',
		explanation TEXT NOT NULL DEFAULT '',
		points NUMERIC NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL,
		fingerprint TEXT UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions (subject) WHERE is_active;`,

	`CREATE TABLE IF NOT EXISTS builtin_questions (
		question_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		text TEXT NOT NULL,
		choices JSONB NOT NULL,
		correct_choice_id TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		points NUMERIC NOT NULL DEFAULT 1,
		fingerprint TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (source, fingerprint)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_builtin_questions_source_subject ON builtin_questions (source, subject);`,

	`CREATE TABLE IF NOT EXISTS quizzes (
		quiz_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		quiz_code TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		quiz_type TEXT NOT NULL,
		settings JSONB NOT NULL,
		question_ids TEXT[] NOT NULL DEFAULT '{}',
		builtin_filter JSONB NOT NULL,
		practice BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_quizzes_created_by ON quizzes (created_by, created_at DESC);`,

	`CREATE TABLE IF NOT EXISTS attempts (
		attempt_id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		questions JSONB NOT NULL DEFAULT '[]',
		answers JSONB NOT NULL DEFAULT '[]',
		score NUMERIC NOT NULL DEFAULT 0,
		max_score NUMERIC NOT NULL DEFAULT 0,
		metadata JSONB NOT NULL DEFAULT '{}'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts (user_id, started_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_quiz_user ON attempts (quiz_id, user_id) WHERE finished_at IS NOT NULL;`,
}

// Migrate creates the tables and indexes the store needs. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
