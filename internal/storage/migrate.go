package storage

import (
	"context"
	"fmt"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		date_of_birth TIMESTAMPTZ NOT NULL,
		mobile_number TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL CHECK (role IN ('instructor', 'student')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		instructor_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		duration DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (duration >= 0),
		lectures_count INTEGER NOT NULL DEFAULT 0 CHECK (lectures_count >= 0),
		premium BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK ((duration = 0 AND lectures_count = 0) OR (duration > 0 AND lectures_count > 0))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_instructor ON courses (instructor_id)`,
	`CREATE TABLE IF NOT EXISTS lectures (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		asset_id TEXT NOT NULL UNIQUE,
		playback_id TEXT NOT NULL UNIQUE,
		playback_url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		duration DOUBLE PRECISION NOT NULL CHECK (duration > 0),
		category TEXT NOT NULL,
		subcategory TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lectures_course ON lectures (course_id)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (student_id, course_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_student ON subscriptions (student_id)`,
}

func (r *postgresRepository) migrate(ctx context.Context) error {
	for i, stmt := range migrationStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
