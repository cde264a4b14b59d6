package database

import (
	"database/sql"
	"fmt"
	"time"

	"mediavault/models"
)

// Repository persists the publish journal: one row per attempt to hand a
// staged bundle to the external sink.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordPublishAttempt inserts a pending journal row. CreatedAt is set here.
func (r *Repository) RecordPublishAttempt(rec *models.PublishRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("publish record id required")
	}
	if rec.Status == "" {
		rec.Status = models.PublishStatusPending
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(
		`INSERT INTO publish_journal (id, status, error, movie_count, series_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Status, rec.Error, rec.MovieCount, rec.SeriesCount, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert publish record: %w", err)
	}
	return nil
}

// CompletePublish marks an attempt as published or failed.
func (r *Repository) CompletePublish(id, status, errMsg string) error {
	now := time.Now().UTC()
	res, err := r.db.Exec(
		`UPDATE publish_journal SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("complete publish record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("publish record %q not found", id)
	}
	return nil
}

// ListPublishHistory returns the most recent attempts, newest first.
func (r *Repository) ListPublishHistory(limit int) ([]models.PublishRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, status, error, movie_count, series_count, created_at, completed_at
		 FROM publish_journal ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query publish history: %w", err)
	}
	defer rows.Close()

	var records []models.PublishRecord
	for rows.Next() {
		var rec models.PublishRecord
		var completed sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.Error, &rec.MovieCount,
			&rec.SeriesCount, &rec.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan publish record: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			rec.CompletedAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
