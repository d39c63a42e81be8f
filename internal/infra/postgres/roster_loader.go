package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"report-card-service/internal/domain"
)

// RosterLoader loads the baseline activity records of a class from Postgres.
type RosterLoader struct {
	pool *pgxpool.Pool
}

func NewRosterLoader(pool *pgxpool.Pool) *RosterLoader {
	return &RosterLoader{pool: pool}
}

func (l *RosterLoader) LoadRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT student_id, student_name, activity, subject, score, recorded_at
		FROM activity_records
		WHERE class_id = $1
		ORDER BY recorded_at, id`, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()

	var records []domain.ActivityRecord
	for rows.Next() {
		var (
			rec      domain.ActivityRecord
			activity string
		)
		if err := rows.Scan(&rec.StudentID, &rec.StudentName, &activity, &rec.Subject, &rec.Score, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		rec.Activity, err = domain.ParseActivityKind(activity)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("class %s: %w", classID, domain.ErrRosterNotFound)
	}
	return records, nil
}
