package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openwitness/chronicle/internal/domain"
)

type recordRepository struct {
	q querier
}

const recordColumns = `id, kind, fields, created_at, created_by_session, current_version, superseded_by, previous_versions, verification_count`

func (r *recordRepository) Insert(ctx context.Context, v domain.RecordVersion) error {
	fieldsJSON, err := v.GetFieldsAsJSONB()
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = r.q.Exec(ctx, `
INSERT INTO records (id, kind, fields, created_at, created_by_session, current_version, superseded_by, previous_versions, verification_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, v.ID, v.Kind, fieldsJSON, v.CreatedAt, v.CreatedBySession, v.CurrentVersion, v.SupersededBy, v.PreviousVersions, v.VerificationCount)
	if err != nil {
		return fmt.Errorf("failed to insert record version: %w", err)
	}
	return nil
}

func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (domain.RecordVersion, error) {
	row := r.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)

	v, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecordVersion{}, &domain.NotFoundError{Resource: "record", ID: id.String()}
		}
		return domain.RecordVersion{}, fmt.Errorf("failed to get record version: %w", err)
	}
	return v, nil
}

func (r *recordRepository) Update(ctx context.Context, v domain.RecordVersion) error {
	fieldsJSON, err := v.GetFieldsAsJSONB()
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	tag, err := r.q.Exec(ctx, `
UPDATE records
SET fields = $2, current_version = $3, superseded_by = $4, previous_versions = $5, verification_count = $6
WHERE id = $1
`, v.ID, fieldsJSON, v.CurrentVersion, v.SupersededBy, v.PreviousVersions, v.VerificationCount)
	if err != nil {
		return fmt.Errorf("failed to update record version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "record", ID: v.ID.String()}
	}
	return nil
}

func (r *recordRepository) ListCurrent(ctx context.Context, kind domain.Kind, searchField, query string, limit, offset int) ([]domain.RecordVersion, int, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+recordColumns+`, COUNT(*) OVER() AS total_count
FROM records
WHERE kind = $1
  AND current_version
  AND ($3 = '' OR fields->>$2 ILIKE '%' || $3 || '%')
ORDER BY created_at DESC
LIMIT NULLIF($4, 0) OFFSET $5
`, kind, searchField, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list current versions: %w", err)
	}
	defer rows.Close()

	versions := []domain.RecordVersion{}
	total := 0
	for rows.Next() {
		var (
			v          domain.RecordVersion
			fieldsJSON json.RawMessage
		)
		if err := rows.Scan(&v.ID, &v.Kind, &fieldsJSON, &v.CreatedAt, &v.CreatedBySession,
			&v.CurrentVersion, &v.SupersededBy, &v.PreviousVersions, &v.VerificationCount, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan record version: %w", err)
		}
		if v.Fields, err = domain.FromJSONBFields(fieldsJSON); err != nil {
			return nil, 0, fmt.Errorf("failed to decode fields for record %s: %w", v.ID, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating current versions: %w", err)
	}

	return versions, total, nil
}

func (r *recordRepository) CountCurrentByFieldValue(ctx context.Context, kind domain.Kind, field string) (map[string]int, error) {
	rows, err := r.q.Query(ctx, `
SELECT COALESCE(fields->>$2, ''), COUNT(*)
FROM records
WHERE kind = $1 AND current_version
GROUP BY 1
`, kind, field)
	if err != nil {
		return nil, fmt.Errorf("failed to group current versions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			value string
			count int
		)
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		counts[value] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}

	return counts, nil
}

func scanRecord(row pgx.Row) (domain.RecordVersion, error) {
	var (
		v          domain.RecordVersion
		fieldsJSON json.RawMessage
	)
	if err := row.Scan(&v.ID, &v.Kind, &fieldsJSON, &v.CreatedAt, &v.CreatedBySession,
		&v.CurrentVersion, &v.SupersededBy, &v.PreviousVersions, &v.VerificationCount); err != nil {
		return domain.RecordVersion{}, err
	}

	fields, err := domain.FromJSONBFields(fieldsJSON)
	if err != nil {
		return domain.RecordVersion{}, fmt.Errorf("failed to decode fields for record %s: %w", v.ID, err)
	}
	v.Fields = fields
	return v, nil
}
