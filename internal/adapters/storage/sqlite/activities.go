package sqlite

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
)

const activityColumns = `id, actor_id, action, subject_type, subject_id, subject_name, description, details_kind, details_json, occurred_at, created_at, updated_at`

// CreateActivity appends one activity and returns it with its assigned sequence id.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	kind, detailsJSON, err := domain.EncodeDetails(a.Details)
	if err != nil {
		return domain.Activity{}, errors.Wrap(err, "encode activity details")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO activities(actor_id, action, subject_type, subject_id, subject_name, description, details_kind, details_json, occurred_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ActorID,
		string(a.Action),
		string(a.SubjectType),
		a.SubjectID,
		a.SubjectName,
		a.Description,
		string(kind),
		detailsJSON,
		ts(a.Timestamp),
		ts(a.CreatedAt),
		ts(a.UpdatedAt),
	)
	if err != nil {
		return domain.Activity{}, errors.Wrap(err, "insert activity")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Activity{}, errors.Wrap(err, "read activity id")
	}
	a.ID = id
	if a.Details == nil {
		a.Details = domain.Extra{}
	}
	return a, nil
}

// ListActivities returns matching activities newest first; equal timestamps fall back to insertion order.
func (r *Repository) ListActivities(ctx context.Context, q app.ActivityQuery) ([]domain.Activity, error) {
	where, args := activityFilter(q)
	query := `SELECT ` + activityColumns + ` FROM activities` + where + ` ORDER BY occurred_at DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, max(q.Offset, 0))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list activities")
	}
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

// CountActivities counts activities matching the query filters, ignoring paging.
func (r *Repository) CountActivities(ctx context.Context, q app.ActivityQuery) (int, error) {
	where, args := activityFilter(q)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`+where, args...).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "count activities")
	}
	return total, nil
}

// DeleteAllActivities removes every activity and returns how many were removed.
func (r *Repository) DeleteAllActivities(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activities`)
	if err != nil {
		return 0, errors.Wrap(err, "delete activities")
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "count deleted activities")
	}
	return deleted, nil
}

// activityFilter builds the WHERE clause for the non-empty query fields.
func activityFilter(q app.ActivityQuery) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if q.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, q.ActorID)
	}
	if q.SubjectType != "" {
		clauses = append(clauses, "subject_type = ?")
		args = append(args, string(q.SubjectType))
	}
	if q.SubjectID != "" {
		clauses = append(clauses, "subject_id = ?")
		args = append(args, q.SubjectID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanActivity handles scan activity.
func scanActivity(s scanner) (domain.Activity, error) {
	var (
		a              domain.Activity
		actionRaw      string
		subjectTypeRaw string
		kindRaw        string
		detailsRaw     string
		occurredRaw    string
		createdRaw     string
		updatedRaw     string
	)
	if err := s.Scan(
		&a.ID,
		&a.ActorID,
		&actionRaw,
		&subjectTypeRaw,
		&a.SubjectID,
		&a.SubjectName,
		&a.Description,
		&kindRaw,
		&detailsRaw,
		&occurredRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return domain.Activity{}, errors.Wrap(err, "scan activity")
	}
	a.Action = domain.NormalizeAction(domain.Action(actionRaw))
	a.SubjectType = domain.NormalizeSubjectType(domain.SubjectType(subjectTypeRaw))
	details, err := domain.DecodeDetails(domain.DetailsKind(kindRaw), detailsRaw)
	if err != nil {
		return domain.Activity{}, errors.Wrapf(err, "decode activities.details_json for %d", a.ID)
	}
	a.Details = details
	a.Timestamp = parseTS(occurredRaw)
	a.CreatedAt = parseTS(createdRaw)
	a.UpdatedAt = parseTS(updatedRaw)
	return a, nil
}
