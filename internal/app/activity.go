package app

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// RecordActivityInput holds input values for the generic write contract.
type RecordActivityInput struct {
	ActorID     string
	Action      domain.Action
	SubjectType domain.SubjectType
	SubjectID   string
	SubjectName string
	Description string
	Details     domain.Details
}

// ActivityView is one activity with its actor resolved for display. Actor is nil when the actor no longer exists.
type ActivityView struct {
	ID          int64                `json:"id"`
	ActorID     string               `json:"actor_id"`
	Actor       *domain.ActorSummary `json:"actor"`
	Action      domain.Action        `json:"action"`
	SubjectType domain.SubjectType   `json:"subject_type"`
	SubjectID   string               `json:"subject_id"`
	SubjectName string               `json:"subject_name"`
	Description string               `json:"description"`
	DetailsKind domain.DetailsKind   `json:"details_kind"`
	Details     domain.Details       `json:"details"`
	Timestamp   time.Time            `json:"timestamp"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// ActivityPage is one page of the full activity log.
type ActivityPage struct {
	Activities []ActivityView `json:"activities"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// AllActivitiesInput selects one page of the activity log.
type AllActivitiesInput struct {
	Page        int
	Limit       int
	SubjectType string
}

// Record validates and appends one activity. Nothing is persisted when validation fails.
func (s *Service) Record(ctx context.Context, in RecordActivityInput) (domain.Activity, error) {
	activity, err := domain.NewActivity(domain.ActivityInput{
		ActorID:     in.ActorID,
		Action:      in.Action,
		SubjectType: in.SubjectType,
		SubjectID:   in.SubjectID,
		SubjectName: in.SubjectName,
		Description: in.Description,
		Details:     in.Details,
	}, s.clock())
	if err != nil {
		return domain.Activity{}, validationError(err, "record activity")
	}
	stored, err := s.repo.CreateActivity(ctx, activity)
	if err != nil {
		return domain.Activity{}, errors.Wrap(err, "record activity")
	}
	s.logger.Debug("activity recorded", "id", stored.ID, "action", stored.Action, "subject_type", stored.SubjectType, "subject_id", stored.SubjectID)
	return stored, nil
}

// RecentActivities returns up to limit activities, newest first.
func (s *Service) RecentActivities(ctx context.Context, limit int) ([]ActivityView, error) {
	activities, err := s.repo.ListActivities(ctx, ActivityQuery{Limit: s.boundLimit(limit, defaultRecentLimit)})
	if err != nil {
		return nil, errors.Wrap(err, "list recent activities")
	}
	return s.enrich(ctx, activities), nil
}

// ActivitiesByActor returns up to limit activities produced by one actor, newest first.
func (s *Service) ActivitiesByActor(ctx context.Context, actorID string, limit int) ([]ActivityView, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, validationError(domain.ErrInvalidID, "list activities by actor")
	}
	activities, err := s.repo.ListActivities(ctx, ActivityQuery{
		ActorID: actorID,
		Limit:   s.boundLimit(limit, defaultScopedLimit),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list activities by actor %q", actorID)
	}
	return s.enrich(ctx, activities), nil
}

// ActivitiesByEntity returns up to limit activities about one subject, newest first.
func (s *Service) ActivitiesByEntity(ctx context.Context, subjectType domain.SubjectType, subjectID string, limit int) ([]ActivityView, error) {
	subjectType = domain.NormalizeSubjectType(subjectType)
	if !domain.IsValidSubjectType(subjectType) {
		return nil, validationError(domain.ErrInvalidSubjectType, "list activities by entity")
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, validationError(domain.ErrInvalidID, "list activities by entity")
	}
	activities, err := s.repo.ListActivities(ctx, ActivityQuery{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Limit:       s.boundLimit(limit, defaultScopedLimit),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list activities for %s %q", subjectType, subjectID)
	}
	return s.enrich(ctx, activities), nil
}

// AllActivities returns one 1-indexed page plus the total count matching the filter.
// SubjectType "all" or empty disables filtering; unknown values match nothing.
func (s *Service) AllActivities(ctx context.Context, in AllActivitiesInput) (ActivityPage, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := s.boundLimit(in.Limit, s.pageSize)
	// Keep (page-1)*limit inside a 32-bit offset.
	if maxPage := math.MaxInt32/limit + 1; page > maxPage {
		page = maxPage
	}
	query := ActivityQuery{Limit: limit, Offset: (page - 1) * limit}
	if filter := strings.TrimSpace(strings.ToLower(in.SubjectType)); filter != "" && filter != domain.SubjectFilterAll {
		query.SubjectType = domain.SubjectType(filter)
	}

	total, err := s.repo.CountActivities(ctx, query)
	if err != nil {
		return ActivityPage{}, errors.Wrap(err, "count activities")
	}
	activities, err := s.repo.ListActivities(ctx, query)
	if err != nil {
		return ActivityPage{}, errors.Wrap(err, "list activities page")
	}
	return ActivityPage{
		Activities: s.enrich(ctx, activities),
		TotalCount: total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// DeleteAll irreversibly removes every activity and returns the count deleted.
// Only administrators may call it; any other requester fails with ErrAuthorization and nothing is removed.
func (s *Service) DeleteAll(ctx context.Context, requesterID string) (int64, error) {
	requester, err := s.repo.GetEmployee(ctx, strings.TrimSpace(requesterID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, authorizationError("delete all activities: unknown requester", "Identify as an administrator to clear the activity log.")
		}
		return 0, errors.Wrap(err, "delete all activities: resolve requester")
	}
	if !requester.IsAdmin() {
		return 0, authorizationError("delete all activities: requester is not an administrator", "Only administrators can clear the activity log.")
	}
	deleted, err := s.repo.DeleteAllActivities(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "delete all activities")
	}
	s.logger.Warn("activity log cleared", "requester", requester.ID, "deleted", deleted)
	return deleted, nil
}

// NewActivityView projects one stored activity for display.
func NewActivityView(activity domain.Activity, actor *domain.ActorSummary) ActivityView {
	details := activity.Details
	if details == nil {
		details = domain.Extra{}
	}
	return ActivityView{
		ID:          activity.ID,
		ActorID:     activity.ActorID,
		Actor:       actor,
		Action:      activity.Action,
		SubjectType: activity.SubjectType,
		SubjectID:   activity.SubjectID,
		SubjectName: activity.SubjectName,
		Description: activity.Description,
		DetailsKind: details.Kind(),
		Details:     details,
		Timestamp:   activity.Timestamp,
		CreatedAt:   activity.CreatedAt,
		UpdatedAt:   activity.UpdatedAt,
	}
}

// UnmarshalJSON restores the details variant named by details_kind.
func (v *ActivityView) UnmarshalJSON(data []byte) error {
	type plain ActivityView
	var raw struct {
		plain
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode activity view")
	}
	details, err := domain.DecodeDetails(raw.DetailsKind, string(raw.Details))
	if err != nil {
		return errors.Wrap(err, "decode activity view")
	}
	*v = ActivityView(raw.plain)
	v.Details = details
	v.DetailsKind = details.Kind()
	return nil
}

// boundLimit applies the fallback for non-positive limits and caps at the maximum page size.
func (s *Service) boundLimit(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return limit
}

// enrich resolves actor display info in one lookup. Lookup failures leave actors nil.
func (s *Service) enrich(ctx context.Context, activities []domain.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(activities))
	if len(activities) == 0 {
		return out
	}
	ids := make([]string, 0, len(activities))
	seen := make(map[string]struct{}, len(activities))
	for _, activity := range activities {
		if _, ok := seen[activity.ActorID]; ok {
			continue
		}
		seen[activity.ActorID] = struct{}{}
		ids = append(ids, activity.ActorID)
	}

	actors := map[string]domain.ActorSummary{}
	employees, err := s.repo.ListEmployeesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("actor lookup failed; returning activities without actors", "actors", len(ids), "err", err)
	}
	for _, employee := range employees {
		actors[employee.ID] = employee.Summary()
	}

	for _, activity := range activities {
		var actor *domain.ActorSummary
		if summary, ok := actors[activity.ActorID]; ok {
			actor = &summary
		}
		out = append(out, NewActivityView(activity, actor))
	}
	return out
}
