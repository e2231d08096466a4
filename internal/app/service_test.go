package app

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/domain"
)

type fakeRepo struct {
	activities  []domain.Activity
	nextID      int64
	employees   map[string]domain.Employee
	settings    *domain.AttendanceSettings
	lookupErr   error
	lastQuery   ActivityQuery
	markedDates []string
	markErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{employees: map[string]domain.Employee{}}
}

func (f *fakeRepo) CreateActivity(_ context.Context, a domain.Activity) (domain.Activity, error) {
	f.nextID++
	a.ID = f.nextID
	f.activities = append(f.activities, a)
	return a, nil
}

func (f *fakeRepo) matching(q ActivityQuery) []domain.Activity {
	out := make([]domain.Activity, 0, len(f.activities))
	for _, a := range f.activities {
		if q.ActorID != "" && a.ActorID != q.ActorID {
			continue
		}
		if q.SubjectType != "" && a.SubjectType != q.SubjectType {
			continue
		}
		if q.SubjectID != "" && a.SubjectID != q.SubjectID {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Activity) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out
}

func (f *fakeRepo) ListActivities(_ context.Context, q ActivityQuery) ([]domain.Activity, error) {
	f.lastQuery = q
	out := f.matching(q)
	if q.Offset >= len(out) {
		return []domain.Activity{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRepo) CountActivities(_ context.Context, q ActivityQuery) (int, error) {
	return len(f.matching(q)), nil
}

func (f *fakeRepo) DeleteAllActivities(context.Context) (int64, error) {
	n := int64(len(f.activities))
	f.activities = nil
	return n, nil
}

func (f *fakeRepo) CreateEmployee(_ context.Context, e domain.Employee) error {
	f.employees[e.ID] = e
	return nil
}

func (f *fakeRepo) UpdateEmployee(_ context.Context, e domain.Employee) error {
	if _, ok := f.employees[e.ID]; !ok {
		return ErrNotFound
	}
	f.employees[e.ID] = e
	return nil
}

func (f *fakeRepo) GetEmployee(_ context.Context, id string) (domain.Employee, error) {
	e, ok := f.employees[id]
	if !ok {
		return domain.Employee{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) ListEmployeesByIDs(_ context.Context, ids []string) ([]domain.Employee, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := make([]domain.Employee, 0, len(ids))
	for _, id := range ids {
		if e, ok := f.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAttendanceSettings(context.Context) (domain.AttendanceSettings, bool, error) {
	if f.settings == nil {
		return domain.AttendanceSettings{}, false, nil
	}
	return *f.settings, true, nil
}

func (f *fakeRepo) SaveAttendanceSettings(_ context.Context, s domain.AttendanceSettings) error {
	f.settings = &s
	return nil
}

func (f *fakeRepo) MarkAbsences(_ context.Context, date string, _ func() string) (domain.AbsenceSummary, error) {
	if f.markErr != nil {
		return domain.AbsenceSummary{}, f.markErr
	}
	f.markedDates = append(f.markedDates, date)
	return domain.AbsenceSummary{Date: date, Marked: 2}, nil
}

type countingRescheduler struct {
	calls int
	err   error
}

func (c *countingRescheduler) Reschedule(context.Context) error {
	c.calls++
	return c.err
}

// steppingClock returns a clock advancing one second per call.
func steppingClock(start time.Time) Clock {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newTestService(repo *fakeRepo) *Service {
	ids := 0
	idGen := func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return NewService(repo, idGen, steppingClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)), ServiceConfig{})
}

func seedEmployee(t *testing.T, repo *fakeRepo, id, name string, role domain.Role) {
	t.Helper()
	e, err := domain.NewEmployee(domain.EmployeeInput{ID: id, Name: name, Role: role, AvatarURL: "https://img/" + id}, time.Now())
	if err != nil {
		t.Fatalf("NewEmployee() error = %v", err)
	}
	repo.employees[id] = e
}

func TestRecordThenRecentReturnsTemplatedDescription(t *testing.T) {
	repo := newFakeRepo()
	seedEmployee(t, repo, "U1", "Ada Admin", domain.RoleAdmin)
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.RecordEmployeeAdded(ctx, "U1", SubjectRef{ID: "E1", Name: "Jane Doe"}, domain.EmployeeDetails{}); err != nil {
		t.Fatalf("RecordEmployeeAdded() error = %v", err)
	}
	recent, err := svc.RecentActivities(ctx, 1)
	if err != nil {
		t.Fatalf("RecentActivities() error = %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(recent))
	}
	if recent[0].Description != "Added new employee Jane Doe" {
		t.Fatalf("description = %q", recent[0].Description)
	}
	if recent[0].Actor == nil || recent[0].Actor.Name != "Ada Admin" || recent[0].Actor.AvatarURL != "https://img/U1" {
		t.Fatalf("unexpected actor %#v", recent[0].Actor)
	}
	if recent[0].DetailsKind != domain.DetailsKindEmployee {
		t.Fatalf("details kind = %q", recent[0].DetailsKind)
	}
}

func TestRecordRejectsOutOfEnumerationValues(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	cases := []struct {
		in   RecordActivityInput
		want error
	}{
		{RecordActivityInput{ActorID: "U1", Action: "payroll_run", SubjectType: domain.SubjectEmployee, SubjectID: "E1", SubjectName: "x", Description: "y"}, domain.ErrInvalidAction},
		{RecordActivityInput{ActorID: "U1", Action: domain.ActionEmployeeAdded, SubjectType: "payroll", SubjectID: "E1", SubjectName: "x", Description: "y"}, domain.ErrInvalidSubjectType},
	}
	for _, tc := range cases {
		_, err := svc.Record(context.Background(), tc.in)
		if !errors.Is(err, ErrValidation) || !errors.Is(err, tc.want) {
			t.Fatalf("Record() error = %v, want ErrValidation wrapping %v", err, tc.want)
		}
	}
	if len(repo.activities) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(repo.activities))
	}
}

func TestRecentActivitiesOrdersNewestFirstWithSequenceTiebreak(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	svc.clock = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, title := range []string{"first", "second", "third"} {
		if _, err := svc.RecordTodoCreated(ctx, "U1", SubjectRef{ID: title, Name: title}, domain.TodoDetails{}); err != nil {
			t.Fatalf("RecordTodoCreated() error = %v", err)
		}
	}
	recent, err := svc.RecentActivities(ctx, 0)
	if err != nil {
		t.Fatalf("RecentActivities() error = %v", err)
	}
	if len(recent) != 3 || recent[0].SubjectName != "third" || recent[2].SubjectName != "first" {
		t.Fatalf("unexpected order %#v", recent)
	}
	if repo.lastQuery.Limit != defaultRecentLimit {
		t.Fatalf("limit = %d, want default %d", repo.lastQuery.Limit, defaultRecentLimit)
	}
}

func TestActorLookupFailsSoft(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	if _, err := svc.RecordLeaveApproved(ctx, "ghost", SubjectRef{ID: "L1", Name: "Sam"}, domain.LeaveDetails{}); err != nil {
		t.Fatalf("RecordLeaveApproved() error = %v", err)
	}
	recent, err := svc.RecentActivities(ctx, 5)
	if err != nil {
		t.Fatalf("RecentActivities() error = %v", err)
	}
	if len(recent) != 1 || recent[0].Actor != nil {
		t.Fatalf("expected nil actor for missing employee, got %#v", recent)
	}

	repo.lookupErr = errors.New("directory offline")
	recent, err = svc.ActivitiesByEntity(ctx, domain.SubjectLeave, "L1", 5)
	if err != nil {
		t.Fatalf("ActivitiesByEntity() error = %v", err)
	}
	if len(recent) != 1 || recent[0].Actor != nil || recent[0].Description != "Approved leave for Sam" {
		t.Fatalf("expected partial data on lookup failure, got %#v", recent)
	}
}

func TestActivitiesByActorAndEntityFilter(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	mustRecord := func(_ domain.Activity, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("record error = %v", err)
		}
	}
	mustRecord(svc.RecordCandidateAdded(ctx, "U1", SubjectRef{ID: "C1", Name: "Ravi"}, domain.CandidateDetails{Position: "SRE"}))
	mustRecord(svc.RecordInterviewScheduled(ctx, "U2", SubjectRef{ID: "I1", Name: "Ravi"}, "2026-03-04"))
	mustRecord(svc.RecordInterviewStageChanged(ctx, "U1", SubjectRef{ID: "I1", Name: "Ravi"}, "screening", "technical"))

	byActor, err := svc.ActivitiesByActor(ctx, "U1", 10)
	if err != nil {
		t.Fatalf("ActivitiesByActor() error = %v", err)
	}
	if len(byActor) != 2 {
		t.Fatalf("expected 2 activities for U1, got %d", len(byActor))
	}
	byEntity, err := svc.ActivitiesByEntity(ctx, "Interview", "I1", 10)
	if err != nil {
		t.Fatalf("ActivitiesByEntity() error = %v", err)
	}
	if len(byEntity) != 2 || byEntity[0].Description != "Changed interview stage for Ravi from screening to technical" {
		t.Fatalf("unexpected entity activities %#v", byEntity)
	}
	if _, err := svc.ActivitiesByEntity(ctx, "payroll", "I1", 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown subject type, got %v", err)
	}
	if _, err := svc.ActivitiesByActor(ctx, " ", 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank actor, got %v", err)
	}
}

func TestAllActivitiesFilterAndTotals(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	for i := range 5 {
		if _, err := svc.RecordTodoCreated(ctx, "U1", SubjectRef{ID: fmt.Sprintf("T%d", i), Name: "todo"}, domain.TodoDetails{}); err != nil {
			t.Fatalf("RecordTodoCreated() error = %v", err)
		}
	}
	for i := range 3 {
		if _, err := svc.RecordAttendanceMarked(ctx, "U1", SubjectRef{ID: fmt.Sprintf("A%d", i), Name: "Sam"}, domain.AttendanceDetails{Status: "present"}); err != nil {
			t.Fatalf("RecordAttendanceMarked() error = %v", err)
		}
	}

	page, err := svc.AllActivities(ctx, AllActivitiesInput{Page: 2, Limit: 2, SubjectType: "todo"})
	if err != nil {
		t.Fatalf("AllActivities() error = %v", err)
	}
	if page.TotalCount != 5 || page.TotalPages != 3 || len(page.Activities) != 2 {
		t.Fatalf("unexpected page %#v", page)
	}
	for _, a := range page.Activities {
		if a.SubjectType != domain.SubjectTodo {
			t.Fatalf("unexpected subject type %q in filtered page", a.SubjectType)
		}
	}

	all, err := svc.AllActivities(ctx, AllActivitiesInput{Page: 0, Limit: 0, SubjectType: "all"})
	if err != nil {
		t.Fatalf("AllActivities(all) error = %v", err)
	}
	if all.TotalCount != 8 || all.Page != 1 || all.Limit != defaultPageSize {
		t.Fatalf("unexpected unfiltered page %#v", all)
	}

	unknown, err := svc.AllActivities(ctx, AllActivitiesInput{Page: 1, Limit: 10, SubjectType: "payroll"})
	if err != nil {
		t.Fatalf("AllActivities(unknown) error = %v", err)
	}
	if unknown.TotalCount != 0 || len(unknown.Activities) != 0 {
		t.Fatalf("expected empty page for unknown filter, got %#v", unknown)
	}

	capped, err := svc.AllActivities(ctx, AllActivitiesInput{Limit: 5000})
	if err != nil {
		t.Fatalf("AllActivities(capped) error = %v", err)
	}
	if capped.Limit != defaultMaxPageSize {
		t.Fatalf("limit = %d, want cap %d", capped.Limit, defaultMaxPageSize)
	}
}

func TestAllActivitiesClampsHugePage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	page, err := svc.AllActivities(context.Background(), AllActivitiesInput{Page: math.MaxInt, Limit: 10})
	if err != nil {
		t.Fatalf("AllActivities() error = %v", err)
	}
	if repo.lastQuery.Offset < 0 || repo.lastQuery.Offset > math.MaxInt32 {
		t.Fatalf("offset = %d, want within [0, MaxInt32]", repo.lastQuery.Offset)
	}
	if page.Page != math.MaxInt32/10+1 || len(page.Activities) != 0 {
		t.Fatalf("unexpected page %#v", page)
	}
}

func TestDeleteAllRequiresAdministrator(t *testing.T) {
	repo := newFakeRepo()
	seedEmployee(t, repo, "admin", "Ada", domain.RoleAdmin)
	seedEmployee(t, repo, "hr", "Hal", domain.RoleHR)
	svc := newTestService(repo)
	ctx := context.Background()
	for i := range 4 {
		if _, err := svc.RecordTodoCompleted(ctx, "hr", SubjectRef{ID: fmt.Sprint(i), Name: "x"}, domain.TodoDetails{}); err != nil {
			t.Fatalf("RecordTodoCompleted() error = %v", err)
		}
	}

	for _, requester := range []string{"hr", "nobody"} {
		if _, err := svc.DeleteAll(ctx, requester); !errors.Is(err, ErrAuthorization) {
			t.Fatalf("DeleteAll(%q) error = %v, want ErrAuthorization", requester, err)
		}
	}
	if len(repo.activities) != 4 {
		t.Fatalf("store changed by unauthorized delete: %d left", len(repo.activities))
	}

	deleted, err := svc.DeleteAll(ctx, "admin")
	if err != nil {
		t.Fatalf("DeleteAll(admin) error = %v", err)
	}
	if deleted != 4 || len(repo.activities) != 0 {
		t.Fatalf("deleted = %d, remaining = %d", deleted, len(repo.activities))
	}
}

func TestRegisterAndUpdateEmployeeRecordActivities(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	employee, err := svc.RegisterEmployee(ctx, "U1", domain.EmployeeInput{Name: "Jane Doe", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("RegisterEmployee() error = %v", err)
	}
	if employee.ID != "id-1" {
		t.Fatalf("employee id = %q", employee.ID)
	}
	if _, err := svc.UpdateEmployee(ctx, "U1", employee.ID, domain.EmployeeInput{Name: "Jane Q. Doe", Email: "jane@example.com"}); err != nil {
		t.Fatalf("UpdateEmployee() error = %v", err)
	}
	if _, err := svc.UpdateEmployee(ctx, "U1", employee.ID, domain.EmployeeInput{Name: "Jane Q. Doe", Email: "jane@example.com"}); err != nil {
		t.Fatalf("UpdateEmployee(no-op) error = %v", err)
	}
	if len(repo.activities) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(repo.activities))
	}
	if repo.activities[1].Description != "Updated employee Jane Q. Doe" {
		t.Fatalf("description = %q", repo.activities[1].Description)
	}
	details, ok := repo.activities[1].Details.(domain.EmployeeDetails)
	if !ok || !slices.Equal(details.ChangedFields, []string{"name"}) {
		t.Fatalf("unexpected details %#v", repo.activities[1].Details)
	}
	if _, err := svc.UpdateEmployee(ctx, "U1", "missing", domain.EmployeeInput{Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordersTemplateTrimmedSubjectName(t *testing.T) {
	repo := newFakeRepo()
	seedEmployee(t, repo, "hr", "Hal", domain.RoleHR)
	svc := newTestService(repo)

	activity, err := svc.RecordLeaveApproved(context.Background(), "hr", SubjectRef{ID: "L1", Name: "  Sam Rivera "}, domain.LeaveDetails{LeaveType: "sick"})
	if err != nil {
		t.Fatalf("RecordLeaveApproved() error = %v", err)
	}
	if activity.SubjectName != "Sam Rivera" {
		t.Fatalf("subject name = %q", activity.SubjectName)
	}
	if want := domain.DescribeLeave(domain.ActionLeaveApproved, activity.SubjectName); activity.Description != want {
		t.Fatalf("description = %q, want %q", activity.Description, want)
	}
}

func TestEmployeeRoleChangesRequireAdministrator(t *testing.T) {
	repo := newFakeRepo()
	seedEmployee(t, repo, "admin", "Ada", domain.RoleAdmin)
	svc := newTestService(repo)
	ctx := context.Background()

	self, err := svc.RegisterEmployee(ctx, "", domain.EmployeeInput{Name: "Eve Mallory"})
	if err != nil {
		t.Fatalf("RegisterEmployee(employee) error = %v", err)
	}
	if self.Role != domain.RoleEmployee {
		t.Fatalf("role = %q, want employee", self.Role)
	}
	if _, err := svc.UpdateEmployee(ctx, self.ID, self.ID, domain.EmployeeInput{Name: "Eve Mallory", Role: domain.RoleAdmin}); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("self-promotion error = %v, want ErrAuthorization", err)
	}
	if stored := repo.employees[self.ID]; stored.Role != domain.RoleEmployee {
		t.Fatalf("stored role = %q after rejected promotion", stored.Role)
	}
	if _, err := svc.DeleteAll(ctx, self.ID); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("DeleteAll() error = %v, want ErrAuthorization", err)
	}

	before := len(repo.employees)
	for _, actor := range []string{"", self.ID} {
		if _, err := svc.RegisterEmployee(ctx, actor, domain.EmployeeInput{Name: "Mint Admin", Role: domain.RoleAdmin}); !errors.Is(err, ErrAuthorization) {
			t.Fatalf("RegisterEmployee(admin) by %q error = %v, want ErrAuthorization", actor, err)
		}
	}
	if len(repo.employees) != before {
		t.Fatalf("rejected registrations were stored: %d employees", len(repo.employees))
	}

	// Non-role edits stay open to the employee.
	if _, err := svc.UpdateEmployee(ctx, self.ID, self.ID, domain.EmployeeInput{Name: "Eve M."}); err != nil {
		t.Fatalf("UpdateEmployee(name) error = %v", err)
	}

	hr, err := svc.RegisterEmployee(ctx, "admin", domain.EmployeeInput{Name: "Hal", Role: domain.RoleHR})
	if err != nil || hr.Role != domain.RoleHR {
		t.Fatalf("RegisterEmployee(hr) by admin = %#v, %v", hr, err)
	}
	promoted, err := svc.UpdateEmployee(ctx, "admin", self.ID, domain.EmployeeInput{Name: "Eve M.", Role: domain.RoleHR})
	if err != nil || promoted.Role != domain.RoleHR {
		t.Fatalf("UpdateEmployee(role) by admin = %#v, %v", promoted, err)
	}
}

func TestProvisionEmployeeSkipsRequesterCheck(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	first, err := svc.ProvisionEmployee(context.Background(), domain.EmployeeInput{Name: "Root Admin", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("ProvisionEmployee() error = %v", err)
	}
	if !repo.employees[first.ID].IsAdmin() {
		t.Fatalf("provisioned employee = %#v", repo.employees[first.ID])
	}
	if len(repo.activities) != 1 || repo.activities[0].ActorID != first.ID {
		t.Fatalf("expected self-attributed employee_added, got %#v", repo.activities)
	}
}

func TestUpdateAttendanceSettingsNotifiesRescheduler(t *testing.T) {
	repo := newFakeRepo()
	seedEmployee(t, repo, "hr", "Hal", domain.RoleHR)
	seedEmployee(t, repo, "emp", "Eve", domain.RoleEmployee)
	svc := newTestService(repo)
	r := &countingRescheduler{}
	svc.SetRescheduler(r)
	ctx := context.Background()

	defaults, err := svc.AttendanceSettings(ctx)
	if err != nil {
		t.Fatalf("AttendanceSettings() error = %v", err)
	}
	if defaults.AutoAbsenceEnabled || defaults.AbsenceMarkingTime != domain.DefaultAbsenceMarkingTime {
		t.Fatalf("unexpected defaults %#v", defaults)
	}

	if _, err := svc.UpdateAttendanceSettings(ctx, "emp", domain.AttendanceSettings{AutoAbsenceEnabled: true}); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization, got %v", err)
	}
	if _, err := svc.UpdateAttendanceSettings(ctx, "hr", domain.AttendanceSettings{AbsenceMarkingTime: "25:00"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("rescheduler called %d times before a successful update", r.calls)
	}

	r.err = errors.New("timer unavailable")
	saved, err := svc.UpdateAttendanceSettings(ctx, "hr", domain.AttendanceSettings{AutoAbsenceEnabled: true, AbsenceMarkingTime: "19:30"})
	if err != nil {
		t.Fatalf("UpdateAttendanceSettings() error = %v", err)
	}
	if r.calls != 1 || !saved.AutoAbsenceEnabled || saved.AbsenceMarkingTime != "19:30" {
		t.Fatalf("calls = %d, saved = %#v", r.calls, saved)
	}
	reloaded, err := svc.AttendanceSettings(ctx)
	if err != nil || reloaded.AbsenceMarkingTime != "19:30" {
		t.Fatalf("AttendanceSettings() = %#v, %v", reloaded, err)
	}
}

func TestMarkAbsencesUsesCalendarDayOfZone(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	zone := time.FixedZone("IST", 5*3600+1800)
	day := time.Date(2026, 3, 2, 23, 30, 0, 0, zone)
	summary, err := svc.MarkAbsences(context.Background(), day)
	if err != nil {
		t.Fatalf("MarkAbsences() error = %v", err)
	}
	if summary.Date != "2026-03-02" || repo.markedDates[0] != "2026-03-02" {
		t.Fatalf("unexpected date %q", summary.Date)
	}

	repo.markErr = errors.New("disk full")
	if _, err := svc.MarkAbsences(context.Background(), day); !errors.Is(err, ErrExecution) || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected ErrExecution wrapping cause, got %v", err)
	}
}
