// Package scheduler runs the daily absence-marking job.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron"

	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
)

// DefaultTimeZone is the named zone firings are evaluated in when none is configured.
const DefaultTimeZone = "Asia/Kolkata"

const defaultRunTimeout = 5 * time.Minute

// SettingsReader reads the persisted attendance settings.
type SettingsReader interface {
	AttendanceSettings(context.Context) (domain.AttendanceSettings, error)
}

// Marker performs "mark absences for today".
type Marker interface {
	MarkAbsences(ctx context.Context, day time.Time) (domain.AbsenceSummary, error)
}

// Stopper cancels one armed timer. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// AfterFunc arms a timer calling f once after d.
type AfterFunc func(d time.Duration, f func()) Stopper

// Clock returns the current time.
type Clock func() time.Time

// SystemTimer arms real timers.
func SystemTimer(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Health classifies the job from its run history.
type Health string

// Health values.
const (
	HealthStopped   Health = "stopped"
	HealthDisabled  Health = "disabled"
	HealthUnhealthy Health = "unhealthy"
	HealthWarning   Health = "warning"
	HealthHealthy   Health = "healthy"
)

// Outcome is the result of one firing.
type Outcome struct {
	Success bool                   `json:"success"`
	Summary *domain.AbsenceSummary `json:"summary,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// JobStatus describes the absence-marking job itself.
type JobStatus struct {
	Enabled     bool       `json:"enabled"`
	Running     bool       `json:"running"`
	Executing   bool       `json:"executing"`
	MarkingTime string     `json:"marking_time,omitempty"`
	TimeZone    string     `json:"time_zone"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastOutcome *Outcome   `json:"last_outcome,omitempty"`
}

// Stats holds counters since process start.
type Stats struct {
	RunCount   int `json:"run_count"`
	ErrorCount int `json:"error_count"`
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Initialized       bool      `json:"initialized"`
	AbsenceMarkingJob JobStatus `json:"absence_marking_job"`
	Stats             Stats     `json:"stats"`
	Health            Health    `json:"health"`
}

// Config holds the collaborators of an AbsenceJob.
type Config struct {
	Settings   SettingsReader
	Marker     Marker
	AfterFunc  AfterFunc
	Clock      Clock
	Logger     *charmLog.Logger
	Location   *time.Location
	RunTimeout time.Duration
}

// AbsenceJob arms one timer for the next configured wall-clock time and marks absences when it fires.
type AbsenceJob struct {
	settings   SettingsReader
	marker     Marker
	afterFunc  AfterFunc
	clock      Clock
	logger     *charmLog.Logger
	loc        *time.Location
	runTimeout time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	initialized bool
	stopped     bool
	enabled     bool
	markingTime string
	schedule    cron.Schedule
	timer       Stopper
	generation  uint64
	nextRunAt   time.Time
	executing   bool
	lastRunAt   time.Time
	lastOutcome *Outcome
	runCount    int
	errorCount  int
}

// New constructs a stopped job.
func New(cfg Config) (*AbsenceJob, error) {
	if cfg.Settings == nil {
		return nil, errors.New("scheduler: settings reader is required")
	}
	if cfg.Marker == nil {
		return nil, errors.New("scheduler: marker is required")
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = SystemTimer
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = charmLog.New(io.Discard)
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultTimeZone)
		if err != nil {
			return nil, errors.Wrapf(err, "scheduler: load time zone %q", DefaultTimeZone)
		}
		cfg.Location = loc
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &AbsenceJob{
		settings:   cfg.Settings,
		marker:     cfg.Marker,
		afterFunc:  cfg.AfterFunc,
		clock:      cfg.Clock,
		logger:     cfg.Logger.WithPrefix("absence-job"),
		loc:        cfg.Location,
		runTimeout: cfg.RunTimeout,
	}, nil
}

// NextFiring returns the first occurrence of markingTime in loc strictly after now.
func NextFiring(markingTime string, now time.Time, loc *time.Location) (time.Time, error) {
	schedule, err := dailySchedule(markingTime)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.In(loc)), nil
}

func dailySchedule(markingTime string) (cron.Schedule, error) {
	clock, err := domain.ParseClockTime(markingTime)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "build daily schedule"), app.ErrScheduling)
	}
	schedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", clock.Minute, clock.Hour))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "build daily schedule for %s", clock), app.ErrScheduling)
	}
	return schedule, nil
}

// Initialize reads the settings and arms the timer when the feature is enabled.
// Calling it again while initialized is a no-op. A failure leaves the job stopped.
func (j *AbsenceJob) Initialize(ctx context.Context) error {
	j.mu.Lock()
	already := j.initialized
	j.mu.Unlock()
	if already {
		j.logger.Info("already initialized; skipping")
		return nil
	}

	settings, err := j.settings.AttendanceSettings(ctx)
	if err != nil {
		j.logger.Error("initialize failed; job stays stopped", "err", err)
		return errors.Mark(errors.Wrap(err, "initialize absence job"), app.ErrScheduling)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.initialized {
		return nil
	}
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.ctx, j.cancel = base, cancel
	j.initialized = true
	if err := j.applyLocked(settings); err != nil {
		j.initialized = false
		j.cancel()
		j.logger.Error("initialize failed; job stays stopped", "err", err)
		return err
	}
	j.stopped = false
	return nil
}

// Reschedule cancels the armed timer, re-reads the settings and re-arms when still enabled.
// An in-flight firing is not interrupted. On failure the previous schedule stays armed.
// A job whose Initialize failed is initialized by the next Reschedule; a job shut down with Stop stays stopped.
func (j *AbsenceJob) Reschedule(ctx context.Context) error {
	j.mu.Lock()
	initialized, stopped := j.initialized, j.stopped
	j.mu.Unlock()
	if stopped {
		j.logger.Debug("reschedule ignored; job stopped")
		return nil
	}
	if !initialized {
		j.logger.Info("job not initialized; initializing from reschedule")
		return j.Initialize(ctx)
	}

	settings, err := j.settings.AttendanceSettings(ctx)
	if err != nil {
		j.logger.Error("reschedule failed; keeping previous schedule", "err", err)
		return errors.Mark(errors.Wrap(err, "reschedule absence job"), app.ErrScheduling)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.initialized {
		return nil
	}
	if err := j.applyLocked(settings); err != nil {
		j.logger.Error("reschedule failed; keeping previous schedule", "err", err)
		return err
	}
	return nil
}

// Stop disarms the timer and returns the job to its initial state. Run counters are kept.
func (j *AbsenceJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if !j.initialized {
		return
	}
	j.disarmLocked()
	j.generation++
	j.initialized = false
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("stopped")
}

// Status returns a snapshot of the job state and run history.
func (j *AbsenceJob) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	job := JobStatus{
		Enabled:     j.initialized && j.enabled,
		Running:     j.timer != nil,
		Executing:   j.executing,
		MarkingTime: j.markingTime,
		TimeZone:    j.loc.String(),
	}
	if j.timer != nil && !j.nextRunAt.IsZero() {
		next := j.nextRunAt
		job.NextRunAt = &next
	}
	if !j.lastRunAt.IsZero() {
		last := j.lastRunAt
		job.LastRunAt = &last
	}
	if j.lastOutcome != nil {
		outcome := *j.lastOutcome
		job.LastOutcome = &outcome
	}
	return Status{
		Initialized:       j.initialized,
		AbsenceMarkingJob: job,
		Stats:             Stats{RunCount: j.runCount, ErrorCount: j.errorCount},
		Health:            j.healthLocked(),
	}
}

func (j *AbsenceJob) healthLocked() Health {
	switch {
	case !j.initialized:
		return HealthStopped
	case !j.enabled:
		return HealthDisabled
	case j.runCount > 0 && j.errorCount*2 > j.runCount:
		return HealthUnhealthy
	case j.errorCount > 0:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// applyLocked swaps the armed timer for one matching settings. The caller holds j.mu.
func (j *AbsenceJob) applyLocked(settings domain.AttendanceSettings) error {
	normalized, err := settings.Normalize()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "apply attendance settings"), app.ErrScheduling)
	}
	schedule, err := dailySchedule(normalized.AbsenceMarkingTime)
	if err != nil {
		return err
	}

	j.disarmLocked()
	j.generation++
	j.enabled = normalized.AutoAbsenceEnabled
	j.markingTime = normalized.AbsenceMarkingTime
	j.schedule = schedule
	if !j.enabled {
		j.logger.Info("auto absence marking disabled; timer disarmed")
		return nil
	}
	j.armLocked()
	return nil
}

func (j *AbsenceJob) armLocked() {
	now := j.clock().In(j.loc)
	// A clock stepped backwards must not re-select the slot that just fired.
	from := now
	if j.nextRunAt.After(from) {
		from = j.nextRunAt
	}
	next := j.schedule.Next(from)
	gen := j.generation
	j.timer = j.afterFunc(next.Sub(now), func() { j.fire(gen) })
	j.nextRunAt = next
	j.logger.Info("timer armed", "marking_time", j.markingTime, "next_run_at", next.Format(time.RFC3339))
}

func (j *AbsenceJob) disarmLocked() {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.nextRunAt = time.Time{}
}

// fire runs one firing armed under generation gen.
func (j *AbsenceJob) fire(gen uint64) {
	j.mu.Lock()
	if gen != j.generation || !j.initialized {
		j.mu.Unlock()
		return
	}
	j.timer = nil
	if j.executing {
		j.logger.Warn("previous firing still executing; skipping this occurrence")
		if j.enabled {
			j.armLocked()
		}
		j.mu.Unlock()
		return
	}
	j.executing = true
	ctx := j.ctx
	j.mu.Unlock()

	firedAt := j.clock()
	j.logger.Info("firing started", "fired_at", firedAt.In(j.loc).Format(time.RFC3339))
	summary, err := j.run(ctx, firedAt)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.executing = false
	j.runCount++
	j.lastRunAt = firedAt
	if err != nil {
		j.errorCount++
		j.lastOutcome = &Outcome{Error: err.Error()}
		j.logger.Error("firing failed", "err", err, "runs", j.runCount, "errors", j.errorCount)
	} else {
		j.lastOutcome = &Outcome{Success: true, Summary: &summary}
		j.logger.Info("firing finished", "date", summary.Date, "marked", summary.Marked, "already_recorded", summary.AlreadyRecorded)
	}
	if gen == j.generation && j.initialized && j.enabled && j.timer == nil {
		j.armLocked()
	}
}

// run invokes the marker with a timeout and converts panics into execution errors.
func (j *AbsenceJob) run(ctx context.Context, firedAt time.Time) (summary domain.AbsenceSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("absence marking panicked: %v", r), app.ErrExecution)
		}
	}()
	runCtx, cancel := context.WithTimeout(ctx, j.runTimeout)
	defer cancel()
	summary, err = j.marker.MarkAbsences(runCtx, firedAt.In(j.loc))
	if err != nil && !errors.Is(err, app.ErrExecution) {
		err = errors.Mark(err, app.ErrExecution)
	}
	return summary, err
}
