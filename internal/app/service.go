package app

import (
	"io"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// Read limits applied when callers pass zero or negative values.
const (
	defaultRecentLimit = 10
	defaultScopedLimit = 20
	defaultPageSize    = 20
	defaultMaxPageSize = 100
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	DefaultSettings domain.AttendanceSettings
	Logger          *charmLog.Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service implements the activity log contracts, employee registration, and attendance settings.
type Service struct {
	repo            Repository
	idGen           IDGenerator
	clock           Clock
	logger          *charmLog.Logger
	pageSize        int
	maxPageSize     int
	defaultSettings domain.AttendanceSettings

	mu          sync.RWMutex
	rescheduler Rescheduler
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaultPageSize
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = charmLog.New(io.Discard)
	}
	defaults, err := cfg.DefaultSettings.Normalize()
	if err != nil {
		defaults = domain.AttendanceSettings{AbsenceMarkingTime: domain.DefaultAbsenceMarkingTime}
	}

	return &Service{
		repo:            repo,
		idGen:           idGen,
		clock:           clock,
		logger:          cfg.Logger,
		pageSize:        cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		defaultSettings: defaults,
	}
}

// SetRescheduler registers the component notified after attendance settings change.
func (s *Service) SetRescheduler(r Rescheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduler = r
}

// currentRescheduler returns the registered rescheduler, if any.
func (s *Service) currentRescheduler() Rescheduler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rescheduler
}
