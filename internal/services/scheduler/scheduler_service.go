// Package scheduler runs the manager's interval jobs (token validation,
// quota polling, analytics flush) on robfig/cron.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func() error
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service implements SchedulerService interface. A job never overlaps itself;
// different jobs may run together since the session manager serializes their work.
type Service struct {
	cron     *cron.Cron
	logger   arbor.ILogger
	minimum  time.Duration
	jobMu    sync.Mutex // Protects jobs map
	jobs     map[string]*jobEntry
	running  bool
	inflight sync.WaitGroup
}

// cronLogger routes robfig/cron's own logging into arbor
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Err(err).Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	cl := cronLogger{logger: logger}
	return &Service{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		logger:  logger,
		minimum: common.MinimumScheduleInterval,
		jobs:    make(map[string]*jobEntry),
	}
}

// Start begins running registered jobs on their schedules
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs
func (s *Service) Stop() error {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return nil
	}
	s.running = false
	s.jobMu.Unlock()

	<-s.cron.Stop().Done()
	s.inflight.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// RegisterJob registers a new job with the scheduler
func (s *Service) RegisterJob(name string, schedule string, description string, handler func() error) error {
	if handler == nil {
		return fmt.Errorf("job %s has no handler", name)
	}
	// Validate schedule before attempting to register
	if err := common.ValidateSchedule(schedule, s.minimum); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// EnableJob enables a disabled job
func (s *Service) EnableJob(name string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	if entry.enabled {
		return nil // Already enabled
	}

	cronID, err := s.cron.AddFunc(entry.schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	entry.enabled = true

	s.logger.Info().
		Str("job_name", name).
		Msg("Job enabled")

	return nil
}

// DisableJob removes a job from the cron runner without forgetting it
func (s *Service) DisableJob(name string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	if !entry.enabled {
		return nil // Already disabled
	}

	s.cron.Remove(entry.cronID)
	entry.enabled = false

	s.logger.Info().
		Str("job_name", name).
		Msg("Job disabled")

	return nil
}

// TriggerJob runs a job immediately in the background
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}

	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().
		Str("job_name", name).
		Msg("Manually triggering job execution")

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.executeJob(name)
	}()

	return nil
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return s.statusLocked(entry), nil
}

// GetAllJobStatuses returns all job statuses
func (s *Service) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	statuses := make(map[string]*interfaces.JobStatus, len(s.jobs))
	for name, entry := range s.jobs {
		statuses[name] = s.statusLocked(entry)
	}
	return statuses
}

func (s *Service) statusLocked(entry *jobEntry) *interfaces.JobStatus {
	var nextRun *time.Time
	if entry.enabled && s.running {
		if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
			nextRun = &next
		}
	}

	return &interfaces.JobStatus{
		Name:        entry.name,
		Enabled:     entry.enabled,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
	}
}

func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().
			Str("job_name", name).
			Msg("Job not found")
		return
	}
	if entry.isRunning {
		// A manual trigger raced the cron tick
		s.jobMu.Unlock()
		s.logger.Debug().Str("job_name", name).Msg("Job still running, run skipped")
		return
	}

	entry.isRunning = true
	start := time.Now()
	handler := entry.handler
	s.jobMu.Unlock()

	s.logger.Debug().
		Str("job_name", name).
		Msg("Job execution started")

	err := handler()

	completionTime := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completionTime
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Warn().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Job execution failed")
		return
	}
	s.logger.Debug().
		Str("job_name", name).
		Dur("duration", time.Since(start)).
		Msg("Job execution completed")
}
