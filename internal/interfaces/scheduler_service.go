package interfaces

import "time"

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
}

// SchedulerService manages cron-based background jobs (validation, gate polling, analytics flush)
type SchedulerService interface {
	// Start starts the cron runner
	Start() error

	// Stop stops the cron runner and waits for running jobs
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterJob registers a new job with the scheduler
	RegisterJob(name string, schedule string, description string, handler func() error) error

	// EnableJob enables a disabled job
	EnableJob(name string) error

	// DisableJob disables an enabled job
	DisableJob(name string) error

	// TriggerJob runs a job immediately, outside its schedule
	TriggerJob(name string) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*JobStatus, error)

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*JobStatus
}
