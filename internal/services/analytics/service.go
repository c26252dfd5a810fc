// Package analytics queues usage events and sends them to the backend in batches.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// maxQueued bounds the queue while the backend is unreachable; the oldest events go first
const maxQueued = 1000

// DefaultInactivityTimeout ends a domain's analytics session after no page views
const DefaultInactivityTimeout = 60 * time.Second

// EmailSource reports the logged-in user's email, the analytics user id
type EmailSource interface {
	UserEmail() string
}

// Service batches analytics events
type Service struct {
	backend   interfaces.BackendClient
	emails    EmailSource
	clock     clockwork.Clock
	batchSize int
	enabled   bool
	idleAfter time.Duration
	logger    arbor.ILogger

	mu       sync.Mutex
	queue    []models.AnalyticsEvent
	flushing bool

	idle      map[string]*idleTimer // Domain -> inactivity timer, armed by page views
	idleEnded map[string]bool       // Domains whose session ended for inactivity
}

type idleTimer struct {
	timer clockwork.Timer
}

func NewService(backend interfaces.BackendClient, emails EmailSource, config common.AnalyticsConfig, clock clockwork.Clock, logger arbor.ILogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Service{
		backend:   backend,
		emails:    emails,
		clock:     clock,
		batchSize: batchSize,
		enabled:   config.Enabled,
		idleAfter: common.ParseDuration(config.InactivityTimeout, DefaultInactivityTimeout),
		logger:    logger,
		idle:      make(map[string]*idleTimer),
		idleEnded: make(map[string]bool),
	}
}

// Track queues an event. A full batch is flushed in the background.
func (s *Service) Track(eventType models.AnalyticsEventType, accountID models.AccountID, domain string, data map[string]string) {
	if !s.enabled {
		return
	}

	event := models.AnalyticsEvent{
		ID:        common.NewEventID(),
		Type:      eventType,
		UserEmail: s.emails.UserEmail(),
		AccountID: accountID,
		Domain:    domain,
		Data:      data,
		Timestamp: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	s.queue = append(s.queue, event)
	if over := len(s.queue) - maxQueued; over > 0 {
		s.queue = s.queue[over:]
	}
	full := len(s.queue) >= s.batchSize && !s.flushing
	s.mu.Unlock()

	if full {
		common.SafeGo(s.logger, "analytics-flush", func() {
			if _, err := s.Flush(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("Background analytics flush failed")
			}
		})
	}

	switch eventType {
	case models.AnalyticsPageView:
		s.touch(accountID, domain)
	case models.AnalyticsSessionEnd:
		s.stopIdle(domain)
	}
}

// touch re-arms the domain's inactivity timer. A page view on a domain whose
// session ended for inactivity starts a new one.
func (s *Service) touch(accountID models.AccountID, domain string) {
	if domain == "" {
		return
	}

	entry := &idleTimer{}
	s.mu.Lock()
	if previous, ok := s.idle[domain]; ok {
		previous.timer.Stop()
	}
	resumed := s.idleEnded[domain]
	delete(s.idleEnded, domain)
	s.idle[domain] = entry
	entry.timer = s.clock.AfterFunc(s.idleAfter, func() { s.endIdle(entry, accountID, domain) })
	s.mu.Unlock()

	if resumed {
		s.Track(models.AnalyticsSessionStart, accountID, domain, map[string]string{"reason": "activity"})
	}
}

func (s *Service) endIdle(entry *idleTimer, accountID models.AccountID, domain string) {
	s.mu.Lock()
	if s.idle[domain] != entry {
		// Re-armed or stopped after this timer fired
		s.mu.Unlock()
		return
	}
	delete(s.idle, domain)
	s.idleEnded[domain] = true
	s.mu.Unlock()

	s.logger.Debug().Str("domain", domain).Dur("idle", s.idleAfter).Msg("Analytics session idle, ending")
	s.Track(models.AnalyticsSessionEnd, accountID, domain, map[string]string{"reason": "inactivity"})
}

// stopIdle disarms the timer of domain, or of every domain when domain is empty
func (s *Service) stopIdle(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain != "" {
		if entry, ok := s.idle[domain]; ok {
			entry.timer.Stop()
			delete(s.idle, domain)
		}
		return
	}
	for d, entry := range s.idle {
		entry.timer.Stop()
		delete(s.idle, d)
	}
	clear(s.idleEnded)
}

// Idle reports the domains with an armed inactivity timer
func (s *Service) Idle() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	domains := make([]string, 0, len(s.idle))
	for d := range s.idle {
		domains = append(domains, d)
	}
	return domains
}

// Pending returns the number of queued events
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush sends queued events in batches and returns how many were sent. It is
// dormant while no user is logged in. A failed batch goes back to the queue.
func (s *Service) Flush(ctx context.Context) (int, error) {
	email := s.emails.UserEmail()
	if email == "" {
		return 0, nil
	}

	s.mu.Lock()
	if s.flushing || len(s.queue) == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.flushing = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.flushing = false
		s.mu.Unlock()
	}()

	sent := 0
	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		if err := s.backend.SendAnalytics(ctx, email, pending[start:end]); err != nil {
			s.requeue(pending[start:])
			return sent, fmt.Errorf("send analytics batch: %w", err)
		}
		sent += end - start
	}

	s.logger.Debug().Int("events", sent).Msg("Analytics flushed")
	return sent, nil
}

// requeue puts unsent events ahead of anything tracked during the flush
func (s *Service) requeue(events []models.AnalyticsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := make([]models.AnalyticsEvent, 0, len(events)+len(s.queue))
	queue = append(queue, events...)
	queue = append(queue, s.queue...)
	if over := len(queue) - maxQueued; over > 0 {
		queue = queue[over:]
	}
	s.queue = queue
}
