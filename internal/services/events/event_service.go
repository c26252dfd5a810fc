// Package events is the in-process pub/sub bus for outward notifications
// (SESSION_EXPIRED, ACCOUNT_SWITCHED, DOMAIN_VACATED, operation logs).
package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// ErrClosed is returned when publishing on a closed service
var ErrClosed = errors.New("event service closed")

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	closed      bool
	wg          sync.WaitGroup
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Unsubscribe removes a handler from an event type. Handlers are matched by function identity.
func (s *Service) Unsubscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := reflect.ValueOf(handler).Pointer()
	handlers := s.subscribers[eventType]
	for i, h := range handlers {
		if reflect.ValueOf(h).Pointer() == target {
			s.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			s.logger.Debug().
				Str("event_type", string(eventType)).
				Msg("Event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("handler not found for event type: %s", eventType)
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers, err := s.handlers(event)
	if err != nil || len(handlers) == 0 {
		return err
	}

	for _, handler := range handlers {
		h := handler
		s.wg.Add(1)
		common.SafeGo(s.logger, "event:"+string(event.Type), func() {
			defer s.wg.Done()
			s.invoke(ctx, h, event)
		})
	}

	return nil
}

// PublishSync sends an event to all subscribers synchronously
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers, err := s.handlers(event)
	if err != nil || len(handlers) == 0 {
		return err
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		h := handler
		wg.Add(1)
		common.SafeGo(s.logger, "event:"+string(event.Type), func() {
			defer wg.Done()
			if err := s.invoke(ctx, h, event); err != nil {
				errChan <- err
			}
		})
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors: %w", len(errs), errors.Join(errs...))
	}

	return nil
}

func (s *Service) handlers(event interfaces.Event) ([]interfaces.EventHandler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	handlers := append([]interfaces.EventHandler(nil), s.subscribers[event.Type]...)

	// Operation logs are themselves log traffic; logging them would feed back into the stream
	if event.Type != interfaces.EventOperationLog {
		s.logger.Debug().
			Str("event_type", string(event.Type)).
			Int("subscriber_count", len(handlers)).
			Msg("Publishing event")
	}
	return handlers, nil
}

func (s *Service) invoke(ctx context.Context, h interfaces.EventHandler, event interfaces.Event) error {
	err := h(ctx, event)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("Event handler failed")
	}
	return err
}

// Close drops all subscribers and waits for in-flight asynchronous handlers
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Event service closed")

	return nil
}
