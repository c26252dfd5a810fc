package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// broadcastEvents are the manager notifications forwarded to UI clients
var broadcastEvents = []interfaces.EventType{
	interfaces.EventSessionExpired,
	interfaces.EventAccountSwitched,
	interfaces.EventAccountEnded,
	interfaces.EventAccountEvicted,
	interfaces.EventDomainVacated,
	interfaces.EventLoggedOut,
	interfaces.EventOperationLog,
}

// EventSubscriber bridges the event bus to WebSocket broadcasts
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
	subscribed    []interfaces.EventType
}

// NewEventSubscriber creates the subscriber and subscribes it to every broadcast event
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:       handler,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		throttlers:    make(map[string]*rate.Limiter),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
				continue
			}
			// 1 event per interval (burst=1)
			s.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	for _, eventType := range broadcastEvents {
		if err := eventService.Subscribe(eventType, s.forward); err != nil {
			logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe")
			continue
		}
		s.subscribed = append(s.subscribed, eventType)
	}
	logger.Debug().Int("events", len(s.subscribed)).Msg("EventSubscriber registered")

	return s
}

// forward broadcasts one event unless filtered or throttled
func (s *EventSubscriber) forward(ctx context.Context, event interfaces.Event) error {
	eventType := string(event.Type)
	if !s.shouldBroadcastEvent(eventType) {
		return nil
	}
	s.handler.Broadcast(eventType, event.Payload)
	return nil
}

// shouldBroadcastEvent checks if an event should be broadcast based on whitelist and throttling
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}
	if limiter, ok := s.throttlers[eventType]; ok && !limiter.Allow() {
		return false
	}
	return true
}

// Close removes the subscriptions
func (s *EventSubscriber) Close() {
	for _, eventType := range s.subscribed {
		if err := s.eventService.Unsubscribe(eventType, s.forward); err != nil {
			s.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("Unsubscribe failed")
		}
	}
	s.subscribed = nil
}
