package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventSessionExpired is published once when the auth token is rejected and the teardown ran
	EventSessionExpired EventType = "SESSION_EXPIRED"
	// EventAccountSwitched is published after a new account reached ACTIVE
	EventAccountSwitched EventType = "ACCOUNT_SWITCHED"
	// EventAccountEnded is published when the backend reports the current session as ended
	EventAccountEnded EventType = "ACCOUNT_ENDED"
	// EventAccountEvicted is published when the gate finds the account over its limit
	EventAccountEvicted EventType = "ACCOUNT_EVICTED"
	// EventDomainVacated is published when the last context of a managed domain closed
	EventDomainVacated EventType = "DOMAIN_VACATED"
	// EventLoggedOut is published after an explicit logout
	EventLoggedOut EventType = "LOGGED_OUT"
	// EventOperationLog streams dispatcher operation logs to UI clients
	EventOperationLog EventType = "operation_log"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
