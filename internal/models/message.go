package models

// MessageType names a message exchanged with the UI layer
type MessageType string

const (
	MessageSetManagedDomains MessageType = "SET_MANAGED_DOMAINS"
	MessageCleanupCookies    MessageType = "CLEANUP_COOKIES"
	MessageSessionExpired    MessageType = "SESSION_EXPIRED"
	MessageGetCurrentAccount MessageType = "GET_CURRENT_ACCOUNT"
)

// Message is an inbound fire-and-acknowledge request from the UI
type Message struct {
	Type    MessageType `json:"type"`
	Domains []string    `json:"domains,omitempty"` // SET_MANAGED_DOMAINS
	Domain  string      `json:"domain,omitempty"`  // CLEANUP_COOKIES; empty means all domains
}

// MessageResponse acknowledges a Message
type MessageResponse struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Account *Account    `json:"account,omitempty"`
	Domains []string    `json:"domains,omitempty"`
}
