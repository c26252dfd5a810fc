package models

import "time"

// AnalyticsEventType enumerates tracked usage events
type AnalyticsEventType string

const (
	AnalyticsAccountSwitch AnalyticsEventType = "account_switch"
	AnalyticsSessionStart  AnalyticsEventType = "session_start"
	AnalyticsSessionEnd    AnalyticsEventType = "session_end"
	AnalyticsPageView      AnalyticsEventType = "pageview"
)

// AnalyticsEvent is a queued usage event sent in batches to the backend
type AnalyticsEvent struct {
	ID        string             `json:"id"`
	Type      AnalyticsEventType `json:"event_type"`
	UserEmail string             `json:"user_id"`
	AccountID AccountID          `json:"account_id,omitempty"`
	Domain    string             `json:"domain,omitempty"`
	Data      map[string]string  `json:"data,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
