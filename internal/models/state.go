package models

import "time"

// Phase is the lifecycle position of the current account
type Phase string

const (
	PhaseNone       Phase = "NONE"
	PhaseInstalling Phase = "INSTALLING"
	PhaseActive     Phase = "ACTIVE"
	PhaseVacating   Phase = "VACATING"
	PhaseEvicting   Phase = "EVICTING"
	PhaseLoggingOut Phase = "LOGGING_OUT"
	PhaseSuspending Phase = "SUSPENDING"
	PhaseCleaned    Phase = "CLEANED"
)

// IsTeardown reports whether the phase is one of the four teardown-initiating states
func (p Phase) IsTeardown() bool {
	switch p {
	case PhaseVacating, PhaseEvicting, PhaseLoggingOut, PhaseSuspending:
		return true
	}
	return false
}

// ManagerState is the manager's owned state, persisted as a single snapshot
type ManagerState struct {
	ManagedDomains []string  `json:"managed_domains"`
	CurrentAccount *Account  `json:"current_account,omitempty"`
	UserEmail      string    `json:"user_email,omitempty"`
	Phase          Phase     `json:"phase"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to readers outside the dispatcher
func (s *ManagerState) Clone() *ManagerState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.ManagedDomains = append([]string(nil), s.ManagedDomains...)
	if s.CurrentAccount != nil {
		account := *s.CurrentAccount
		account.Credentials = append([]CredentialEntry(nil), s.CurrentAccount.Credentials...)
		clone.CurrentAccount = &account
	}
	return &clone
}

// ManagerStatus is the read model served to the control surface
type ManagerStatus struct {
	Phase          Phase          `json:"phase"`
	LoggedIn       bool           `json:"logged_in"`
	UserEmail      string         `json:"user_email,omitempty"`
	CurrentAccount *Account       `json:"current_account,omitempty"`
	ManagedDomains []string       `json:"managed_domains"`
	Occupancy      map[string]int `json:"occupancy"`
}
