package models

import (
	"errors"
	"fmt"
)

var (
	// ErrPermanentSecurityViolation is returned when a __Host- cookie cannot be installed
	ErrPermanentSecurityViolation = errors.New("permanent security violation")
	// ErrQuotaExceeded is returned when an account has no free session slot
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrMalformedCredentialData marks an unparseable header-cookie string or storage payload
	ErrMalformedCredentialData = errors.New("malformed credential data")
	// ErrTransientNetwork marks a backend transport failure or server error
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrPartialCleanup marks a cleanup in which at least one removal step failed
	ErrPartialCleanup = errors.New("partial cleanup failure")
	// ErrNotLoggedIn is returned when no auth token is held or the backend rejected it
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrAccountNotFound is returned when a switch names an unknown account
	ErrAccountNotFound = errors.New("account not found")
	// ErrIllegalTransition is returned for a lifecycle move outside the transition table
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
)

// QuotaError reports a Concurrency Gate rejection
type QuotaError struct {
	AccountID AccountID
	Active    int
	Max       int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("account %s has %d of %d sessions in use", e.AccountID, e.Active, e.Max)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// SecurityViolationError reports a __Host- cookie the browser refused
type SecurityViolationError struct {
	Name   string
	Domain string
	Err    error
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("cookie %s on %s cannot be installed without relaxing its prefix rules: %v", e.Name, e.Domain, e.Err)
}

func (e *SecurityViolationError) Unwrap() []error {
	return []error{ErrPermanentSecurityViolation, e.Err}
}
