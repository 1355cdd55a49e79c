package services

import "errors"

var (
	// ErrInvalidRule is returned when a rule definition fails validation
	ErrInvalidRule = errors.New("invalid alert rule")
	// ErrRuleNotFound is returned for unknown rule ids
	ErrRuleNotFound = errors.New("alert rule not found")
	// ErrRuleStoreUnavailable is returned when a rule cannot be persisted
	ErrRuleStoreUnavailable = errors.New("alert rule store unavailable")
)
