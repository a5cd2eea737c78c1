// Package services implements the automation engine's business logic: the
// per-preference match cycle, the expiry sweep and the composition of
// application emails. This file centralizes service-level error values so
// that callers can check them with errors.Is.
//
// Collaborator failures use the taxonomy in the domain package
// (domain.ErrSourceUnavailable, domain.ErrDeliveryFailed,
// domain.ErrRepository); the values below are specific to this layer.
package services

import "errors"

var (
	// ErrPreferenceExpired is returned when a match cycle is asked to run for
	// a preference whose end date has already passed.
	ErrPreferenceExpired = errors.New("preference expired")

	// ErrNotConfigured indicates that a required collaborator was not wired.
	ErrNotConfigured = errors.New("service not configured")
)
