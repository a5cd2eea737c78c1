// Package services – Matcher
//
// This file implements the match cycle for a single preference: translate the
// preference into a listing query, consume the candidate sequence once, and
// for every candidate not yet in the application ledger record it and notify
// the owner.
//
// Ordering: the ledger insert always happens before the notification. A crash
// in between loses a notification but can never produce a duplicate one, since
// the next cycle finds the pair already recorded.
//
// Failure isolation: ledger and notifier errors are logged per listing and the
// cycle moves on. A listing source error ends the cycle for this preference
// only; the scheduler carries on with the others.
//
// Observability: Run is OpenTelemetry-instrumented and updates the
// autodaft_* Prometheus counters.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// Matcher runs match cycles. The zero value is not usable: Source, Ledger and
// Notifier must be set.
type Matcher struct {
	Source   ListingSource
	Ledger   ApplicationLedger
	Notifier Notifier

	// DefaultBedrooms replaces bedroom bounds a preference leaves unset.
	// A zero range means domain.DefaultBedrooms.
	DefaultBedrooms domain.BedroomRange

	// Now is the clock used for the active check; defaults to time.Now.
	Now func() time.Time
	Log zerolog.Logger
}

// CycleOutcome summarizes one match cycle.
type CycleOutcome struct {
	PreferenceID string
	Seen         int // candidates consumed from the source
	Applied      int // new ledger rows
	Duplicates   int // already in the ledger
	Skipped      int // no usable reference
	LedgerErrors int
	NotifyErrors int
}

// Run executes one match cycle for p.
//
// It returns ErrPreferenceExpired without touching the source when p is no
// longer active, an error wrapping domain.ErrSourceUnavailable when the
// listing source failed, and ctx.Err() when the context ended mid-cycle.
// Candidates processed before a failure stay recorded.
func (m *Matcher) Run(ctx context.Context, p domain.Preference) (CycleOutcome, error) {
	tr := otel.Tracer("services/Matcher")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("preference.id", p.ID),
			attribute.String("preference.category", string(p.ListingType)),
		),
	)
	defer span.End()

	out := CycleOutcome{PreferenceID: p.ID}
	if m.Source == nil || m.Ledger == nil || m.Notifier == nil {
		return out, ErrNotConfigured
	}
	if !p.ActiveAt(m.now()) {
		return out, ErrPreferenceExpired
	}

	lg := m.Log.With().Str("preference_id", p.ID).Logger()
	criteria := domain.CriteriaFor(p, m.bedrooms())

	for listing, err := range m.Source.Search(ctx, criteria) {
		if err != nil {
			sourceErrors.Inc()
			if !errors.Is(err, domain.ErrSourceUnavailable) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "listing source failed")
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Seen++
		m.handle(ctx, lg, p, listing, &out)
	}

	span.SetAttributes(
		attribute.Int("listings.seen", out.Seen),
		attribute.Int("applications.new", out.Applied),
	)
	lg.Debug().
		Int("seen", out.Seen).
		Int("applied", out.Applied).
		Int("duplicates", out.Duplicates).
		Msg("match cycle finished")
	return out, nil
}

func (m *Matcher) handle(ctx context.Context, lg zerolog.Logger, p domain.Preference, l domain.Listing, out *CycleOutcome) {
	ref := l.Reference()
	if ref == "" {
		out.Skipped++
		listingsSeen.WithLabelValues(outcomeSkipped).Inc()
		lg.Warn().Str("title", l.Title).Msg("listing without reference skipped")
		return
	}
	lg = lg.With().Str("listing_ref", ref).Logger()

	inserted, err := m.Ledger.RecordIfNew(ctx, p.ID, ref)
	if err != nil {
		out.LedgerErrors++
		listingsSeen.WithLabelValues(outcomeError).Inc()
		lg.Error().Err(err).Msg("record application failed")
		return
	}
	if !inserted {
		out.Duplicates++
		listingsSeen.WithLabelValues(outcomeDuplicate).Inc()
		return
	}
	out.Applied++
	listingsSeen.WithLabelValues(outcomeNew).Inc()
	applicationsRecorded.Inc()
	lg.Info().Str("title", l.Title).Msg("application recorded")

	subject, body, err := ComposeApplicationEmail(p, l)
	if err == nil {
		err = m.Notifier.Send(ctx, p.Email, subject, body)
	}
	if err != nil {
		out.NotifyErrors++
		notificationsSent.WithLabelValues("failed").Inc()
		lg.Error().Err(err).Msg("application notification failed")
		return
	}
	notificationsSent.WithLabelValues("ok").Inc()
}

func (m *Matcher) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Matcher) bedrooms() domain.BedroomRange {
	if m.DefaultBedrooms == (domain.BedroomRange{}) {
		return domain.DefaultBedrooms
	}
	return m.DefaultBedrooms
}
