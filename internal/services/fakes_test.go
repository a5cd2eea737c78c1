package services

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// ----- Fake listing source -----

type fakeSource struct {
	mu       sync.Mutex
	listings []domain.Listing
	err      error // yielded after listings
	calls    []domain.Criteria
}

func (s *fakeSource) Search(ctx context.Context, c domain.Criteria) iter.Seq2[domain.Listing, error] {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	listings, err := s.listings, s.err
	s.mu.Unlock()

	return func(yield func(domain.Listing, error) bool) {
		for _, l := range listings {
			if !yield(l, nil) {
				return
			}
		}
		if err != nil {
			yield(domain.Listing{}, err)
		}
	}
}

// ----- In-memory ledger -----

type memLedger struct {
	mu   sync.Mutex
	rows map[[2]string]bool
	err  error
}

func newMemLedger() *memLedger { return &memLedger{rows: map[[2]string]bool{}} }

func (l *memLedger) RecordIfNew(ctx context.Context, prefID, ref string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	k := [2]string{prefID, ref}
	if l.rows[k] {
		return false, nil
	}
	l.rows[k] = true
	return true, nil
}

// ----- Recording notifier -----

type sentMail struct {
	To, Subject, Body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{to, subject, body})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// ----- Fake preference store -----

type fakeStore struct {
	deleted int64
	err     error
	gotNow  time.Time
}

func (s *fakeStore) ListActive(ctx context.Context, now time.Time) ([]domain.Preference, error) {
	return nil, errors.New("not used")
}

func (s *fakeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.gotNow = now
	return s.deleted, s.err
}

// ----- Fixtures -----

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

// scenarioPreference is P1: Dublin, 1000–1500, apartment, 1–2 bed, rent,
// ending tomorrow.
func scenarioPreference() domain.Preference {
	return domain.Preference{
		ID:           "p1",
		FirstName:    "aoife",
		Email:        "aoife@example.com",
		ListingType:  domain.CategoryRent,
		Location:     "dublin",
		PropertyType: "Apartment",
		MinPrice:     1000,
		MaxPrice:     1500,
		MinBedrooms:  intPtr(1),
		MaxBedrooms:  intPtr(2),
		EndDate:      fixedNow.Add(24 * time.Hour),
	}
}
