package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ExpirySweeper removes preferences whose end date has passed. It is the only
// component that deletes preferences. Sweeping is idempotent.
type ExpirySweeper struct {
	Store PreferenceStore
	Now   func() time.Time
	Log   zerolog.Logger
}

// Sweep deletes every preference with an end date strictly before now and
// returns the number removed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int64, error) {
	tr := otel.Tracer("services/ExpirySweeper")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	if s.Store == nil {
		return 0, ErrNotConfigured
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	n, err := s.Store.DeleteExpired(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete expired failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("preferences.deleted", n))
	preferencesExpired.Add(float64(n))
	if n > 0 {
		s.Log.Info().Int64("deleted", n).Msg("expired preferences removed")
	}
	return n, nil
}
