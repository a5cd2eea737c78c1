// Package listings is the HTTP ListingSource backed by the listings
// microservice (GET {base}/listings).
//
// The service answers with an envelope:
//
//	{"status":"success","data":[{...listing...}, ...]}
//	{"status":"error","message":"..."}
//
// The data array is decoded element by element as the sequence is consumed, so
// a large result page is never held in memory at once. An error envelope, a
// non-2xx status, a transport failure or a malformed document all end the
// sequence with an error wrapping domain.ErrSourceUnavailable.
//
// Requests go through a sony/gobreaker circuit breaker: after
// BreakerFailures consecutive transport/5xx failures the client fails fast
// for BreakerCooldown instead of hammering a service that is down.
package listings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// Options configures a Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client queries the listings microservice.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// statusError is a non-2xx response. Only 5xx counts against the breaker.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("listings: unexpected status %d", e.code)
	}
	return fmt.Sprintf("listings: unexpected status %d: %s", e.code, e.body)
}

// New builds a Client.
func New(opts Options, log zerolog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	failures := opts.BreakerFailures
	if failures < 1 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	c := &Client{
		base: strings.TrimRight(opts.BaseURL, "/"),
		http: hc,
		log:  log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "listings",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("listings circuit breaker state changed")
		},
		IsSuccessful: isSuccessful,
	})
	return c
}

// isSuccessful decides what trips the breaker: transport errors and 5xx do;
// 4xx answers and caller cancellation do not.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code < http.StatusInternalServerError
	}
	return false
}

// Search implements the engine's ListingSource. Nothing is requested until
// the returned sequence is ranged over.
func (c *Client) Search(ctx context.Context, cr domain.Criteria) iter.Seq2[domain.Listing, error] {
	return func(yield func(domain.Listing, error) bool) {
		tr := otel.Tracer("listings/Client")
		ctx, span := tr.Start(ctx, "Search",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("listings.location", cr.Location),
				attribute.String("listings.category", string(cr.Category)),
			),
		)
		defer span.End()

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "listings search failed")
			yield(domain.Listing{}, err)
		}

		body, err := c.fetch(ctx, cr)
		if err != nil {
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			fail(fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err))
			return
		}
		defer body.Close()

		n := 0
		err = decodeEnvelope(body, func(w wireListing) bool {
			n++
			return yield(w.toDomain(), nil)
		}, func(err error) {
			c.log.Warn().Err(err).Msg("listing element skipped")
		})
		span.SetAttributes(attribute.Int("listings.count", n))
		if err != nil && !errors.Is(err, errStopped) {
			fail(fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err))
		}
	}
}

// fetch issues the request through the breaker and returns the open body of
// a 2xx response.
func (c *Client) fetch(ctx context.Context, cr domain.Criteria) (io.ReadCloser, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(cr), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
		}
		return resp.Body, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(io.ReadCloser), nil
}

// searchURL encodes the criteria in the listings service's query vocabulary.
func (c *Client) searchURL(cr domain.Criteria) string {
	q := url.Values{}
	q.Set("location", cr.Location)
	q.Set("min_price", strconv.Itoa(cr.MinPrice))
	q.Set("max_price", strconv.Itoa(cr.MaxPrice))
	q.Set("property_type", cr.PropertyType)
	q.Set("bedrooms_min", strconv.Itoa(cr.MinBedrooms))
	q.Set("bedrooms_max", strconv.Itoa(cr.MaxBedrooms))
	q.Set("search_type", searchType(cr.Category))
	return c.base + "/listings?" + q.Encode()
}

// searchType maps a category to the listings service's search_type.
func searchType(c domain.ListingCategory) string {
	if c == domain.CategoryShared {
		return "sharing"
	}
	return "rent"
}
