package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/otiai10/stripehook/internal/tail"
	"github.com/otiai10/stripehook/internal/webhook"
)

// VerificationObserver records verification outcomes, e.g. as metrics
type VerificationObserver interface {
	ObserveVerification(o webhook.Outcome, d time.Duration)
}

// NoticePublisher receives one notice per handled request
type NoticePublisher interface {
	Publish(n tail.Notice)
}

// StripeEventsHandler handles POST /stripe-events.
// It turns the request into a verifier call and the verifier's outcome into a status code.
type StripeEventsHandler struct {
	verifier     *webhook.Verifier
	logger       zerolog.Logger
	maxBodyBytes int64
	observer     VerificationObserver // optional
	publisher    NoticePublisher      // optional
}

// HandlerOption configures a StripeEventsHandler
type HandlerOption func(*StripeEventsHandler)

// WithMaxBodyBytes caps the request body size
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *StripeEventsHandler) {
		h.maxBodyBytes = n
	}
}

// WithObserver reports every outcome to o
func WithObserver(o VerificationObserver) HandlerOption {
	return func(h *StripeEventsHandler) {
		h.observer = o
	}
}

// WithPublisher sends a notice for every outcome to p
func WithPublisher(p NoticePublisher) HandlerOption {
	return func(h *StripeEventsHandler) {
		h.publisher = p
	}
}

// NewStripeEventsHandler creates a new StripeEventsHandler
func NewStripeEventsHandler(v *webhook.Verifier, logger zerolog.Logger, opts ...HandlerOption) *StripeEventsHandler {
	h := &StripeEventsHandler{
		verifier:     v,
		logger:       logger,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StatusFor maps every verification outcome to exactly one HTTP status
func StatusFor(o webhook.Outcome) int {
	switch o {
	case webhook.Verified:
		return http.StatusOK
	case webhook.MissingSignature:
		return http.StatusUnauthorized
	case webhook.MissingPayload, webhook.MalformedPayload:
		return http.StatusBadRequest
	case webhook.MalformedSignature, webhook.SignatureMismatch, webhook.TimestampTooOld:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the client-facing error text. The three 403 outcomes share
// one message so callers cannot tell which check failed.
func messageFor(o webhook.Outcome) string {
	switch o {
	case webhook.MissingSignature:
		return "missing Stripe-Signature header"
	case webhook.MissingPayload:
		return "missing event payload"
	case webhook.MalformedPayload:
		return "invalid event payload"
	case webhook.MalformedSignature, webhook.SignatureMismatch, webhook.TimestampTooOld:
		return "event signature verification failed"
	default:
		return "internal server error"
	}
}

// ServeHTTP handles POST /stripe-events
// Responds 200 with an empty body when the event is verified
func (h *StripeEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	logger := h.logger.With().Str("request_id", requestID).Logger()
	logger.Debug().Msg("processing incoming stripe event")

	// An absent header and an empty one are different outcomes
	var header *string
	if values := r.Header.Values(webhook.HeaderName); len(values) > 0 {
		header = &values[0]
	}

	// Read raw body for signature verification
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
		if err != nil && header != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logger.Warn().Int64("limit", tooLarge.Limit).Msg("event payload too large")
				writeError(w, "event payload too large", http.StatusRequestEntityTooLarge)
				return
			}
			logger.Warn().Err(err).Msg("failed to read event payload")
			writeError(w, "failed to read request body", http.StatusBadRequest)
			return
		}
	}
	// A request without body bytes has no payload
	if len(body) == 0 {
		body = nil
	}

	start := time.Now()
	res := h.verifier.VerifyBytes(header, body)
	elapsed := time.Since(start)

	status := StatusFor(res.Outcome)
	h.record(logger, requestID, res, status, len(body), elapsed)

	if res.OK() {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeError(w, messageFor(res.Outcome), status)
}

// record logs, measures and publishes an outcome.
// Signature values and the secret are never logged.
func (h *StripeEventsHandler) record(logger zerolog.Logger, requestID string, res webhook.Result, status, payloadBytes int, elapsed time.Duration) {
	if h.observer != nil {
		h.observer.ObserveVerification(res.Outcome, elapsed)
	}

	if res.OK() {
		logger.Info().
			Str("outcome", res.Outcome.String()).
			Str("event_id", res.Event.ID).
			Str("event_type", res.Event.Type).
			Bool("livemode", res.Event.Livemode).
			Msg("stripe event verified")
	} else {
		entry := logger.Warn().
			Str("outcome", res.Outcome.String()).
			Int("status", status).
			Int("payload_bytes", payloadBytes).
			Err(res.Err)
		if len(res.Header.Signatures) > 0 {
			entry = entry.
				Int64("signed_at", res.Header.Timestamp).
				Int("v1_signatures", len(res.Header.Signatures)).
				Dur("tolerance", h.verifier.Tolerance())
		}
		entry.Msg("stripe event rejected")
	}

	if h.publisher != nil {
		h.publisher.Publish(tail.Notice{
			Time:      time.Now().UTC(),
			RequestID: requestID,
			Outcome:   res.Outcome.String(),
			Status:    status,
			EventID:   res.Event.ID,
			EventType: res.Event.Type,
		})
	}
}
