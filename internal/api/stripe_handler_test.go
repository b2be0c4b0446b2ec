package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/stripehook/internal/tail"
	"github.com/otiai10/stripehook/internal/webhook"
)

const testSecret = "dummy"

func newSecret(t *testing.T) webhook.Secret {
	t.Helper()
	s, err := webhook.NewSecret(testSecret)
	require.NoError(t, err)
	return s
}

func loadFixture(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("testdata/charge-succeeded-event.json")
	require.NoError(t, err)
	return string(b)
}

// generateSigHeader signs payload the way Stripe does, at the current time
func generateSigHeader(t *testing.T, payload string) string {
	t.Helper()
	return webhook.SignHeader(newSecret(t), time.Now().Unix(), []byte(payload))
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []webhook.Outcome
}

func (o *recordingObserver) ObserveVerification(out webhook.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

type recordingPublisher struct {
	mu      sync.Mutex
	notices []tail.Notice
}

func (p *recordingPublisher) Publish(n tail.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
}

func newTestHandler(t *testing.T, logs *bytes.Buffer, opts ...HandlerOption) *StripeEventsHandler {
	t.Helper()
	logger := zerolog.Nop()
	if logs != nil {
		logger = zerolog.New(logs).Level(zerolog.DebugLevel)
	}
	v := webhook.NewVerifier(newSecret(t), webhook.WithTolerance(5*time.Minute))
	return NewStripeEventsHandler(v, logger, opts...)
}

type request struct {
	header *string
	body   *string
}

func (rq request) build() *http.Request {
	var req *http.Request
	if rq.body != nil {
		req = httptest.NewRequest(http.MethodPost, "/stripe-events", strings.NewReader(*rq.body))
	} else {
		req = httptest.NewRequest(http.MethodPost, "/stripe-events", nil)
	}
	req.Header.Set("Content-Type", "application/json")
	if rq.header != nil {
		req.Header.Set(webhook.HeaderName, *rq.header)
	}
	return req
}

func strPtr(s string) *string {
	return &s
}

func TestStripeEventsHandler_Scenarios(t *testing.T) {
	fixture := loadFixture(t)

	tests := []struct {
		name       string
		req        request
		wantStatus int
	}{
		{
			name:       "sending event without signature and without body ends with unauthorized",
			req:        request{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "sending event with any signature and without body ends with bad request",
			req:        request{header: strPtr("t=1700000000,v1=deadbeef")},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "sending event with invalid signature and any body ends with forbidden",
			req:        request{header: strPtr("t=1700000000,v1=deadbeef"), body: strPtr("{}")},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "sending event with valid signature ends with ok",
			req:        request{header: strPtr(generateSigHeader(t, fixture)), body: strPtr(fixture)},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestHandler(t, nil).ServeHTTP(rec, tt.req.build())
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestStripeEventsHandler_StatusMatrix(t *testing.T) {
	fixture := loadFixture(t)
	valid := generateSigHeader(t, fixture)

	tests := []struct {
		name       string
		req        request
		wantStatus int
	}{
		{"no header with body", request{body: strPtr(fixture)}, http.StatusUnauthorized},
		{"no header with empty body", request{body: strPtr("")}, http.StatusUnauthorized},
		{"malformed header without body", request{header: strPtr("any-value")}, http.StatusBadRequest},
		{"empty header without body", request{header: strPtr("")}, http.StatusBadRequest},
		{"header with empty body", request{header: strPtr(valid), body: strPtr("")}, http.StatusBadRequest},
		{"malformed header with body", request{header: strPtr("any-value"), body: strPtr("{}")}, http.StatusForbidden},
		{"empty header with body", request{header: strPtr(""), body: strPtr("{}")}, http.StatusForbidden},
		{"valid header for another payload", request{header: strPtr(valid), body: strPtr(`{"type":"charge.failed"}`)}, http.StatusForbidden},
		{"stale timestamp", request{header: strPtr(webhook.SignHeader(newSecret(t), time.Now().Add(-time.Hour).Unix(), []byte(fixture))), body: strPtr(fixture)}, http.StatusForbidden},
		{"extra unmatched entries", request{header: strPtr(valid + ",v1=deadbeef,v0=ignored"), body: strPtr(fixture)}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestHandler(t, nil).ServeHTTP(rec, tt.req.build())
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestStripeEventsHandler_SignedButNotAnEvent(t *testing.T) {
	payload := "definitely not json"
	rec := httptest.NewRecorder()
	req := request{header: strPtr(generateSigHeader(t, payload)), body: strPtr(payload)}
	newTestHandler(t, nil).ServeHTTP(rec, req.build())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeEventsHandler_ResponseBodies(t *testing.T) {
	fixture := loadFixture(t)

	t.Run("success has an empty body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := request{header: strPtr(generateSigHeader(t, fixture)), body: strPtr(fixture)}
		newTestHandler(t, nil).ServeHTTP(rec, req.build())

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("forbidden outcomes share one message", func(t *testing.T) {
		messages := map[string]bool{}
		for _, rq := range []request{
			{header: strPtr("any-value"), body: strPtr("{}")},
			{header: strPtr("t=1700000000,v1=deadbeef"), body: strPtr("{}")},
			{header: strPtr(webhook.SignHeader(newSecret(t), 1, []byte(fixture))), body: strPtr(fixture)},
		} {
			rec := httptest.NewRecorder()
			newTestHandler(t, nil).ServeHTTP(rec, rq.build())
			require.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			messages[resp.Error] = true
		}
		assert.Len(t, messages, 1)
	})
}

func TestStripeEventsHandler_BodyLimit(t *testing.T) {
	big := `{"type":"charge.succeeded","pad":"` + strings.Repeat("x", 2048) + `"}`

	t.Run("oversize body with header is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := request{header: strPtr(generateSigHeader(t, big)), body: strPtr(big)}
		newTestHandler(t, nil, WithMaxBodyBytes(1024)).ServeHTTP(rec, req.build())
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("oversize body without header is still unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := request{body: strPtr(big)}
		newTestHandler(t, nil, WithMaxBodyBytes(1024)).ServeHTTP(rec, req.build())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("body at the limit is accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := request{header: strPtr(generateSigHeader(t, big)), body: strPtr(big)}
		newTestHandler(t, nil, WithMaxBodyBytes(int64(len(big)))).ServeHTTP(rec, req.build())
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestStripeEventsHandler_ObserverAndPublisher(t *testing.T) {
	fixture := loadFixture(t)
	obs := &recordingObserver{}
	pub := &recordingPublisher{}
	h := newTestHandler(t, nil, WithObserver(obs), WithPublisher(pub))

	h.ServeHTTP(httptest.NewRecorder(), request{}.build())
	h.ServeHTTP(httptest.NewRecorder(), request{header: strPtr(generateSigHeader(t, fixture)), body: strPtr(fixture)}.build())

	assert.Equal(t, []webhook.Outcome{webhook.MissingSignature, webhook.Verified}, obs.outcomes)

	require.Len(t, pub.notices, 2)
	assert.Equal(t, "missing_signature", pub.notices[0].Outcome)
	assert.Equal(t, http.StatusUnauthorized, pub.notices[0].Status)
	assert.Empty(t, pub.notices[0].EventType)
	assert.Equal(t, "verified", pub.notices[1].Outcome)
	assert.Equal(t, http.StatusOK, pub.notices[1].Status)
	assert.Equal(t, "charge.succeeded", pub.notices[1].EventType)
	assert.Equal(t, "evt_3OAbCdEfGhIjKlMn0aBcDeFg", pub.notices[1].EventID)
}

func TestStripeEventsHandler_LogsNeverLeakSecrets(t *testing.T) {
	fixture := loadFixture(t)
	header := generateSigHeader(t, fixture)
	digest := strings.SplitN(header, "v1=", 2)[1]
	wrong := fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), strings.Repeat("ab", 32))

	var logs bytes.Buffer
	h := newTestHandler(t, &logs)
	for _, rq := range []request{
		{},
		{header: strPtr(header)},
		{header: strPtr(wrong), body: strPtr(fixture)},
		{header: strPtr("t=1,v1=zz" + digest), body: strPtr(fixture)},
		{header: strPtr(header), body: strPtr(fixture)},
	} {
		h.ServeHTTP(httptest.NewRecorder(), rq.build())
	}

	out := logs.String()
	assert.NotContains(t, out, digest)
	assert.NotContains(t, out, strings.Repeat("ab", 32))
	assert.NotContains(t, out, `"dummy"`)
	assert.Contains(t, out, `"outcome":"missing_signature"`)
	assert.Contains(t, out, `"outcome":"signature_mismatch"`)
	assert.Contains(t, out, `"outcome":"malformed_signature"`)
	assert.Contains(t, out, `"event_type":"charge.succeeded"`)
}

func TestStatusFor(t *testing.T) {
	want := map[webhook.Outcome]int{
		webhook.Verified:           http.StatusOK,
		webhook.MissingSignature:   http.StatusUnauthorized,
		webhook.MissingPayload:     http.StatusBadRequest,
		webhook.MalformedPayload:   http.StatusBadRequest,
		webhook.MalformedSignature: http.StatusForbidden,
		webhook.SignatureMismatch:  http.StatusForbidden,
		webhook.TimestampTooOld:    http.StatusForbidden,
	}

	for _, o := range webhook.Outcomes {
		t.Run(o.String(), func(t *testing.T) {
			status, ok := want[o]
			require.True(t, ok, "outcome %s has no expected status", o)
			assert.Equal(t, status, StatusFor(o))
		})
	}
}
