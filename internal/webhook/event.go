package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// Event is the envelope of a verified Stripe event. Everything beyond these
// fields stays opaque in Raw.
type Event struct {
	ID         string
	Type       string
	APIVersion string
	Livemode   bool
	Created    time.Time
	Raw        []byte
}

// ParseEvent decodes payload as a Stripe event envelope. It must only be
// called on payloads whose signature has been verified.
func ParseEvent(payload []byte) (Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	e := Event{
		ID:         se.ID,
		Type:       string(se.Type),
		APIVersion: se.APIVersion,
		Livemode:   se.Livemode,
		Raw:        payload,
	}
	if se.Created != 0 {
		e.Created = time.Unix(se.Created, 0).UTC()
	}
	return e, nil
}
