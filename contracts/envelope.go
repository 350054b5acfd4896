package contracts

import (
	"encoding/json"
	"fmt"
)

// EventKind names the operation an envelope carries
type EventKind string

const (
	EventAddToCart      EventKind = "ADD_TO_CART"
	EventRemoveFromCart EventKind = "REMOVE_FROM_CART"
	EventUpdateOrder    EventKind = "UPDATE_ORDER"
	EventDeleteOrder    EventKind = "DELETE_ORDER"
	EventCreateOrder    EventKind = "CREATE_ORDER"
)

// EventKinds lists every kind in the closed set
var EventKinds = []EventKind{
	EventAddToCart,
	EventRemoveFromCart,
	EventUpdateOrder,
	EventDeleteOrder,
	EventCreateOrder,
}

// Known reports whether k is in the closed set
func (k EventKind) Known() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k EventKind) String() string {
	return string(k)
}

// Envelope wraps every event for transport
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope of the given kind
func NewEnvelope(kind EventKind, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", kind, err)
	}
	return &Envelope{Event: kind, Data: raw}, nil
}

// DecodeEnvelope parses a message body. Only the outer shape is checked; the
// kind may be outside the closed set.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &EnvelopeError{Reason: "invalid JSON", Err: err}
	}
	if env.Event == "" {
		return nil, &EnvelopeError{Reason: "missing event"}
	}
	return &env, nil
}

// DecodeData unmarshals the data field into v
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return &EnvelopeError{Event: e.Event, Reason: "missing data"}
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return &EnvelopeError{Event: e.Event, Reason: "invalid data", Err: err}
	}
	return nil
}

// Marshal encodes the envelope as a message body
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
