package core

import "encoding/json"

// StateValue is the payload stored against a key. It is kept opaque to the
// engine: values flow through as raw JSON so the engine never needs to know
// the application's schema.
type StateValue struct {
	raw json.RawMessage
}

// NewStateValue wraps an already-encoded JSON payload.
func NewStateValue(raw json.RawMessage) StateValue {
	return StateValue{raw: raw}
}

// AsBytes returns the value's encoded bytes and whether a value is present.
// A zero StateValue (no bytes set) reports false, matching the "tombstone
// read" case surfaced by the agent GET handler as 400.
func (v StateValue) AsBytes() ([]byte, bool) {
	if v.raw == nil {
		return nil, false
	}
	return []byte(v.raw), true
}

// MarshalJSON renders the wrapped payload verbatim.
func (v StateValue) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// UnmarshalJSON captures the payload verbatim without interpreting it.
func (v *StateValue) UnmarshalJSON(data []byte) error {
	v.raw = append(json.RawMessage(nil), data...)
	return nil
}
