package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode parses data into target, wrapping any failure in a ValidationError
// that carries the context label and the structural diagnostic. Unknown
// fields are rejected; this is the strict boundary decoder for inbound
// payloads.
func Decode(context string, data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return wrapDecodeError(context, err)
	}
	return nil
}

// DecodeLoose parses data into target without rejecting unknown fields. Used
// for provider-native payloads, which may grow fields we do not model.
func DecodeLoose(context string, data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return wrapDecodeError(context, err)
	}
	return nil
}

func wrapDecodeError(context string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{
			Context: context,
			Path:    typeErr.Field,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			Err:     err,
		}
	}
	return &ValidationError{Context: context, Err: err}
}

// ReparseJSON re-parses an opaque backend blob into a generic JSON value so
// structural equality and downstream serialization round-trip. Invalid JSON
// fails validation instead of being passed through.
func ReparseJSON(context string, data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, &ValidationError{Context: context, Err: err}
	}
	out, err := json.Marshal(value)
	if err != nil {
		return nil, &ValidationError{Context: context, Err: err}
	}
	return json.RawMessage(out), nil
}

// marshalEnvelope flattens a union payload's fields next to its
// discriminator keys.
func marshalEnvelope(payload any, head map[string]any) ([]byte, error) {
	merged := make(map[string]any, len(head)+8)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &merged); err != nil {
			return nil, err
		}
	}
	for key, value := range head {
		merged[key] = value
	}
	return json.Marshal(merged)
}
