package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/noah-isme/sma-adp-portal/internal/models"
)

// Envelope is the upstream response decoded once at the boundary. Bodies that were not wrapped
// in {success, data} are carried whole in Data with Wrapped=false.
type Envelope struct {
	Wrapped    bool
	Success    *bool
	Data       json.RawMessage
	Message    string
	Pagination *models.Pagination
}

// Failed reports an explicit success=false.
func (e *Envelope) Failed() bool {
	return e != nil && e.Success != nil && !*e.Success
}

// Decode unmarshals the payload into out. Empty and null payloads leave out untouched.
func (e *Envelope) Decode(out interface{}) error {
	if e == nil || out == nil {
		return nil
	}
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	return json.Unmarshal(data, out)
}

var errInvalidPayload = errors.New("invalid JSON payload")

var envelopeKeys = map[string]struct{}{
	"success":    {},
	"data":       {},
	"message":    {},
	"error":      {},
	"pagination": {},
	"meta":       {},
}

// DecodeEnvelope classifies raw as an envelope or a bare payload. An envelope whose data is itself
// an envelope is unwrapped one more level.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &Envelope{}, nil
	}
	if raw[0] != '{' {
		if !json.Valid(raw) {
			return nil, errInvalidPayload
		}
		return &Envelope{Data: json.RawMessage(raw)}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if !looksLikeEnvelope(fields) {
		return &Envelope{Data: json.RawMessage(raw), Message: extractMessage(fields)}, nil
	}

	env, err := envelopeFrom(fields)
	if err != nil {
		return nil, err
	}

	inner := bytes.TrimSpace(env.Data)
	if len(inner) > 0 && inner[0] == '{' {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil && looksLikeEnvelope(nested) {
			innerEnv, err := envelopeFrom(nested)
			if err != nil {
				return nil, err
			}
			env.Data = innerEnv.Data
			if env.Pagination == nil {
				env.Pagination = innerEnv.Pagination
			}
			if env.Message == "" {
				env.Message = innerEnv.Message
			}
			if innerEnv.Failed() {
				env.Success = innerEnv.Success
			}
		}
	}
	return env, nil
}

// looksLikeEnvelope accepts objects carrying "success", or carrying "data" with nothing but
// envelope keys beside it.
func looksLikeEnvelope(fields map[string]json.RawMessage) bool {
	if _, ok := fields["success"]; ok {
		return true
	}
	if _, ok := fields["data"]; !ok {
		return false
	}
	for key := range fields {
		if _, ok := envelopeKeys[key]; !ok {
			return false
		}
	}
	return true
}

func envelopeFrom(fields map[string]json.RawMessage) (*Envelope, error) {
	env := &Envelope{Wrapped: true, Data: fields["data"], Message: extractMessage(fields)}
	if raw, ok := fields["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err != nil {
			return nil, err
		}
		env.Success = &success
	}
	if raw, ok := fields["pagination"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		var p models.Pagination
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		env.Pagination = &p
	}
	return env, nil
}

// extractMessage reads "message", or "error" as a string or as {message}.
func extractMessage(fields map[string]json.RawMessage) string {
	if raw, ok := fields["message"]; ok {
		var msg string
		if json.Unmarshal(raw, &msg) == nil && msg != "" {
			return msg
		}
	}
	if raw, ok := fields["error"]; ok {
		var msg string
		if json.Unmarshal(raw, &msg) == nil && msg != "" {
			return msg
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			return obj.Message
		}
	}
	return ""
}
