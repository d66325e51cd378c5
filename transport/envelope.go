package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/internal/utils"
)

// Envelope is the vendor's response wrapper {code, msg, data}, decoded once at the
// transport boundary.
type Envelope struct {
	Code utils.FlexString `json:"code"`
	Msg  string           `json:"msg"`
	Data json.RawMessage  `json:"data"`

	// Status is the HTTP status code the envelope arrived with.
	Status int `json:"-"`
}

func decodeEnvelope(status int, body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apierr.Decode(fmt.Errorf("status %d: %w", status, err))
	}
	if env.Code == "" {
		return nil, apierr.Decode(fmt.Errorf("status %d: envelope has no code", status))
	}
	env.Status = status
	return &env, nil
}

// Class returns the business classification of the envelope's code.
func (e *Envelope) Class() Class {
	return Classify(e.Code.String())
}

func (e *Envelope) IsSuccess() bool {
	return e.Class() == ClassSuccess
}

func (e *Envelope) IsSessionInvalid() bool {
	return e.Class() == ClassSessionInvalid
}

// Err converts a non-success envelope into an api error carrying the vendor's code and
// message. It returns nil on success.
func (e *Envelope) Err() error {
	if e.IsSuccess() {
		return nil
	}
	msg := e.Msg
	if msg == "" {
		msg = "unknown error"
	}
	return apierr.API(e.Code.String(), msg)
}

// HasData reports whether data is present and not null, an empty list or an empty object.
func (e *Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	switch {
	case len(d) == 0:
		return false
	case bytes.Equal(d, []byte("null")), bytes.Equal(d, []byte("[]")), bytes.Equal(d, []byte("{}")):
		return false
	}
	return true
}

// DecodeData unmarshals data into v. A missing payload leaves v untouched.
func (e *Envelope) DecodeData(v any) error {
	if !e.HasData() {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return apierr.Decode(err)
		}
		return apierr.Decode(fmt.Errorf("data: %w", err))
	}
	return nil
}
