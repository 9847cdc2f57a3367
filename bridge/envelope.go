// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// Kind is the type of an envelope.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
	KindCancel   Kind = "cancel"
)

// Envelope is the wire form of every message on a bridge channel. Both
// codecs use the json field names.
//
// A response carries Result on success. On failure it carries Error
// (the message), Code (the class), and optionally Reason; Result is
// then absent or null and is ignored.
type Envelope struct {
	Kind    Kind        `json:"kind"`
	Channel string      `json:"channel"`
	ID      string      `json:"id,omitempty"`
	Name    string      `json:"name,omitempty"`
	Payload []codec.Raw `json:"payload,omitempty"`
	Result  codec.Raw   `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    Code        `json:"code,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Failed reports whether a response envelope carries an error.
func (e *Envelope) Failed() bool {
	return e.Code != "" || e.Error != ""
}

// encodeEnvelope serializes an envelope for the transport.
func encodeEnvelope(c codec.Codec, envelope *Envelope) ([]byte, error) {
	data, err := c.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", envelope.Kind, err)
	}
	return data, nil
}

// decodeEnvelope parses and validates one transport message. Every
// failure wraps ErrMalformedEnvelope.
func decodeEnvelope(c codec.Codec, data []byte) (*Envelope, error) {
	var envelope Envelope
	if err := c.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := envelope.validate(); err != nil {
		return nil, err
	}
	return &envelope, nil
}

func (e *Envelope) validate() error {
	switch e.Kind {
	case KindRequest:
		if e.ID == "" || e.Name == "" {
			return fmt.Errorf("%w: request requires id and name", ErrMalformedEnvelope)
		}
	case KindResponse, KindCancel:
		if e.ID == "" {
			return fmt.Errorf("%w: %s requires id", ErrMalformedEnvelope, e.Kind)
		}
	case KindEvent:
		if e.Name == "" {
			return fmt.Errorf("%w: event requires name", ErrMalformedEnvelope)
		}
	case "":
		return fmt.Errorf("%w: missing kind", ErrMalformedEnvelope)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEnvelope, e.Kind)
	}
	return nil
}
