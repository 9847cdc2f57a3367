// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"sort"
)

// Codec marshals values to and from one wire format. Implementations
// are stateless and safe for concurrent use.
type Codec interface {
	// Name is the identifier used in configuration ("cbor", "json").
	Name() string

	// Marshal encodes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v, which must be a pointer.
	Unmarshal(data []byte, v any) error
}

// Compile-time interface checks.
var (
	_ Codec = cborCodec{}
	_ Codec = jsonCodec{}
)

var (
	// CBOR is the default codec: deterministic CBOR.
	CBOR Codec = cborCodec{}

	// JSON encodes with encoding/json.
	JSON Codec = jsonCodec{}
)

var codecs = map[string]Codec{
	CBOR.Name(): CBOR,
	JSON.Name(): JSON,
}

// Lookup returns the codec registered under name. An empty name
// selects [CBOR].
func Lookup(name string) (Codec, error) {
	if name == "" {
		return CBOR, nil
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (known: %v)", name, Names())
	}
	return c, nil
}

// Names returns the names of all available codecs, sorted.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
