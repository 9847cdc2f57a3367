// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the serialization formats used for bridge
// envelopes.
//
// Two codecs are available behind the [Codec] interface:
//
//   - [CBOR] (the default): Core Deterministic Encoding (RFC 8949 §4.2)
//     via fxamacker/cbor. Sorted map keys, smallest integer encoding,
//     no indefinite-length items. Same logical data always produces
//     identical bytes. Used for host↔sandbox IPC.
//   - [JSON]: encoding/json, for peers that cannot link a CBOR
//     implementation (browser-hosted peers over WebSocket, debugging
//     with a plain text dump).
//
// Both endpoints of a channel must agree on the codec; there is no
// negotiation. [Lookup] resolves a codec by the name used in
// configuration files ("cbor" or "json").
//
// [Raw] holds an already-encoded value and passes through either codec
// unchanged. Envelopes carry arguments and results as Raw so the bridge
// never decodes application payloads: the receiving application decodes
// them into its own types with the same codec.
//
// For buffer-oriented operations with the default codec:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// Types that cross the bridge use `json` tags. fxamacker/cbor v2 reads
// `json` tags as a fallback when `cbor` tags are absent, so a single
// `json` tag controls field naming and omitempty for both codecs.
// Never use both `cbor` and `json` tags on the same field.
package codec
