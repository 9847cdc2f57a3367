// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

// Raw is a value already encoded by one of the codecs. It marshals to
// its own bytes verbatim under both CBOR and JSON, and unmarshals by
// capturing the encoded bytes of the value at its position. A Raw must
// only be embedded in a document encoded by the same codec that
// produced it.
//
// An empty Raw encodes as null.
type Raw []byte

var (
	cborNull = []byte{0xf6}
	jsonNull = []byte("null")
)

// MarshalCBOR implements cbor.Marshaler.
func (r Raw) MarshalCBOR() ([]byte, error) {
	if len(r) == 0 {
		return cborNull, nil
	}
	return r, nil
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (r *Raw) UnmarshalCBOR(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return jsonNull, nil
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Raw) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Encode marshals each value with c, returning one Raw per value.
func Encode(c Codec, values ...any) ([]Raw, error) {
	if len(values) == 0 {
		return nil, nil
	}
	raws := make([]Raw, len(values))
	for i, value := range values {
		data, err := c.Marshal(value)
		if err != nil {
			return nil, err
		}
		raws[i] = data
	}
	return raws, nil
}
