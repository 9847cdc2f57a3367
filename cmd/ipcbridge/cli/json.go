// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// WriteJSON marshals value as indented JSON and writes it to w. Nil
// slices are written as [] rather than null.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(normalizeNilSlice(value))
}

// WriteJSONLine writes value as a single line of JSON, for streaming
// output that line-oriented tools can consume.
func WriteJSONLine(w io.Writer, value any) error {
	return json.NewEncoder(w).Encode(normalizeNilSlice(value))
}

// ParseArguments decodes each command-line argument as a JSON value.
// An argument that is not valid JSON is taken as a plain string, so
// `call echo hello` works without quoting.
func ParseArguments(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		var value any
		decoder := json.NewDecoder(strings.NewReader(arg))
		decoder.UseNumber()
		if err := decoder.Decode(&value); err != nil || decoder.More() {
			values[i] = arg
			continue
		}
		values[i] = numbers(value)
	}
	return values
}

// numbers replaces json.Number with int64 where the value is integral
// and float64 otherwise, so integers cross the wire as integers.
func numbers(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if integer, err := typed.Int64(); err == nil {
			return integer
		}
		float, _ := typed.Float64()
		return float
	case map[string]any:
		for key, inner := range typed {
			typed[key] = numbers(inner)
		}
		return typed
	case []any:
		for i, inner := range typed {
			typed[i] = numbers(inner)
		}
		return typed
	default:
		return value
	}
}

// Printable converts a value decoded from CBOR into something
// encoding/json accepts: maps with non-string keys become string-keyed.
func Printable(value any) any {
	switch typed := value.(type) {
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for key, inner := range typed {
			converted[fmt.Sprint(key)] = Printable(inner)
		}
		return converted
	case map[string]any:
		for key, inner := range typed {
			typed[key] = Printable(inner)
		}
		return typed
	case []any:
		for i, inner := range typed {
			typed[i] = Printable(inner)
		}
		return typed
	case []byte:
		return fmt.Sprintf("%x", typed)
	default:
		return value
	}
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice. Returns value unchanged for all other types.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
