// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response is read.
const MaxErrorBodySize = 4096

// ErrorBody reads an HTTP error response body and returns it as a
// trimmed single-line string for diagnostic error messages. Read errors
// are ignored: a partial or empty body is still useful in an error
// message. A nil body yields "".
func ErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return strings.Join(strings.Fields(string(data)), " ")
}
