// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Wire strings are UTF-16 big endian without a byte order mark
var wireEncoding = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// encodeWireString converts a Go string into its on-wire representation
func encodeWireString(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := wireEncoding.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode string: %w", err)
	}
	return b, nil
}

// decodeWireString converts on-wire UTF-16BE bytes back into a Go string
func decodeWireString(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	if len(b)%2 != 0 {
		return "", fmt.Errorf("odd string length %d", len(b))
	}
	out, err := wireEncoding.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode string: %w", err)
	}
	return string(out), nil
}

// decodeFixedWireString decodes a fixed-width UTF-16BE buffer that ends at
// the first NUL code unit or at the end of the buffer.
func decodeFixedWireString(b []byte) (string, error) {
	end := len(b) &^ 1
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			end = i
			break
		}
	}
	return decodeWireString(b[:end])
}
