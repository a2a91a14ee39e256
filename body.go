// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// Body builds JSON documents with sjson path expressions.
//
// Records received from the server (objects, users, alarms, jobs) render
// themselves through Body, and notifications forwarded to external
// systems are assembled with it. Errors are tracked internally so that
// calls can be chained; the first error is returned by String, Bytes or Err.
//
// Example:
//
//	body := nxcp.Body{}.
//	    Set("object.id", 42).
//	    Set("object.name", "core-sw-01").
//	    Set("object.class", "node")
//
//	doc, err := body.String()
type Body struct {
	str string
	err error
}

// Set sets a value at the specified JSON path and returns a new Body.
//
// The path uses sjson dot notation (e.g. "object.name", "members.-1").
// Once an error occurs, all subsequent operations preserve it.
func (b Body) Set(path string, value any) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.Set(b.str, path, value)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Set(%q): %w", path, err)}
	}
	return Body{str: result}
}

// SetRaw embeds an already encoded JSON value at path
func (b Body) SetRaw(path, rawJSON string) Body {
	if b.err != nil {
		return b
	}
	if rawJSON == "" {
		rawJSON = "null"
	}

	result, err := sjson.SetRaw(b.str, path, rawJSON)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("SetRaw(%q): %w", path, err)}
	}
	return Body{str: result}
}

// Delete removes a value at the specified JSON path and returns a new Body
func (b Body) Delete(path string) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.Delete(b.str, path)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Delete(%q): %w", path, err)}
	}
	return Body{str: result}
}

// String returns the JSON document and any error encountered during building
func (b Body) String() (string, error) {
	return b.str, b.err
}

// Err returns any error that occurred during building
func (b Body) Err() error {
	return b.err
}

// Res returns the JSON document for querying with gjson, or "" if building failed
func (b Body) Res() string {
	if b.err != nil {
		return ""
	}
	return b.str
}

// Bytes returns the JSON document as a byte slice
func (b Body) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return []byte(b.str), nil
}
