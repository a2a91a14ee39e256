// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

// sample is one row of a test data payload
type sample struct {
	ts    uint32
	value []byte
}

func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func be64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func fixedString(t *testing.T, s string) []byte {
	t.Helper()
	b, err := encodeWireString(s)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, dciStringSize)
	copy(out, b)
	return out
}

// dataPayload builds a raw collected data payload
func dataPayload(dciID uint32, dataType DataType, rows []sample) []byte {
	b := be32(dciID)
	b = binary.BigEndian.AppendUint32(b, uint32(len(rows)))
	b = binary.BigEndian.AppendUint32(b, uint32(dataType))
	for _, r := range rows {
		b = binary.BigEndian.AppendUint32(b, r.ts)
		b = append(b, r.value...)
	}
	return b
}

// TestParseDataRows tests decoding of every value type
func TestParseDataRows(t *testing.T) {
	minus5 := int32(-5)
	big := int64(-1 << 40)
	tests := []struct {
		name     string
		dataType DataType
		value    []byte
		want     DataValue
	}{
		{"int32", DataTypeInt, be32(uint32(minus5)), DataValue{Type: DataTypeInt, Int: -5}},
		{"uint32", DataTypeUInt, be32(4000000000), DataValue{Type: DataTypeUInt, Uint: 4000000000}},
		{"int64", DataTypeInt64, be64(uint64(big)), DataValue{Type: DataTypeInt64, Int: -1 << 40}},
		{"uint64", DataTypeUInt64, be64(1 << 63), DataValue{Type: DataTypeUInt64, Uint: 1 << 63}},
		{"float", DataTypeFloat, be64(math.Float64bits(2.5)), DataValue{Type: DataTypeFloat, Float: 2.5}},
		{"string", DataTypeString, fixedString(t, "link up"), DataValue{Type: DataTypeString, String: "link up"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := dataPayload(7, tt.dataType, []sample{{1700000000, tt.value}, {1699999990, tt.value}})
			rows, dataType, err := parseDataRows(payload)
			if err != nil {
				t.Fatalf("parseDataRows() error = %v", err)
			}
			if dataType != tt.dataType {
				t.Errorf("type = %v, want %v", dataType, tt.dataType)
			}
			if len(rows) != 2 {
				t.Fatalf("got %d rows, want 2", len(rows))
			}
			if rows[0].Value != tt.want {
				t.Errorf("value = %+v, want %+v", rows[0].Value, tt.want)
			}
			if rows[0].Timestamp.Unix() != 1700000000 || rows[1].Timestamp.Unix() != 1699999990 {
				t.Errorf("timestamps = %v, %v", rows[0].Timestamp, rows[1].Timestamp)
			}
		})
	}
}

// TestParseDataRowsMalformed tests payloads that do not add up
func TestParseDataRowsMalformed(t *testing.T) {
	tooMany := dataPayload(7, DataTypeInt, []sample{{1, be32(1)}})
	binary.BigEndian.PutUint32(tooMany[4:8], 5)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"short header", []byte{0, 0, 0, 1}},
		{"unknown type", dataPayload(7, DataType(9), nil)},
		{"count exceeds payload", tooMany},
		{"truncated string row", dataPayload(7, DataTypeString, []sample{{1, make([]byte, 100)}})},
		{"truncated row after a good one", dataPayload(7, DataTypeString, []sample{
			{2, fixedString(t, "up")},
			{1, make([]byte, 100)},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, _, err := parseDataRows(tt.payload)
			var malformed *MalformedFrameError
			if !errors.As(err, &malformed) {
				t.Errorf("error = %v, want MalformedFrameError", err)
			}
			if rows != nil {
				t.Errorf("rows = %v, want none from a malformed page", rows)
			}
		})
	}
}

// dataServer serves one sample per second between first and last, newest
// first, at most pageSize rows per reply
func dataServer(first, last uint32, pageSize int) handlerFunc {
	return func(sc *serverConn, req *Message) {
		sc.ok(req)

		limit := pageSize
		if maxRows := int(req.Uint32(VidMaxRows)); maxRows > 0 && maxRows < limit {
			limit = maxRows
		}
		from, to := req.Uint32(VidTimeFrom), req.Uint32(VidTimeTo)

		var rows []sample
		for ts := last; ts >= first && len(rows) < limit; ts-- {
			if to != 0 && ts > to {
				continue
			}
			if from != 0 && ts < from {
				break
			}
			rows = append(rows, sample{ts, be32(ts - first)})
		}
		sc.send(NewDataMessage(CmdDCIData, req.ID, dataPayload(req.Uint32(VidDCIID), DataTypeInt, rows)))
	}
}

// TestGetCollectedData tests paging over the server row limit
func TestGetCollectedData(t *testing.T) {
	tests := []struct {
		name        string
		first, last uint32
		from        time.Time
		maxRows     int
		wantRows    int
		wantTimeTo  []uint32
	}{
		{
			name:  "single short page",
			first: 1001, last: 1002,
			wantRows:   2,
			wantTimeTo: []uint32{0},
		},
		{
			name:  "two full pages and a short one",
			first: 1001, last: 1008,
			wantRows:   8,
			wantTimeTo: []uint32{0, 1005, 1002},
		},
		{
			name:  "two full pages and an empty one",
			first: 1001, last: 1006,
			wantRows:   6,
			wantTimeTo: []uint32{0, 1003, 1000},
		},
		{
			name:  "row limit",
			first: 1001, last: 1008,
			maxRows:    4,
			wantRows:   4,
			wantTimeTo: []uint32{0, 1005},
		},
		{
			name:  "window start",
			first: 1001, last: 1008,
			from:       time.Unix(1005, 0),
			wantRows:   4,
			wantTimeTo: []uint32{0, 1005},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			srv.handle(CmdGetDCIData, dataServer(tt.first, tt.last, 3))
			s := connectedSession(t, srv, MaxDataRows(3))

			data, err := s.GetCollectedData(context.Background(), 100, 7, tt.from, time.Time{}, tt.maxRows)
			if err != nil {
				t.Fatalf("GetCollectedData() error = %v", err)
			}
			if data.NodeID != 100 || data.DCIID != 7 {
				t.Errorf("ids = %d/%d", data.NodeID, data.DCIID)
			}
			if len(data.Rows) != tt.wantRows {
				t.Fatalf("got %d rows, want %d", len(data.Rows), tt.wantRows)
			}
			for i := 1; i < len(data.Rows); i++ {
				if !data.Rows[i].Timestamp.Before(data.Rows[i-1].Timestamp) {
					t.Fatalf("rows not strictly newest first at %d", i)
				}
			}
			if got := data.Rows[0].Timestamp.Unix(); got != int64(tt.last) {
				t.Errorf("newest row = %d, want %d", got, tt.last)
			}

			reqs := srv.received(CmdGetDCIData)
			if len(reqs) != len(tt.wantTimeTo) {
				t.Fatalf("server saw %d requests, want %d", len(reqs), len(tt.wantTimeTo))
			}
			seen := map[uint32]bool{}
			for i, req := range reqs {
				if got := req.Uint32(VidTimeTo); got != tt.wantTimeTo[i] {
					t.Errorf("request %d time to = %d, want %d", i, got, tt.wantTimeTo[i])
				}
				if seen[req.ID] {
					t.Errorf("request id %d reused", req.ID)
				}
				seen[req.ID] = true
			}
		})
	}
}

// TestGetCollectedDataErrors tests failures on later pages
func TestGetCollectedDataErrors(t *testing.T) {
	srv := newFakeServer(t)
	pages := 0
	srv.handle(CmdGetDCIData, func(sc *serverConn, req *Message) {
		pages++
		if pages == 2 {
			sc.rcc(req, RCCInvalidDCIID)
			return
		}
		dataServer(1001, 1008, 3)(sc, req)
	})
	s := connectedSession(t, srv, MaxDataRows(3))

	data, err := s.GetCollectedData(context.Background(), 100, 7, time.Time{}, time.Time{}, 0)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != RCCInvalidDCIID {
		t.Errorf("error = %v, want invalid dci", err)
	}
	if data != nil {
		t.Errorf("partial data returned: %d rows", len(data.Rows))
	}
}

// TestGetCollectedDataNoPayload tests a data reply without raw payload
func TestGetCollectedDataNoPayload(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(CmdGetDCIData, func(sc *serverConn, req *Message) {
		sc.ok(req)
		reply := NewMessage(CmdDCIData)
		reply.ID = req.ID
		sc.send(reply)
	})
	s := connectedSession(t, srv)

	if _, err := s.GetCollectedData(context.Background(), 100, 7, time.Time{}, time.Time{}, 0); !errors.Is(err, ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
}

// TestGetLastValues tests the last values table
func TestGetLastValues(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(CmdGetLastValues, func(sc *serverConn, req *Message) {
		reply := NewMessage(CmdRequestCompleted)
		reply.ID = req.ID
		reply.SetInt32(VidRCC, 0)
		reply.SetInt32(VidNumItems, 2)

		base := VidDCIValuesBase
		for _, v := range []struct {
			id       uint32
			name     string
			dataType DataType
			value    string
		}{
			{7, "System.CPU.Usage", DataTypeFloat, "12.5"},
			{8, "Agent.Version", DataTypeString, "5.0.1"},
		} {
			reply.SetInt32(base, v.id)
			reply.SetString(base+1, v.name)
			reply.SetString(base+2, v.name+" description")
			reply.SetInt16(base+3, 1)
			reply.SetInt16(base+4, uint16(v.dataType))
			reply.SetString(base+5, v.value)
			reply.SetInt32(base+6, 1700000000)
			reply.SetInt16(base+7, 0)
			base += lastValueFieldStride
		}
		sc.send(reply)
	})
	s := connectedSession(t, srv)

	values, err := s.GetLastValues(context.Background(), 100)
	if err != nil {
		t.Fatalf("GetLastValues() error = %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("got %d values, want 2", len(values))
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"node", values[0].NodeID, uint64(100)},
		{"dci", values[0].DCIID, uint64(7)},
		{"name", values[0].Name, "System.CPU.Usage"},
		{"float", values[0].Value, DataValue{Type: DataTypeFloat, Float: 12.5}},
		{"string", values[1].Value, DataValue{Type: DataTypeString, String: "5.0.1"}},
		{"text", values[0].Value.Text(), "12.5"},
		{"timestamp", values[1].Timestamp.Unix(), int64(1700000000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

// TestDataValueText tests the textual rendering of each type
func TestDataValueText(t *testing.T) {
	tests := []struct {
		value DataValue
		want  string
	}{
		{DataValue{Type: DataTypeInt, Int: -3}, "-3"},
		{DataValue{Type: DataTypeUInt64, Uint: 18446744073709551615}, "18446744073709551615"},
		{DataValue{Type: DataTypeFloat, Float: 0.25}, "0.25"},
		{DataValue{Type: DataTypeString, String: "ok"}, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.value.Type.String(), func(t *testing.T) {
			if got := tt.value.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}
