// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DataType is the value type of a data collection item
type DataType uint32

// Data types
const (
	DataTypeInt    DataType = 0
	DataTypeUInt   DataType = 1
	DataTypeInt64  DataType = 2
	DataTypeUInt64 DataType = 3
	DataTypeString DataType = 4
	DataTypeFloat  DataType = 5
)

func (t DataType) String() string {
	switch t {
	case DataTypeInt:
		return "int32"
	case DataTypeUInt:
		return "uint32"
	case DataTypeInt64:
		return "int64"
	case DataTypeUInt64:
		return "uint64"
	case DataTypeString:
		return "string"
	case DataTypeFloat:
		return "float"
	default:
		return fmt.Sprintf("DataType(%d)", uint32(t))
	}
}

// dciStringSize is the fixed width of a string value in a data payload:
// 256 UTF-16 code units
const dciStringSize = 512

// dciHeaderSize covers the item id, row count and data type of a payload
const dciHeaderSize = 12

// DataValue is one typed sample. Only the field matching Type is set.
type DataValue struct {
	Type   DataType
	Int    int64
	Uint   uint64
	Float  float64
	String string
}

// Text renders the value as a string
func (v DataValue) Text() string {
	switch v.Type {
	case DataTypeInt, DataTypeInt64:
		return strconv.FormatInt(v.Int, 10)
	case DataTypeUInt, DataTypeUInt64:
		return strconv.FormatUint(v.Uint, 10)
	case DataTypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.String
	}
}

// parseDataValue converts the textual value of a last-values entry
func parseDataValue(t DataType, text string) DataValue {
	v := DataValue{Type: t, String: text}
	switch t {
	case DataTypeInt, DataTypeInt64:
		v.Int, _ = strconv.ParseInt(text, 10, 64)
	case DataTypeUInt, DataTypeUInt64:
		v.Uint, _ = strconv.ParseUint(text, 10, 64)
	case DataTypeFloat:
		v.Float, _ = strconv.ParseFloat(text, 64)
	}
	if t != DataTypeString {
		v.String = ""
	}
	return v
}

// DataRow is one collected sample
type DataRow struct {
	Timestamp time.Time
	Value     DataValue
}

// DCIData is the collected history of one data collection item, newest first
type DCIData struct {
	NodeID uint64
	DCIID  uint64
	Rows   []DataRow
}

// parseDataRows decodes a raw data payload into rows in payload order.
// A malformed payload yields no rows at all, and the page fails as a whole.
func parseDataRows(payload []byte) ([]DataRow, DataType, error) {
	if len(payload) < dciHeaderSize {
		return nil, 0, &MalformedFrameError{Code: CmdDCIData, Reason: "data payload shorter than header"}
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	dataType := DataType(binary.BigEndian.Uint32(payload[8:12]))

	var valueSize int
	switch dataType {
	case DataTypeInt, DataTypeUInt:
		valueSize = 4
	case DataTypeInt64, DataTypeUInt64, DataTypeFloat:
		valueSize = 8
	case DataTypeString:
		valueSize = dciStringSize
	default:
		return nil, 0, &MalformedFrameError{Code: CmdDCIData, Reason: "unknown data type " + dataType.String()}
	}

	body := payload[dciHeaderSize:]
	rowSize := 4 + valueSize
	if uint64(count)*uint64(rowSize) > uint64(len(body)) {
		return nil, 0, &MalformedFrameError{
			Code:   CmdDCIData,
			Reason: fmt.Sprintf("payload holds %d bytes, %d rows of %d bytes declared", len(body), count, rowSize),
		}
	}

	rows := make([]DataRow, 0, count)
	for i := uint32(0); i < count; i++ {
		b := body[int(i)*rowSize:]
		row := DataRow{
			Timestamp: time.UnixMilli(int64(binary.BigEndian.Uint32(b)) * 1000),
			Value:     DataValue{Type: dataType},
		}
		b = b[4:rowSize]

		switch dataType {
		case DataTypeInt:
			row.Value.Int = int64(int32(binary.BigEndian.Uint32(b)))
		case DataTypeUInt:
			row.Value.Uint = uint64(binary.BigEndian.Uint32(b))
		case DataTypeInt64:
			row.Value.Int = int64(binary.BigEndian.Uint64(b))
		case DataTypeUInt64:
			row.Value.Uint = binary.BigEndian.Uint64(b)
		case DataTypeFloat:
			row.Value.Float = math.Float64frombits(binary.BigEndian.Uint64(b))
		case DataTypeString:
			s, err := decodeFixedWireString(b)
			if err != nil {
				return nil, 0, &MalformedFrameError{Code: CmdDCIData, Reason: err.Error()}
			}
			row.Value.String = s
		}
		rows = append(rows, row)
	}
	return rows, dataType, nil
}

// unixSeconds converts t to wire seconds. The zero time means no bound.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// GetCollectedData returns the history of a data collection item between
// from and to, newest first. A zero from or to leaves that side of the
// window open; maxRows of zero means no row limit.
//
// The server returns at most MaxDataRows rows per reply. When a reply is
// full the window end is moved to one second before the oldest row
// received and the request is repeated, until a reply comes back short,
// the row limit is reached or the window is exhausted. At most one sample
// per second is assumed, so no row is fetched twice.
func (s *Session) GetCollectedData(ctx context.Context, nodeID, dciID uint64, from, to time.Time, maxRows int, mods ...func(*Req)) (data *DCIData, err error) {
	span, ctx := s.startSpan(ctx, "get collected data")
	defer func() { finishSpan(span, err) }()

	data = &DCIData{NodeID: nodeID, DCIID: dciID}
	remaining := maxRows
	timeFrom := unixSeconds(from)
	timeTo := unixSeconds(to)

	for page := 1; ; page++ {
		rows, err := s.fetchDataPage(ctx, nodeID, dciID, timeFrom, timeTo, maxRows, mods)
		if err != nil {
			s.logger.Warn(ctx, "Collected data retrieval failed",
				"node", nodeID,
				"dci", dciID,
				"page", page,
				"error", err.Error())
			return nil, err
		}
		data.Rows = append(data.Rows, rows...)
		logPage(span, page, len(rows))

		if len(rows) < s.MaxDataRows {
			break
		}
		if remaining > 0 {
			if remaining <= s.MaxDataRows {
				break
			}
			remaining -= len(rows)
		}

		next := rows[len(rows)-1].Timestamp.Unix() - 1
		if next <= 0 || (timeFrom > 0 && next < timeFrom) {
			break
		}
		timeTo = next
	}

	if maxRows > 0 && len(data.Rows) > maxRows {
		data.Rows = data.Rows[:maxRows]
	}

	s.logger.Debug(ctx, "Collected data received",
		"node", nodeID,
		"dci", dciID,
		"rows", len(data.Rows))
	return data, nil
}

// fetchDataPage runs one request round of GetCollectedData with a fresh
// correlation id
func (s *Session) fetchDataPage(ctx context.Context, nodeID, dciID uint64, timeFrom, timeTo int64, maxRows int, mods []func(*Req)) ([]DataRow, error) {
	msg := s.NewMessage(CmdGetDCIData)
	msg.SetInt32(VidObjectID, uint32(nodeID))
	msg.SetInt32(VidDCIID, uint32(dciID))
	msg.SetInt32(VidMaxRows, uint32(maxRows))
	msg.SetInt32(VidTimeFrom, uint32(timeFrom))
	msg.SetInt32(VidTimeTo, uint32(timeTo))

	if _, err := s.execute(ctx, "get dci data", msg, mods...); err != nil {
		return nil, err
	}

	reply, err := s.WaitForMessage(ctx, CmdDCIData, msg.ID, mods...)
	if err != nil {
		return nil, err
	}
	if !reply.IsBinary() {
		return nil, fmt.Errorf("%w: data reply id=%d has no raw payload", ErrInternal, reply.ID)
	}

	rows, _, err := parseDataRows(reply.Data())
	return rows, err
}

// lastValueFieldStride is the number of field ids reserved per last value
const lastValueFieldStride = 10

// LastValue is the most recent sample of one data collection item of a node
type LastValue struct {
	NodeID      uint64
	DCIID       uint64
	Name        string
	Description string
	Source      uint16
	Status      uint16
	Timestamp   time.Time
	Value       DataValue
}

// GetLastValues returns the latest sample of every data collection item
// of a node
func (s *Session) GetLastValues(ctx context.Context, nodeID uint64, mods ...func(*Req)) ([]LastValue, error) {
	msg := s.NewMessage(CmdGetLastValues)
	msg.SetInt32(VidObjectID, uint32(nodeID))

	reply, err := s.execute(ctx, "get last values", msg, mods...)
	if err != nil {
		return nil, err
	}

	n := reply.count(VidNumItems)
	values := make([]LastValue, 0, n)
	base := VidDCIValuesBase
	for i := uint32(0); i < n; i++ {
		dataType := DataType(reply.Int16(base + 4))
		values = append(values, LastValue{
			NodeID:      nodeID,
			DCIID:       reply.Uint64(base),
			Name:        reply.String(base + 1),
			Description: reply.String(base + 2),
			Source:      reply.Int16(base + 3),
			Value:       parseDataValue(dataType, reply.String(base+5)),
			Timestamp:   unixTime(reply.Uint32(base + 6)),
			Status:      reply.Int16(base + 7),
		})
		base += lastValueFieldStride
	}
	return values, nil
}
