// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"strconv"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protojson"
)

// ExportOrigin is the path origin of exported gNMI notifications
const ExportOrigin = "netxms"

// ExportRes holds collected data converted to gNMI notifications, so that
// it can be fed into gNMI based telemetry pipelines.
//
// Each notification has the node id as path target and a dci[id=N] prefix.
type ExportRes struct {
	// Notifications contains one notification per sample
	Notifications []*gnmi.Notification

	// Timestamp is the export time (nanoseconds since Unix epoch)
	Timestamp int64
}

// GetValue queries the JSON rendering of the export with a gjson path.
//
// Example paths:
//   - "notification.0.timestamp" - sample time in nanoseconds
//   - "notification.0.prefix.target" - node id
//   - "notification.0.update.0.val.intVal" - integer sample value
func (r ExportRes) GetValue(path string) gjson.Result {
	jsonStr := r.JSON()
	if jsonStr == "" {
		return gjson.Result{}
	}
	return gjson.Get(jsonStr, path)
}

// JSON renders the notifications as a gNMI GetResponse in protobuf JSON
// form. Returns an empty string if marshaling fails.
func (r ExportRes) JSON() string {
	if r.Notifications == nil {
		return ""
	}
	data, err := protojson.Marshal(&gnmi.GetResponse{Notification: r.Notifications})
	if err != nil {
		return ""
	}
	return string(data)
}

// SubscribeResponses wraps every notification as a gNMI subscribe update
func (r ExportRes) SubscribeResponses() []*gnmi.SubscribeResponse {
	out := make([]*gnmi.SubscribeResponse, 0, len(r.Notifications))
	for _, n := range r.Notifications {
		out = append(out, &gnmi.SubscribeResponse{
			Response: &gnmi.SubscribeResponse_Update{Update: n},
		})
	}
	return out
}

// dciPrefix is the notification prefix for one data collection item
func dciPrefix(nodeID, dciID uint64) *gnmi.Path {
	return &gnmi.Path{
		Origin: ExportOrigin,
		Target: strconv.FormatUint(nodeID, 10),
		Elem: []*gnmi.PathElem{{
			Name: "dci",
			Key:  map[string]string{"id": strconv.FormatUint(dciID, 10)},
		}},
	}
}

// unixNanos converts t to gNMI timestamp form. The zero time maps to 0.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// typedValue converts a sample to a gNMI typed value
func typedValue(v DataValue) *gnmi.TypedValue {
	switch v.Type {
	case DataTypeInt, DataTypeInt64:
		return &gnmi.TypedValue{Value: &gnmi.TypedValue_IntVal{IntVal: v.Int}}
	case DataTypeUInt, DataTypeUInt64:
		return &gnmi.TypedValue{Value: &gnmi.TypedValue_UintVal{UintVal: v.Uint}}
	case DataTypeFloat:
		return &gnmi.TypedValue{Value: &gnmi.TypedValue_DoubleVal{DoubleVal: v.Float}}
	default:
		return &gnmi.TypedValue{Value: &gnmi.TypedValue_StringVal{StringVal: v.String}}
	}
}

// ExportCollectedData converts collected data to one gNMI notification per row
//
// Example:
//
//	data, err := session.GetCollectedData(ctx, nodeID, dciID, from, to, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := nxcp.ExportCollectedData(data)
//	fmt.Println(res.GetValue("notification.0.update.0.val").Raw)
func ExportCollectedData(data *DCIData) ExportRes {
	res := ExportRes{Timestamp: time.Now().UnixNano()}
	if data == nil {
		return res
	}

	prefix := dciPrefix(data.NodeID, data.DCIID)
	res.Notifications = make([]*gnmi.Notification, 0, len(data.Rows))
	for _, row := range data.Rows {
		res.Notifications = append(res.Notifications, &gnmi.Notification{
			Timestamp: unixNanos(row.Timestamp),
			Prefix:    prefix,
			Update: []*gnmi.Update{{
				Path: &gnmi.Path{Elem: []*gnmi.PathElem{{Name: "value"}}},
				Val:  typedValue(row.Value),
			}},
		})
	}
	return res
}

// ExportLastValues converts last values to one gNMI notification per item.
// The item name and description become leaves next to the value.
func ExportLastValues(values []LastValue) ExportRes {
	res := ExportRes{
		Timestamp:     time.Now().UnixNano(),
		Notifications: make([]*gnmi.Notification, 0, len(values)),
	}
	for _, v := range values {
		res.Notifications = append(res.Notifications, &gnmi.Notification{
			Timestamp: unixNanos(v.Timestamp),
			Prefix:    dciPrefix(v.NodeID, v.DCIID),
			Update: []*gnmi.Update{
				{
					Path: &gnmi.Path{Elem: []*gnmi.PathElem{{Name: "name"}}},
					Val:  &gnmi.TypedValue{Value: &gnmi.TypedValue_StringVal{StringVal: v.Name}},
				},
				{
					Path: &gnmi.Path{Elem: []*gnmi.PathElem{{Name: "description"}}},
					Val:  &gnmi.TypedValue{Value: &gnmi.TypedValue_StringVal{StringVal: v.Description}},
				},
				{
					Path: &gnmi.Path{Elem: []*gnmi.PathElem{{Name: "value"}}},
					Val:  typedValue(v.Value),
				},
			},
		})
	}
	return res
}
