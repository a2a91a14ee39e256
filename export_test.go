// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"testing"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
)

// TestExportCollectedData tests the gNMI rendering of collected data
func TestExportCollectedData(t *testing.T) {
	sampled := time.Unix(1700000000, 0)
	data := &DCIData{
		NodeID: 100,
		DCIID:  7,
		Rows: []DataRow{
			{Timestamp: sampled, Value: DataValue{Type: DataTypeInt64, Int: -5}},
			{Timestamp: sampled.Add(-time.Minute), Value: DataValue{Type: DataTypeFloat, Float: 2.5}},
			{Timestamp: sampled.Add(-2 * time.Minute), Value: DataValue{Type: DataTypeUInt, Uint: 9}},
			{Timestamp: sampled.Add(-3 * time.Minute), Value: DataValue{Type: DataTypeString, String: "up"}},
		},
	}
	res := ExportCollectedData(data)

	if len(res.Notifications) != 4 {
		t.Fatalf("got %d notifications, want 4", len(res.Notifications))
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"timestamp", "notification.0.timestamp", "1700000000000000000"},
		{"origin", "notification.0.prefix.origin", ExportOrigin},
		{"target", "notification.0.prefix.target", "100"},
		{"dci key", "notification.0.prefix.elem.0.key.id", "7"},
		{"leaf", "notification.0.update.0.path.elem.0.name", "value"},
		{"int as string", "notification.0.update.0.val.intVal", "-5"},
		{"double", "notification.1.update.0.val.doubleVal", "2.5"},
		{"uint as string", "notification.2.update.0.val.uintVal", "9"},
		{"string", "notification.3.update.0.val.stringVal", "up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.GetValue(tt.path).String(); got != tt.want {
				t.Errorf("GetValue(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}

	responses := res.SubscribeResponses()
	if len(responses) != 4 {
		t.Fatalf("got %d subscribe responses, want 4", len(responses))
	}
	update, ok := responses[0].Response.(*gnmi.SubscribeResponse_Update)
	if !ok || update.Update != res.Notifications[0] {
		t.Errorf("first response = %T", responses[0].Response)
	}
}

// TestExportEmpty tests exports without data
func TestExportEmpty(t *testing.T) {
	tests := []struct {
		name string
		res  ExportRes
	}{
		{"nil data", ExportCollectedData(nil)},
		{"no values", ExportLastValues(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.res.Notifications) != 0 {
				t.Errorf("got %d notifications", len(tt.res.Notifications))
			}
			if tt.res.Timestamp == 0 {
				t.Error("export time not set")
			}
			if tt.res.GetValue("notification.0").Exists() {
				t.Error("empty export has a notification")
			}
		})
	}
}

// TestExportLastValues tests the gNMI rendering of last values
func TestExportLastValues(t *testing.T) {
	res := ExportLastValues([]LastValue{
		{
			NodeID:      100,
			DCIID:       7,
			Name:        "System.CPU.Usage",
			Description: "CPU usage",
			Value:       DataValue{Type: DataTypeFloat, Float: 12.5},
		},
	})

	tests := []struct {
		name string
		path string
		want string
	}{
		{"unset timestamp", "notification.0.timestamp", ""},
		{"name leaf", "notification.0.update.0.val.stringVal", "System.CPU.Usage"},
		{"description leaf", "notification.0.update.1.path.elem.0.name", "description"},
		{"value", "notification.0.update.2.val.doubleVal", "12.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.GetValue(tt.path).String(); got != tt.want {
				t.Errorf("GetValue(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
