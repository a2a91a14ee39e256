// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"errors"
	"testing"
)

// TestGetServerVariables tests the variable list decoding
func TestGetServerVariables(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(CmdGetConfigVarList, func(sc *serverConn, req *Message) {
		reply := NewMessage(CmdRequestCompleted)
		reply.ID = req.ID
		reply.SetInt32(VidRCC, 0)
		reply.SetInt32(VidNumVariables, 2)
		reply.SetString(VidVarListBase, "PollingInterval")
		reply.SetString(VidVarListBase+1, "60")
		reply.SetInt16(VidVarListBase+2, 0)
		reply.SetString(VidVarListBase+3, "ListenPort")
		reply.SetString(VidVarListBase+4, "4701")
		reply.SetInt16(VidVarListBase+5, 1)
		sc.send(reply)
	})
	s := connectedSession(t, srv)

	vars, err := s.GetServerVariables(context.Background())
	if err != nil {
		t.Fatalf("GetServerVariables() error = %v", err)
	}

	tests := []struct {
		name        string
		wantValue   string
		wantRestart bool
	}{
		{"PollingInterval", "60", false},
		{"ListenPort", "4701", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := vars[tt.name]
			if !ok {
				t.Fatal("variable missing")
			}
			if v.Value != tt.wantValue || v.RequiresRestart != tt.wantRestart {
				t.Errorf("variable = %+v", v)
			}
		})
	}
}

// TestServerVariableChanges tests set and delete requests
func TestServerVariableChanges(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	ctx := context.Background()

	if err := s.SetServerVariable(ctx, "PollingInterval", "30"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteServerVariable(ctx, "Obsolete"); err != nil {
		t.Fatal(err)
	}

	set := srv.received(CmdSetConfigVariable)[0]
	if set.String(VidName) != "PollingInterval" || set.String(VidValue) != "30" {
		t.Errorf("set request = %q=%q", set.String(VidName), set.String(VidValue))
	}
	if del := srv.received(CmdDeleteConfigVariable)[0]; del.String(VidName) != "Obsolete" {
		t.Errorf("delete request name = %q", del.String(VidName))
	}
}

// TestSubscribe tests the subscription flags
func TestSubscribe(t *testing.T) {
	tests := []struct {
		name       string
		call       func(s *Session) error
		wantFlags  uint32
		wantEnable bool
	}{
		{
			name:       "subscribe",
			call:       func(s *Session) error { return s.Subscribe(context.Background(), ChannelAlarms|ChannelObjects) },
			wantFlags:  0x000C,
			wantEnable: true,
		},
		{
			name:      "unsubscribe",
			call:      func(s *Session) error { return s.Unsubscribe(context.Background(), ChannelSyslog) },
			wantFlags: 0x0002,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			s := connectedSession(t, srv)

			if err := tt.call(s); err != nil {
				t.Fatalf("error = %v", err)
			}
			req := srv.received(CmdChangeSubscription)[0]
			if req.Uint32(VidFlags) != tt.wantFlags || req.Bool(VidOperation) != tt.wantEnable {
				t.Errorf("flags = 0x%x enable = %v", req.Uint32(VidFlags), req.Bool(VidOperation))
			}
		})
	}
}

// TestGetServerJobs tests the job list and the job JSON document
func TestGetServerJobs(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(CmdGetJobList, func(sc *serverConn, req *Message) {
		reply := NewMessage(CmdRequestCompleted)
		reply.ID = req.ID
		reply.SetInt32(VidRCC, 0)
		reply.SetInt32(VidJobCount, 2)
		for i, job := range []struct {
			id     uint32
			status uint16
			failed string
		}{
			{1, JobActive, ""},
			{2, JobFailed, "agent unreachable"},
		} {
			base := VidJobListBase + FieldID(i)*jobFieldStride
			reply.SetInt32(base, job.id)
			reply.SetString(base+1, "Policy.Deploy")
			reply.SetInt32(base+2, 100)
			reply.SetString(base+3, "Deploy policy")
			reply.SetInt16(base+4, job.status)
			reply.SetInt16(base+5, 50)
			reply.SetString(base+6, job.failed)
			reply.SetInt32(base+7, 1)
		}
		sc.send(reply)
	})
	s := connectedSession(t, srv)

	jobs, err := s.GetServerJobs(context.Background())
	if err != nil {
		t.Fatalf("GetServerJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].Status != JobActive || jobs[0].NodeID != 100 || jobs[0].Progress != 50 {
		t.Errorf("first job = %+v", jobs[0])
	}
	if jobs[0].GetValue("failureMessage").Exists() {
		t.Error("active job has a failure message")
	}
	if got := jobs[1].GetValue("failureMessage").String(); got != "agent unreachable" {
		t.Errorf("failure message = %q", got)
	}

	if err := s.CancelServerJob(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if req := srv.received(CmdCancelJob)[0]; req.Uint32(VidJobID) != 2 {
		t.Errorf("cancel job id = %d", req.Uint32(VidJobID))
	}
}

// TestQueryLayer2Topology tests the topology decoding and the count check
func TestQueryLayer2Topology(t *testing.T) {
	tests := []struct {
		name      string
		count     uint32
		ids       []uint32
		wantError error
	}{
		{"consistent", 3, []uint32{100, 101, 102}, nil},
		{"count mismatch", 4, []uint32{100, 101, 102}, ErrInternal},
		{"empty", 0, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			srv.handle(CmdQueryL2Topology, func(sc *serverConn, req *Message) {
				reply := NewMessage(CmdRequestCompleted)
				reply.ID = req.ID
				reply.SetInt32(VidRCC, 0)
				reply.SetInt32(VidNumObjects, tt.count)
				reply.SetUint32Array(VidObjectList, tt.ids)
				if len(tt.ids) > 1 {
					reply.SetInt32(VidNumLinks, 1)
					reply.SetInt32(VidObjectLinksBase, tt.ids[0])
					reply.SetInt32(VidObjectLinksBase+1, tt.ids[1])
					reply.SetInt32(VidObjectLinksBase+2, 1)
					reply.SetString(VidObjectLinksBase+3, "Gi0/1")
					reply.SetString(VidObjectLinksBase+4, "eth0")
				}
				sc.send(reply)
			})
			s := connectedSession(t, srv)

			page, err := s.QueryLayer2Topology(context.Background(), 100)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("QueryLayer2Topology() error = %v", err)
			}
			if len(page.ObjectIDs) != len(tt.ids) {
				t.Errorf("got %d objects, want %d", len(page.ObjectIDs), len(tt.ids))
			}
			if len(tt.ids) > 1 {
				if len(page.Links) != 1 || page.Links[0].Port1 != "Gi0/1" || page.Links[0].Object2 != uint64(tt.ids[1]) {
					t.Errorf("links = %+v", page.Links)
				}
			}
		})
	}
}

// TestNodeActions tests agent action and policy deployment requests
func TestNodeActions(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	ctx := context.Background()

	if err := s.ExecuteAction(ctx, 100, "Agent.Restart"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeployAgentPolicy(ctx, 9, 100); err != nil {
		t.Fatal(err)
	}

	action := srv.received(CmdExecuteAction)[0]
	if action.Uint32(VidObjectID) != 100 || action.String(VidActionName) != "Agent.Restart" {
		t.Errorf("action request = %d %q", action.Uint32(VidObjectID), action.String(VidActionName))
	}
	deploy := srv.received(CmdDeployAgentPolicy)[0]
	if deploy.Uint32(VidPolicyID) != 9 || deploy.Uint32(VidObjectID) != 100 {
		t.Errorf("deploy request = %d on %d", deploy.Uint32(VidPolicyID), deploy.Uint32(VidObjectID))
	}
}
