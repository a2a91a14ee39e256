// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// ServerVariable is a server configuration variable
type ServerVariable struct {
	Name            string
	Value           string
	RequiresRestart bool
}

// GetServerVariables returns the server configuration variables keyed by name
func (s *Session) GetServerVariables(ctx context.Context, mods ...func(*Req)) (map[string]ServerVariable, error) {
	reply, err := s.execute(ctx, "get server variables", s.NewMessage(CmdGetConfigVarList), mods...)
	if err != nil {
		return nil, err
	}

	n := reply.count(VidNumVariables)
	vars := make(map[string]ServerVariable, n)
	id := VidVarListBase
	for i := uint32(0); i < n; i++ {
		v := ServerVariable{
			Name:            reply.String(id),
			Value:           reply.String(id + 1),
			RequiresRestart: reply.Bool(id + 2),
		}
		vars[v.Name] = v
		id += 3
	}
	return vars, nil
}

// SetServerVariable creates or changes a server configuration variable
func (s *Session) SetServerVariable(ctx context.Context, name, value string, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdSetConfigVariable)
	msg.SetString(VidName, name)
	msg.SetString(VidValue, value)
	_, err := s.execute(ctx, "set server variable", msg, mods...)
	return err
}

// DeleteServerVariable removes a server configuration variable
func (s *Session) DeleteServerVariable(ctx context.Context, name string, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdDeleteConfigVariable)
	msg.SetString(VidName, name)
	_, err := s.execute(ctx, "delete server variable", msg, mods...)
	return err
}

// Subscribe enables push notifications for the given channels. Channels
// are combined as a bitmask, e.g. ChannelAlarms|ChannelObjects.
func (s *Session) Subscribe(ctx context.Context, channels uint32, mods ...func(*Req)) error {
	return s.changeSubscription(ctx, "subscribe", channels, true, mods)
}

// Unsubscribe disables push notifications for the given channels
func (s *Session) Unsubscribe(ctx context.Context, channels uint32, mods ...func(*Req)) error {
	return s.changeSubscription(ctx, "unsubscribe", channels, false, mods)
}

func (s *Session) changeSubscription(ctx context.Context, op string, channels uint32, enable bool, mods []func(*Req)) error {
	msg := s.NewMessage(CmdChangeSubscription)
	msg.SetInt32(VidFlags, channels)
	msg.SetBool(VidOperation, enable)
	if _, err := s.execute(ctx, op, msg, mods...); err != nil {
		return err
	}
	s.logger.Debug(ctx, "Subscription changed",
		"channels", fmt.Sprintf("0x%x", channels),
		"enabled", enable)
	return nil
}

// Job status values
const (
	JobPending       uint16 = 0
	JobActive        uint16 = 1
	JobOnHold        uint16 = 2
	JobCompleted     uint16 = 3
	JobFailed        uint16 = 4
	JobCancelled     uint16 = 5
	JobCancelPending uint16 = 6
)

// jobFieldStride is the number of field ids reserved per job in a job list
const jobFieldStride = 10

// ServerJob is a background job running on the server
type ServerJob struct {
	ID             uint32
	Type           string
	NodeID         uint64
	Description    string
	Status         uint16
	Progress       uint16
	FailureMessage string
	UserID         uint32
}

// decodeServerJob reads a job either from the named fields of a job change
// notification (base 0) or from a job list entry starting at base
func decodeServerJob(msg *Message, base FieldID) *ServerJob {
	if base == 0 {
		return &ServerJob{
			ID:             msg.Uint32(VidJobID),
			Type:           msg.String(VidJobType),
			NodeID:         msg.Uint64(VidJobNodeID),
			Description:    msg.String(VidJobDescription),
			Status:         msg.Int16(VidJobStatus),
			Progress:       msg.Int16(VidJobProgress),
			FailureMessage: msg.String(VidJobFailureMessage),
			UserID:         msg.Uint32(VidUserID),
		}
	}
	return &ServerJob{
		ID:             msg.Uint32(base),
		Type:           msg.String(base + 1),
		NodeID:         msg.Uint64(base + 2),
		Description:    msg.String(base + 3),
		Status:         msg.Int16(base + 4),
		Progress:       msg.Int16(base + 5),
		FailureMessage: msg.String(base + 6),
		UserID:         msg.Uint32(base + 7),
	}
}

// JSON renders the job as a JSON document
func (j *ServerJob) JSON() string {
	body := Body{}.
		Set("id", j.ID).
		Set("type", j.Type).
		Set("nodeId", j.NodeID).
		Set("description", j.Description).
		Set("status", j.Status).
		Set("progress", j.Progress).
		Set("userId", j.UserID)
	if j.FailureMessage != "" {
		body = body.Set("failureMessage", j.FailureMessage)
	}
	return body.Res()
}

// GetValue queries the JSON rendering of the job with a gjson path
func (j *ServerJob) GetValue(path string) gjson.Result {
	return gjson.Get(j.JSON(), path)
}

// GetServerJobs returns the server job list
func (s *Session) GetServerJobs(ctx context.Context, mods ...func(*Req)) ([]*ServerJob, error) {
	reply, err := s.execute(ctx, "get server jobs", s.NewMessage(CmdGetJobList), mods...)
	if err != nil {
		return nil, err
	}

	n := reply.count(VidJobCount)
	jobs := make([]*ServerJob, 0, n)
	base := VidJobListBase
	for i := uint32(0); i < n; i++ {
		jobs = append(jobs, decodeServerJob(reply, base))
		base += jobFieldStride
	}
	return jobs, nil
}

// CancelServerJob cancels a server job
func (s *Session) CancelServerJob(ctx context.Context, id uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdCancelJob)
	msg.SetInt32(VidJobID, id)
	_, err := s.execute(ctx, "cancel job", msg, mods...)
	return err
}

// linkFieldStride is the number of field ids reserved per topology link
const linkFieldStride = 10

// NetworkMapLink connects two objects of a topology map
type NetworkMapLink struct {
	Type    uint32
	Object1 uint64
	Object2 uint64
	Port1   string
	Port2   string
}

// NetworkMapPage is a layer 2 topology map
type NetworkMapPage struct {
	ObjectIDs []uint64
	Links     []NetworkMapLink
}

// QueryLayer2Topology returns the layer 2 topology around a node. A reply
// whose object count disagrees with its object list fails with ErrInternal.
func (s *Session) QueryLayer2Topology(ctx context.Context, nodeID uint64, mods ...func(*Req)) (*NetworkMapPage, error) {
	msg := s.NewMessage(CmdQueryL2Topology)
	msg.SetInt32(VidObjectID, uint32(nodeID))

	reply, err := s.execute(ctx, "query l2 topology", msg, mods...)
	if err != nil {
		return nil, err
	}

	count := int(reply.Uint32(VidNumObjects))
	ids := reply.Uint32Array(VidObjectList)
	if len(ids) != count {
		return nil, fmt.Errorf("%w: topology lists %d objects, expected %d", ErrInternal, len(ids), count)
	}

	page := &NetworkMapPage{ObjectIDs: make([]uint64, 0, count)}
	for _, id := range ids {
		page.ObjectIDs = append(page.ObjectIDs, uint64(id))
	}

	n := reply.count(VidNumLinks)
	base := VidObjectLinksBase
	for i := uint32(0); i < n; i++ {
		page.Links = append(page.Links, NetworkMapLink{
			Object1: reply.Uint64(base),
			Object2: reply.Uint64(base + 1),
			Type:    reply.Uint32(base + 2),
			Port1:   reply.String(base + 3),
			Port2:   reply.String(base + 4),
		})
		base += linkFieldStride
	}
	return page, nil
}

// ExecuteAction runs a named agent action on a node
func (s *Session) ExecuteAction(ctx context.Context, nodeID uint64, action string, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdExecuteAction)
	msg.SetInt32(VidObjectID, uint32(nodeID))
	msg.SetString(VidActionName, action)
	_, err := s.execute(ctx, "execute action", msg, mods...)
	return err
}

// DeployAgentPolicy installs an agent policy on a node
func (s *Session) DeployAgentPolicy(ctx context.Context, policyID, nodeID uint64, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdDeployAgentPolicy)
	msg.SetInt32(VidPolicyID, uint32(policyID))
	msg.SetInt32(VidObjectID, uint32(nodeID))
	_, err := s.execute(ctx, "deploy agent policy", msg, mods...)
	return err
}
