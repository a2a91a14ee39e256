// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// Alarm states
const (
	AlarmStateOutstanding  uint16 = 0
	AlarmStateAcknowledged uint16 = 1
	AlarmStateTerminated   uint16 = 2
)

// Helpdesk states
const (
	HelpdeskStateIgnored uint16 = 0
	HelpdeskStateOpen    uint16 = 1
	HelpdeskStateClosed  uint16 = 2
)

// Alarm is an alarm record as sent in alarm lists and alarm updates
type Alarm struct {
	ID             uint32
	Key            string
	Message        string
	Severity       uint16
	State          uint16
	HelpdeskState  uint16
	HelpdeskRef    string
	SourceObjectID uint64
	AckByUser      uint32
	RepeatCount    uint32
	CreationTime   time.Time
	LastChangeTime time.Time
}

func decodeAlarm(msg *Message) *Alarm {
	return &Alarm{
		ID:             msg.Uint32(VidAlarmID),
		Key:            msg.String(VidAlarmKey),
		Message:        msg.String(VidAlarmMessage),
		Severity:       msg.Int16(VidAlarmSeverity),
		State:          msg.Int16(VidAlarmState),
		HelpdeskState:  msg.Int16(VidHelpdeskState),
		HelpdeskRef:    msg.String(VidHelpdeskRef),
		SourceObjectID: msg.Uint64(VidSourceObject),
		AckByUser:      msg.Uint32(VidAckByUser),
		RepeatCount:    msg.Uint32(VidRepeatCount),
		CreationTime:   unixTime(msg.Uint32(VidCreationTime)),
		LastChangeTime: unixTime(msg.Uint32(VidLastChangeTime)),
	}
}

// unixTime converts wire seconds to time.Time. Zero stays the zero time.
func unixTime(sec uint32) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

// JSON renders the alarm as a JSON document
func (a *Alarm) JSON() string {
	body := Body{}.
		Set("id", a.ID).
		Set("key", a.Key).
		Set("message", a.Message).
		Set("severity", a.Severity).
		Set("state", a.State).
		Set("sourceObjectId", a.SourceObjectID).
		Set("repeatCount", a.RepeatCount)
	if a.AckByUser != 0 {
		body = body.Set("ackByUser", a.AckByUser)
	}
	if a.HelpdeskState != HelpdeskStateIgnored {
		body = body.
			Set("helpdesk.state", a.HelpdeskState).
			Set("helpdesk.ref", a.HelpdeskRef)
	}
	if !a.CreationTime.IsZero() {
		body = body.Set("creationTime", a.CreationTime.UTC().Format(time.RFC3339))
	}
	if !a.LastChangeTime.IsZero() {
		body = body.Set("lastChangeTime", a.LastChangeTime.UTC().Format(time.RFC3339))
	}
	return body.Res()
}

// GetValue queries the JSON rendering of the alarm with a gjson path
func (a *Alarm) GetValue(path string) gjson.Result {
	return gjson.Get(a.JSON(), path)
}

// GetAlarms returns the alarms keyed by id. Terminated alarms are included
// when includeTerminated is set.
//
// The server streams one message per alarm and ends the list with an alarm
// id of zero. The timeout applies to each message of the stream.
func (s *Session) GetAlarms(ctx context.Context, includeTerminated bool, mods ...func(*Req)) (alarms map[uint32]*Alarm, err error) {
	span, ctx := s.startSpan(ctx, "get alarms")
	defer func() { finishSpan(span, err) }()

	msg := s.NewMessage(CmdGetAllAlarms)
	msg.SetBool(VidIsAck, includeTerminated)
	if err = s.SendMessage(ctx, msg); err != nil {
		return nil, err
	}
	logRequestSent(span, msg)

	alarms = make(map[uint32]*Alarm)
	for {
		reply, err := s.WaitForMessage(ctx, CmdAlarmData, msg.ID, mods...)
		if err != nil {
			s.logger.Warn(ctx, "Alarm list incomplete",
				"received", len(alarms),
				"error", err.Error())
			return nil, err
		}
		alarm := decodeAlarm(reply)
		if alarm.ID == 0 {
			break
		}
		alarms[alarm.ID] = alarm
	}

	s.logger.Debug(ctx, "Alarms received",
		"count", len(alarms))
	return alarms, nil
}

// AcknowledgeAlarm acknowledges an alarm
func (s *Session) AcknowledgeAlarm(ctx context.Context, id uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdAckAlarm)
	msg.SetInt32(VidAlarmID, id)
	_, err := s.execute(ctx, "acknowledge alarm", msg, mods...)
	return err
}

// TerminateAlarm terminates an alarm
func (s *Session) TerminateAlarm(ctx context.Context, id uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdTerminateAlarm)
	msg.SetInt32(VidAlarmID, id)
	_, err := s.execute(ctx, "terminate alarm", msg, mods...)
	return err
}

// DeleteAlarm deletes an alarm
func (s *Session) DeleteAlarm(ctx context.Context, id uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdDeleteAlarm)
	msg.SetInt32(VidAlarmID, id)
	_, err := s.execute(ctx, "delete alarm", msg, mods...)
	return err
}

// OpenAlarm opens a helpdesk issue for an alarm with the given reference
func (s *Session) OpenAlarm(ctx context.Context, id uint32, reference string, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdSetAlarmHelpdeskState)
	msg.SetInt32(VidAlarmID, id)
	msg.SetInt16(VidHelpdeskState, HelpdeskStateOpen)
	msg.SetString(VidHelpdeskRef, reference)
	_, err := s.execute(ctx, "open alarm", msg, mods...)
	return err
}

// CloseAlarm closes the helpdesk issue of an alarm
func (s *Session) CloseAlarm(ctx context.Context, id uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdSetAlarmHelpdeskState)
	msg.SetInt32(VidAlarmID, id)
	msg.SetInt16(VidHelpdeskState, HelpdeskStateClosed)
	_, err := s.execute(ctx, "close alarm", msg, mods...)
	return err
}
