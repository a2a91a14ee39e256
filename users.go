// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"crypto/sha1"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// User database modification flags select the attributes
// ModifyUserDBObject sends
const (
	ModifyUserLoginName    uint32 = 0x01
	ModifyUserDescription  uint32 = 0x02
	ModifyUserFullName     uint32 = 0x04
	ModifyUserFlags        uint32 = 0x08
	ModifyUserAccessRights uint32 = 0x10
	ModifyUserMembers      uint32 = 0x20
	ModifyUserAll          uint32 = 0x7FFFFFFF
)

// UserDBObject is a user or a user group
type UserDBObject struct {
	ID           uint32
	Name         string
	IsGroup      bool
	Flags        uint32
	SystemRights uint32
	Description  string
	FullName     string
	GUID         uuid.UUID
	LastLogin    time.Time
	Deleted      bool

	// Members lists the user ids of a group
	Members []uint32
}

// decodeUserDBObject builds a user or group record
func decodeUserDBObject(msg *Message, isGroup bool) *UserDBObject {
	rec := &UserDBObject{
		ID:           msg.Uint32(VidUserID),
		Name:         msg.String(VidUserName),
		IsGroup:      isGroup,
		Flags:        msg.Uint32(VidUserFlags),
		SystemRights: msg.Uint32(VidUserSysRights),
		Description:  msg.String(VidUserDescription),
		FullName:     msg.String(VidUserFullName),
		Deleted:      msg.Bool(VidIsDeleted),
	}
	if guid, err := uuid.FromBytes(msg.Binary(VidGUID)); err == nil {
		rec.GUID = guid
	}
	if ts := msg.Uint32(VidLastLogin); ts != 0 {
		rec.LastLogin = time.Unix(int64(ts), 0)
	}
	if isGroup {
		n := msg.count(VidNumMembers)
		rec.Members = make([]uint32, 0, n)
		for i := uint32(0); i < n; i++ {
			rec.Members = append(rec.Members, msg.Uint32(VidGroupMemberBase+FieldID(i)))
		}
	}
	return rec
}

// fillMessage writes the record into an update-user request
func (u *UserDBObject) fillMessage(msg *Message) {
	msg.SetInt32(VidUserID, u.ID)
	msg.SetString(VidUserName, u.Name)
	msg.SetInt16(VidUserFlags, uint16(u.Flags))
	msg.SetInt32(VidUserSysRights, u.SystemRights)
	msg.SetString(VidUserDescription, u.Description)
	if u.GUID != uuid.Nil {
		msg.SetBinary(VidGUID, u.GUID[:])
	}
	if u.IsGroup {
		msg.SetInt32(VidNumMembers, uint32(len(u.Members)))
		for i, member := range u.Members {
			msg.SetInt32(VidGroupMemberBase+FieldID(i), member)
		}
	} else {
		msg.SetString(VidUserFullName, u.FullName)
	}
}

// JSON renders the user or group as a JSON document
func (u *UserDBObject) JSON() string {
	body := Body{}.
		Set("id", u.ID).
		Set("name", u.Name).
		Set("isGroup", u.IsGroup).
		Set("flags", u.Flags).
		Set("systemRights", u.SystemRights).
		Set("description", u.Description)
	if u.GUID != uuid.Nil {
		body = body.Set("guid", u.GUID.String())
	}
	if u.IsGroup {
		body = body.Set("members", u.Members)
	} else {
		body = body.Set("fullName", u.FullName)
		if !u.LastLogin.IsZero() {
			body = body.Set("lastLogin", u.LastLogin.UTC().Format(time.RFC3339))
		}
	}
	return body.Res()
}

// GetValue queries the JSON rendering of the record with a gjson path
func (u *UserDBObject) GetValue(path string) gjson.Result {
	return gjson.Get(u.JSON(), path)
}

// SyncUserDatabase loads all users and groups into the cache. Only one
// user database sync runs at a time.
func (s *Session) SyncUserDatabase(ctx context.Context, mods ...func(*Req)) error {
	err := s.synchronize(ctx, "sync user database", s.userSync,
		s.users.beginSync, s.users.abortSync, s.NewMessage(CmdLoadUserDB), mods)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "User database synchronized",
		"entries", s.users.len())
	return nil
}

// FindUserDBObjectByID returns the cached user or group with the given id
func (s *Session) FindUserDBObjectByID(id uint32) (*UserDBObject, bool) {
	return s.users.get(id)
}

// UserDatabaseObjects returns a snapshot of all cached users and groups
// ordered by id
func (s *Session) UserDatabaseObjects() []*UserDBObject {
	out := s.users.snapshot()
	slices.SortFunc(out, func(a, b *UserDBObject) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (s *Session) createUserDBObject(ctx context.Context, name string, isGroup bool, mods []func(*Req)) (uint32, error) {
	msg := s.NewMessage(CmdCreateUser)
	msg.SetString(VidUserName, name)
	msg.SetBool(VidIsGroup, isGroup)

	reply, err := s.execute(ctx, "create user", msg, mods...)
	if err != nil {
		return 0, err
	}
	return reply.Uint32(VidUserID), nil
}

// CreateUser creates a user and returns its id
func (s *Session) CreateUser(ctx context.Context, name string, mods ...func(*Req)) (uint32, error) {
	return s.createUserDBObject(ctx, name, false, mods)
}

// CreateUserGroup creates a user group and returns its id. Group ids have
// GroupIDFlag set.
func (s *Session) CreateUserGroup(ctx context.Context, name string, mods ...func(*Req)) (uint32, error) {
	return s.createUserDBObject(ctx, name, true, mods)
}

// DeleteUserDBObject deletes a user or group
func (s *Session) DeleteUserDBObject(ctx context.Context, id uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdDeleteUser)
	msg.SetInt32(VidUserID, id)
	_, err := s.execute(ctx, "delete user", msg, mods...)
	return err
}

// SetUserPassword sets the password of a user. Only the SHA-1 digest of
// the password is sent.
func (s *Session) SetUserPassword(ctx context.Context, id uint32, password string, mods ...func(*Req)) error {
	digest := sha1.Sum([]byte(password))

	msg := s.NewMessage(CmdSetPassword)
	msg.SetInt32(VidUserID, id)
	msg.SetBinary(VidPassword, digest[:])
	_, err := s.execute(ctx, "set password", msg, mods...)
	return err
}

// ModifyUserDBObject updates the attributes of a user or group selected by
// fields. Pass ModifyUserAll to send everything.
func (s *Session) ModifyUserDBObject(ctx context.Context, obj *UserDBObject, fields uint32, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdUpdateUser)
	msg.SetInt32(VidFields, fields)
	obj.fillMessage(msg)
	_, err := s.execute(ctx, "modify user", msg, mods...)
	return err
}

// LockUserDatabase takes the server-side user database write lock
func (s *Session) LockUserDatabase(ctx context.Context, mods ...func(*Req)) error {
	_, err := s.execute(ctx, "lock user database", s.NewMessage(CmdLockUserDB), mods...)
	return err
}

// UnlockUserDatabase releases the server-side user database write lock
func (s *Session) UnlockUserDatabase(ctx context.Context, mods ...func(*Req)) error {
	_, err := s.execute(ctx, "unlock user database", s.NewMessage(CmdUnlockUserDB), mods...)
	return err
}
