// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"

	"github.com/tidwall/gjson"
)

// ObjectClass is the class tag of a server object
type ObjectClass uint16

// Object classes
const (
	ClassGeneric        ObjectClass = 0
	ClassSubnet         ObjectClass = 1
	ClassNode           ObjectClass = 2
	ClassInterface      ObjectClass = 3
	ClassNetwork        ObjectClass = 4
	ClassContainer      ObjectClass = 5
	ClassZone           ObjectClass = 6
	ClassServiceRoot    ObjectClass = 7
	ClassTemplate       ObjectClass = 8
	ClassTemplateGroup  ObjectClass = 9
	ClassTemplateRoot   ObjectClass = 10
	ClassNetworkService ObjectClass = 11
	ClassVPNConnector   ObjectClass = 12
	ClassCondition      ObjectClass = 13
	ClassCluster        ObjectClass = 14
	ClassPolicyGroup    ObjectClass = 15
	ClassPolicyRoot     ObjectClass = 16
	ClassAgentPolicy    ObjectClass = 17
)

var objectClassNames = map[ObjectClass]string{
	ClassGeneric:        "generic",
	ClassSubnet:         "subnet",
	ClassNode:           "node",
	ClassInterface:      "interface",
	ClassNetwork:        "network",
	ClassContainer:      "container",
	ClassZone:           "zone",
	ClassServiceRoot:    "service-root",
	ClassTemplate:       "template",
	ClassTemplateGroup:  "template-group",
	ClassTemplateRoot:   "template-root",
	ClassNetworkService: "network-service",
	ClassVPNConnector:   "vpn-connector",
	ClassCondition:      "condition",
	ClassCluster:        "cluster",
	ClassPolicyGroup:    "policy-group",
	ClassPolicyRoot:     "policy-root",
	ClassAgentPolicy:    "agent-policy",
}

func (c ObjectClass) String() string {
	if name, ok := objectClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class-%d", uint16(c))
}

// Well-known ids of the top level objects
const (
	ObjectEntireNetwork uint64 = 1
	ObjectServiceRoot   uint64 = 2
	ObjectTemplateRoot  uint64 = 3
	ObjectPolicyRoot    uint64 = 5
)

// AccessListElement grants access rights on an object to a user or group
type AccessListElement struct {
	UserID       uint32 `json:"userId"`
	AccessRights uint32 `json:"accessRights"`
}

// ObjectDetails holds the class-specific part of an object
type ObjectDetails interface {
	Class() ObjectClass
}

// NodeDetails are the attributes of a managed node
type NodeDetails struct {
	Flags        uint32 `json:"flags"`
	PlatformName string `json:"platformName"`
	SNMPOID      string `json:"snmpOid"`
	AgentPort    uint16 `json:"agentPort"`
	ProxyNode    uint64 `json:"proxyNode"`
	SNMPProxy    uint64 `json:"snmpProxy"`
}

func (NodeDetails) Class() ObjectClass { return ClassNode }

// InterfaceDetails are the attributes of a node interface
type InterfaceDetails struct {
	IfIndex    uint32           `json:"ifIndex"`
	IfType     uint32           `json:"ifType"`
	MACAddress net.HardwareAddr `json:"-"`
	Netmask    netip.Addr       `json:"netmask"`
}

func (InterfaceDetails) Class() ObjectClass { return ClassInterface }

// SubnetDetails are the attributes of an IP subnet
type SubnetDetails struct {
	Prefix netip.Prefix `json:"prefix"`
}

func (SubnetDetails) Class() ObjectClass { return ClassSubnet }

// ContainerDetails are the attributes of a container
type ContainerDetails struct {
	AutoBind       bool   `json:"autoBind"`
	AutoBindFilter string `json:"autoBindFilter"`
}

func (ContainerDetails) Class() ObjectClass { return ClassContainer }

// TemplateDetails are the attributes of a data collection template
type TemplateDetails struct {
	Version     uint32 `json:"version"`
	AutoApply   bool   `json:"autoApply"`
	ApplyFilter string `json:"applyFilter"`
}

func (TemplateDetails) Class() ObjectClass { return ClassTemplate }

// AgentPolicyDetails are the attributes of an agent configuration policy
type AgentPolicyDetails struct {
	Version        uint32 `json:"version"`
	Description    string `json:"description"`
	ConfigFileName string `json:"configFileName"`
	ConfigFileData string `json:"configFileData"`
}

func (AgentPolicyDetails) Class() ObjectClass { return ClassAgentPolicy }

// ObjectDecoder builds the class-specific details of an object message
type ObjectDecoder func(msg *Message) ObjectDetails

var (
	objectDecodersMu sync.RWMutex
	objectDecoders   = map[ObjectClass]ObjectDecoder{
		ClassNode:        decodeNodeDetails,
		ClassInterface:   decodeInterfaceDetails,
		ClassSubnet:      decodeSubnetDetails,
		ClassContainer:   decodeContainerDetails,
		ClassTemplate:    decodeTemplateDetails,
		ClassAgentPolicy: decodeAgentPolicyDetails,
	}
)

// RegisterObjectDecoder installs the details decoder for an object class,
// replacing any previous one. Objects of classes without a decoder carry
// only the common attributes.
func RegisterObjectDecoder(class ObjectClass, decoder ObjectDecoder) {
	objectDecodersMu.Lock()
	defer objectDecodersMu.Unlock()
	objectDecoders[class] = decoder
}

func objectDecoderFor(class ObjectClass) (ObjectDecoder, bool) {
	objectDecodersMu.RLock()
	defer objectDecodersMu.RUnlock()
	d, ok := objectDecoders[class]
	return d, ok
}

// Object is a server object as held in the object cache. Records are
// replaced, never modified, so they can be shared between goroutines.
type Object struct {
	ID               uint64
	Class            ObjectClass
	Name             string
	Status           uint16
	Deleted          bool
	Comments         string
	IPAddress        netip.Addr
	Parents          []uint64
	Children         []uint64
	CustomAttributes map[string]string
	ACL              []AccessListElement
	InheritRights    bool
	Details          ObjectDetails
}

// decodeObject builds an object record from an object or object-update message
func decodeObject(msg *Message) *Object {
	obj := &Object{
		ID:            msg.Uint64(VidObjectID),
		Class:         ObjectClass(msg.Int16(VidObjectClass)),
		Name:          msg.String(VidObjectName),
		Status:        msg.Int16(VidObjectStatus),
		Deleted:       msg.Bool(VidIsDeleted),
		Comments:      msg.String(VidComments),
		IPAddress:     uint32ToAddr(msg.Uint32(VidIPAddress)),
		InheritRights: msg.Bool(VidInheritRights),
	}

	obj.Parents = readIDList(msg, VidNumParents, VidParentIDBase)
	obj.Children = readIDList(msg, VidNumChildren, VidChildIDBase)

	if n := msg.count(VidNumCustomAttrs); n > 0 {
		obj.CustomAttributes = make(map[string]string, n)
		id := VidCustomAttributesBase
		for i := uint32(0); i < n; i++ {
			obj.CustomAttributes[msg.String(id)] = msg.String(id + 1)
			id += 2
		}
	}

	if n := msg.count(VidACLSize); n > 0 {
		obj.ACL = make([]AccessListElement, 0, n)
		for i := uint32(0); i < n; i++ {
			obj.ACL = append(obj.ACL, AccessListElement{
				UserID:       msg.Uint32(VidACLUserBase + FieldID(i)),
				AccessRights: msg.Uint32(VidACLRightsBase + FieldID(i)),
			})
		}
	}

	if decoder, ok := objectDecoderFor(obj.Class); ok {
		obj.Details = decoder(msg)
	}
	return obj
}

func readIDList(msg *Message, countID, baseID FieldID) []uint64 {
	n := msg.count(countID)
	if n == 0 {
		return nil
	}
	ids := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		ids = append(ids, msg.Uint64(baseID+FieldID(i)))
	}
	return ids
}

func decodeNodeDetails(msg *Message) ObjectDetails {
	return NodeDetails{
		Flags:        msg.Uint32(VidFlags),
		PlatformName: msg.String(VidPlatformName),
		SNMPOID:      msg.String(VidSNMPOID),
		AgentPort:    msg.Int16(VidAgentPort),
		ProxyNode:    msg.Uint64(VidProxyNode),
		SNMPProxy:    msg.Uint64(VidSNMPProxy),
	}
}

func decodeInterfaceDetails(msg *Message) ObjectDetails {
	return InterfaceDetails{
		IfIndex:    msg.Uint32(VidIfIndex),
		IfType:     msg.Uint32(VidIfType),
		MACAddress: net.HardwareAddr(msg.Binary(VidMACAddress)),
		Netmask:    uint32ToAddr(msg.Uint32(VidIPNetmask)),
	}
}

func decodeSubnetDetails(msg *Message) ObjectDetails {
	addr := uint32ToAddr(msg.Uint32(VidIPAddress))
	mask := msg.Uint32(VidIPNetmask)
	bits, _ := net.IPv4Mask(byte(mask>>24), byte(mask>>16), byte(mask>>8), byte(mask)).Size()
	if !addr.IsValid() {
		return SubnetDetails{}
	}
	return SubnetDetails{Prefix: netip.PrefixFrom(addr, bits)}
}

func decodeContainerDetails(msg *Message) ObjectDetails {
	return ContainerDetails{
		AutoBind:       msg.Bool(VidAutoBind),
		AutoBindFilter: msg.String(VidAutoBindFilter),
	}
}

func decodeTemplateDetails(msg *Message) ObjectDetails {
	return TemplateDetails{
		Version:     msg.Uint32(VidVersion),
		AutoApply:   msg.Bool(VidAutoApply),
		ApplyFilter: msg.String(VidApplyFilter),
	}
}

func decodeAgentPolicyDetails(msg *Message) ObjectDetails {
	return AgentPolicyDetails{
		Version:        msg.Uint32(VidVersion),
		Description:    msg.String(VidDescription),
		ConfigFileName: msg.String(VidConfigFileName),
		ConfigFileData: msg.String(VidConfigFileData),
	}
}

// uint32ToAddr converts an IPv4 address in host order to netip.Addr.
// Zero yields the invalid address.
func uint32ToAddr(v uint32) netip.Addr {
	if v == 0 {
		return netip.Addr{}
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// addrToUint32 converts an IPv4 address to its wire form. Anything else is zero.
func addrToUint32(addr netip.Addr) uint32 {
	if !addr.Is4() {
		return 0
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

// JSON renders the object as a JSON document
func (o *Object) JSON() string {
	body := Body{}.
		Set("id", o.ID).
		Set("class", o.Class.String()).
		Set("name", o.Name).
		Set("status", o.Status).
		Set("deleted", o.Deleted)
	if o.Comments != "" {
		body = body.Set("comments", o.Comments)
	}
	if o.IPAddress.IsValid() {
		body = body.Set("ipAddress", o.IPAddress.String())
	}
	if len(o.Parents) > 0 {
		body = body.Set("parents", o.Parents)
	}
	if len(o.Children) > 0 {
		body = body.Set("children", o.Children)
	}
	if len(o.CustomAttributes) > 0 {
		body = body.Set("customAttributes", o.CustomAttributes)
	}
	if len(o.ACL) > 0 {
		body = body.
			Set("acl", o.ACL).
			Set("inheritRights", o.InheritRights)
	}
	if o.Details != nil {
		body = body.Set("details", o.Details)
		if d, ok := o.Details.(InterfaceDetails); ok && len(d.MACAddress) > 0 {
			body = body.Set("details.macAddress", d.MACAddress.String())
		}
	}
	return body.Res()
}

// GetValue queries the JSON rendering of the object with a gjson path
func (o *Object) GetValue(path string) gjson.Result {
	return gjson.Get(o.JSON(), path)
}

// SyncObjects loads the complete object list into the cache and subscribes
// to object change notifications so that the cache stays current.
//
// Only one object sync runs at a time; concurrent calls wait their turn.
// The cache is replaced only when the whole list has arrived. The stream
// may take up to SyncTimeoutFactor times the reply timeout.
func (s *Session) SyncObjects(ctx context.Context, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdGetObjects)
	msg.SetInt16(VidSyncComments, 1)

	err := s.synchronize(ctx, "sync objects", s.objectSync,
		s.objects.beginSync, s.objects.abortSync, msg, mods)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Objects synchronized",
		"objects", s.objects.len())
	return s.Subscribe(ctx, ChannelObjects, mods...)
}

// FindObjectByID returns the cached object with the given id
func (s *Session) FindObjectByID(id uint64) (*Object, bool) {
	return s.objects.get(id)
}

// FindMultipleObjects returns the cached objects for the given ids in the
// same order. Unknown ids are skipped.
func (s *Session) FindMultipleObjects(ids []uint64) []*Object {
	out := make([]*Object, 0, len(ids))
	for _, id := range ids {
		if obj, ok := s.objects.get(id); ok {
			out = append(out, obj)
		}
	}
	return out
}

// TopLevelObjects returns the cached root objects: entire network, service
// root, template root and policy root
func (s *Session) TopLevelObjects() []*Object {
	return s.FindMultipleObjects([]uint64{
		ObjectEntireNetwork,
		ObjectServiceRoot,
		ObjectTemplateRoot,
		ObjectPolicyRoot,
	})
}

// AllObjects returns a snapshot of the object cache ordered by id
func (s *Session) AllObjects() []*Object {
	out := s.objects.snapshot()
	slices.SortFunc(out, func(a, b *Object) int {
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

// ObjectCreationData describes an object to create
type ObjectCreationData struct {
	ParentID uint64
	Class    ObjectClass
	Name     string
	Comments string

	// Node only
	IPAddress     netip.Addr
	IPNetmask     netip.Addr
	CreationFlags uint32
	AgentProxyID  uint64
	SNMPProxyID   uint64
}

// CreateObject creates an object and returns the id assigned by the server
func (s *Session) CreateObject(ctx context.Context, data ObjectCreationData, mods ...func(*Req)) (uint64, error) {
	msg := s.NewMessage(CmdCreateObject)
	msg.SetInt32(VidParentID, uint32(data.ParentID))
	msg.SetInt16(VidObjectClass, uint16(data.Class))
	msg.SetString(VidObjectName, data.Name)
	if data.Comments != "" {
		msg.SetString(VidComments, data.Comments)
	}

	if data.Class == ClassNode {
		msg.SetInt32(VidIPAddress, addrToUint32(data.IPAddress))
		msg.SetInt32(VidIPNetmask, addrToUint32(data.IPNetmask))
		msg.SetInt32(VidCreationFlags, data.CreationFlags)
		msg.SetInt32(VidProxyNode, uint32(data.AgentProxyID))
		msg.SetInt32(VidSNMPProxy, uint32(data.SNMPProxyID))
	}

	reply, err := s.execute(ctx, "create object", msg, mods...)
	if err != nil {
		return 0, err
	}
	id := reply.Uint64(VidObjectID)
	s.logger.Info(ctx, "Object created",
		"id", id,
		"class", data.Class.String(),
		"name", data.Name)
	return id, nil
}

// DeleteObject deletes an object on the server
func (s *Session) DeleteObject(ctx context.Context, id uint64, mods ...func(*Req)) error {
	msg := s.NewMessage(CmdDeleteObject)
	msg.SetInt32(VidObjectID, uint32(id))
	_, err := s.execute(ctx, "delete object", msg, mods...)
	return err
}

// Object modification flags select the attributes ModifyObject sends
const (
	ModifyName             uint32 = 0x0001
	ModifyACL              uint32 = 0x0002
	ModifyCustomAttributes uint32 = 0x0004
	ModifyAutoApply        uint32 = 0x0008
	ModifyAutoBind         uint32 = 0x0010
	ModifyDescription      uint32 = 0x0020
	ModifyVersion          uint32 = 0x0040
	ModifyPolicyConfig     uint32 = 0x0080
	ModifyAgentPort        uint32 = 0x0100
)

// ObjectModification holds new attribute values for an object. Only the
// attributes selected by Flags are sent.
type ObjectModification struct {
	ObjectID uint64
	Flags    uint32

	Name             string
	ACL              []AccessListElement
	InheritRights    bool
	CustomAttributes map[string]string
	AutoApply        bool
	ApplyFilter      string
	AutoBind         bool
	AutoBindFilter   string
	Description      string
	Version          uint32
	ConfigFileName   string
	ConfigFileData   string
	AgentPort        uint16
}

// ModifyObject changes object attributes. A modification without flags is
// a no-op and sends nothing.
func (s *Session) ModifyObject(ctx context.Context, data ObjectModification, mods ...func(*Req)) error {
	if data.Flags == 0 {
		return nil
	}

	msg := s.NewMessage(CmdModifyObject)
	msg.SetInt32(VidObjectID, uint32(data.ObjectID))

	if data.Flags&ModifyName != 0 {
		msg.SetString(VidObjectName, data.Name)
	}
	if data.Flags&ModifyACL != 0 {
		msg.SetInt32(VidACLSize, uint32(len(data.ACL)))
		msg.SetBool(VidInheritRights, data.InheritRights)
		for i, e := range data.ACL {
			msg.SetInt32(VidACLUserBase+FieldID(i), e.UserID)
			msg.SetInt32(VidACLRightsBase+FieldID(i), e.AccessRights)
		}
	}
	if data.Flags&ModifyCustomAttributes != 0 {
		names := make([]string, 0, len(data.CustomAttributes))
		for name := range data.CustomAttributes {
			names = append(names, name)
		}
		slices.Sort(names)

		id := VidCustomAttributesBase
		for _, name := range names {
			msg.SetString(id, name)
			msg.SetString(id+1, data.CustomAttributes[name])
			id += 2
		}
		msg.SetInt32(VidNumCustomAttrs, uint32(len(names)))
	}
	if data.Flags&ModifyAutoApply != 0 {
		msg.SetBool(VidAutoApply, data.AutoApply)
		msg.SetString(VidApplyFilter, data.ApplyFilter)
	}
	if data.Flags&ModifyAutoBind != 0 {
		msg.SetBool(VidAutoBind, data.AutoBind)
		msg.SetString(VidAutoBindFilter, data.AutoBindFilter)
	}
	if data.Flags&ModifyDescription != 0 {
		msg.SetString(VidDescription, data.Description)
	}
	if data.Flags&ModifyVersion != 0 {
		msg.SetInt32(VidVersion, data.Version)
	}
	if data.Flags&ModifyPolicyConfig != 0 {
		msg.SetString(VidConfigFileName, data.ConfigFileName)
		msg.SetString(VidConfigFileData, data.ConfigFileData)
	}
	if data.Flags&ModifyAgentPort != 0 {
		msg.SetInt32(VidAgentPort, uint32(data.AgentPort))
	}

	_, err := s.execute(ctx, "modify object", msg, mods...)
	return err
}

// SetObjectName renames an object
func (s *Session) SetObjectName(ctx context.Context, id uint64, name string, mods ...func(*Req)) error {
	return s.ModifyObject(ctx, ObjectModification{
		ObjectID: id,
		Flags:    ModifyName,
		Name:     name,
	}, mods...)
}

// SetObjectCustomAttributes replaces the custom attributes of an object
func (s *Session) SetObjectCustomAttributes(ctx context.Context, id uint64, attrs map[string]string, mods ...func(*Req)) error {
	return s.ModifyObject(ctx, ObjectModification{
		ObjectID:         id,
		Flags:            ModifyCustomAttributes,
		CustomAttributes: attrs,
	}, mods...)
}

// SetObjectACL replaces the access list of an object
func (s *Session) SetObjectACL(ctx context.Context, id uint64, acl []AccessListElement, inheritRights bool, mods ...func(*Req)) error {
	return s.ModifyObject(ctx, ObjectModification{
		ObjectID:      id,
		Flags:         ModifyACL,
		ACL:           acl,
		InheritRights: inheritRights,
	}, mods...)
}
