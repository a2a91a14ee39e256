// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import "fmt"

// Code is a message operation code
type Code uint16

// Message codes used by the client core
const (
	CmdLogin                 Code = 0x0001
	CmdLoginResponse         Code = 0x0002
	CmdKeepalive             Code = 0x0003
	CmdGetObjects            Code = 0x0005
	CmdObject                Code = 0x0006
	CmdDeleteObject          Code = 0x0007
	CmdModifyObject          Code = 0x0008
	CmdObjectListEnd         Code = 0x0009
	CmdObjectUpdate          Code = 0x000A
	CmdGetConfigVarList      Code = 0x0014
	CmdSetConfigVariable     Code = 0x0015
	CmdDeleteConfigVariable  Code = 0x0016
	CmdRequestCompleted      Code = 0x001C
	CmdLoadUserDB            Code = 0x001D
	CmdUserData              Code = 0x001E
	CmdGroupData             Code = 0x001F
	CmdUserDBEOF             Code = 0x0020
	CmdUpdateUser            Code = 0x0021
	CmdDeleteUser            Code = 0x0022
	CmdCreateUser            Code = 0x0023
	CmdLockUserDB            Code = 0x0024
	CmdUnlockUserDB          Code = 0x0025
	CmdUserDBUpdate          Code = 0x0026
	CmdSetPassword           Code = 0x0027
	CmdGetLastValues         Code = 0x0039
	CmdGetDCIData            Code = 0x003D
	CmdDCIData               Code = 0x003E
	CmdGetAllAlarms          Code = 0x0040
	CmdAlarmData             Code = 0x0041
	CmdAckAlarm              Code = 0x0042
	CmdAlarmUpdate           Code = 0x0043
	CmdCreateObject          Code = 0x0046
	CmdTerminateAlarm        Code = 0x0047
	CmdDeleteAlarm           Code = 0x0048
	CmdSetAlarmHelpdeskState Code = 0x0049
	CmdChangeSubscription    Code = 0x0050
	CmdGetServerInfo         Code = 0x0052
	CmdExecuteAction         Code = 0x0057
	CmdFileData              Code = 0x0061
	CmdAbortFileTransfer     Code = 0x0062
	CmdQueryL2Topology       Code = 0x00A4
	CmdGetJobList            Code = 0x00F0
	CmdJobChangeNotification Code = 0x00F1
	CmdCancelJob             Code = 0x00F2
	CmdDeployAgentPolicy     Code = 0x0101
)

// CustomMessageBase is the lowest code treated as a user-defined event
const CustomMessageBase Code = 0x1000

var codeNames = map[Code]string{
	CmdLogin:                 "CMD_LOGIN",
	CmdLoginResponse:         "CMD_LOGIN_RESP",
	CmdKeepalive:             "CMD_KEEPALIVE",
	CmdGetObjects:            "CMD_GET_OBJECTS",
	CmdObject:                "CMD_OBJECT",
	CmdDeleteObject:          "CMD_DELETE_OBJECT",
	CmdModifyObject:          "CMD_MODIFY_OBJECT",
	CmdObjectListEnd:         "CMD_OBJECT_LIST_END",
	CmdObjectUpdate:          "CMD_OBJECT_UPDATE",
	CmdGetConfigVarList:      "CMD_GET_CONFIG_VARLIST",
	CmdSetConfigVariable:     "CMD_SET_CONFIG_VARIABLE",
	CmdDeleteConfigVariable:  "CMD_DELETE_CONFIG_VARIABLE",
	CmdRequestCompleted:      "CMD_REQUEST_COMPLETED",
	CmdLoadUserDB:            "CMD_LOAD_USER_DB",
	CmdUserData:              "CMD_USER_DATA",
	CmdGroupData:             "CMD_GROUP_DATA",
	CmdUserDBEOF:             "CMD_USER_DB_EOF",
	CmdUpdateUser:            "CMD_UPDATE_USER",
	CmdDeleteUser:            "CMD_DELETE_USER",
	CmdCreateUser:            "CMD_CREATE_USER",
	CmdLockUserDB:            "CMD_LOCK_USER_DB",
	CmdUnlockUserDB:          "CMD_UNLOCK_USER_DB",
	CmdUserDBUpdate:          "CMD_USER_DB_UPDATE",
	CmdSetPassword:           "CMD_SET_PASSWORD",
	CmdGetLastValues:         "CMD_GET_LAST_VALUES",
	CmdGetDCIData:            "CMD_GET_DCI_DATA",
	CmdDCIData:               "CMD_DCI_DATA",
	CmdGetAllAlarms:          "CMD_GET_ALL_ALARMS",
	CmdAlarmData:             "CMD_ALARM_DATA",
	CmdAckAlarm:              "CMD_ACK_ALARM",
	CmdAlarmUpdate:           "CMD_ALARM_UPDATE",
	CmdCreateObject:          "CMD_CREATE_OBJECT",
	CmdTerminateAlarm:        "CMD_TERMINATE_ALARM",
	CmdDeleteAlarm:           "CMD_DELETE_ALARM",
	CmdSetAlarmHelpdeskState: "CMD_SET_ALARM_HD_STATE",
	CmdChangeSubscription:    "CMD_CHANGE_SUBSCRIPTION",
	CmdGetServerInfo:         "CMD_GET_SERVER_INFO",
	CmdExecuteAction:         "CMD_EXECUTE_ACTION",
	CmdFileData:              "CMD_FILE_DATA",
	CmdAbortFileTransfer:     "CMD_ABORT_FILE_TRANSFER",
	CmdQueryL2Topology:       "CMD_QUERY_L2_TOPOLOGY",
	CmdGetJobList:            "CMD_GET_JOB_LIST",
	CmdJobChangeNotification: "CMD_JOB_CHANGE_NOTIFICATION",
	CmdCancelJob:             "CMD_CANCEL_JOB",
	CmdDeployAgentPolicy:     "CMD_DEPLOY_AGENT_POLICY",
}

// String returns the symbolic name of a message code
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if c >= CustomMessageBase {
		return fmt.Sprintf("CMD_CUSTOM(0x%04X)", uint16(c))
	}
	return fmt.Sprintf("CMD_UNKNOWN(0x%04X)", uint16(c))
}

// FieldID identifies a typed field inside a message
type FieldID uint32

// Field identifiers
const (
	VidLoginName          FieldID = 1
	VidPassword           FieldID = 2
	VidObjectID           FieldID = 3
	VidObjectName         FieldID = 4
	VidObjectClass        FieldID = 5
	VidParentID           FieldID = 6
	VidIsDeleted          FieldID = 7
	VidIPAddress          FieldID = 8
	VidIPNetmask          FieldID = 9
	VidObjectStatus       FieldID = 10
	VidIfIndex            FieldID = 11
	VidIfType             FieldID = 12
	VidMACAddress         FieldID = 13
	VidFlags              FieldID = 14
	VidRCC                FieldID = 15
	VidOperation          FieldID = 16
	VidObjectFlags        FieldID = 17
	VidAgentPort          FieldID = 18
	VidPlatformName       FieldID = 19
	VidSNMPOID            FieldID = 20
	VidNumParents         FieldID = 21
	VidNumChildren        FieldID = 22
	VidComments           FieldID = 23
	VidServerVersion      FieldID = 24
	VidProtocolVersion    FieldID = 25
	VidServerID           FieldID = 26
	VidTimezone           FieldID = 27
	VidChallenge          FieldID = 28
	VidAuthType           FieldID = 29
	VidLibVersion         FieldID = 30
	VidClientInfo         FieldID = 31
	VidOSInfo             FieldID = 32
	VidUserID             FieldID = 33
	VidUserSysRights      FieldID = 34
	VidSyncComments       FieldID = 35
	VidUserName           FieldID = 36
	VidIsGroup            FieldID = 37
	VidUserDescription    FieldID = 38
	VidUserFullName       FieldID = 39
	VidUserFlags          FieldID = 40
	VidUpdateType         FieldID = 41
	VidNumMembers         FieldID = 42
	VidFields             FieldID = 43
	VidAlarmID            FieldID = 44
	VidIsAck              FieldID = 45
	VidNotificationCode   FieldID = 46
	VidHelpdeskState      FieldID = 47
	VidHelpdeskRef        FieldID = 48
	VidAlarmSeverity      FieldID = 49
	VidAlarmMessage       FieldID = 50
	VidAlarmKey           FieldID = 51
	VidAlarmState         FieldID = 52
	VidCreationTime       FieldID = 53
	VidLastChangeTime     FieldID = 54
	VidRepeatCount        FieldID = 55
	VidAckByUser          FieldID = 56
	VidSourceObject       FieldID = 57
	VidNumVariables       FieldID = 58
	VidName               FieldID = 59
	VidValue              FieldID = 60
	VidNumItems           FieldID = 61
	VidDCIID              FieldID = 62
	VidMaxRows            FieldID = 63
	VidTimeFrom           FieldID = 64
	VidTimeTo             FieldID = 65
	VidCreationFlags      FieldID = 66
	VidProxyNode          FieldID = 67
	VidSNMPProxy          FieldID = 68
	VidACLSize            FieldID = 69
	VidInheritRights      FieldID = 70
	VidNumCustomAttrs     FieldID = 71
	VidDescription        FieldID = 72
	VidNumObjects         FieldID = 73
	VidObjectList         FieldID = 74
	VidNumLinks           FieldID = 75
	VidActionName         FieldID = 76
	VidJobCount           FieldID = 77
	VidJobID              FieldID = 78
	VidPolicyID           FieldID = 79
	VidVersion            FieldID = 80
	VidAutoBind           FieldID = 81
	VidAutoBindFilter     FieldID = 82
	VidJobType            FieldID = 83
	VidJobStatus          FieldID = 84
	VidJobProgress        FieldID = 85
	VidJobFailureMessage  FieldID = 86
	VidJobNodeID          FieldID = 87
	VidJobDescription     FieldID = 88
	VidGUID               FieldID = 89
	VidLastLogin          FieldID = 90
	VidRequiresRestart    FieldID = 91
	VidDCISource          FieldID = 92
	VidDCIDataType        FieldID = 93
	VidDCIStatus          FieldID = 94
	VidTimestamp          FieldID = 95
	VidAutoApply          FieldID = 96
	VidApplyFilter        FieldID = 97
	VidConfigFileName     FieldID = 98
	VidConfigFileData     FieldID = 99
)

// Field id bases for repeated blocks
const (
	VidGroupMemberBase      FieldID = 0x10000000
	VidACLUserBase          FieldID = 0x10000000
	VidJobListBase          FieldID = 0x10000000
	VidACLRightsBase        FieldID = 0x18000000
	VidVarListBase          FieldID = 0x20000000
	VidDCIValuesBase        FieldID = 0x20000000
	VidParentIDBase         FieldID = 0x30000000
	VidChildIDBase          FieldID = 0x40000000
	VidObjectLinksBase      FieldID = 0x60000000
	VidCustomAttributesBase FieldID = 0x70000000
)

// Message flags
const (
	FlagBinary    uint16 = 0x0001
	FlagEndOfFile uint16 = 0x0002
)

// Notification channels accepted by Subscribe and Unsubscribe.
// Channels can be combined with bitwise OR.
const (
	ChannelEvents     uint32 = 0x0001
	ChannelSyslog     uint32 = 0x0002
	ChannelAlarms     uint32 = 0x0004
	ChannelObjects    uint32 = 0x0008
	ChannelSNMPTraps  uint32 = 0x0010
	ChannelAuditLog   uint32 = 0x0020
	ChannelSituations uint32 = 0x0040
)

// Authentication types
const (
	AuthTypePassword    uint16 = 0
	AuthTypeCertificate uint16 = 1
)
