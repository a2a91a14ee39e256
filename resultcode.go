// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// ResultCode is the status carried in a request-completed reply.
// Zero means success; every other value names a specific failure.
type ResultCode uint32

// Result codes
const (
	RCCSuccess               ResultCode = 0
	RCCComponentLocked       ResultCode = 1
	RCCAccessDenied          ResultCode = 2
	RCCInvalidRequest        ResultCode = 3
	RCCTimeout               ResultCode = 4
	RCCOutOfStateRequest     ResultCode = 5
	RCCDBFailure             ResultCode = 6
	RCCInvalidObjectID       ResultCode = 7
	RCCAlreadyExist          ResultCode = 8
	RCCCommFailure           ResultCode = 9
	RCCSystemFailure         ResultCode = 10
	RCCInvalidUserID         ResultCode = 11
	RCCInvalidArgument       ResultCode = 12
	RCCDuplicateDCI          ResultCode = 13
	RCCInvalidDCIID          ResultCode = 14
	RCCOutOfMemory           ResultCode = 15
	RCCIOError               ResultCode = 16
	RCCIncompatibleOperation ResultCode = 17
	RCCObjectCreationFailed  ResultCode = 18
	RCCObjectLoop            ResultCode = 19
	RCCInvalidObjectName     ResultCode = 20
	RCCInvalidAlarmID        ResultCode = 21
	RCCInvalidActionID       ResultCode = 22
	RCCOperationInProgress   ResultCode = 23
	RCCDCICopyErrors         ResultCode = 24
	RCCInvalidEventCode      ResultCode = 25
	RCCNoWOLInterfaces       ResultCode = 26
	RCCNoMACAddress          ResultCode = 27
	RCCNotImplemented        ResultCode = 28
	RCCInvalidTrapID         ResultCode = 29
	RCCDCINotSupported       ResultCode = 30
	RCCVersionMismatch       ResultCode = 31
	RCCNPIParseError         ResultCode = 32
	RCCDuplicatePackage      ResultCode = 33
	RCCPackageFileExist      ResultCode = 34
	RCCResourceBusy          ResultCode = 35
	RCCInvalidPackageID      ResultCode = 36
	RCCInvalidIPAddr         ResultCode = 37
	RCCActionInUse           ResultCode = 38
	RCCVariableNotFound      ResultCode = 39
	RCCBadProtocol           ResultCode = 40
	RCCAddressInUse          ResultCode = 41
	RCCNoCiphers             ResultCode = 42
	RCCInvalidPublicKey      ResultCode = 43
	RCCInvalidSessionKey     ResultCode = 44
	RCCNoEncryptionSupport   ResultCode = 45
	RCCInternalError         ResultCode = 46
	RCCExecFailed            ResultCode = 47
	RCCInvalidToolID         ResultCode = 48
	RCCSNMPError             ResultCode = 49
	RCCBadRegexp             ResultCode = 50
	RCCUnknownParameter      ResultCode = 51
	RCCFileIOError           ResultCode = 52
	RCCCorruptedMIBFile      ResultCode = 53
	RCCTransferInProgress    ResultCode = 54
	RCCInvalidJobID          ResultCode = 55
	RCCInvalidScriptID       ResultCode = 56
	RCCInvalidScriptName     ResultCode = 57
	RCCUnknownMapName        ResultCode = 58
	RCCInvalidMapID          ResultCode = 59
	RCCAccountDisabled       ResultCode = 60
	RCCNoGraceLogins         ResultCode = 61
	RCCConnectionBroken      ResultCode = 62
	RCCInvalidConfigID       ResultCode = 63
	RCCDBConnectionLost      ResultCode = 64
	RCCAlarmOpenInHelpdesk   ResultCode = 65
	RCCAlarmNotOutstanding   ResultCode = 66
	RCCNotPushDCI            ResultCode = 67
	RCCNXMPParseError        ResultCode = 68
	RCCNXMPValidationError   ResultCode = 69
	RCCInvalidGraphID        ResultCode = 70
	RCCLocalCryptoError      ResultCode = 71
	RCCUnsupportedAuthType   ResultCode = 72
	RCCBadCertificate        ResultCode = 73
	RCCInvalidCertID         ResultCode = 74
	RCCSNMPFailure           ResultCode = 75
	RCCNoL2TopologySupport   ResultCode = 76
	RCCInvalidSituationID    ResultCode = 77
	RCCInstanceNotFound      ResultCode = 78
	RCCInvalidEventID        ResultCode = 79
	RCCAgentError            ResultCode = 80
	RCCUnknownVariable       ResultCode = 81
	RCCResourceNotAvailable  ResultCode = 82
	RCCJobCancelFailed       ResultCode = 83
)

var resultCodeText = map[ResultCode]string{
	RCCSuccess:               "success",
	RCCComponentLocked:       "component locked",
	RCCAccessDenied:          "access denied",
	RCCInvalidRequest:        "invalid request",
	RCCTimeout:               "timeout",
	RCCOutOfStateRequest:     "out of state request",
	RCCDBFailure:             "db failure",
	RCCInvalidObjectID:       "invalid object id",
	RCCAlreadyExist:          "already exist",
	RCCCommFailure:           "comm failure",
	RCCSystemFailure:         "system failure",
	RCCInvalidUserID:         "invalid user id",
	RCCInvalidArgument:       "invalid argument",
	RCCDuplicateDCI:          "duplicate dci",
	RCCInvalidDCIID:          "invalid dci id",
	RCCOutOfMemory:           "out of memory",
	RCCIOError:               "io error",
	RCCIncompatibleOperation: "incompatible operation",
	RCCObjectCreationFailed:  "object creation failed",
	RCCObjectLoop:            "object loop",
	RCCInvalidObjectName:     "invalid object name",
	RCCInvalidAlarmID:        "invalid alarm id",
	RCCInvalidActionID:       "invalid action id",
	RCCOperationInProgress:   "operation in progress",
	RCCDCICopyErrors:         "dci copy errors",
	RCCInvalidEventCode:      "invalid event code",
	RCCNoWOLInterfaces:       "no wol interfaces",
	RCCNoMACAddress:          "no mac address",
	RCCNotImplemented:        "not implemented",
	RCCInvalidTrapID:         "invalid trap id",
	RCCDCINotSupported:       "dci not supported",
	RCCVersionMismatch:       "version mismatch",
	RCCNPIParseError:         "npi parse error",
	RCCDuplicatePackage:      "duplicate package",
	RCCPackageFileExist:      "package file exist",
	RCCResourceBusy:          "resource busy",
	RCCInvalidPackageID:      "invalid package id",
	RCCInvalidIPAddr:         "invalid ip addr",
	RCCActionInUse:           "action in use",
	RCCVariableNotFound:      "variable not found",
	RCCBadProtocol:           "bad protocol",
	RCCAddressInUse:          "address in use",
	RCCNoCiphers:             "no ciphers",
	RCCInvalidPublicKey:      "invalid public key",
	RCCInvalidSessionKey:     "invalid session key",
	RCCNoEncryptionSupport:   "no encryption support",
	RCCInternalError:         "internal error",
	RCCExecFailed:            "exec failed",
	RCCInvalidToolID:         "invalid tool id",
	RCCSNMPError:             "snmp error",
	RCCBadRegexp:             "bad regexp",
	RCCUnknownParameter:      "unknown parameter",
	RCCFileIOError:           "file io error",
	RCCCorruptedMIBFile:      "corrupted mib file",
	RCCTransferInProgress:    "transfer in progress",
	RCCInvalidJobID:          "invalid job id",
	RCCInvalidScriptID:       "invalid script id",
	RCCInvalidScriptName:     "invalid script name",
	RCCUnknownMapName:        "unknown map name",
	RCCInvalidMapID:          "invalid map id",
	RCCAccountDisabled:       "account disabled",
	RCCNoGraceLogins:         "no grace logins",
	RCCConnectionBroken:      "connection broken",
	RCCInvalidConfigID:       "invalid config id",
	RCCDBConnectionLost:      "db connection lost",
	RCCAlarmOpenInHelpdesk:   "alarm open in helpdesk",
	RCCAlarmNotOutstanding:   "alarm not outstanding",
	RCCNotPushDCI:            "not push dci",
	RCCNXMPParseError:        "nxmp parse error",
	RCCNXMPValidationError:   "nxmp validation error",
	RCCInvalidGraphID:        "invalid graph id",
	RCCLocalCryptoError:      "local crypto error",
	RCCUnsupportedAuthType:   "unsupported auth type",
	RCCBadCertificate:        "bad certificate",
	RCCInvalidCertID:         "invalid cert id",
	RCCSNMPFailure:           "snmp failure",
	RCCNoL2TopologySupport:   "no l2 topology support",
	RCCInvalidSituationID:    "invalid situation id",
	RCCInstanceNotFound:      "instance not found",
	RCCInvalidEventID:        "invalid event id",
	RCCAgentError:            "agent error",
	RCCUnknownVariable:       "unknown variable",
	RCCResourceNotAvailable:  "resource not available",
	RCCJobCancelFailed:       "job cancel failed",
}

// String returns a human readable description of the result code
func (c ResultCode) String() string {
	if text, ok := resultCodeText[c]; ok {
		return text
	}
	return fmt.Sprintf("unknown result code %d", uint32(c))
}

// TransientResultCode marks a result code that reflects a temporary server condition
type TransientResultCode struct {
	// Code is the result code to match
	Code ResultCode
}

// TransientResultCodes lists result codes that a caller may reasonably retry.
//
// The session never retries on its own; this table only feeds
// RemoteError.IsTransient so that retry policy stays with the caller.
var TransientResultCodes = []TransientResultCode{
	// Object or database locked by another session
	{Code: RCCComponentLocked},

	// Server side timeout
	{Code: RCCTimeout},

	// Server lost its database or peer connection
	{Code: RCCCommFailure},
	{Code: RCCDBConnectionLost},

	// Another operation holds the resource
	{Code: RCCOperationInProgress},
	{Code: RCCResourceBusy},
	{Code: RCCTransferInProgress},
	{Code: RCCResourceNotAvailable},
}

// IsTransient reports whether the result code is listed in TransientResultCodes
func (c ResultCode) IsTransient() bool {
	for _, t := range TransientResultCodes {
		if t.Code == c {
			return true
		}
	}
	return false
}

// GRPCCode maps a result code onto the closest gRPC status code
func (c ResultCode) GRPCCode() codes.Code {
	switch c {
	case RCCSuccess:
		return codes.OK
	case RCCAccessDenied, RCCAccountDisabled, RCCNoGraceLogins:
		return codes.PermissionDenied
	case RCCInvalidRequest, RCCInvalidArgument, RCCInvalidObjectName, RCCBadRegexp,
		RCCNPIParseError, RCCNXMPParseError, RCCNXMPValidationError, RCCInvalidIPAddr:
		return codes.InvalidArgument
	case RCCTimeout:
		return codes.DeadlineExceeded
	case RCCOutOfStateRequest, RCCIncompatibleOperation, RCCObjectLoop,
		RCCAlarmOpenInHelpdesk, RCCAlarmNotOutstanding, RCCNotPushDCI:
		return codes.FailedPrecondition
	case RCCInvalidObjectID, RCCInvalidUserID, RCCInvalidDCIID, RCCInvalidAlarmID,
		RCCInvalidActionID, RCCInvalidEventCode, RCCInvalidTrapID, RCCInvalidPackageID,
		RCCVariableNotFound, RCCInvalidToolID, RCCInvalidJobID, RCCInvalidScriptID,
		RCCInvalidScriptName, RCCUnknownMapName, RCCInvalidMapID, RCCInvalidConfigID,
		RCCInvalidGraphID, RCCInvalidCertID, RCCInvalidSituationID, RCCInstanceNotFound,
		RCCInvalidEventID, RCCUnknownVariable, RCCUnknownParameter:
		return codes.NotFound
	case RCCAlreadyExist, RCCDuplicateDCI, RCCDuplicatePackage, RCCPackageFileExist,
		RCCAddressInUse:
		return codes.AlreadyExists
	case RCCComponentLocked, RCCOperationInProgress, RCCResourceBusy, RCCTransferInProgress:
		return codes.Aborted
	case RCCOutOfMemory, RCCResourceNotAvailable:
		return codes.ResourceExhausted
	case RCCCommFailure, RCCDBConnectionLost, RCCConnectionBroken:
		return codes.Unavailable
	case RCCNotImplemented, RCCDCINotSupported, RCCNoEncryptionSupport,
		RCCUnsupportedAuthType, RCCNoL2TopologySupport:
		return codes.Unimplemented
	case RCCBadProtocol, RCCVersionMismatch, RCCBadCertificate, RCCInvalidPublicKey,
		RCCInvalidSessionKey, RCCNoCiphers:
		return codes.Unauthenticated
	case RCCInternalError, RCCSystemFailure, RCCDBFailure, RCCIOError, RCCFileIOError,
		RCCLocalCryptoError:
		return codes.Internal
	default:
		return codes.Unknown
	}
}
