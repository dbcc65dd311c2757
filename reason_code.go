package mqttcore

// ReasonCode is an MQTT v5.0 reason code (spec section 2.4). v3.1.1 packets
// carry a much smaller "return code" vocabulary; ReasonCode is used as the
// single in-memory representation for both, with connack311ReturnCode
// translating down to the wire byte v3.1.1 actually uses.
type ReasonCode byte

const (
	ReasonSuccess                    ReasonCode = 0x00
	ReasonGrantedQoS1                ReasonCode = 0x01
	ReasonGrantedQoS2                ReasonCode = 0x02
	ReasonDisconnectWithWill         ReasonCode = 0x04
	ReasonNoMatchingSubscribers      ReasonCode = 0x10
	ReasonNoSubscriptionExisted      ReasonCode = 0x11
	ReasonContinueAuth               ReasonCode = 0x18
	ReasonReAuth                     ReasonCode = 0x19
	ReasonUnspecifiedError           ReasonCode = 0x80
	ReasonMalformedPacket            ReasonCode = 0x81
	ReasonProtocolError              ReasonCode = 0x82
	ReasonImplSpecificError          ReasonCode = 0x83
	ReasonUnsupportedProtocolVersion ReasonCode = 0x84
	ReasonClientIDNotValid           ReasonCode = 0x85
	ReasonBadUserNameOrPassword      ReasonCode = 0x86
	ReasonNotAuthorized              ReasonCode = 0x87
	ReasonServerUnavailable          ReasonCode = 0x88
	ReasonServerBusy                 ReasonCode = 0x89
	ReasonBanned                     ReasonCode = 0x8A
	ReasonServerShuttingDown         ReasonCode = 0x8B
	ReasonBadAuthMethod              ReasonCode = 0x8C
	ReasonKeepAliveTimeout           ReasonCode = 0x8D
	ReasonSessionTakenOver           ReasonCode = 0x8E
	ReasonTopicFilterInvalid         ReasonCode = 0x8F
	ReasonTopicNameInvalid           ReasonCode = 0x90
	ReasonPacketIDInUse              ReasonCode = 0x91
	ReasonPacketIDNotFound           ReasonCode = 0x92
	ReasonReceiveMaxExceeded         ReasonCode = 0x93
	ReasonTopicAliasInvalid          ReasonCode = 0x94
	ReasonPacketTooLarge             ReasonCode = 0x95
	ReasonMessageRateTooHigh         ReasonCode = 0x96
	ReasonQuotaExceeded              ReasonCode = 0x97
	ReasonAdminAction                ReasonCode = 0x98
	ReasonPayloadFormatInvalid       ReasonCode = 0x99
	ReasonRetainNotSupported         ReasonCode = 0x9A
	ReasonQoSNotSupported            ReasonCode = 0x9B
	ReasonUseAnotherServer           ReasonCode = 0x9C
	ReasonServerMoved                ReasonCode = 0x9D
	ReasonSharedSubsNotSupported     ReasonCode = 0x9E
	ReasonConnectionRateExceeded     ReasonCode = 0x9F
	ReasonMaxConnectTime             ReasonCode = 0xA0
	ReasonSubIDsNotSupported         ReasonCode = 0xA1
	ReasonWildcardSubsNotSupported   ReasonCode = 0xA2
)

// ReasonGrantedQoS0 aliases ReasonSuccess: a granted-QoS-0 SUBACK entry and
// a successful CONNACK share the same wire byte.
const ReasonGrantedQoS0 = ReasonSuccess

var reasonCodeStrings = map[ReasonCode]string{
	ReasonSuccess:                    "Success",
	ReasonGrantedQoS1:                "Granted QoS 1",
	ReasonGrantedQoS2:                "Granted QoS 2",
	ReasonDisconnectWithWill:         "Disconnect with Will Message",
	ReasonNoMatchingSubscribers:      "No matching subscribers",
	ReasonNoSubscriptionExisted:      "No subscription existed",
	ReasonContinueAuth:               "Continue authentication",
	ReasonReAuth:                     "Re-authenticate",
	ReasonUnspecifiedError:           "Unspecified error",
	ReasonMalformedPacket:            "Malformed Packet",
	ReasonProtocolError:              "Protocol Error",
	ReasonImplSpecificError:          "Implementation specific error",
	ReasonUnsupportedProtocolVersion: "Unsupported Protocol Version",
	ReasonClientIDNotValid:           "Client Identifier not valid",
	ReasonBadUserNameOrPassword:      "Bad User Name or Password",
	ReasonNotAuthorized:              "Not authorized",
	ReasonServerUnavailable:          "Server unavailable",
	ReasonServerBusy:                 "Server busy",
	ReasonBanned:                     "Banned",
	ReasonServerShuttingDown:         "Server shutting down",
	ReasonBadAuthMethod:              "Bad authentication method",
	ReasonKeepAliveTimeout:           "Keep Alive timeout",
	ReasonSessionTakenOver:           "Session taken over",
	ReasonTopicFilterInvalid:         "Topic Filter invalid",
	ReasonTopicNameInvalid:           "Topic Name invalid",
	ReasonPacketIDInUse:              "Packet Identifier in use",
	ReasonPacketIDNotFound:           "Packet Identifier not found",
	ReasonReceiveMaxExceeded:         "Receive Maximum exceeded",
	ReasonTopicAliasInvalid:          "Topic Alias invalid",
	ReasonPacketTooLarge:             "Packet too large",
	ReasonMessageRateTooHigh:         "Message rate too high",
	ReasonQuotaExceeded:              "Quota exceeded",
	ReasonAdminAction:                "Administrative action",
	ReasonPayloadFormatInvalid:       "Payload format invalid",
	ReasonRetainNotSupported:         "Retain not supported",
	ReasonQoSNotSupported:            "QoS not supported",
	ReasonUseAnotherServer:           "Use another server",
	ReasonServerMoved:                "Server moved",
	ReasonSharedSubsNotSupported:     "Shared Subscriptions not supported",
	ReasonConnectionRateExceeded:     "Connection rate exceeded",
	ReasonMaxConnectTime:             "Maximum connect time",
	ReasonSubIDsNotSupported:         "Subscription Identifiers not supported",
	ReasonWildcardSubsNotSupported:   "Wildcard Subscriptions not supported",
}

func (r ReasonCode) String() string {
	if s, ok := reasonCodeStrings[r]; ok {
		return s
	}
	return "Unknown reason code"
}

func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

func (r ReasonCode) IsSuccess() bool {
	return r < 0x80
}

var connackReasonCodes = map[ReasonCode]bool{
	ReasonSuccess: true, ReasonUnspecifiedError: true, ReasonMalformedPacket: true,
	ReasonProtocolError: true, ReasonImplSpecificError: true, ReasonUnsupportedProtocolVersion: true,
	ReasonClientIDNotValid: true, ReasonBadUserNameOrPassword: true, ReasonNotAuthorized: true,
	ReasonServerUnavailable: true, ReasonServerBusy: true, ReasonBanned: true,
	ReasonBadAuthMethod: true, ReasonTopicNameInvalid: true, ReasonPacketTooLarge: true,
	ReasonQuotaExceeded: true, ReasonPayloadFormatInvalid: true, ReasonRetainNotSupported: true,
	ReasonQoSNotSupported: true, ReasonUseAnotherServer: true, ReasonServerMoved: true,
	ReasonConnectionRateExceeded: true,
}

var pubackReasonCodes = map[ReasonCode]bool{
	ReasonSuccess: true, ReasonNoMatchingSubscribers: true, ReasonUnspecifiedError: true,
	ReasonImplSpecificError: true, ReasonNotAuthorized: true, ReasonTopicNameInvalid: true,
	ReasonPacketIDInUse: true, ReasonQuotaExceeded: true, ReasonPayloadFormatInvalid: true,
}

var pubrecReasonCodes = pubackReasonCodes

var pubrelReasonCodes = map[ReasonCode]bool{
	ReasonSuccess: true, ReasonPacketIDNotFound: true,
}

var pubcompReasonCodes = pubrelReasonCodes

var subackReasonCodes = map[ReasonCode]bool{
	ReasonGrantedQoS0: true, ReasonGrantedQoS1: true, ReasonGrantedQoS2: true,
	ReasonUnspecifiedError: true, ReasonImplSpecificError: true, ReasonNotAuthorized: true,
	ReasonTopicFilterInvalid: true, ReasonPacketIDInUse: true, ReasonQuotaExceeded: true,
	ReasonSharedSubsNotSupported: true, ReasonSubIDsNotSupported: true, ReasonWildcardSubsNotSupported: true,
}

var unsubackReasonCodes = map[ReasonCode]bool{
	ReasonSuccess: true, ReasonNoSubscriptionExisted: true, ReasonUnspecifiedError: true,
	ReasonImplSpecificError: true, ReasonNotAuthorized: true, ReasonTopicFilterInvalid: true,
	ReasonPacketIDInUse: true,
}

var disconnectReasonCodes = map[ReasonCode]bool{
	ReasonSuccess: true, ReasonDisconnectWithWill: true, ReasonUnspecifiedError: true,
	ReasonMalformedPacket: true, ReasonProtocolError: true, ReasonImplSpecificError: true,
	ReasonNotAuthorized: true, ReasonServerBusy: true, ReasonServerShuttingDown: true,
	ReasonKeepAliveTimeout: true, ReasonSessionTakenOver: true, ReasonTopicFilterInvalid: true,
	ReasonTopicNameInvalid: true, ReasonReceiveMaxExceeded: true, ReasonTopicAliasInvalid: true,
	ReasonPacketTooLarge: true, ReasonMessageRateTooHigh: true, ReasonQuotaExceeded: true,
	ReasonAdminAction: true, ReasonPayloadFormatInvalid: true, ReasonRetainNotSupported: true,
	ReasonQoSNotSupported: true, ReasonUseAnotherServer: true, ReasonServerMoved: true,
	ReasonSharedSubsNotSupported: true, ReasonMaxConnectTime: true, ReasonSubIDsNotSupported: true,
	ReasonWildcardSubsNotSupported: true,
}

var authReasonCodes = map[ReasonCode]bool{
	ReasonSuccess: true, ReasonContinueAuth: true, ReasonReAuth: true,
}

func (r ReasonCode) ValidForCONNACK() bool    { return connackReasonCodes[r] }
func (r ReasonCode) ValidForPUBACK() bool     { return pubackReasonCodes[r] }
func (r ReasonCode) ValidForPUBREC() bool     { return pubrecReasonCodes[r] }
func (r ReasonCode) ValidForPUBREL() bool     { return pubrelReasonCodes[r] }
func (r ReasonCode) ValidForPUBCOMP() bool    { return pubcompReasonCodes[r] }
func (r ReasonCode) ValidForSUBACK() bool     { return subackReasonCodes[r] }
func (r ReasonCode) ValidForUNSUBACK() bool   { return unsubackReasonCodes[r] }
func (r ReasonCode) ValidForDISCONNECT() bool { return disconnectReasonCodes[r] }
func (r ReasonCode) ValidForAUTH() bool       { return authReasonCodes[r] }

// connack311ReturnCode translates a ReasonCode to the MQTT 3.1.1 CONNACK
// return code byte (section 3.2.2.3 of the 3.1.1 spec): only six values
// exist on the wire, the rest collapse to "not authorized".
func connack311ReturnCode(r ReasonCode) byte {
	switch r {
	case ReasonSuccess:
		return 0x00
	case ReasonUnsupportedProtocolVersion:
		return 0x01
	case ReasonClientIDNotValid:
		return 0x02
	case ReasonServerUnavailable:
		return 0x03
	case ReasonBadUserNameOrPassword:
		return 0x04
	case ReasonNotAuthorized:
		return 0x05
	default:
		return 0x05
	}
}

// reasonFromConnack311 is the inverse of connack311ReturnCode, used when
// decoding a v3.1.1 CONNACK.
func reasonFromConnack311(code byte) ReasonCode {
	switch code {
	case 0x00:
		return ReasonSuccess
	case 0x01:
		return ReasonUnsupportedProtocolVersion
	case 0x02:
		return ReasonClientIDNotValid
	case 0x03:
		return ReasonServerUnavailable
	case 0x04:
		return ReasonBadUserNameOrPassword
	case 0x05:
		return ReasonNotAuthorized
	default:
		return ReasonUnspecifiedError
	}
}
