package mqttcore

import "io"

// ProtocolVersion selects which wire dialect a packet is encoded/decoded as.
// v3.1.1 packets never carry a properties block and use the reduced CONNACK
// return-code vocabulary; v5 packets carry both.
type ProtocolVersion byte

const (
	MQTT311 ProtocolVersion = 4
	MQTT5   ProtocolVersion = 5
)

func (v ProtocolVersion) String() string {
	switch v {
	case MQTT311:
		return "MQTT 3.1.1"
	case MQTT5:
		return "MQTT 5.0"
	default:
		return "unknown protocol version"
	}
}

// Packet is the interface every control packet implements.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the packet, including its fixed header, to w and
	// returns the number of bytes written. version selects the wire
	// dialect: v3.1.1 packets never carry a properties block.
	Encode(w io.Writer, version ProtocolVersion) (int, error)

	// Decode reads the variable header and payload from r. The fixed
	// header has already been decoded and is supplied by the caller.
	Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error)

	// Validate checks structural invariants the wire format alone
	// can't express (a missing packet id, zero-length topic filters).
	Validate() error
}

// PacketWithID is implemented by packets that carry a packet identifier.
type PacketWithID interface {
	Packet
	GetPacketID() uint16
	SetPacketID(id uint16)
}

// PacketWithProperties is implemented by packets that may carry a v5
// properties block. Under v3.1.1 the returned Properties is always empty.
type PacketWithProperties interface {
	Packet
	Properties() *Properties
}

// Message is the user-facing application message: the payload plus the
// delivery metadata that travels with a PUBLISH in either protocol version.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool

	// PayloadFormat, MessageExpiry, ContentType, ResponseTopic,
	// CorrelationData and UserProperties are v5 properties; they are
	// silently dropped when a Message is published over a v3.1.1 endpoint.
	PayloadFormat   byte
	MessageExpiry   uint32
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  []StringPair

	// SubscriptionIdentifiers is populated on delivery from the matching
	// subscriptions' identifiers; it is never sent by a publisher.
	SubscriptionIdentifiers []uint32
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := &Message{
		Topic:         m.Topic,
		QoS:           m.QoS,
		Retain:        m.Retain,
		PayloadFormat: m.PayloadFormat,
		MessageExpiry: m.MessageExpiry,
		ContentType:   m.ContentType,
		ResponseTopic: m.ResponseTopic,
	}

	if m.Payload != nil {
		clone.Payload = make([]byte, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}
	if m.CorrelationData != nil {
		clone.CorrelationData = make([]byte, len(m.CorrelationData))
		copy(clone.CorrelationData, m.CorrelationData)
	}
	if m.UserProperties != nil {
		clone.UserProperties = make([]StringPair, len(m.UserProperties))
		copy(clone.UserProperties, m.UserProperties)
	}
	if m.SubscriptionIdentifiers != nil {
		clone.SubscriptionIdentifiers = make([]uint32, len(m.SubscriptionIdentifiers))
		copy(clone.SubscriptionIdentifiers, m.SubscriptionIdentifiers)
	}

	return clone
}

// ToProperties converts the v5 metadata fields to a Properties block for
// encoding a PUBLISH. Called only when the owning endpoint negotiated v5.
func (m *Message) ToProperties() Properties {
	var p Properties

	if m.PayloadFormat != 0 {
		p.Set(PropPayloadFormatIndicator, m.PayloadFormat)
	}
	if m.MessageExpiry != 0 {
		p.Set(PropMessageExpiryInterval, m.MessageExpiry)
	}
	if m.ContentType != "" {
		p.Set(PropContentType, m.ContentType)
	}
	if m.ResponseTopic != "" {
		p.Set(PropResponseTopic, m.ResponseTopic)
	}
	if len(m.CorrelationData) > 0 {
		p.Set(PropCorrelationData, m.CorrelationData)
	}
	for _, up := range m.UserProperties {
		p.Add(PropUserProperty, up)
	}

	return p
}

// FromProperties populates the v5 metadata fields from a decoded PUBLISH's
// properties block. A no-op for v3.1.1 packets, whose Properties is empty.
func (m *Message) FromProperties(p *Properties) {
	if p == nil {
		return
	}

	m.PayloadFormat = p.GetByte(PropPayloadFormatIndicator)
	m.MessageExpiry = p.GetUint32(PropMessageExpiryInterval)
	m.ContentType = p.GetString(PropContentType)
	m.ResponseTopic = p.GetString(PropResponseTopic)
	m.CorrelationData = p.GetBinary(PropCorrelationData)
	m.UserProperties = p.GetAllStringPairs(PropUserProperty)
	m.SubscriptionIdentifiers = p.GetAllVarInts(PropSubscriptionIdentifier)
}
