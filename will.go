package mqttcore

import "time"

// WillMessage is a CONNECT packet's Last Will and Testament: the message
// the server publishes on the client's behalf if the connection is lost
// without a clean DISCONNECT.
type WillMessage struct {
	Topic           string
	Payload         []byte
	QoS             byte
	Retain          bool
	DelayInterval   uint32
	PayloadFormat   byte
	MessageExpiry   uint32
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  []StringPair
}

// WillFromConnect extracts the will message carried by a CONNECT packet,
// or nil if WillFlag is unset.
func WillFromConnect(pkt *ConnectPacket) *WillMessage {
	if !pkt.WillFlag {
		return nil
	}

	will := &WillMessage{
		Topic:   pkt.WillTopic,
		Payload: pkt.WillPayload,
		QoS:     pkt.WillQoS,
		Retain:  pkt.WillRetain,
	}

	if pkt.WillProps.Len() > 0 {
		will.DelayInterval = pkt.WillProps.GetUint32(PropWillDelayInterval)
		will.PayloadFormat = pkt.WillProps.GetByte(PropPayloadFormatIndicator)
		will.MessageExpiry = pkt.WillProps.GetUint32(PropMessageExpiryInterval)
		will.ContentType = pkt.WillProps.GetString(PropContentType)
		will.ResponseTopic = pkt.WillProps.GetString(PropResponseTopic)
		will.CorrelationData = pkt.WillProps.GetBinary(PropCorrelationData)
		will.UserProperties = pkt.WillProps.GetAllStringPairs(PropUserProperty)
	}

	return will
}

// ToMessage converts a will into the Message a normal PUBLISH would carry.
func (w *WillMessage) ToMessage() *Message {
	return &Message{
		Topic:           w.Topic,
		Payload:         w.Payload,
		QoS:             w.QoS,
		Retain:          w.Retain,
		PayloadFormat:   w.PayloadFormat,
		MessageExpiry:   w.MessageExpiry,
		ContentType:     w.ContentType,
		ResponseTopic:   w.ResponseTopic,
		CorrelationData: w.CorrelationData,
		UserProperties:  w.UserProperties,
	}
}

// Validate checks the will message's static constraints.
func (w *WillMessage) Validate() error {
	if err := ValidateTopicName(w.Topic); err != nil {
		return err
	}
	if w.QoS > 2 {
		return ErrInvalidQoS
	}
	return nil
}

// PendingWill is a will awaiting publication after its delay interval.
// PublishAt is computed from the delay alone; the owning session's expiry
// does not bring publication forward.
type PendingWill struct {
	Will      *WillMessage
	ClientID  string
	PublishAt time.Time
}

// NewPendingWill schedules will for publication, honoring its delay
// interval if set.
func NewPendingWill(clientID string, will *WillMessage) *PendingWill {
	publishAt := time.Now()
	if will.DelayInterval > 0 {
		publishAt = publishAt.Add(time.Duration(will.DelayInterval) * time.Second)
	}
	return &PendingWill{Will: will, ClientID: clientID, PublishAt: publishAt}
}

// IsReady reports whether the will's delay has elapsed.
func (p *PendingWill) IsReady() bool {
	return !time.Now().Before(p.PublishAt)
}

// TimeUntilPublish returns how long remains before the will is due, or
// zero if it is already due.
func (p *PendingWill) TimeUntilPublish() time.Duration {
	remaining := time.Until(p.PublishAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
