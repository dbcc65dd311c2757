package mqttcore

import (
	"errors"
	"io"
)

// PropertyID identifies an MQTT v5.0 property. v3.1.1 has no properties at
// all; a Properties value attached to a v3.1.1 packet must stay empty, and
// the codec never writes a properties block for v3.1.1 (see packet.go).
type PropertyID byte

const (
	PropPayloadFormatIndicator   PropertyID = 0x01
	PropMessageExpiryInterval    PropertyID = 0x02
	PropContentType              PropertyID = 0x03
	PropResponseTopic            PropertyID = 0x08
	PropCorrelationData          PropertyID = 0x09
	PropSubscriptionIdentifier   PropertyID = 0x0B
	PropSessionExpiryInterval    PropertyID = 0x11
	PropAssignedClientIdentifier PropertyID = 0x12
	PropServerKeepAlive          PropertyID = 0x13
	PropAuthenticationMethod     PropertyID = 0x15
	PropAuthenticationData       PropertyID = 0x16
	PropRequestProblemInfo       PropertyID = 0x17
	PropWillDelayInterval        PropertyID = 0x18
	PropRequestResponseInfo      PropertyID = 0x19
	PropResponseInformation      PropertyID = 0x1A
	PropServerReference          PropertyID = 0x1C
	PropReasonString             PropertyID = 0x1F
	PropReceiveMaximum           PropertyID = 0x21
	PropTopicAliasMaximum        PropertyID = 0x22
	PropTopicAlias               PropertyID = 0x23
	PropMaximumQoS               PropertyID = 0x24
	PropRetainAvailable          PropertyID = 0x25
	PropUserProperty             PropertyID = 0x26
	PropMaximumPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable     PropertyID = 0x28
	PropSubscriptionIDAvailable  PropertyID = 0x29
	PropSharedSubAvailable       PropertyID = 0x2A
)

// PropertyType is the wire representation of a property's value.
type PropertyType byte

const (
	PropTypeByte        PropertyType = 0
	PropTypeTwoByteInt  PropertyType = 1
	PropTypeFourByteInt PropertyType = 2
	PropTypeVarInt      PropertyType = 3
	PropTypeString      PropertyType = 4
	PropTypeBinary      PropertyType = 5
	PropTypeStringPair  PropertyType = 6
)

var propertyTypeMap = map[PropertyID]PropertyType{
	PropPayloadFormatIndicator:   PropTypeByte,
	PropMessageExpiryInterval:    PropTypeFourByteInt,
	PropContentType:              PropTypeString,
	PropResponseTopic:            PropTypeString,
	PropCorrelationData:          PropTypeBinary,
	PropSubscriptionIdentifier:   PropTypeVarInt,
	PropSessionExpiryInterval:    PropTypeFourByteInt,
	PropAssignedClientIdentifier: PropTypeString,
	PropServerKeepAlive:          PropTypeTwoByteInt,
	PropAuthenticationMethod:     PropTypeString,
	PropAuthenticationData:       PropTypeBinary,
	PropRequestProblemInfo:       PropTypeByte,
	PropWillDelayInterval:        PropTypeFourByteInt,
	PropRequestResponseInfo:      PropTypeByte,
	PropResponseInformation:      PropTypeString,
	PropServerReference:          PropTypeString,
	PropReasonString:             PropTypeString,
	PropReceiveMaximum:           PropTypeTwoByteInt,
	PropTopicAliasMaximum:        PropTypeTwoByteInt,
	PropTopicAlias:               PropTypeTwoByteInt,
	PropMaximumQoS:               PropTypeByte,
	PropRetainAvailable:          PropTypeByte,
	PropUserProperty:             PropTypeStringPair,
	PropMaximumPacketSize:        PropTypeFourByteInt,
	PropWildcardSubAvailable:     PropTypeByte,
	PropSubscriptionIDAvailable:  PropTypeByte,
	PropSharedSubAvailable:       PropTypeByte,
}

// singleton properties: appearing more than once is a MalformedPacket.
var singletonProperty = map[PropertyID]bool{
	PropPayloadFormatIndicator:   true,
	PropMessageExpiryInterval:    true,
	PropContentType:              true,
	PropResponseTopic:            true,
	PropCorrelationData:          true,
	PropSessionExpiryInterval:    true,
	PropAssignedClientIdentifier: true,
	PropServerKeepAlive:          true,
	PropAuthenticationMethod:     true,
	PropAuthenticationData:       true,
	PropRequestProblemInfo:       true,
	PropWillDelayInterval:        true,
	PropRequestResponseInfo:      true,
	PropResponseInformation:      true,
	PropServerReference:          true,
	PropReasonString:             true,
	PropReceiveMaximum:           true,
	PropTopicAliasMaximum:        true,
	PropTopicAlias:               true,
	PropMaximumQoS:               true,
	PropRetainAvailable:          true,
	PropMaximumPacketSize:        true,
	PropWildcardSubAvailable:     true,
	PropSubscriptionIDAvailable:  true,
	PropSharedSubAvailable:       true,
}

func (p PropertyID) PropertyType() PropertyType {
	if t, ok := propertyTypeMap[p]; ok {
		return t
	}
	return PropTypeByte
}

var (
	ErrUnknownPropertyID   = errors.New("mqttcore: unknown property identifier")
	ErrDuplicateProperty   = errors.New("mqttcore: duplicate property not allowed")
)

// Properties is a collection of MQTT v5.0 (identifier, value) pairs. The
// zero value is a valid, empty collection (used directly by v3.1.1 packets).
type Properties struct {
	props []property
}

type property struct {
	id    PropertyID
	value any
}

func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.props)
}

func (p *Properties) Has(id PropertyID) bool {
	if p == nil {
		return false
	}
	for i := range p.props {
		if p.props[i].id == id {
			return true
		}
	}
	return false
}

func (p *Properties) Get(id PropertyID) any {
	if p == nil {
		return nil
	}
	for i := range p.props {
		if p.props[i].id == id {
			return p.props[i].value
		}
	}
	return nil
}

// GetAll returns every value stored under id, in encounter order. Useful for
// properties the spec allows to repeat (UserProperty, SubscriptionIdentifier).
func (p *Properties) GetAll(id PropertyID) []any {
	if p == nil {
		return nil
	}
	var result []any
	for i := range p.props {
		if p.props[i].id == id {
			result = append(result, p.props[i].value)
		}
	}
	return result
}

// Set stores a single-valued property, replacing any prior value.
func (p *Properties) Set(id PropertyID, value any) {
	if p == nil {
		return
	}
	for i := range p.props {
		if p.props[i].id == id {
			p.props[i].value = value
			return
		}
	}
	p.props = append(p.props, property{id: id, value: value})
}

// Add appends a repeatable property value without touching existing ones.
func (p *Properties) Add(id PropertyID, value any) {
	if p == nil {
		return
	}
	p.props = append(p.props, property{id: id, value: value})
}

func (p *Properties) Delete(id PropertyID) {
	if p == nil {
		return
	}
	n := 0
	for i := range p.props {
		if p.props[i].id != id {
			p.props[n] = p.props[i]
			n++
		}
	}
	p.props = p.props[:n]
}

func (p *Properties) GetByte(id PropertyID) byte {
	if b, ok := p.Get(id).(byte); ok {
		return b
	}
	return 0
}

func (p *Properties) GetUint16(id PropertyID) uint16 {
	if u, ok := p.Get(id).(uint16); ok {
		return u
	}
	return 0
}

func (p *Properties) GetUint32(id PropertyID) uint32 {
	if u, ok := p.Get(id).(uint32); ok {
		return u
	}
	return 0
}

func (p *Properties) GetString(id PropertyID) string {
	if s, ok := p.Get(id).(string); ok {
		return s
	}
	return ""
}

func (p *Properties) GetBinary(id PropertyID) []byte {
	if b, ok := p.Get(id).([]byte); ok {
		return b
	}
	return nil
}

func (p *Properties) GetAllStringPairs(id PropertyID) []StringPair {
	all := p.GetAll(id)
	if all == nil {
		return nil
	}
	result := make([]StringPair, 0, len(all))
	for _, v := range all {
		if sp, ok := v.(StringPair); ok {
			result = append(result, sp)
		}
	}
	return result
}

func (p *Properties) GetAllVarInts(id PropertyID) []uint32 {
	all := p.GetAll(id)
	if all == nil {
		return nil
	}
	result := make([]uint32, 0, len(all))
	for _, v := range all {
		if u, ok := v.(uint32); ok {
			result = append(result, u)
		}
	}
	return result
}

// Encode writes the VLI-prefixed properties block.
func (p *Properties) Encode(w io.Writer) (int, error) {
	if p.Len() == 0 {
		return encodeVarint(w, 0)
	}

	size := p.size()
	n, err := encodeVarint(w, uint32(size))
	if err != nil {
		return n, err
	}

	for i := range p.props {
		n2, err := p.encodeProperty(w, &p.props[i])
		n += n2
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (p *Properties) encodeProperty(w io.Writer, prop *property) (int, error) {
	n, err := w.Write([]byte{byte(prop.id)})
	if err != nil {
		return n, err
	}

	var n2 int
	switch prop.id.PropertyType() {
	case PropTypeByte:
		b, _ := prop.value.(byte)
		n2, err = w.Write([]byte{b})
	case PropTypeTwoByteInt:
		v, _ := prop.value.(uint16)
		n2, err = w.Write([]byte{byte(v >> 8), byte(v)})
	case PropTypeFourByteInt:
		v, _ := prop.value.(uint32)
		n2, err = w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	case PropTypeVarInt:
		v, _ := prop.value.(uint32)
		n2, err = encodeVarint(w, v)
	case PropTypeString:
		s, _ := prop.value.(string)
		n2, err = encodeString(w, s)
	case PropTypeBinary:
		b, _ := prop.value.([]byte)
		n2, err = encodeBinary(w, b)
	case PropTypeStringPair:
		sp, _ := prop.value.(StringPair)
		n2, err = encodeStringPair(w, sp)
	}
	return n + n2, err
}

func (p *Properties) size() int {
	if p.Len() == 0 {
		return 0
	}
	size := 0
	for i := range p.props {
		prop := &p.props[i]
		size++
		switch prop.id.PropertyType() {
		case PropTypeByte:
			size++
		case PropTypeTwoByteInt:
			size += 2
		case PropTypeFourByteInt:
			size += 4
		case PropTypeVarInt:
			v, _ := prop.value.(uint32)
			size += varintSize(v)
		case PropTypeString:
			s, _ := prop.value.(string)
			size += 2 + len(s)
		case PropTypeBinary:
			b, _ := prop.value.([]byte)
			size += 2 + len(b)
		case PropTypeStringPair:
			sp, _ := prop.value.(StringPair)
			size += 2 + len(sp.Key) + 2 + len(sp.Value)
		}
	}
	return size
}

// Decode reads a VLI-prefixed properties block from r. Duplicate singleton
// properties are rejected with ErrDuplicateProperty.
func (p *Properties) Decode(r io.Reader) (int, error) {
	length, n, err := decodeVarint(r)
	if err != nil {
		return n, err
	}
	if length == 0 {
		return n, nil
	}

	seen := make(map[PropertyID]bool)
	remaining := int(length)
	for remaining > 0 {
		var idBuf [1]byte
		n2, err := io.ReadFull(r, idBuf[:])
		n += n2
		remaining -= n2
		if err != nil {
			return n, err
		}

		id := PropertyID(idBuf[0])
		propType, ok := propertyTypeMap[id]
		if !ok {
			return n, ErrUnknownPropertyID
		}
		if singletonProperty[id] && seen[id] {
			return n, ErrDuplicateProperty
		}
		seen[id] = true

		var value any
		var n3 int
		switch propType {
		case PropTypeByte:
			var buf [1]byte
			n3, err = io.ReadFull(r, buf[:])
			value = buf[0]
		case PropTypeTwoByteInt:
			var buf [2]byte
			n3, err = io.ReadFull(r, buf[:])
			value = uint16(buf[0])<<8 | uint16(buf[1])
		case PropTypeFourByteInt:
			var buf [4]byte
			n3, err = io.ReadFull(r, buf[:])
			value = uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		case PropTypeVarInt:
			var v uint32
			v, n3, err = decodeVarint(r)
			value = v
		case PropTypeString:
			var s string
			s, n3, err = decodeString(r)
			value = s
		case PropTypeBinary:
			var b []byte
			b, n3, err = decodeBinary(r)
			value = b
		case PropTypeStringPair:
			var sp StringPair
			sp, n3, err = decodeStringPair(r)
			value = sp
		}

		n += n3
		remaining -= n3
		if err != nil {
			return n, err
		}
		p.props = append(p.props, property{id: id, value: value})
	}

	return n, nil
}
