package proto

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the protobuf encoding.
const (
	fieldType    protowire.Number = 1
	fieldPayload protowire.Number = 2
	fieldState   protowire.Number = 3
	fieldStored  protowire.Number = 4

	fieldStateWhitelisted protowire.Number = 1
	fieldStateConnected   protowire.Number = 2
	fieldStateSenders     protowire.Number = 3
	fieldStateAliases     protowire.Number = 4

	fieldAliasPeer  protowire.Number = 1
	fieldAliasAlias protowire.Number = 2

	fieldStoredOwner     protowire.Number = 1
	fieldStoredPayload   protowire.Number = 2
	fieldStoredBroadcast protowire.Number = 3
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed control message")
)

// Marshal encodes m in protobuf wire format. Fields are emitted in field
// number order so the output is deterministic.
func Marshal(m *ControlMessage) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	if m.Payload != "" {
		b = appendString(b, fieldPayload, m.Payload)
	}
	if m.State != nil {
		b = protowire.AppendTag(b, fieldState, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalState(m.State))
	}
	if m.Stored != nil {
		b = protowire.AppendTag(b, fieldStored, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalStored(m.Stored))
	}
	return b
}

func marshalState(s *NetworkState) []byte {
	var b []byte
	for _, v := range s.Whitelisted {
		b = appendString(b, fieldStateWhitelisted, v)
	}
	for _, v := range s.Connected {
		b = appendString(b, fieldStateConnected, v)
	}
	for _, v := range s.AuthorizedSenders {
		b = appendString(b, fieldStateSenders, v)
	}
	for _, a := range s.Aliases {
		var sub []byte
		sub = appendString(sub, fieldAliasPeer, a.Peer)
		sub = appendString(sub, fieldAliasAlias, a.Alias)
		b = protowire.AppendTag(b, fieldStateAliases, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b
}

func marshalStored(s *StoredMessage) []byte {
	var b []byte
	if s.Owner != "" {
		b = appendString(b, fieldStoredOwner, s.Owner)
	}
	if s.Payload != "" {
		b = appendString(b, fieldStoredPayload, s.Payload)
	}
	if s.Broadcast {
		b = protowire.AppendTag(b, fieldStoredBroadcast, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// Unmarshal decodes a control message. Unknown fields are skipped.
func Unmarshal(b []byte) (*ControlMessage, error) {
	m := &ControlMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}
			m.Type = MessageType(v)
			if !m.Type.Valid() {
				return 0, errors.Wrapf(ErrUnknownType, "type %d", v)
			}
			return n, nil
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Payload = v
			return n, nil
		case num == fieldState && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			state, err := unmarshalState(v)
			m.State = state
			return n, err
		case num == fieldStored && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			stored, err := unmarshalStored(v)
			m.Stored = stored
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalState(b []byte) (*NetworkState, error) {
	s := &NetworkState{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		switch num {
		case fieldStateWhitelisted:
			v, n := protowire.ConsumeString(b)
			s.Whitelisted = append(s.Whitelisted, v)
			return n, nil
		case fieldStateConnected:
			v, n := protowire.ConsumeString(b)
			s.Connected = append(s.Connected, v)
			return n, nil
		case fieldStateSenders:
			v, n := protowire.ConsumeString(b)
			s.AuthorizedSenders = append(s.AuthorizedSenders, v)
			return n, nil
		case fieldStateAliases:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			a, err := unmarshalAlias(v)
			if err != nil {
				return 0, err
			}
			s.Aliases = append(s.Aliases, a)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return s, err
}

func unmarshalAlias(b []byte) (Alias, error) {
	var a Alias
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType && num == fieldAliasPeer {
			v, n := protowire.ConsumeString(b)
			a.Peer = v
			return n, nil
		}
		if typ == protowire.BytesType && num == fieldAliasAlias {
			v, n := protowire.ConsumeString(b)
			a.Alias = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return a, err
}

func unmarshalStored(b []byte) (*StoredMessage, error) {
	s := &StoredMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldStoredOwner && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Owner = v
			return n, nil
		case num == fieldStoredPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Payload = v
			return n, nil
		case num == fieldStoredBroadcast && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Broadcast = protowire.DecodeBool(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return s, err
}

// walkFields iterates over the fields in b. fn consumes the value of one field
// and returns the number of bytes used, or a negative protowire error code.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
