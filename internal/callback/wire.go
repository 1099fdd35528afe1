package callback

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// KeyValueVariant mirrors aruna.api.storage.models.v2.KeyValueVariant.
type KeyValueVariant int32

const (
	VariantUnspecified KeyValueVariant = 0
	VariantLabel       KeyValueVariant = 1
	VariantStaticLabel KeyValueVariant = 2
	VariantHook        KeyValueVariant = 3
	VariantHookStatus  KeyValueVariant = 4
)

// KeyValue is a labelled annotation on a resource.
type KeyValue struct {
	Key     string
	Value   string
	Variant KeyValueVariant
}

// Finished is the terminal hook status carrying label changes.
type Finished struct {
	AddKeyValues    []KeyValue
	RemoveKeyValues []KeyValue
}

// HookCallbackRequest mirrors aruna.api.hooks.services.v2.HookCallbackRequest.
// Only the Finished status is produced by this service; an Error status is
// skipped when decoding.
type HookCallbackRequest struct {
	Finished     *Finished
	Secret       string
	HookID       string
	ObjectID     string
	PubkeySerial int32
}

// HookCallbackResponse is empty on the wire.
type HookCallbackResponse struct{}

// Field numbers from the Aruna v2 API definitions.
const (
	fieldRequestFinished     protowire.Number = 1
	fieldRequestSecret       protowire.Number = 3
	fieldRequestHookID       protowire.Number = 4
	fieldRequestObjectID     protowire.Number = 5
	fieldRequestPubkeySerial protowire.Number = 6

	fieldFinishedAdd    protowire.Number = 1
	fieldFinishedRemove protowire.Number = 2

	fieldKeyValueKey     protowire.Number = 1
	fieldKeyValueValue   protowire.Number = 2
	fieldKeyValueVariant protowire.Number = 3
)

var errMalformed = errors.New("malformed protobuf message")

// MarshalWire encodes the request in protobuf binary form.
func (r *HookCallbackRequest) MarshalWire() ([]byte, error) {
	var b []byte
	if r.Finished != nil {
		b = protowire.AppendTag(b, fieldRequestFinished, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Finished.marshal())
	}
	b = appendString(b, fieldRequestSecret, r.Secret)
	b = appendString(b, fieldRequestHookID, r.HookID)
	b = appendString(b, fieldRequestObjectID, r.ObjectID)
	if r.PubkeySerial != 0 {
		b = protowire.AppendTag(b, fieldRequestPubkeySerial, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.PubkeySerial)))
	}
	return b, nil
}

// UnmarshalWire decodes a protobuf binary request, skipping unknown fields.
func (r *HookCallbackRequest) UnmarshalWire(b []byte) error {
	*r = HookCallbackRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldRequestFinished && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			f := &Finished{}
			if err := f.unmarshal(v); err != nil {
				return 0, err
			}
			r.Finished = f
			return n, nil
		case num == fieldRequestSecret && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			r.Secret = s
			return n, nil
		case num == fieldRequestHookID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			r.HookID = s
			return n, nil
		case num == fieldRequestObjectID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			r.ObjectID = s
			return n, nil
		case num == fieldRequestPubkeySerial && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.PubkeySerial = int32(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// MarshalWire encodes the empty response.
func (*HookCallbackResponse) MarshalWire() ([]byte, error) { return nil, nil }

// UnmarshalWire accepts any well-formed response body.
func (*HookCallbackResponse) UnmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (f *Finished) marshal() []byte {
	var b []byte
	for _, kv := range f.AddKeyValues {
		b = protowire.AppendTag(b, fieldFinishedAdd, protowire.BytesType)
		b = protowire.AppendBytes(b, kv.marshal())
	}
	for _, kv := range f.RemoveKeyValues {
		b = protowire.AppendTag(b, fieldFinishedRemove, protowire.BytesType)
		b = protowire.AppendBytes(b, kv.marshal())
	}
	return b
}

func (f *Finished) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType || (num != fieldFinishedAdd && num != fieldFinishedRemove) {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		var kv KeyValue
		if err := kv.unmarshal(v); err != nil {
			return 0, err
		}
		if num == fieldFinishedAdd {
			f.AddKeyValues = append(f.AddKeyValues, kv)
		} else {
			f.RemoveKeyValues = append(f.RemoveKeyValues, kv)
		}
		return n, nil
	})
}

func (kv KeyValue) marshal() []byte {
	var b []byte
	b = appendString(b, fieldKeyValueKey, kv.Key)
	b = appendString(b, fieldKeyValueValue, kv.Value)
	if kv.Variant != VariantUnspecified {
		b = protowire.AppendTag(b, fieldKeyValueVariant, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(kv.Variant)))
	}
	return b
}

func (kv *KeyValue) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldKeyValueKey && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			kv.Key = s
			return n, nil
		case num == fieldKeyValueValue && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			kv.Value = s
			return n, nil
		case num == fieldKeyValueVariant && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			kv.Variant = KeyValueVariant(int32(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// appendString writes a string field, omitting proto3 defaults.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks b field by field. fn returns the number of value bytes
// it consumed, or a negative protowire error code.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
