package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is the gRPC content-subtype peers negotiate.
const codecName = "ringkv-wire"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// message is implemented by every peer service request and response.
type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

type wireCodec struct{}

func (wireCodec) Name() string { return codecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("rpc: cannot marshal %T", v)
	}
	return m.marshal(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("rpc: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

// fieldFunc decodes one field and returns the bytes consumed. Returning a
// negative count reports a protowire parse error.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

// decodeFields walks b and hands each field to fn.
func decodeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) int {
	return protowire.ConsumeFieldValue(num, typ, b)
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return skip(num, typ, b)
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func consumeBytes(num protowire.Number, typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return skip(num, typ, b)
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte(nil), v...)
	}
	return n
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return skip(num, typ, b)
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func consumeBool(num protowire.Number, typ protowire.Type, b []byte, dst *bool) int {
	var v uint64
	n := consumeVarint(num, typ, b, &v)
	if n >= 0 && typ == protowire.VarintType {
		*dst = protowire.DecodeBool(v)
	}
	return n
}

// consumeMessage decodes a nested message field into dst.
func consumeMessage(num protowire.Number, typ protowire.Type, b []byte, dst message) int {
	if typ != protowire.BytesType {
		return skip(num, typ, b)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := dst.unmarshal(v); err != nil {
		return -1
	}
	return n
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendMessage(b []byte, num protowire.Number, m message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.marshal())
}
