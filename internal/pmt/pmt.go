// Package pmt implements the polymorphic message type carried on every
// message port: a small tagged union with a stable binary encoding and
// a JSON codec for the external control endpoint.
package pmt

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Kind identifies which variant a Pmt holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindOk
	KindBool
	KindU32
	KindU64
	KindF32
	KindF64
	KindString
	KindBlob
	KindAny
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindOk:
		return "ok"
	case KindBool:
		return "bool"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	case KindAny:
		return "any"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Pmt is a tagged-union value. Only the field matching Kind is
// meaningful; zero value is Null.
type Pmt struct {
	Kind Kind

	boolVal   bool
	u32Val    uint32
	u64Val    uint64
	f32Val    float32
	f64Val    float64
	stringVal string
	blobVal   []byte
	anyVal    any
	listVal   []Pmt
}

// Null is the empty value, the default reply for calls with no result.
var Null = Pmt{Kind: KindNull}

// Ok is the standard positive acknowledgement.
var Ok = Pmt{Kind: KindOk}

func Bool(v bool) Pmt   { return Pmt{Kind: KindBool, boolVal: v} }
func U32(v uint32) Pmt  { return Pmt{Kind: KindU32, u32Val: v} }
func U64(v uint64) Pmt  { return Pmt{Kind: KindU64, u64Val: v} }
func F32(v float32) Pmt { return Pmt{Kind: KindF32, f32Val: v} }
func F64(v float64) Pmt { return Pmt{Kind: KindF64, f64Val: v} }
func String(v string) Pmt {
	return Pmt{Kind: KindString, stringVal: v}
}
func Blob(v []byte) Pmt {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Pmt{Kind: KindBlob, blobVal: cp}
}
func Any(v any) Pmt    { return Pmt{Kind: KindAny, anyVal: v} }
func List(v []Pmt) Pmt { return Pmt{Kind: KindList, listVal: v} }

// Error builds the conventional error reply: a String carrying a
// human-readable description, per spec §4.3's call-acknowledgement
// convention.
func Error(format string, args ...any) Pmt {
	return String(fmt.Sprintf(format, args...))
}

func (p Pmt) IsNull() bool { return p.Kind == KindNull }

func (p Pmt) AsBool() (bool, bool)     { return p.boolVal, p.Kind == KindBool }
func (p Pmt) AsU32() (uint32, bool)    { return p.u32Val, p.Kind == KindU32 }
func (p Pmt) AsU64() (uint64, bool)    { return p.u64Val, p.Kind == KindU64 }
func (p Pmt) AsF32() (float32, bool)   { return p.f32Val, p.Kind == KindF32 }
func (p Pmt) AsF64() (float64, bool)   { return p.f64Val, p.Kind == KindF64 }
func (p Pmt) AsString() (string, bool) { return p.stringVal, p.Kind == KindString }
func (p Pmt) AsBlob() ([]byte, bool)   { return p.blobVal, p.Kind == KindBlob }
func (p Pmt) AsAny() (any, bool)       { return p.anyVal, p.Kind == KindAny }
func (p Pmt) AsList() ([]Pmt, bool)    { return p.listVal, p.Kind == KindList }

// Equal compares tag then payload. Any values compare via ==, which
// panics for non-comparable dynamic types — callers that box
// non-comparable values into Any should not rely on Equal.
func Equal(a, b Pmt) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull, KindOk:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindU32:
		return a.u32Val == b.u32Val
	case KindU64:
		return a.u64Val == b.u64Val
	case KindF32:
		return a.f32Val == b.f32Val
	case KindF64:
		return a.f64Val == b.f64Val
	case KindString:
		return a.stringVal == b.stringVal
	case KindBlob:
		return bytes.Equal(a.blobVal, b.blobVal)
	case KindAny:
		return a.anyVal == b.anyVal
	case KindList:
		if len(a.listVal) != len(b.listVal) {
			return false
		}
		for i := range a.listVal {
			if !Equal(a.listVal[i], b.listVal[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (p Pmt) String() string {
	switch p.Kind {
	case KindNull:
		return "Null"
	case KindOk:
		return "Ok"
	case KindBool:
		return fmt.Sprintf("Bool(%v)", p.boolVal)
	case KindU32:
		return fmt.Sprintf("U32(%d)", p.u32Val)
	case KindU64:
		return fmt.Sprintf("U64(%d)", p.u64Val)
	case KindF32:
		return fmt.Sprintf("F32(%g)", p.f32Val)
	case KindF64:
		return fmt.Sprintf("F64(%g)", p.f64Val)
	case KindString:
		return fmt.Sprintf("String(%q)", p.stringVal)
	case KindBlob:
		return fmt.Sprintf("Blob(%d bytes)", len(p.blobVal))
	case KindAny:
		return fmt.Sprintf("Any(%v)", p.anyVal)
	case KindList:
		return fmt.Sprintf("List(%d)", len(p.listVal))
	default:
		return "Unknown"
	}
}

// Encode produces the variant-prefixed binary form used when a Pmt
// must cross a boundary that isn't plain JSON (e.g. a Blob round trip
// test). Any values are not supported and return an error.
func Encode(p Pmt) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Kind))
	switch p.Kind {
	case KindNull, KindOk:
	case KindBool:
		if p.boolVal {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindU32:
		binary.Write(&buf, binary.BigEndian, p.u32Val)
	case KindU64:
		binary.Write(&buf, binary.BigEndian, p.u64Val)
	case KindF32:
		binary.Write(&buf, binary.BigEndian, math.Float32bits(p.f32Val))
	case KindF64:
		binary.Write(&buf, binary.BigEndian, math.Float64bits(p.f64Val))
	case KindString:
		writeBytes(&buf, []byte(p.stringVal))
	case KindBlob:
		writeBytes(&buf, p.blobVal)
	case KindList:
		binary.Write(&buf, binary.BigEndian, uint32(len(p.listVal)))
		for _, item := range p.listVal {
			enc, err := Encode(item)
			if err != nil {
				return nil, err
			}
			buf.Write(enc)
		}
	default:
		return nil, fmt.Errorf("pmt: cannot encode kind %s", p.Kind)
	}
	return buf.Bytes(), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

// Decode reverses Encode, returning the decoded value. Input that holds
// anything after one complete encoded value is rejected with an error.
func Decode(data []byte) (Pmt, error) {
	p, rest, err := decode(data)
	if err != nil {
		return Pmt{}, err
	}
	if len(rest) != 0 {
		return Pmt{}, fmt.Errorf("pmt: %d trailing bytes after decode", len(rest))
	}
	return p, nil
}

func decode(data []byte) (Pmt, []byte, error) {
	if len(data) < 1 {
		return Pmt{}, nil, fmt.Errorf("pmt: empty input")
	}
	kind := Kind(data[0])
	data = data[1:]
	switch kind {
	case KindNull:
		return Null, data, nil
	case KindOk:
		return Ok, data, nil
	case KindBool:
		if len(data) < 1 {
			return Pmt{}, nil, fmt.Errorf("pmt: truncated bool")
		}
		return Bool(data[0] != 0), data[1:], nil
	case KindU32:
		if len(data) < 4 {
			return Pmt{}, nil, fmt.Errorf("pmt: truncated u32")
		}
		return U32(binary.BigEndian.Uint32(data)), data[4:], nil
	case KindU64:
		if len(data) < 8 {
			return Pmt{}, nil, fmt.Errorf("pmt: truncated u64")
		}
		return U64(binary.BigEndian.Uint64(data)), data[8:], nil
	case KindF32:
		if len(data) < 4 {
			return Pmt{}, nil, fmt.Errorf("pmt: truncated f32")
		}
		return F32(math.Float32frombits(binary.BigEndian.Uint32(data))), data[4:], nil
	case KindF64:
		if len(data) < 8 {
			return Pmt{}, nil, fmt.Errorf("pmt: truncated f64")
		}
		return F64(math.Float64frombits(binary.BigEndian.Uint64(data))), data[8:], nil
	case KindString:
		b, rest, err := readBytes(data)
		if err != nil {
			return Pmt{}, nil, err
		}
		return String(string(b)), rest, nil
	case KindBlob:
		b, rest, err := readBytes(data)
		if err != nil {
			return Pmt{}, nil, err
		}
		return Blob(b), rest, nil
	case KindList:
		if len(data) < 4 {
			return Pmt{}, nil, fmt.Errorf("pmt: truncated list length")
		}
		n := binary.BigEndian.Uint32(data)
		data = data[4:]
		items := make([]Pmt, 0, n)
		for i := uint32(0); i < n; i++ {
			item, rest, err := decode(data)
			if err != nil {
				return Pmt{}, nil, err
			}
			items = append(items, item)
			data = rest
		}
		return List(items), data, nil
	default:
		return Pmt{}, nil, fmt.Errorf("pmt: unknown kind %d", kind)
	}
}

func readBytes(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("pmt: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("pmt: truncated payload")
	}
	return data[:n], data[n:], nil
}

// jsonValue is the wire shape used by the control endpoint: a
// discriminated union so that U32 vs F64 vs String are unambiguous
// over JSON, which otherwise collapses all numbers to float64.
type jsonValue struct {
	Kind  string      `json:"kind"`
	Value interface{} `json:"value,omitempty"`
	List  []jsonValue `json:"list,omitempty"`
}

// MarshalJSON implements json.Marshaler for the control endpoint wire
// format.
func (p Pmt) MarshalJSON() ([]byte, error) {
	jv, err := toJSONValue(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jv)
}

func toJSONValue(p Pmt) (jsonValue, error) {
	jv := jsonValue{Kind: p.Kind.String()}
	switch p.Kind {
	case KindNull, KindOk:
	case KindBool:
		jv.Value = p.boolVal
	case KindU32:
		jv.Value = p.u32Val
	case KindU64:
		jv.Value = p.u64Val
	case KindF32:
		jv.Value = p.f32Val
	case KindF64:
		jv.Value = p.f64Val
	case KindString:
		jv.Value = p.stringVal
	case KindBlob:
		jv.Value = p.blobVal // json encodes []byte as base64
	case KindAny:
		jv.Value = fmt.Sprintf("%v", p.anyVal)
	case KindList:
		jv.List = make([]jsonValue, len(p.listVal))
		for i, item := range p.listVal {
			sub, err := toJSONValue(item)
			if err != nil {
				return jsonValue{}, err
			}
			jv.List[i] = sub
		}
	default:
		return jsonValue{}, fmt.Errorf("pmt: cannot marshal kind %s", p.Kind)
	}
	return jv, nil
}

// UnmarshalJSON implements json.Unmarshaler for the control endpoint
// wire format.
func (p *Pmt) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	v, err := fromJSONValue(jv)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func fromJSONValue(jv jsonValue) (Pmt, error) {
	switch jv.Kind {
	case "", "null":
		return Null, nil
	case "ok":
		return Ok, nil
	case "bool":
		b, ok := jv.Value.(bool)
		if !ok {
			return Pmt{}, fmt.Errorf("pmt: expected bool value")
		}
		return Bool(b), nil
	case "u32":
		n, err := jsonNumber(jv.Value)
		if err != nil {
			return Pmt{}, err
		}
		return U32(uint32(n)), nil
	case "u64":
		n, err := jsonNumber(jv.Value)
		if err != nil {
			return Pmt{}, err
		}
		return U64(uint64(n)), nil
	case "f32":
		n, err := jsonNumber(jv.Value)
		if err != nil {
			return Pmt{}, err
		}
		return F32(float32(n)), nil
	case "f64":
		n, err := jsonNumber(jv.Value)
		if err != nil {
			return Pmt{}, err
		}
		return F64(n), nil
	case "string":
		s, ok := jv.Value.(string)
		if !ok {
			return Pmt{}, fmt.Errorf("pmt: expected string value")
		}
		return String(s), nil
	case "blob":
		s, ok := jv.Value.(string)
		if !ok {
			return Pmt{}, fmt.Errorf("pmt: expected base64 blob value")
		}
		b, err := jsonBlobDecode(s)
		if err != nil {
			return Pmt{}, err
		}
		return Blob(b), nil
	case "list":
		items := make([]Pmt, len(jv.List))
		for i, sub := range jv.List {
			v, err := fromJSONValue(sub)
			if err != nil {
				return Pmt{}, err
			}
			items[i] = v
		}
		return List(items), nil
	default:
		return Pmt{}, fmt.Errorf("pmt: unknown json kind %q", jv.Kind)
	}
}

func jsonNumber(v interface{}) (float64, error) {
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("pmt: expected numeric value, got %T", v)
	}
	return n, nil
}

func jsonBlobDecode(s string) ([]byte, error) {
	var b []byte
	if err := json.Unmarshal([]byte(`"`+s+`"`), &b); err != nil {
		return nil, err
	}
	return b, nil
}
