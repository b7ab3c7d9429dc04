package pmt

import (
	"encoding/json"
	"testing"
)

func TestEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Pmt
		want bool
	}{
		{"null-null", Null, Null, true},
		{"ok-ok", Ok, Ok, true},
		{"null-ok", Null, Ok, false},
		{"bool-same", Bool(true), Bool(true), true},
		{"bool-diff", Bool(true), Bool(false), false},
		{"u32-same", U32(7), U32(7), true},
		{"u32-diff", U32(7), U32(8), false},
		{"u64-same", U64(7), U64(7), true},
		{"f32-same", F32(1.5), F32(1.5), true},
		{"f64-same", F64(1.5), F64(1.5), true},
		{"string-same", String("a"), String("a"), true},
		{"string-diff", String("a"), String("b"), false},
		{"blob-same", Blob([]byte{1, 2, 3}), Blob([]byte{1, 2, 3}), true},
		{"blob-diff", Blob([]byte{1, 2, 3}), Blob([]byte{1, 2, 4}), false},
		{"kind-mismatch", U32(1), U64(1), false},
		{
			"list-same",
			List([]Pmt{U32(1), String("x")}),
			List([]Pmt{U32(1), String("x")}),
			true,
		},
		{
			"list-diff-len",
			List([]Pmt{U32(1)}),
			List([]Pmt{U32(1), U32(2)}),
			false,
		},
		{
			"list-diff-elem",
			List([]Pmt{U32(1)}),
			List([]Pmt{U32(2)}),
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestBlobCopiesInput(t *testing.T) {
	src := []byte{1, 2, 3}
	p := Blob(src)
	src[0] = 99
	b, _ := p.AsBlob()
	if b[0] != 1 {
		t.Fatalf("Blob retained a reference to caller's slice, got %v", b)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []Pmt{
		Null,
		Ok,
		Bool(true),
		Bool(false),
		U32(42),
		U64(1 << 40),
		F32(3.25),
		F64(-2.5),
		String(""),
		String("hello world"),
		Blob(nil),
		Blob([]byte{0, 1, 2, 255}),
		List(nil),
		List([]Pmt{U32(1), String("two"), List([]Pmt{Bool(true)})}),
	}
	for _, v := range values {
		t.Run(v.String(), func(t *testing.T) {
			enc, err := Encode(v)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			dec, err := Decode(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !Equal(v, dec) {
				t.Errorf("round trip mismatch: got %v, want %v", dec, v)
			}
		})
	}
}

func TestEncodeAnyUnsupported(t *testing.T) {
	if _, err := Encode(Any(struct{}{})); err == nil {
		t.Fatal("expected error encoding Any variant")
	}
}

func TestDecodeTruncated(t *testing.T) {
	cases := [][]byte{
		{},
		{byte(KindU32), 0, 0},
		{byte(KindString), 0, 0, 0, 5, 'a'},
		{byte(KindList), 0, 0, 0, 1},
	}
	for _, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Errorf("Decode(%v) expected error, got nil", data)
		}
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	enc, _ := Encode(U32(1))
	enc = append(enc, 0xFF)
	if _, err := Decode(enc); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	values := []Pmt{
		Null,
		Ok,
		Bool(true),
		U32(7),
		U64(9),
		F32(1.5),
		F64(2.5),
		String("hi"),
		Blob([]byte{1, 2, 3}),
		List([]Pmt{U32(1), String("a")}),
	}
	for _, v := range values {
		t.Run(v.String(), func(t *testing.T) {
			data, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got Pmt
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !Equal(v, got) {
				t.Errorf("json round trip mismatch: got %v, want %v", got, v)
			}
		})
	}
}

func TestJSONUnknownKind(t *testing.T) {
	var p Pmt
	err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &p)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
