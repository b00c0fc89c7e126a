// Copyright 2025 Certen Protocol
//
// Canonical JSON Tests

package canonical

import (
	"bytes"
	"testing"
)

func TestMarshalRaw_SortsKeys(t *testing.T) {
	got, err := MarshalRaw([]byte(`{"b":1,"a":2,"c":3}`))
	if err != nil {
		t.Fatalf("failed to canonicalize: %v", err)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(got) != want {
		t.Errorf("canonical output mismatch: got %s, want %s", got, want)
	}
}

func TestMarshalRaw_SortsNestedKeys(t *testing.T) {
	got, err := MarshalRaw([]byte(`{"outer":{"z":true,"a":null},"list":[{"y":2,"x":1}]}`))
	if err != nil {
		t.Fatalf("failed to canonicalize: %v", err)
	}
	want := `{"list":[{"x":1,"y":2}],"outer":{"a":null,"z":true}}`
	if string(got) != want {
		t.Errorf("canonical output mismatch: got %s, want %s", got, want)
	}
}

func TestMarshalRaw_PreservesArrayOrder(t *testing.T) {
	got, err := MarshalRaw([]byte(`{"seq":[3,1,2,"b","a"]}`))
	if err != nil {
		t.Fatalf("failed to canonicalize: %v", err)
	}
	want := `{"seq":[3,1,2,"b","a"]}`
	if string(got) != want {
		t.Errorf("array order not preserved: got %s, want %s", got, want)
	}
}

func TestMarshalRaw_PreservesScalarText(t *testing.T) {
	// 1.3 must survive as "1.3", not a float64 re-rendering; large ints must
	// not pass through float64 at all.
	got, err := MarshalRaw([]byte(`{"delta":1.3,"big":9007199254740993,"q":0.8}`))
	if err != nil {
		t.Fatalf("failed to canonicalize: %v", err)
	}
	want := `{"big":9007199254740993,"delta":1.3,"q":0.8}`
	if string(got) != want {
		t.Errorf("scalar text not preserved: got %s, want %s", got, want)
	}
}

func TestMarshalRaw_KeyOrderIndependence(t *testing.T) {
	// Shuffling input keys must not change the canonical output.
	a := []byte(`{"version":2,"signer":"Studio","sha256":"ab","edit_log":[]}`)
	b := []byte(`{"edit_log":[],"sha256":"ab","version":2,"signer":"Studio"}`)

	ca, err := MarshalRaw(a)
	if err != nil {
		t.Fatalf("failed to canonicalize a: %v", err)
	}
	cb, err := MarshalRaw(b)
	if err != nil {
		t.Fatalf("failed to canonicalize b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Errorf("canonical forms differ:\n  a: %s\n  b: %s", ca, cb)
	}
}

func TestMarshalRaw_RejectsInvalidJSON(t *testing.T) {
	if _, err := MarshalRaw([]byte(`{"a":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestMarshal_Struct(t *testing.T) {
	type record struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	got, err := Marshal(record{B: "x", A: 7})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	want := `{"a":7,"b":"x"}`
	if string(got) != want {
		t.Errorf("struct canonical mismatch: got %s, want %s", got, want)
	}
}

func TestHash_Deterministic(t *testing.T) {
	h1, err := Hash(map[string]interface{}{"x": 1, "y": "z"})
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	h2, err := Hash(map[string]interface{}{"y": "z", "x": 1})
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash length mismatch: got %d, want 64", len(h1))
	}
}
