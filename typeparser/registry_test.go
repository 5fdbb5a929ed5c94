package typeparser

import "testing"

func TestParserKnownOIDDecodesValue(t *testing.T) {
	reg := NewDefaultRegistry()
	parse := reg.Parser(23) // int4
	val, err := parse("42")
	if err != nil {
		t.Fatalf("Parser(23)(\"42\") error: %v", err)
	}
	if val != int32(42) {
		t.Fatalf("Parser(23)(\"42\") = %#v (%T), want int32(42)", val, val)
	}
}

func TestParserUnknownOIDFallsBackToPassthrough(t *testing.T) {
	reg := NewDefaultRegistry()
	parse := reg.Parser(999999999)
	val, err := parse("whatever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "whatever" {
		t.Fatalf("passthrough parser = %#v, want %q", val, "whatever")
	}
}

func TestParserBoolOID(t *testing.T) {
	reg := NewDefaultRegistry()
	parse := reg.Parser(16) // bool
	val, err := parse("t")
	if err != nil {
		t.Fatalf("Parser(16)(\"t\") error: %v", err)
	}
	if val != true {
		t.Fatalf("Parser(16)(\"t\") = %#v, want true", val)
	}
}
