package literal

import "testing"

func TestParseIntPlain(t *testing.T) {
	v, err := ParseInt("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IntValue != 42 || v.LongHint {
		t.Errorf("got %+v", v)
	}
}

func TestParseIntLongSuffix(t *testing.T) {
	v, err := ParseInt("10L")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IntValue != 10 || !v.LongHint {
		t.Errorf("got %+v, want LongHint=true", v)
	}
}

func TestParseIntExceeds32Bit(t *testing.T) {
	v, err := ParseInt("5000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.LongHint {
		t.Errorf("expected LongHint for out-of-32-bit-range literal, got %+v", v)
	}
}

func TestParseCharSimple(t *testing.T) {
	v, err := ParseChar("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.CharValue != 'a' {
		t.Errorf("got %+v", v)
	}
}

func TestParseCharEscape(t *testing.T) {
	v, err := ParseChar(`\n`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.CharValue != '\n' {
		t.Errorf("got %+v", v)
	}
}

func TestParseStringRoundTrip(t *testing.T) {
	v, err := ParseString(`hello\nworld`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Raw != `hello\nworld` {
		t.Errorf("raw = %q", v.Raw)
	}
	if v.Decoded != "hello\nworld" {
		t.Errorf("decoded = %q", v.Decoded)
	}
}

func TestParseStringUnsupportedEscape(t *testing.T) {
	if _, err := ParseString(`\q`); err == nil {
		t.Fatalf("expected error for unsupported escape")
	}
}
