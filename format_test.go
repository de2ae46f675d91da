package ulog

import (
	"strings"
	"testing"
)

func TestPrefixIsExactly42Bytes(t *testing.T) {
	p := buildPrefix(severityInfo, 0xabcd1234)
	if len(p) != 42 {
		t.Fatalf("prefix length = %d, want 42 (%q)", len(p), p)
	}
}

func TestPrefixStructure(t *testing.T) {
	p := buildPrefix(severityWarn, 0x1)
	if !strings.Contains(p, " [W] ") {
		t.Errorf("prefix %q missing severity bracket", p)
	}
	if !strings.HasSuffix(p, "00000001 ") {
		t.Errorf("prefix %q missing zero-padded tid", p)
	}
}

func TestFormatArgsPercentV(t *testing.T) {
	got := formatArgs("count=%v name=%v", 3, "alice")
	want := "count=3 name=alice"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatArgsLiteralPercent(t *testing.T) {
	got := formatArgs("100%% done, %v left", 0)
	want := "100% done, 0 left"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStringifyTypes(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{42, "42"},
		{true, "true"},
		{false, "false"},
		{"hi", "hi"},
		{3.5, "3.5"},
	}
	for _, c := range cases {
		if got := stringify(c.in); got != c.want {
			t.Errorf("stringify(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMakeMsgDeterministic(t *testing.T) {
	a := makeMsg(59, 59)
	b := makeMsg(59, 59)
	if a != b {
		t.Fatalf("MakeMsg not deterministic: %q vs %q", a, b)
	}
	if len(a) != 59 {
		t.Fatalf("MakeMsg length = %d, want 59", len(a))
	}
}
