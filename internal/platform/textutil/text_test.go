package textutil

import (
	"reflect"
	"testing"
)

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"Leave at the <b>gate</b>":                      "Leave at the gate",
		"<script>alert(1)</script>Blk 4   Lot 2":        "Blk 4 Lot 2",
		"  Juan &amp; Sons\n Hardware ":                 "Juan & Sons Hardware",
		"<a href=\"javascript:void(0)\">Quezon City</a>": "Quezon City",
		"":                                              "",
	}
	for input, want := range cases {
		if got := PlainText(input); got != want {
			t.Fatalf("PlainText(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Pedro Penduko", 5); got != "Pedro" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("Ñandú", 3); got != "Ñan" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
	if got := Truncate("short", 0); got != "short" {
		t.Fatalf("expected no-op for zero limit, got %q", got)
	}
}

func TestNormalizeStringMap(t *testing.T) {
	input := map[string]string{
		" order_id ": " 42 ",
		"user_id":    "7",
		" ":          "ignored",
	}
	expected := map[string]string{"order_id": "42", "user_id": "7"}
	if actual := NormalizeStringMap(input); !reflect.DeepEqual(actual, expected) {
		t.Fatalf("expected %#v got %#v", expected, actual)
	}
	if NormalizeStringMap(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}
