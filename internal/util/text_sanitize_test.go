package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\txy"
	out := SanitizeText(in)
	if out != "abcd\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestSanitizeTextLeavesCleanTextAlone(t *testing.T) {
	in := " Nux pometum kah nashpe. "
	if out := SanitizeText(in); out != in {
		t.Fatalf("clean text changed: %q", out)
	}
}
