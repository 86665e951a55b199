package gtin

import (
	"strings"
	"testing"
)

func TestValidAcceptsKnownLengths(t *testing.T) {
	t.Parallel()

	valid := []string{
		"4006381333932",  // EAN-13
		"036000291454",   // UPC-A
		"96385075",       // EAN-8
		"12345678901237", // GTIN-14
	}
	for _, code := range valid {
		if !Valid(code) {
			t.Fatalf("expected %s to be valid", code)
		}
	}
}

func TestValidRejectsChecksumAndLength(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"4006391333932", // single digit flipped
		"4006381333933", // wrong check digit
		"12345",         // too short
		"123456789",     // 9 digits not a barcode length
		"",
	}
	for _, code := range invalid {
		if Valid(code) {
			t.Fatalf("expected %s to be invalid", code)
		}
	}
}

func TestCleanStripsSeparators(t *testing.T) {
	t.Parallel()

	if got := Clean(" 4006381-333932 "); got != "4006381333932" {
		t.Fatalf("unexpected cleaned code: %s", got)
	}
	if !Valid("4006381-333932") {
		t.Fatalf("expected separator-laden code to validate after cleaning")
	}
}

func TestNormalizeReturnsEmptyForInvalid(t *testing.T) {
	t.Parallel()

	if got := Normalize("4006381333932"); got != "4006381333932" {
		t.Fatalf("unexpected normalized code: %s", got)
	}
	if got := Normalize("not-a-code"); got != "" {
		t.Fatalf("expected empty result for garbage, got %s", got)
	}
}

func TestFindCandidatesScansText(t *testing.T) {
	t.Parallel()

	text := `<div data-ean="4006381333932">item 12345 priced at 19.99</div>
<span>sku 036000291454</span>`
	got := FindCandidates(text, 3)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", got)
	}
	joined := strings.Join(got, ",")
	if joined != "4006381333932,036000291454" {
		t.Fatalf("unexpected candidates order: %s", joined)
	}
}

func TestFindCandidatesHonorsLimit(t *testing.T) {
	t.Parallel()

	text := "4006381333932 036000291454 96385075"
	got := FindCandidates(text, 1)
	if len(got) != 1 || got[0] != "4006381333932" {
		t.Fatalf("expected first candidate only, got %v", got)
	}
}
