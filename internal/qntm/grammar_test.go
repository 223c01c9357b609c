package qntm

import "testing"

func TestParseKey_Valid(t *testing.T) {
	cases := []string{
		"user ~ prefers ~ dark_mode",
		"project_atlas ~ depends_on ~ [qdrant, embeddings]",
		"alice ~ works_on:lead ~ backend_service",
	}
	for _, raw := range cases {
		if _, err := ParseKey(raw); err != nil {
			t.Errorf("ParseKey(%q) unexpected error: %v", raw, err)
		}
	}
}

func TestParseKey_Invalid(t *testing.T) {
	cases := []string{
		"only_two ~ parts",
		"Subject ~ predicate ~ object",
		"user ~ prefers ~ [unterminated",
		"user ~ ~ object",
	}
	for _, raw := range cases {
		if _, err := ParseKey(raw); err == nil {
			t.Errorf("ParseKey(%q) expected error, got nil", raw)
		}
	}
}

func TestKey_String_RoundTrips(t *testing.T) {
	k := Key{Subject: "user", Predicate: "prefers", Object: "dark_mode"}
	parsed, err := ParseKey(k.String())
	if err != nil {
		t.Fatalf("ParseKey(String()) error: %v", err)
	}
	if parsed != k {
		t.Errorf("round trip mismatch: got %+v, want %+v", parsed, k)
	}
}

func TestValid(t *testing.T) {
	if !Valid("user ~ prefers ~ dark_mode") {
		t.Error("expected valid key to report Valid")
	}
	if Valid("not a key") {
		t.Error("expected invalid key to report not Valid")
	}
}
