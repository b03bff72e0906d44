package ingest

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("press@example.com", "Festival", "body text")
	b := Fingerprint("press@example.com", "Festival", "body text")
	if a != b {
		t.Errorf("same input produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("fingerprint length = %d, want 32 hex chars", len(a))
	}
}

func TestFingerprintSensitiveToEachField(t *testing.T) {
	base := Fingerprint("press@example.com", "Festival", "body")
	cases := map[string]string{
		"sender":  Fingerprint("other@example.com", "Festival", "body"),
		"subject": Fingerprint("press@example.com", "Concert", "body"),
		"body":    Fingerprint("press@example.com", "Festival", "other body"),
	}
	for field, fp := range cases {
		if fp == base {
			t.Errorf("changing %s did not change the fingerprint", field)
		}
	}
}
