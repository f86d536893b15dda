package tasks

import (
	"encoding/json"
	"testing"
)

// TestSearchImageLinksEncodeAsJSONArray exercises the exact marshal call
// RunSearchImage's persist callback makes, confirming the stored value is
// a JSON array (not a comma-joined string) so MenuItem.SearchImages'
// documented shape holds.
func TestSearchImageLinksEncodeAsJSONArray(t *testing.T) {
	links := []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}
	encoded, err := json.Marshal(links)
	if err != nil {
		t.Fatal(err)
	}

	var decoded []string
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("expected valid JSON array, got %q: %v", encoded, err)
	}
	if len(decoded) != 2 || decoded[0] != links[0] || decoded[1] != links[1] {
		t.Fatalf("round-trip mismatch: got %v", decoded)
	}
}

func TestSearchImageEmptyLinksEncodeAsEmptyArray(t *testing.T) {
	links := []string{}
	encoded, err := json.Marshal(links)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", encoded)
	}
}
