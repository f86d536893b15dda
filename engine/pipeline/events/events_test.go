package events

import (
	"encoding/json"
	"testing"
)

func TestSubjectUsesColonSeparator(t *testing.T) {
	if got, want := Subject("abc123"), "sse:abc123"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBatchCompletedType(t *testing.T) {
	if got, want := BatchCompletedType("translation"), "translation_batch_completed"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, _ := json.Marshal(StageCompletedData{Stage: "ocr", UIAction: "update_ocr_display"})
	env := Envelope{Type: TypeStageCompleted, SessionID: "s1", Data: data}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != TypeStageCompleted || decoded.SessionID != "s1" {
		t.Fatalf("got %+v", decoded)
	}
	var payload StageCompletedData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Stage != "ocr" {
		t.Fatalf("got %+v", payload)
	}
}

func TestNewPublisherKeepsNilCounters(t *testing.T) {
	p := NewPublisher(nil, nil)
	if p.counters != nil {
		t.Fatal("expected nil counters to stay nil")
	}
}

type fakeCounter struct{ count int }

func (f fakeCounter) SubscriberCount(string) int { return f.count }

func TestNewPublisherUsesGivenCounter(t *testing.T) {
	p := NewPublisher(nil, fakeCounter{count: 0})
	if p.counters.SubscriberCount("s1") != 0 {
		t.Fatal("expected zero subscribers")
	}
	p2 := NewPublisher(nil, fakeCounter{count: 2})
	if p2.counters.SubscriberCount("s1") != 2 {
		t.Fatal("expected two subscribers")
	}
}
