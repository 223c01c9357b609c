package events

import "testing"

func TestBus_DeliversMatchingPattern(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe([]string{"ingest.*"})
	defer b.Unsubscribe(id)

	b.Publish(Event{Type: "ingest.progress", Params: map[string]any{"done": 1}})
	b.Publish(Event{Type: "consolidate.progress"})

	select {
	case e := <-ch:
		if e.Type != "ingest.progress" {
			t.Fatalf("expected ingest.progress, got %s", e.Type)
		}
	default:
		t.Fatal("expected a delivered event")
	}

	select {
	case e := <-ch:
		t.Fatalf("expected no second event, got %v", e)
	default:
	}
}

func TestBus_EmptyPatternsMatchesEverything(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe(nil)
	defer b.Unsubscribe(id)

	b.Publish(Event{Type: "watch.file_changed"})
	if len(ch) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(ch))
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe([]string{"*"})
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe([]string{"x"})

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(Event{Type: "x"})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected channel to cap at buffer size %d, got %d", subscriberBuffer, len(ch))
	}
}
