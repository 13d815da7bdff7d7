package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNewSessionEvent_Envelope(t *testing.T) {
	event := NewSessionEvent(EventAttemptSubmitted, AttemptSubmittedEvent{
		AttemptID:    "attempt-1",
		DefinitionID: "def-1",
		OwnerID:      "alice",
		Score:        3,
	})

	if event.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if event.Type != EventAttemptSubmitted {
		t.Errorf("Expected type %s, got %s", EventAttemptSubmitted, event.Type)
	}
	if event.Source != "session-engine" {
		t.Errorf("Expected source 'session-engine', got %q", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("Expected version '1.0', got %q", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("Event timestamp should not be zero")
	}
}

func TestMockEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := NewMockEventPublisher(logger)
	ctx := context.Background()

	for _, eventType := range []EventType{EventAttemptStarted, EventAttemptSubmitted, EventAttemptStarted} {
		if err := publisher.PublishSessionEvent(ctx, NewSessionEvent(eventType, nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	if got := len(publisher.PublishedEvents()); got != 3 {
		t.Errorf("Expected 3 events, got %d", got)
	}
	if got := len(publisher.EventsOfType(EventAttemptStarted)); got != 2 {
		t.Errorf("Expected 2 started events, got %d", got)
	}
	if got := len(publisher.EventsOfType(EventDefinitionActivated)); got != 0 {
		t.Errorf("Expected 0 activation events, got %d", got)
	}

	if err := publisher.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
