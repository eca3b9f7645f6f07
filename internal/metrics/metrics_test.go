package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/mamashield/internal/alertfeed"
)

func TestInMemoryAppendNormalizes(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, Event{Type: EventDangerFlag}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	events, err := s.Since(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if e.ID == "" || e.Count != 1 || e.At.IsZero() || e.Details == nil {
		t.Fatalf("event not normalized: %+v", e)
	}
}

func TestInMemorySinceFilters(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	cutoff := time.Now().UTC()

	old := Event{Type: EventMessageSent, At: cutoff.Add(-time.Hour)}
	recent := Event{Type: EventMessageReceived, At: cutoff.Add(time.Minute)}
	if err := s.Append(ctx, old); err != nil {
		t.Fatalf("Append(old) error = %v", err)
	}
	if err := s.Append(ctx, recent); err != nil {
		t.Fatalf("Append(recent) error = %v", err)
	}

	events, err := s.Since(ctx, cutoff)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != EventMessageReceived {
		t.Fatalf("Since() = %+v, want only the recent event", events)
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("boom") }
func (failingStore) Since(context.Context, time.Time) ([]Event, error) {
	return nil, errors.New("boom")
}
func (failingStore) Close() error { return nil }

func TestSinkNeverFailsCaller(t *testing.T) {
	sink := NewSink(failingStore{}, nil, nil, nil)
	// Must not panic or propagate the store error.
	sink.Record(context.Background(), EventMessageSent, map[string]string{"language": "en"})
}

func TestSinkPublishesAlertKinds(t *testing.T) {
	feed := alertfeed.NewHub()
	ch, cancel := feed.Subscribe()
	defer cancel()

	sink := NewSink(NewInMemoryStore(), feed, nil, nil)
	ctx := context.Background()

	sink.Record(ctx, EventCHWReferral, map[string]string{
		"signs":    "bleeding",
		"location": "Mulot tea zone",
	})
	sink.Record(ctx, EventMessageSent, nil) // not alert-worthy

	select {
	case e := <-ch:
		if e.Kind != alertfeed.KindCHWAlert {
			t.Fatalf("feed kind = %q, want %q", e.Kind, alertfeed.KindCHWAlert)
		}
		if e.Body != "location=Mulot tea zone signs=bleeding" {
			t.Fatalf("feed body = %q", e.Body)
		}
	case <-time.After(time.Second):
		t.Fatalf("chw_referral never reached the feed")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected feed event for %q", e.Kind)
	default:
	}
}

func TestSinkStillStoresEvents(t *testing.T) {
	store := NewInMemoryStore()
	sink := NewSink(store, nil, nil, nil)
	ctx := context.Background()

	sink.Record(ctx, EventTeaRegistration, nil)
	events, err := store.Since(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != EventTeaRegistration {
		t.Fatalf("stored events = %+v", events)
	}
}
