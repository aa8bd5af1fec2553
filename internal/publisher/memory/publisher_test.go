package memory

import (
	"context"
	"errors"
	"testing"
)

func TestPublisherStoresEncodedMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "harvest-runs", map[string]string{"source": "ruled_me"})
	if err != nil || id != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 || string(msgs[0].Data) != `{"source":"ruled_me"}` {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic != "harvest-runs" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("unavailable")
	pub.FailWith(boom)
	if _, err := pub.Publish(context.Background(), "t", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("failed publish must not be recorded")
	}
}
