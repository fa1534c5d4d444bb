package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"novachat/internal/domain"
	"novachat/internal/messaging"
	"novachat/internal/store"
)

func waitConversation(t *testing.T, ch <-chan []domain.Message, ok func([]domain.Message) bool) []domain.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msgs := <-ch:
			if ok(msgs) {
				return msgs
			}
		case <-deadline:
			t.Fatalf("timed out waiting for conversation delivery")
		}
	}
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestConversationOrderAndSymmetry(t *testing.T) {
	m := store.NewMemory(nil)
	stream := messaging.NewStream(m, nil)
	pub := messaging.NewPublisher(m)
	ctx := context.Background()

	aliceCh := make(chan []domain.Message, 8)
	cancelA, err := stream.Subscribe(ctx, "alice", "bob", func(msgs []domain.Message) { aliceCh <- msgs })
	if err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	defer cancelA()

	// First delivery arrives before anything is sent and is empty, which is
	// distinct from no delivery at all.
	if got := waitConversation(t, aliceCh, func([]domain.Message) bool { return true }); len(got) != 0 {
		t.Fatalf("expected empty initial conversation, got %v", texts(got))
	}

	if err := pub.Send(ctx, "alice", "bob", "hi"); err != nil {
		t.Fatalf("send hi: %v", err)
	}
	if err := pub.Send(ctx, "bob", "alice", "hey"); err != nil {
		t.Fatalf("send hey: %v", err)
	}

	got := waitConversation(t, aliceCh, func(msgs []domain.Message) bool { return len(msgs) == 2 })
	if got[0].Text != "hi" || got[1].Text != "hey" {
		t.Fatalf("expected [hi hey], got %v", texts(got))
	}
	if got[0].From != "alice" || got[1].From != "bob" {
		t.Fatalf("unexpected senders: %+v", got)
	}

	// Bob's view of the same pair, with self and peer swapped, is identical.
	bobCh := make(chan []domain.Message, 8)
	cancelB, err := stream.Subscribe(ctx, "bob", "alice", func(msgs []domain.Message) { bobCh <- msgs })
	if err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}
	defer cancelB()

	bobGot := waitConversation(t, bobCh, func(msgs []domain.Message) bool { return len(msgs) == 2 })
	for i := range got {
		if bobGot[i].ID != got[i].ID || bobGot[i].Text != got[i].Text {
			t.Fatalf("views differ at %d: %+v vs %+v", i, bobGot[i], got[i])
		}
	}
}

func TestNoCrossConversationLeak(t *testing.T) {
	m := store.NewMemory(nil)
	stream := messaging.NewStream(m, nil)
	pub := messaging.NewPublisher(m)
	ctx := context.Background()

	if err := pub.Send(ctx, "alice", "bob", "for bob"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := pub.Send(ctx, "alice", "carol", "for carol"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := pub.Send(ctx, "bob", "carol", "not alice at all"); err != nil {
		t.Fatalf("send: %v", err)
	}

	ch := make(chan []domain.Message, 8)
	cancel, err := stream.Subscribe(ctx, "alice", "carol", func(msgs []domain.Message) { ch <- msgs })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	got := waitConversation(t, ch, func(msgs []domain.Message) bool { return len(msgs) >= 1 })
	if len(got) != 1 || got[0].Text != "for carol" {
		t.Fatalf("expected only the alice/carol message, got %v", texts(got))
	}
}

func TestPublisherRejectsInvalidInput(t *testing.T) {
	m := store.NewMemory(nil)
	pub := messaging.NewPublisher(m)
	ctx := context.Background()

	cases := []struct{ from, to, text string }{
		{"alice", "bob", "   "},
		{"alice", "bob", ""},
		{"alice", "Alice ", "hi"},
		{"", "bob", "hi"},
		{"alice", "", "hi"},
	}
	for _, c := range cases {
		if err := pub.Send(ctx, c.from, c.to, c.text); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Send(%q,%q,%q): expected ErrInvalidInput, got %v", c.from, c.to, c.text, err)
		}
	}

	// Nothing reached the store.
	stream := messaging.NewStream(m, nil)
	ch := make(chan []domain.Message, 8)
	cancel, err := stream.Subscribe(ctx, "alice", "bob", func(msgs []domain.Message) { ch <- msgs })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if got := waitConversation(t, ch, func([]domain.Message) bool { return true }); len(got) != 0 {
		t.Fatalf("expected no stored messages, got %v", texts(got))
	}
}

func TestPublisherTrimsText(t *testing.T) {
	m := store.NewMemory(nil)
	stream := messaging.NewStream(m, nil)
	pub := messaging.NewPublisher(m)
	ctx := context.Background()

	if err := pub.Send(ctx, "alice", "bob", "  hello  "); err != nil {
		t.Fatalf("send: %v", err)
	}

	ch := make(chan []domain.Message, 8)
	cancel, err := stream.Subscribe(ctx, "alice", "bob", func(msgs []domain.Message) { ch <- msgs })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	got := waitConversation(t, ch, func(msgs []domain.Message) bool { return len(msgs) == 1 })
	if got[0].Text != "hello" {
		t.Fatalf("expected trimmed text, got %q", got[0].Text)
	}
}
