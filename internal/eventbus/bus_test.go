package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: ReadingIngested, Data: Ingested{DeviceID: "HT-01"}})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Type != ReadingIngested || ev.Time.IsZero() {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if got := ev.Data.(Ingested).DeviceID; got != "HT-01" {
			t.Fatalf("device: %q", got)
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	if ev := <-ch; ev.Type != "a" {
		t.Fatalf("expected first event kept, got %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected drop, got %s", ev.Type)
	default:
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish(Event{Type: "after"})
}
