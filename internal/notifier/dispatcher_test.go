package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSink struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, dest string) error
}

func (f *fakeSink) Send(ctx context.Context, dest, text string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[dest]++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, dest)
	}
	return nil
}

func fastConfig() Config {
	return Config{Workers: 4, RatePerSec: 1000, SendTimeout: 200 * time.Millisecond}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	sink := &fakeSink{fn: func(ctx context.Context, dest string) error {
		switch dest {
		case "U2":
			return errors.New("boom")
		case "U3":
			panic("bad sink")
		case "U4":
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	d := New(fastConfig(), sink, logxNop())
	out := d.Dispatch(context.Background(), []string{"U1", "U2", "U3", "U4", "U5"}, "hi")

	if len(out) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(out))
	}
	want := []Status{Delivered, Failed, Failed, Failed, Delivered}
	for i, o := range out {
		if o.Status != want[i] {
			t.Fatalf("outcome %d (%s): got %s want %s (%s)", i, o.Destination, o.Status, want[i], o.Detail)
		}
	}
	if out[1].Detail != "boom" {
		t.Fatalf("unexpected detail: %q", out[1].Detail)
	}
	for _, dest := range []string{"U1", "U2", "U3", "U4", "U5"} {
		if sink.calls[dest] != 1 {
			t.Fatalf("%s attempted %d times", dest, sink.calls[dest])
		}
	}
}

func TestDispatchPreservesOrderUnderConcurrency(t *testing.T) {
	var n atomic.Int32
	sink := &fakeSink{fn: func(ctx context.Context, dest string) error {
		if n.Add(1)%2 == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		return nil
	}}
	d := New(fastConfig(), sink, logxNop())
	dests := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	out := d.Dispatch(context.Background(), dests, "x")
	for i, o := range out {
		if o.Destination != dests[i] {
			t.Fatalf("position %d: got %s want %s", i, o.Destination, dests[i])
		}
	}
}

func TestDispatchEmpty(t *testing.T) {
	d := New(fastConfig(), &fakeSink{}, logxNop())
	if out := d.Dispatch(context.Background(), nil, "x"); len(out) != 0 {
		t.Fatalf("expected no outcomes, got %v", out)
	}
}

func TestDispatchNilSink(t *testing.T) {
	d := New(fastConfig(), nil, logxNop())
	out := d.Dispatch(context.Background(), []string{"U1"}, "x")
	if out[0].Status != Failed {
		t.Fatalf("expected failed, got %s", out[0].Status)
	}
}

func TestCounts(t *testing.T) {
	del, fail, skip := Counts([]Outcome{{Status: Delivered}, {Status: Failed}, {Status: Delivered}, Skip("x")})
	if del != 2 || fail != 1 || skip != 1 {
		t.Fatalf("got %d/%d/%d", del, fail, skip)
	}
}

func TestRouterPicksByPrefix(t *testing.T) {
	line := &fakeSink{}
	tg := &fakeSink{}
	r := NewRouter(line, Route{Prefix: "tg:", Sink: tg})

	if err := r.Send(context.Background(), "tg:123", "x"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := r.Send(context.Background(), "Uabc", "x"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tg.calls["tg:123"] != 1 || line.calls["Uabc"] != 1 {
		t.Fatalf("misrouted: tg=%v line=%v", tg.calls, line.calls)
	}

	bare := NewRouter(nil)
	if err := bare.Send(context.Background(), "U1", "x"); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}

	disabled := NewRouter(line, Route{Prefix: "tg:"})
	if err := disabled.Send(context.Background(), "tg:9", "x"); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute for a disabled platform, got %v", err)
	}
	if line.calls["tg:9"] != 0 {
		t.Fatalf("disabled platform fell through to the fallback")
	}
}
