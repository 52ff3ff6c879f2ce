package events

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestEmitterOrderAndArgs(t *testing.T) {
	e := NewEmitter()
	var got []string

	e.On("request", func(args ...any) { got = append(got, "first:"+args[0].(string)) })
	e.On("request", func(args ...any) { got = append(got, "second:"+args[0].(string)) })
	e.On("close", func(args ...any) { got = append(got, "close") })

	if n := e.Emit("request", "a", 1); n != 2 {
		t.Errorf("Expected 2 handlers, got %d", n)
	}
	if n := e.Emit("unknown"); n != 0 {
		t.Errorf("Expected 0 handlers, got %d", n)
	}

	want := []string{"first:a", "second:a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if e.Listeners("close") != 1 {
		t.Errorf("Expected 1 close listener, got %d", e.Listeners("close"))
	}
}

func TestEmitterIgnoresNilHandler(t *testing.T) {
	e := NewEmitter()
	e.On("x", nil)
	if e.Listeners("x") != 0 {
		t.Error("nil handler should not be registered")
	}
}

func TestGateForwardsOnlyWhileEnabled(t *testing.T) {
	src := NewEmitter()
	g := NewGate(src)

	var calls [][]any
	if err := g.On("request", func(args ...any) { calls = append(calls, args) }); err != nil {
		t.Fatalf("On() failed: %v", err)
	}

	src.Emit("request", "dropped-before-enable")

	g.SetEnabled(true)
	src.Emit("request", "x", 2)

	g.SetEnabled(false)
	src.Emit("request", "dropped-after-disable")

	if len(calls) != 1 {
		t.Fatalf("Expected exactly 1 forwarded event, got %d: %v", len(calls), calls)
	}
	if !reflect.DeepEqual(calls[0], []any{"x", 2}) {
		t.Errorf("Expected original args, got %v", calls[0])
	}

	// Subscription survives a disable/enable cycle.
	g.SetEnabled(true)
	src.Emit("request", "again")
	if len(calls) != 2 {
		t.Errorf("Expected subscription to survive re-enable, got %d calls", len(calls))
	}
	if src.Listeners("request") != 1 {
		t.Errorf("Disabling must not remove subscriptions, got %d", src.Listeners("request"))
	}
}

func TestGateDisabledDoesNotAffectOtherObservers(t *testing.T) {
	src := NewEmitter()
	g := NewGate(src)
	g.SetEnabled(false)

	var direct int
	src.On("close", func(...any) { direct++ })
	_ = g.On("close", func(...any) { t.Error("gated observer should not run") })

	src.Emit("close")
	if direct != 1 {
		t.Errorf("Direct observer should still run, got %d", direct)
	}
}

func TestGateWithoutSource(t *testing.T) {
	g := NewGate(nil)
	if err := g.On("listening", func(...any) {}); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}

	src := NewEmitter()
	g.Attach(src)
	if err := g.On("listening", func(...any) {}); err != nil {
		t.Errorf("Expected no error after Attach, got %v", err)
	}
}

func TestGateConcurrentToggle(t *testing.T) {
	src := NewEmitter()
	g := NewGate(src)
	var mu sync.Mutex
	count := 0
	_ = g.On("tick", func(...any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.SetEnabled(j%2 == 0)
				src.Emit("tick", i)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count > 800 {
		t.Errorf("Forwarded more events than emitted: %d", count)
	}
}
