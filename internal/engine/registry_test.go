package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func namedHandler(name, version string) Handler {
	return NewHandler(name, func(_ context.Context, env *Env, _ *Instruction) error {
		env.Vars[name] = version
		return nil
	})
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register(namedHandler("echo", "v1"))
	r.Register(namedHandler("echo", "v2"))

	h, ok := r.Lookup("echo")
	if !ok {
		t.Fatal("Expected echo to be registered")
	}
	env := NewEnv(nil)
	_ = h.Handle(context.Background(), env, &Instruction{Name: "echo"})
	if env.Vars["echo"] != "v2" {
		t.Errorf("Expected last registration to win, got %v", env.Vars["echo"])
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 handler, got %d", r.Len())
	}
}

func TestRegistryRemoveAndNames(t *testing.T) {
	r := NewRegistry()
	r.Register(namedHandler("set", ""))
	r.Register(namedHandler("echo", ""))
	r.Register(namedHandler("get", ""))
	r.Register(nil)

	if want := []string{"echo", "get", "set"}; !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("Expected %v, got %v", want, r.Names())
	}

	r.Remove("get")
	if _, ok := r.Lookup("get"); ok {
		t.Error("Expected get to be removed")
	}
	r.Remove("never-registered")
	if r.Len() != 2 {
		t.Errorf("Expected 2 handlers, got %d", r.Len())
	}
}

func TestRegistryReplacePublishesWholeTable(t *testing.T) {
	r := NewRegistry()
	r.Register(namedHandler("old", ""))

	r.Replace([]Handler{namedHandler("a", ""), namedHandler("b", ""), nil})

	if _, ok := r.Lookup("old"); ok {
		t.Error("Replace should drop handlers not in the new set")
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("Expected %v, got %v", want, r.Names())
	}
}

func TestRegistryReadersSeeCompleteSnapshots(t *testing.T) {
	r := NewRegistry()
	full := []Handler{namedHandler("x", ""), namedHandler("y", "")}
	r.Replace(full)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Replace(full)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		if n := r.Len(); n != 2 {
			t.Fatalf("Observed partially built table with %d entries", n)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRegistryUpdateHoldsWriters(t *testing.T) {
	r := NewRegistry()
	r.Register(namedHandler("old", ""))

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.Update(func(cur map[string]Handler) ([]Handler, error) {
			close(inside)
			<-release
			return []Handler{cur["old"]}, nil
		})
	}()
	<-inside

	registered := make(chan struct{})
	go func() {
		r.Register(namedHandler("fresh", ""))
		close(registered)
	}()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	<-registered

	if want := []string{"fresh", "old"}; !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("Expected %v, got %v", want, r.Names())
	}

	boom := errors.New("boom")
	if err := r.Update(func(map[string]Handler) ([]Handler, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Expected the update error, got %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("A failed update must leave the table untouched, got %d handlers", r.Len())
	}
}
