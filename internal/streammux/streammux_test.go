package streammux

import (
	"context"
	"testing"
	"time"

	"github.com/sentineloop/incident-agent/internal/fact"
)

func podFact(name string) fact.Fact {
	return fact.NewPodFact(fact.Pod{Name: name, Namespace: "default"})
}

func TestMuxFansInMultipleSources(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a := make(chan fact.Fact, 4)
	b := make(chan fact.Fact, 4)
	a <- podFact("a1")
	a <- podFact("a2")
	close(a)
	b <- podFact("b1")
	close(b)

	mux := New(8, nil)
	out, err := mux.Run(ctx, []Source{{Name: "a", Facts: a}, {Name: "b", Facts: b}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	seen := map[string]bool{}
	for f := range out {
		seen[f.Pod.Name] = true
	}
	for _, want := range []string{"a1", "a2", "b1"} {
		if !seen[want] {
			t.Errorf("expected to see fact %s, got %v", want, seen)
		}
	}
}

func TestMuxDropsOldestOnBackpressure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	src := make(chan fact.Fact, 16)
	for i := 0; i < 10; i++ {
		src <- podFact("p")
	}
	close(src)

	var dropped []string
	mux := New(2, func(source string, f fact.Fact) {
		dropped = append(dropped, source)
	})
	out, err := mux.Run(ctx, []Source{{Name: "watcher", Facts: src}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	count := 0
	for range out {
		count++
	}
	if count+len(dropped) != 10 {
		t.Errorf("expected delivered (%d) + dropped (%d) to account for all 10 facts read from the source", count, len(dropped))
	}
	for _, source := range dropped {
		if source != "watcher" {
			t.Errorf("expected drops attributed to source watcher, got %s", source)
		}
	}
}

func TestMuxCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan fact.Fact)
	mux := New(4, nil)
	out, err := mux.Run(ctx, []Source{{Name: "watcher", Facts: src}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected output channel to close without delivering facts after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for output channel to close after cancellation")
	}
}
