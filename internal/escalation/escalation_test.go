package escalation

import (
	"context"
	"testing"
	"time"
)

func TestRaiseAndRespond(t *testing.T) {
	ch := New(4)
	ctx := context.Background()

	if err := ch.Raise(ctx, Request{IncidentID: "crashloop:x", Reason: "replan attempts exhausted"}); err != nil {
		t.Fatalf("raise: %v", err)
	}

	select {
	case req := <-ch.Requests():
		if req.IncidentID != "crashloop:x" {
			t.Errorf("expected crashloop:x, got %s", req.IncidentID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for escalation request")
	}

	go ch.Respond("crashloop:x", Response{Decision: Approve})

	resp, err := ch.Await(ctx, "crashloop:x")
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if resp.Decision != Approve {
		t.Errorf("expected Approve, got %v", resp.Decision)
	}
}

func TestAwaitWithoutPendingRequestFails(t *testing.T) {
	ch := New(4)
	_, err := ch.Await(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("expected error awaiting a decision for an incident with no pending escalation")
	}
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	ch := New(4)
	ctx := context.Background()
	_ = ch.Raise(ctx, Request{IncidentID: "x", Reason: "r"})
	<-ch.Requests()

	awaitCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := ch.Await(awaitCtx, "x")
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestDecisionString(t *testing.T) {
	cases := map[Decision]string{Approve: "approve", Reject: "reject", TakeOver: "take_over"}
	for d, want := range cases {
		if d.String() != want {
			t.Errorf("Decision(%d).String() = %q, want %q", d, d.String(), want)
		}
	}
}
