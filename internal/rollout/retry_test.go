package rollout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tinkerbelle-io/tb-rollout/internal/salt"
)

func TestRetrySucceedsWithinBudget(t *testing.T) {
	exec := &fakeExecutor{}
	o, _ := newTestOrchestrator(exec, Options{Nodes: []string{"node-a"}, Action: ActionUpdateConfigs})

	calls := 0
	fn := func(context.Context, string) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("attempt %d failed", calls)
		}
		return nil
	}

	if err := o.retry(context.Background(), "node-a", fn); err != nil {
		t.Fatalf("retry should succeed on the third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 invocations, got %d", calls)
	}
}

func TestRetryExhaustionAfterExactlyBudgetAttempts(t *testing.T) {
	exec := &fakeExecutor{}
	o, _ := newTestOrchestrator(exec, Options{Nodes: []string{"node-a"}, Action: ActionUpdateConfigs})

	calls := 0
	boom := errors.New("boom")
	fn := func(context.Context, string) error {
		calls++
		return boom
	}

	err := o.retry(context.Background(), "node-a", fn)

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 invocations, never a 4th, got %d", calls)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("exhaustion should wrap the last handler error")
	}
}

func TestRetryWipesShimBetweenAttemptsInSSHMode(t *testing.T) {
	exec := &fakeExecutor{mode: salt.ModeSSH}
	o, _ := newTestOrchestrator(exec, Options{Nodes: []string{"node-a"}, Action: ActionUpdateConfigs})

	fn := func(context.Context, string) error { return errors.New("boom") }
	if err := o.retry(context.Background(), "node-a", fn); err == nil {
		t.Fatal("expected exhaustion")
	}

	// Wipes happen between attempts, not after the last one.
	if exec.wipeCalls != 2 {
		t.Errorf("expected 2 shim wipes for 3 attempts, got %d", exec.wipeCalls)
	}
}

func TestRetryNeverWipesShimInMinionMode(t *testing.T) {
	exec := &fakeExecutor{}
	o, _ := newTestOrchestrator(exec, Options{Nodes: []string{"node-a"}, Action: ActionUpdateConfigs})

	fn := func(context.Context, string) error { return errors.New("boom") }
	if err := o.retry(context.Background(), "node-a", fn); err == nil {
		t.Fatal("expected exhaustion")
	}
	if exec.wipeCalls != 0 {
		t.Errorf("expected no shim wipes on the minion transport, got %d", exec.wipeCalls)
	}
}
