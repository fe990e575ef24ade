package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestConnectionManager_ConnectsOnce(t *testing.T) {
	cm := NewConnectionManager()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cm.Connect(context.Background(), func(context.Context) error {
				calls.Add(1)
				return nil
			}); err != nil {
				t.Errorf("Connect returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected a single exchange, got %d", calls.Load())
	}
	if !cm.IsConnected() {
		t.Error("expected manager to be connected")
	}
}

func TestConnectionManager_RetriesAfterFailure(t *testing.T) {
	cm := NewConnectionManager()
	boom := errors.New("token endpoint down")

	if err := cm.Connect(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected first failure, got %v", err)
	}
	if cm.IsConnected() {
		t.Fatal("failed attempt must not mark the manager connected")
	}

	if err := cm.Connect(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("second attempt returned error: %v", err)
	}
	if !cm.IsConnected() {
		t.Error("expected manager to be connected after retry")
	}
}

func TestConnectionManager_CanceledContext(t *testing.T) {
	cm := NewConnectionManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cm.Connect(ctx, func(context.Context) error {
		t.Fatal("fn must not run with a canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
