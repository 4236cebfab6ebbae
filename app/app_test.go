package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wyfcoding/optiongreeks/logging"
)

type fakeServer struct {
	startErr error
	mu       sync.Mutex
	stopped  bool
}

func (s *fakeServer) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestRunContextGracefulShutdown(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	srv := &fakeServer{}
	a := New("test", logging.NewLogger("test", "app"),
		WithServer(srv),
		WithHook(Hook{
			Name:    "db",
			OnStart: func(context.Context) error { record("start db"); return nil },
			OnStop:  func(context.Context) error { record("stop db"); return nil },
		}),
		WithHook(Hook{
			Name:    "cache",
			OnStart: func(context.Context) error { record("start cache"); return nil },
			OnStop:  func(context.Context) error { record("stop cache"); return nil },
		}),
		WithCleanup(func() { record("cleanup 1") }),
		WithCleanup(func() { record("cleanup 2") }),
		WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunContext(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunContext: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunContext did not return")
	}
	if !srv.isStopped() {
		t.Error("server not stopped")
	}

	want := []string{"start db", "start cache", "stop cache", "stop db", "cleanup 2", "cleanup 1"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRunContextServerFailure(t *testing.T) {
	boom := errors.New("listen: address in use")
	healthy := &fakeServer{}
	cleaned := false
	a := New("test", logging.NewLogger("test", "app"),
		WithServer(healthy, &fakeServer{startErr: boom}),
		WithCleanup(func() { cleaned = true }),
	)

	err := a.RunContext(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !healthy.isStopped() || !cleaned {
		t.Error("shutdown must stop servers and run cleanups after a server failure")
	}
}

func TestRunContextHookFailure(t *testing.T) {
	stopped := false
	a := New("test", logging.NewLogger("test", "app"),
		WithHook(Hook{Name: "ok", OnStop: func(context.Context) error { stopped = true; return nil }}),
		WithHook(Hook{Name: "bad", OnStart: func(context.Context) error { return errors.New("migrate failed") }}),
	)

	if err := a.RunContext(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !stopped {
		t.Error("hooks started before the failure must be stopped")
	}
}
