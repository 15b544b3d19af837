package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func wait(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("task %s did not finish: %v", h.ID, err)
	}
}

func TestStart_Done(t *testing.T) {
	m := NewManager()
	h, err := m.Start(context.Background(), "u1", "receipt", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	wait(t, h)

	if h.Status() != Done {
		t.Errorf("Status = %s, want done", h.Status())
	}
	res, err := h.Result()
	if res != 42 || err != nil {
		t.Errorf("Result = %v, %v", res, err)
	}
	if v := h.View(); v.Kind != "receipt" || v.Result != 42 || v.Error != "" {
		t.Errorf("View = %+v", v)
	}
}

func TestStart_Failed(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	h, _ := m.Start(context.Background(), "u1", "statement", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	wait(t, h)

	if h.Status() != Failed {
		t.Errorf("Status = %s, want failed", h.Status())
	}
	if _, err := h.Result(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if v := h.View(); v.Error != "boom" {
		t.Errorf("View.Error = %q", v.Error)
	}
}

func TestCancel(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	h, _ := m.Start(context.Background(), "u1", "market", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	if _, err := m.Cancel("someone-else", h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel by another owner err = %v, want ErrNotFound", err)
	}
	if _, err := m.Cancel("u1", h.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	wait(t, h)

	if h.Status() != Canceled {
		t.Errorf("Status = %s, want canceled", h.Status())
	}
	if v := h.View(); v.Error != "" {
		t.Errorf("canceled task reports error %q", v.Error)
	}
}

func TestParentCancel(t *testing.T) {
	m := NewManager()
	parent, cancel := context.WithCancel(context.Background())
	h, _ := m.Start(parent, "u1", "receipt", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cancel()
	wait(t, h)
	if h.Status() != Canceled {
		t.Errorf("Status = %s, want canceled", h.Status())
	}
}

func TestGet_NotFound(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPrune(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	running, _ := m.Start(context.Background(), "u1", "a", func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})
	finished, _ := m.Start(context.Background(), "u1", "b", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	wait(t, finished)

	if n := m.Prune(time.Hour); n != 0 {
		t.Errorf("Prune(1h) = %d, want 0", n)
	}
	if n := m.Prune(0); n != 1 {
		t.Errorf("Prune(0) = %d, want 1", n)
	}
	if _, err := m.Get("u1", running.ID); err != nil {
		t.Errorf("running task pruned: %v", err)
	}
	close(block)
	wait(t, running)
}

func TestShutdown(t *testing.T) {
	m := NewManager()
	h, _ := m.Start(context.Background(), "u1", "a", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.Status() != Canceled {
		t.Errorf("Status = %s, want canceled", h.Status())
	}
	if _, err := m.Start(context.Background(), "u1", "b", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Shutdown err = %v, want ErrClosed", err)
	}
}
