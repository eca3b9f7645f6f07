package reliability

import (
	"context"
	"testing"
	"time"
)

func TestBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	ceiling := 700 * time.Millisecond
	if got := Backoff(0, base, ceiling); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := Backoff(1, base, ceiling); got != 200*time.Millisecond {
		t.Fatalf("attempt 1 = %v, want %v", got, 200*time.Millisecond)
	}
	if got := Backoff(10, base, ceiling); got != ceiling {
		t.Fatalf("attempt 10 = %v, want %v", got, ceiling)
	}
}

func TestSleepHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Second); err == nil {
		t.Fatal("Sleep() error = nil, want context error")
	}
}

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("Sleep() returned early")
	}
}
