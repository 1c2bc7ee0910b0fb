package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		rate float64
		want time.Duration
	}{
		{2, 500 * time.Millisecond},
		{10, 100 * time.Millisecond},
		{0, time.Second},
		{-5, time.Second},
	}
	for _, tt := range tests {
		if got := New(tt.rate).Interval(); got != tt.want {
			t.Errorf("New(%v).Interval() = %v, want %v", tt.rate, got, tt.want)
		}
	}
	if got := New(4).Rate(); got != 4 {
		t.Errorf("Rate() = %v, want 4", got)
	}
}

func TestWaitImmediate(t *testing.T) {
	l := New(1)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("expected near-instant first wait, got %v", elapsed)
	}
}

func TestWaitCancellation(t *testing.T) {
	l := New(1)
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestCancelledWaitReturnsPermit(t *testing.T) {
	l := New(100) // 10ms interval

	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_ = l.Wait(ctx)
		cancel()
	}

	// 9 permits at 10ms each; leaked slots would push this past 150ms.
	start := time.Now()
	for i := 0; i < 9; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("cancelled waits leaked permits: 9 permits took %v", elapsed)
	}
}

func TestWaitSpacing(t *testing.T) {
	l := New(50) // 20ms interval

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// First permit is free, the next three wait 20ms each.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("permits issued too fast: 4 permits in %v", elapsed)
	}
}
