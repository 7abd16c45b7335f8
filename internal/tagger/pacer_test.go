package tagger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacer_WaitUsesConfiguredDelay(t *testing.T) {
	clock := &fakeClock{}
	p := NewPacer(1200*time.Millisecond, 0, WithSleep(clock.sleep))
	p.Wait()
	p.Wait()
	if len(clock.slept) != 2 || clock.slept[0] != 1200*time.Millisecond {
		t.Errorf("slept %v, want two delays of 1.2s", clock.slept)
	}
}

func TestPacer_WaitZeroDelayNoSleep(t *testing.T) {
	clock := &fakeClock{}
	NewPacer(0, 0, WithSleep(clock.sleep)).Wait()
	if len(clock.slept) != 0 {
		t.Errorf("slept %v, want no sleeps", clock.slept)
	}
}

func TestPacer_DoBackoffDoubles(t *testing.T) {
	clock := &fakeClock{}
	p := NewPacer(time.Second, 3, WithSleep(clock.sleep))
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return ErrRateLimited
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if calls != 4 {
		t.Errorf("fn called %d times, want 4 (1 + 3 retries)", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(clock.slept) != len(want) {
		t.Fatalf("slept %v, want %v", clock.slept, want)
	}
	for i := range want {
		if clock.slept[i] != want[i] {
			t.Errorf("backoff %d = %v, want %v", i, clock.slept[i], want[i])
		}
	}
}

func TestPacer_DoStopsOnSuccess(t *testing.T) {
	p := NewPacer(time.Millisecond, 5, WithSleep(func(time.Duration) {}))
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrTimeout
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestPacer_DoNonTransientNoRetry(t *testing.T) {
	p := NewPacer(time.Millisecond, 5, WithSleep(func(time.Duration) {}))
	permanent := errors.New("invalid request")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestPacer_DoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPacer(time.Millisecond, 5, WithSleep(func(time.Duration) {}))
	err := p.Do(ctx, func() error { return ErrRateLimited })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrRateLimited, true},
		{ErrTimeout, true},
		{errors.New("boom"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
