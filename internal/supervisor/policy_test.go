package supervisor

import (
	"math"
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	p := Fixed(10 * time.Second)
	for _, attempt := range []int{1, 2, 50} {
		if got := p.Delay(attempt); got != 10*time.Second {
			t.Errorf("Delay(%d) = %v", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	p := Exponential{Base: time.Second, Max: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponential_LargeAttempts(t *testing.T) {
	p := Exponential{Base: 10 * time.Second}
	prev := time.Duration(0)
	for _, attempt := range []int{1, 10, 31, 63, 64, 70, 1000, math.MaxInt32} {
		got := p.Delay(attempt)
		if got <= 0 {
			t.Fatalf("Delay(%d) = %v, want positive", attempt, got)
		}
		if got < prev {
			t.Errorf("Delay(%d) = %v, shorter than the previous %v", attempt, got, prev)
		}
		if got > ceilingDelay {
			t.Errorf("Delay(%d) = %v, above %v", attempt, got, ceilingDelay)
		}
		prev = got
	}

	capped := Exponential{Base: time.Second, Max: time.Minute}
	if got := capped.Delay(1000); got != time.Minute {
		t.Errorf("Delay(1000) = %v, want %v", got, time.Minute)
	}
	if got := (Exponential{Base: time.Hour, Max: time.Minute}).Delay(1); got != time.Minute {
		t.Errorf("base above max: Delay(1) = %v, want %v", got, time.Minute)
	}
}

func TestParsePolicy_ExponentialWithoutMax(t *testing.T) {
	p, err := ParsePolicy("exponential", 10*time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, attempt := range []int{31, 70} {
		if got := p.Delay(attempt); got != DefaultMaxDelay {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, DefaultMaxDelay)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Delay(1) != DefaultDelay {
		t.Errorf("expected default delay, got %v", p.Delay(1))
	}

	p, err = ParsePolicy("Exponential", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(Exponential); !ok {
		t.Errorf("expected Exponential, got %T", p)
	}

	if _, err := ParsePolicy("linear", time.Second, 0); err == nil {
		t.Error("expected error for unknown policy")
	}
}
