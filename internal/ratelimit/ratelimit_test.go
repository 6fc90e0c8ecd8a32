package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBudgetPerProvider(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{Groq: 2, Gemini: 0}, 0)

	for i := 0; i < 2; i++ {
		if err := rl.Use(Groq); err != nil {
			t.Fatalf("use %d: %v", i, err)
		}
	}
	if rl.CanUse(Groq) {
		t.Error("groq budget should be exhausted")
	}
	if err := rl.Use(Groq); err == nil {
		t.Error("expected error once budget is exhausted")
	}
	if !rl.CanUse(Gemini) {
		t.Error("unlimited provider must stay available")
	}
}

func TestBudgetResetsDaily(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{Gemini: 1}, 0)
	now := time.Now()
	rl.now = func() time.Time { return now }

	if err := rl.Use(Gemini); err != nil {
		t.Fatal(err)
	}
	if rl.CanUse(Gemini) {
		t.Fatal("budget should be exhausted")
	}

	now = now.Add(25 * time.Hour)
	if !rl.CanUse(Gemini) {
		t.Error("budget should reset after a day")
	}
}

func TestTotalBudget(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{Groq: 0, Gemini: 0}, 1)
	if err := rl.Use(Groq); err != nil {
		t.Fatal(err)
	}
	if rl.CanUse(Gemini) {
		t.Error("total budget should block every provider")
	}
	stats := rl.GetStats()
	if stats["total_used"] != 1 {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestPacerZeroIntervalDoesNotWait(t *testing.T) {
	p := NewPacer(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestPacerSpacesCalls(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected calls to be spaced, elapsed %v", elapsed)
	}
}

func TestPacerPausesAfterSlowBatch(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond) // batch slower than the interval
	p.Done()

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected a pause after the batch, waited %v", elapsed)
	}
}
