package cache

import (
	"testing"
	"time"
)

func TestCacheExpiresLazily(t *testing.T) {
	c := New[string](time.Minute, 0)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should have been removed, len=%d", c.Len())
	}
}

func TestCacheEvictsWhenFull(t *testing.T) {
	c := New[int](time.Hour, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	if c.Len() != 2 {
		t.Errorf("expected cache bounded to 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("latest entry must be kept")
	}
}

func TestGenerateKeySeparatesFields(t *testing.T) {
	if GenerateKey("ab", "c") == GenerateKey("a", "bc") {
		t.Error("keys must differ when the title/content split differs")
	}
}
