package bridge

import (
	"testing"
	"time"
)

func TestDetectionCacheConsumeOnce(t *testing.T) {
	cache := NewDetectionCache()
	cache.Store("CA123", DetectionResult{Answered: true, Reason: "quick_confirmation_pattern", Confidence: 0.99, FirstWords: "ok"})

	rec, ok := cache.Consume("CA123")
	if !ok {
		t.Fatal("expected record to be present")
	}
	if !rec.Answered || rec.Reason != "quick_confirmation_pattern" || rec.FirstWords != "ok" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, ok := cache.Consume("CA123"); ok {
		t.Error("record must be gone after first consume")
	}
}

func TestDetectionCacheMissing(t *testing.T) {
	cache := NewDetectionCache()
	if _, ok := cache.Consume("CA999"); ok {
		t.Error("expected miss for unknown call sid")
	}
}

func TestDetectionCacheExpiry(t *testing.T) {
	cache := NewDetectionCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Store("CA1", DetectionResult{Answered: true})

	now = now.Add(detectionTTL + time.Second)
	if _, ok := cache.Consume("CA1"); ok {
		t.Error("expired record must be treated as absent")
	}
}

func TestDetectionCacheSweepOnStore(t *testing.T) {
	cache := NewDetectionCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Store("CA1", DetectionResult{Answered: true})
	cache.Store("CA2", DetectionResult{Answered: false})

	now = now.Add(detectionTTL + time.Second)
	cache.Store("CA3", DetectionResult{Answered: true})

	if got := cache.Len(); got != 1 {
		t.Errorf("expected stale records swept, len=%d", got)
	}
}
