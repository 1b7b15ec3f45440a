package bridge

import (
	"sync"
	"time"
)

// detectionTTL bounds how long a verification outcome waits for its media
// session before being evicted.
const detectionTTL = 5 * time.Minute

// DetectionRecord carries the SDR verification outcome from the HTTP
// handler that ran the gather to the media session that owns the call.
type DetectionRecord struct {
	CallSid    string
	Answered   bool
	Reason     string
	Confidence float64
	FirstWords string
	CreatedAt  time.Time
}

// DetectionCache is a process-wide map keyed by the provider call sid.
// Records are consumed exactly once; stale entries are swept on write.
type DetectionCache struct {
	mu      sync.Mutex
	records map[string]DetectionRecord
	now     func() time.Time
}

func NewDetectionCache() *DetectionCache {
	return &DetectionCache{
		records: make(map[string]DetectionRecord),
		now:     time.Now,
	}
}

// Store saves the verification outcome and sweeps expired entries.
func (c *DetectionCache) Store(callSid string, result DetectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for sid, rec := range c.records {
		if now.Sub(rec.CreatedAt) > detectionTTL {
			delete(c.records, sid)
		}
	}

	c.records[callSid] = DetectionRecord{
		CallSid:    callSid,
		Answered:   result.Answered,
		Reason:     result.Reason,
		Confidence: result.Confidence,
		FirstWords: result.FirstWords,
		CreatedAt:  now,
	}
}

// Consume returns and deletes the record for callSid. Expired records are
// treated as absent.
func (c *DetectionCache) Consume(callSid string) (DetectionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[callSid]
	if !ok {
		return DetectionRecord{}, false
	}
	delete(c.records, callSid)

	if c.now().Sub(rec.CreatedAt) > detectionTTL {
		return DetectionRecord{}, false
	}
	return rec, true
}

// Len reports how many records are currently held.
func (c *DetectionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
