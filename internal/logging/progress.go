package logging

import "sync"

// ProgressSampler decides which of a stream of frame completions are worth a
// log line: the first crossing of each bucket (a percentage of total) and
// the final frame. It is safe for concurrent use by render workers.
type ProgressSampler struct {
	mu         sync.Mutex
	total      int
	bucket     int
	lastBucket int
}

// NewProgressSampler samples progress over total frames in bucketPercent
// steps. Non-positive bucketPercent means 10.
func NewProgressSampler(total, bucketPercent int) *ProgressSampler {
	if bucketPercent <= 0 {
		bucketPercent = 10
	}
	return &ProgressSampler{total: total, bucket: bucketPercent, lastBucket: -1}
}

// Observe reports whether done frames of total should be logged, along with
// the whole percentage reached. Calls may arrive out of order; a bucket is
// only reported once.
func (s *ProgressSampler) Observe(done int) (int, bool) {
	if s == nil || s.total <= 0 {
		return 0, false
	}
	done = min(max(done, 0), s.total)
	percent := done * 100 / s.total
	current := percent / s.bucket
	s.mu.Lock()
	defer s.mu.Unlock()
	if current <= s.lastBucket {
		return percent, false
	}
	s.lastBucket = current
	return percent, true
}
