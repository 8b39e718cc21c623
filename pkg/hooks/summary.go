package hooks

import "sync"

// Summary aggregates results over a run. Add and Merge are safe for
// concurrent use.
type Summary struct {
	mu        sync.Mutex
	Found     int
	Updated   int
	Unchanged int
	Failed    int
	Skipped   int
	Results   []Result
}

// Add records one result.
func (s *Summary) Add(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(r)
}

func (s *Summary) add(r Result) {
	s.Found++
	switch r.Outcome {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

// Merge folds other's results into s.
func (s *Summary) Merge(other *Summary) {
	if other == nil || other == s {
		return
	}
	other.mu.Lock()
	results := append([]Result(nil), other.Results...)
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		s.add(r)
	}
}

// HasFailures reports whether any repository failed.
func (s *Summary) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Failed > 0
}

// Counts returns a consistent copy of the counters.
func (s *Summary) Counts() (found, updated, unchanged, failed, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Found, s.Updated, s.Unchanged, s.Failed, s.Skipped
}
