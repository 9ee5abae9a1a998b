package report

import (
	"fmt"
	"sync"
	"time"
)

// Sequence hands out yearly report identifiers of the form BUG-YYYY-NNN
// from process memory. The counter restarts when the calendar year changes.
// Stores shared between processes allocate through storage instead.
type Sequence struct {
	mu   sync.Mutex
	year int
	last int
}

func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) Next(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := now.UTC().Year()
	if year != s.year {
		s.year = year
		s.last = 0
	}
	s.last++

	return FormatID(year, s.last)
}

func FormatID(year int, n int) string {
	return fmt.Sprintf("BUG-%d-%03d", year, n)
}
