package workflow

import "time"

// RunStats records which stages ran and how long each took.
type RunStats struct {
	Total   int
	Ran     []string
	Elapsed map[string]time.Duration
}

func (s *RunStats) record(name string, d time.Duration) {
	if s.Elapsed == nil {
		s.Elapsed = make(map[string]time.Duration)
	}
	s.Ran = append(s.Ran, name)
	s.Elapsed[name] = d
}

// TotalElapsed sums the time spent in every stage that ran.
func (s *RunStats) TotalElapsed() time.Duration {
	var total time.Duration
	for _, d := range s.Elapsed {
		total += d
	}
	return total
}
