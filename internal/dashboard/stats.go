package dashboard

import (
	"sync/atomic"
	"time"
)

// StatsCollector counts relay outcomes since process start.
type StatsCollector struct {
	forwarded atomic.Int64
	failed    atomic.Int64
	startedAt time.Time
}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{startedAt: time.Now()}
}

// RecordForwarded counts a relay that got an answer from the upstream,
// whatever its status code.
func (s *StatsCollector) RecordForwarded() {
	s.forwarded.Add(1)
}

// RecordFailed counts a relay whose upstream call failed at the transport level.
func (s *StatsCollector) RecordFailed() {
	s.failed.Add(1)
}

func (s *StatsCollector) Snapshot() (forwarded, failed int64, uptime time.Duration) {
	return s.forwarded.Load(), s.failed.Load(), time.Since(s.startedAt)
}
