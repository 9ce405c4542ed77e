package project

import (
	"sync"
	"time"
)

// Metrics tracks statistics about one project execution.
type Metrics struct {
	NodesExecuted    int
	NodesSucceeded   int
	NodesFailed      int
	NodesSkipped     int
	TotalDuration    time.Duration
	LongestNodeTime  time.Duration
	ShortestNodeTime time.Duration

	mu sync.Mutex
}

func (m *Metrics) record(d time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NodesExecuted++
	if failed {
		m.NodesFailed++
	} else {
		m.NodesSucceeded++
	}
	if d > m.LongestNodeTime {
		m.LongestNodeTime = d
	}
	if m.ShortestNodeTime == 0 || d < m.ShortestNodeTime {
		m.ShortestNodeTime = d
	}
}

func (m *Metrics) finish(total time.Duration, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalDuration = total
	m.NodesSkipped = skipped
}

// Copy returns a snapshot without the mutex.
func (m *Metrics) Copy() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		NodesExecuted:    m.NodesExecuted,
		NodesSucceeded:   m.NodesSucceeded,
		NodesFailed:      m.NodesFailed,
		NodesSkipped:     m.NodesSkipped,
		TotalDuration:    m.TotalDuration,
		LongestNodeTime:  m.LongestNodeTime,
		ShortestNodeTime: m.ShortestNodeTime,
	}
}
