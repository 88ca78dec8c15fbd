package trust

import "time"

const (
	dailyWindowDays   = 7
	maxLatencySamples = 64
)

// Counters holds the per-bond raw interaction statistics. They live for the
// process lifetime only and are discarded when the bond closes.
type Counters struct {
	Sent     uint64
	Received uint64

	daily     map[int64]uint64
	latencies []time.Duration
	lastSent  time.Time
}

func NewCounters() *Counters {
	return &Counters{daily: make(map[int64]uint64)}
}

// RecordSent notes an outbound exchange and opens a response window.
func (c *Counters) RecordSent(now time.Time) {
	c.Sent++
	c.bump(now)
	c.lastSent = now
}

// RecordReceived notes an inbound exchange. If a response window is open it
// records one latency sample and closes the window; multiple sends before a
// receive still count as a single window.
func (c *Counters) RecordReceived(now time.Time) {
	c.Received++
	c.bump(now)
	if !c.lastSent.IsZero() {
		latency := now.Sub(c.lastSent)
		if latency < 0 {
			latency = 0
		}
		c.latencies = append(c.latencies, latency)
		if len(c.latencies) > maxLatencySamples {
			c.latencies = c.latencies[len(c.latencies)-maxLatencySamples:]
		}
		c.lastSent = time.Time{}
	}
}

func (c *Counters) bump(now time.Time) {
	if c.daily == nil {
		c.daily = make(map[int64]uint64)
	}
	day := now.Unix() / 86400
	c.daily[day]++
	for k := range c.daily {
		if day-k >= dailyWindowDays {
			delete(c.daily, k)
		}
	}
}

func (c *Counters) dailyValues() []float64 {
	out := make([]float64, 0, len(c.daily))
	for _, v := range c.daily {
		out = append(out, float64(v))
	}
	return out
}
