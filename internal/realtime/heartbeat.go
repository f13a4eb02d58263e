package realtime

import "time"

// HeartbeatSample is the most recent heartbeat round-trip observation.
type HeartbeatSample struct {
	// SentAt is when the sample was taken
	SentAt time.Time

	// Latency is the time elapsed since the previous heartbeat receipt
	Latency time.Duration
}

// heartbeatTracker produces a rolling one-sample latency estimate.
//
// Latency is computed against the previous heartbeat's receipt timestamp,
// not a timestamp captured when a ping was actively sent, so the value
// approximates channel round-trip time rather than measuring a true
// ping/pong exchange. The first heartbeat only arms the reference point;
// a sample exists from the second heartbeat onward.
type heartbeatTracker struct {
	lastReceipt time.Time
	sample      HeartbeatSample
	hasSample   bool
}

// observe records a heartbeat receipt and returns the new sample, if any.
func (h *heartbeatTracker) observe(now time.Time) (HeartbeatSample, bool) {
	sampled := false
	if !h.lastReceipt.IsZero() {
		h.sample = HeartbeatSample{SentAt: now, Latency: now.Sub(h.lastReceipt)}
		h.hasSample = true
		sampled = true
	}
	h.lastReceipt = now
	return h.sample, sampled
}

// last returns the most recent sample and whether one exists yet.
func (h *heartbeatTracker) last() (HeartbeatSample, bool) {
	return h.sample, h.hasSample
}
