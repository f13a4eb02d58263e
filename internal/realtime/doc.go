// Package realtime maintains the long-lived push channel between the
// TaskDeck dashboard and its backend.
//
// The connection manager owns a websocket channel and exposes it to the
// host as a small state machine (Idle, Connecting, Open, Degraded, Closed).
// Channel failures are expected, frequent, and self-healing, so they are
// never surfaced as errors: the host reads State() and shows a non-blocking
// indicator when it is Degraded.
//
// Inbound events are demultiplexed into two concerns:
//   - heartbeat events feed a rolling one-sample latency estimate
//   - domain-change events invoke an injected invalidation callback, in
//     receipt order, so the host can refresh whatever caches it owns
//
// The manager opens the channel only while a credential is present and
// tears it down deterministically on sign-out or Close.
package realtime
