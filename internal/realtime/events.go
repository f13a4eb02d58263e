package realtime

import "encoding/json"

// EventHeartbeat is the server-pushed liveness event name.
const EventHeartbeat = "heartbeat"

// defaultDomainEvents is the out-of-the-box "domain changed" set forwarded
// to the invalidation callback.
var defaultDomainEvents = []string{
	"resource.created",
	"resource.updated",
	"resource.deleted",
}

// Envelope is the wire shape of every inbound channel event.
// Data is kept opaque: the manager forwards domain-change events without
// interpreting their payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
