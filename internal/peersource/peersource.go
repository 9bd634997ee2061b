// Package peersource records where a peer address came from.
// The engine is discovery-agnostic; trackers, DHT and PEX live outside
// and only hand in addresses tagged with their source.
package peersource

// Source of a peer address.
type Source int

const (
	// Manual peers are added through the public AddPeers call.
	Manual Source = iota
	// Discovery peers come from an external tracker/DHT/PEX collaborator.
	Discovery
	// Incoming peers connected to our listening port.
	Incoming
)

func (s Source) String() string {
	switch s {
	case Manual:
		return "manual"
	case Discovery:
		return "discovery"
	case Incoming:
		return "incoming"
	default:
		panic("unhandled source")
	}
}
