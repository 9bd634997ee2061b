package peerprotocol

import "strconv"

// MessageID is the identifier for messages sent between peers.
type MessageID uint8

// Core wire message types. Keep-alive frames have no ID.
const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	Piece
	Cancel
	// Extension frames carry an extended message ID in their payload.
	// They are routed to handlers outside of the engine.
	Extension MessageID = 20
)

var messageIDStrings = map[MessageID]string{
	Choke:         "choke",
	Unchoke:       "unchoke",
	Interested:    "interested",
	NotInterested: "not interested",
	Have:          "have",
	Bitfield:      "bitfield",
	Request:       "request",
	Piece:         "piece",
	Cancel:        "cancel",
	Extension:     "extension",
}

func (m MessageID) String() string {
	s, ok := messageIDStrings[m]
	if !ok {
		return strconv.FormatInt(int64(m), 10)
	}
	return s
}
