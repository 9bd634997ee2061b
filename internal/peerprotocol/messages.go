// Package peerprotocol defines the messages of the BitTorrent wire protocol.
// Messages travel as length-prefixed binary frames:
//
//	<length uint32> <id uint8> <payload>
//
// A frame of length zero is a keep-alive.
package peerprotocol

import (
	"encoding/binary"
	"errors"
)

var errShortExtension = errors.New("extension message too short")

// Message is a peer message of the BitTorrent wire protocol.
type Message interface {
	// ID returns the wire message type.
	ID() MessageID
	// MarshalBinary returns the message payload without the frame header.
	MarshalBinary() ([]byte, error)
}

type emptyMessage struct{}

func (m emptyMessage) MarshalBinary() ([]byte, error) { return nil, nil }

// ChokeMessage tells the peer that it should not request pieces.
type ChokeMessage struct{ emptyMessage }

// UnchokeMessage tells the peer that it can request pieces.
type UnchokeMessage struct{ emptyMessage }

// InterestedMessage tells the peer that we want to request pieces when unchoked.
type InterestedMessage struct{ emptyMessage }

// NotInterestedMessage tells the peer that we don't want any piece from it.
type NotInterestedMessage struct{ emptyMessage }

func (m ChokeMessage) ID() MessageID         { return Choke }
func (m UnchokeMessage) ID() MessageID       { return Unchoke }
func (m InterestedMessage) ID() MessageID    { return Interested }
func (m NotInterestedMessage) ID() MessageID { return NotInterested }

// HaveMessage announces that we have the piece with the index.
type HaveMessage struct {
	Index uint32
}

func (m HaveMessage) ID() MessageID { return Have }

func (m HaveMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Index)
	return b, nil
}

// BitfieldMessage is sent after the handshake to exchange piece availability.
type BitfieldMessage struct {
	Data []byte
}

func (m BitfieldMessage) ID() MessageID { return Bitfield }

func (m BitfieldMessage) MarshalBinary() ([]byte, error) {
	return m.Data, nil
}

// RequestMessage asks the peer to upload a block of a piece.
type RequestMessage struct {
	Index, Begin, Length uint32
}

func (m RequestMessage) ID() MessageID { return Request }

func (m RequestMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return b, nil
}

// PieceMessage is the header of a frame that carries block data.
// The block payload follows the header and is handled separately
// so that large buffers are not copied around.
type PieceMessage struct {
	Index, Begin uint32
}

func (m PieceMessage) ID() MessageID { return Piece }

func (m PieceMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	return b, nil
}

// CancelMessage cancels a previously sent request message.
type CancelMessage struct{ RequestMessage }

func (m CancelMessage) ID() MessageID { return Cancel }

// ExtensionMessage wraps an extended-protocol frame. The engine does
// not interpret extension payloads; they are routed to external handlers.
type ExtensionMessage struct {
	ExtendedID byte
	Payload    []byte
}

func (m ExtensionMessage) ID() MessageID { return Extension }

func (m ExtensionMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 1+len(m.Payload))
	b[0] = m.ExtendedID
	copy(b[1:], m.Payload)
	return b, nil
}

func (m *ExtensionMessage) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return errShortExtension
	}
	m.ExtendedID = data[0]
	m.Payload = make([]byte, len(data)-1)
	copy(m.Payload, data[1:])
	return nil
}
