// Package handshake implements the plain BitTorrent handshake.
// Encrypted handshakes are out of scope; an external obfuscation layer
// may hand the engine an already authenticated net.Conn instead.
package handshake

import (
	"encoding/binary"
	"errors"
	"io"
)

var pstr = [20]byte{19, 'B', 'i', 't', 'T', 'o', 'r', 'r', 'e', 'n', 't', ' ', 'p', 'r', 'o', 't', 'o', 'c', 'o', 'l'}

// Errors returned while doing the handshake with a peer.
var (
	ErrInvalidProtocol = errors.New("invalid protocol string")
	ErrWrongInfoHash   = errors.New("wrong info hash")
	ErrOwnConnection   = errors.New("dropped connection to ourselves")
)

// Write the handshake for the torrent ih with our peer ID.
func Write(w io.Writer, ih, id [20]byte, extensions [8]byte) error {
	h := struct {
		Pstr       [20]byte
		Extensions [8]byte
		InfoHash   [20]byte
		PeerID     [20]byte
	}{
		Pstr:       pstr,
		Extensions: extensions,
		InfoHash:   ih,
		PeerID:     id,
	}
	return binary.Write(w, binary.BigEndian, h)
}

// Read1 reads the first part of the handshake: protocol string,
// extension bits and info hash.
func Read1(r io.Reader) (extensions [8]byte, ih [20]byte, err error) {
	var p [20]byte
	_, err = io.ReadFull(r, p[:])
	if err != nil {
		return
	}
	if p != pstr {
		err = ErrInvalidProtocol
		return
	}
	_, err = io.ReadFull(r, extensions[:])
	if err != nil {
		return
	}
	_, err = io.ReadFull(r, ih[:])
	return
}

// Read2 reads the trailing peer ID of the handshake.
func Read2(r io.Reader) (id [20]byte, err error) {
	_, err = io.ReadFull(r, id[:])
	return
}
