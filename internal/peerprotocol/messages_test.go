package peerprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMessage(t *testing.T) {
	m := RequestMessage{Index: 1, Begin: 0x4000, Length: 0x4000}
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 0x40, 0, 0, 0, 0x40, 0}, b)
	assert.Equal(t, Request, m.ID())
}

func TestCancelKeepsPayloadChangesID(t *testing.T) {
	r := RequestMessage{Index: 2, Begin: 3, Length: 4}
	c := CancelMessage{RequestMessage: r}
	rb, _ := r.MarshalBinary()
	cb, _ := c.MarshalBinary()
	assert.Equal(t, rb, cb)
	assert.Equal(t, Cancel, c.ID())
}

func TestEmptyMessages(t *testing.T) {
	for _, m := range []Message{ChokeMessage{}, UnchokeMessage{}, InterestedMessage{}, NotInterestedMessage{}} {
		b, err := m.MarshalBinary()
		require.NoError(t, err)
		assert.Empty(t, b)
	}
	assert.Equal(t, "choke", Choke.String())
	assert.Equal(t, "42", MessageID(42).String())
}
