package resourcemanager

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestResourceManager(t *testing.T) {
	defer leaktest.Check(t)()
	m := New[string](2)
	defer m.Close()
	require.Zero(t, m.Stats().AllocatedObjects)
	ok := m.Request("foo", "", 1, nil, nil)
	require.True(t, ok)
	require.Equal(t, 1, m.Stats().AllocatedObjects)
	ok = m.Request("foo", "", 1, nil, nil)
	require.True(t, ok)
	require.Equal(t, 2, m.Stats().AllocatedObjects)
	notifyC := make(chan string)
	ok = m.Request("foo", "bar", 1, notifyC, nil)
	require.False(t, ok)
	require.Equal(t, 2, m.Stats().AllocatedObjects)
	require.Equal(t, 1, m.Stats().PendingRequests)
	m.Release(1)
	var data string
	select {
	case data = <-notifyC:
	case <-time.After(time.Second):
		t.Fatal("notify channel did not get the message")
	}
	require.Equal(t, "bar", data)
	require.Equal(t, 2, m.Stats().AllocatedObjects)
	require.Zero(t, m.Stats().PendingRequests)
}

func TestResourceManagerCancel(t *testing.T) {
	m := New[string](1)
	defer m.Close()
	ok := m.Request("a", "", 1, nil, nil)
	require.True(t, ok)
	notifyC := make(chan string)
	cancelC := make(chan struct{})
	ok = m.Request("b", "x", 1, notifyC, cancelC)
	require.False(t, ok)
	close(cancelC)
	m.Release(1)
	// Nobody reads notifyC, so the request can only be cancelled.
	deadline := time.Now().Add(time.Second)
	for m.Stats().PendingRequests != 0 {
		if time.Now().After(deadline) {
			t.Fatal("request was not cancelled")
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 0, m.Stats().AllocatedObjects)
}
