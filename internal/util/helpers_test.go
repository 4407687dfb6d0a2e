package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrivateHost(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "relay.local", "wallet.internal", "abc.onion"} {
		assert.True(t, IsPrivateHost(host), host)
	}
	for _, host := range []string{"relay.damus.io", "getalby.com"} {
		assert.False(t, IsPrivateHost(host), host)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"wss://a", "", "wss://b", "wss://a"})
	assert.Equal(t, []string{"wss://a", "wss://b"}, got)
}

func TestSortedCopyLeavesInput(t *testing.T) {
	in := []string{"b", "a"}
	assert.Equal(t, []string{"a", "b"}, SortedCopy(in))
	assert.Equal(t, []string{"b", "a"}, in)
}
