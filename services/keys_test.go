package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOfflineKey(t *testing.T) {
	pin, userID, ok := parseOfflineKey(keyOffline("AB12", "user-7"))
	assert.True(t, ok)
	assert.Equal(t, "AB12", pin)
	assert.Equal(t, "user-7", userID)

	for _, key := range []string{
		keyPhase("AB12"),
		keyRoundLease("AB12", 3, "scored"),
		"something:else",
		"",
	} {
		_, _, ok := parseOfflineKey(key)
		assert.False(t, ok, key)
	}
}
