package services

import (
	"fmt"
	"strings"
)

// Per-room key namespace in the shared store. Pins are stored uppercase.
func keyPhase(pin string) string       { return "game:" + pin + ":phase" }
func keyHost(pin string) string        { return "game:" + pin + ":host" }
func keyPlayers(pin string) string     { return "game:" + pin + ":players" }
func keyScores(pin string) string      { return "game:" + pin + ":scores" }
func keyStories(pin string) string     { return "game:" + pin + ":stories" }
func keySubmissions(pin string) string { return "game:" + pin + ":submissions" }
func keyVotes(pin string) string       { return "game:" + pin + ":votes" }
func keyStoryList(pin string) string   { return "game:" + pin + ":storyList" }
func keyRound(pin string) string       { return "game:" + pin + ":currentRound" }
func keyAuthor(pin string) string      { return "game:" + pin + ":currentAuthor" }
func keyInitial(pin string) string     { return "game:" + pin + ":initialPlayers" }

// keyStarted is the claim taken by the one StartGame trigger that performs
// the LOBBY -> ROUND transition. Cleared with the rest of the game state.
func keyStarted(pin string) string { return "game:" + pin + ":started" }

// keyOffline is the disconnect marker. Its TTL expiry, delivered through the
// store's expiry notifications, is what converts a transient disconnect into
// a permanent removal.
func keyOffline(pin, userID string) string {
	return "game:" + pin + ":offline:" + userID
}

// keyRoundLease names the mutual-exclusion lease for a once-per-round
// operation ("scored", "advance", "vote").
func keyRoundLease(pin string, round int, op string) string {
	return fmt.Sprintf("game:%s:round:%d:%s", pin, round, op)
}

// parseOfflineKey recovers (pin, userID) from an expired disconnect marker.
func parseOfflineKey(key string) (pin, userID string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "game" || parts[2] != "offline" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
