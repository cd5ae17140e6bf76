package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"storyroom/config"
	"storyroom/models"
	"storyroom/store"

	"github.com/gin-gonic/gin"
)

// PresenceManager turns socket-level connect/disconnect events into room
// membership changes. Lobby departures are cheap and removed immediately;
// in-game departures get a grace period, modeled as a store key whose TTL
// expiry (not its presence) triggers the permanent removal.
type PresenceManager struct {
	store store.Store
	cfg   *config.Config
	games *GameService
}

func NewPresenceManager(st store.Store, cfg *config.Config, games *GameService) *PresenceManager {
	return &PresenceManager{
		store: st,
		cfg:   cfg,
		games: games,
	}
}

// HandleDisconnect is called by the hub when a connection drops. Reconnects
// cancel the pending removal inside JoinRoom by deleting the marker.
func (p *PresenceManager) HandleDisconnect(ctx context.Context, pin, userID string) error {
	raw, err := p.store.HGet(ctx, keyPlayers(pin), userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	phase, err := p.games.phase(ctx, pin)
	if errors.Is(err, models.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if phase == models.PhaseLobby {
		if err := p.removeRecords(ctx, pin, userID, true); err != nil {
			return err
		}
		if err := p.promoteHostIfNeeded(ctx, pin, userID); err != nil {
			return err
		}
		log.Printf("Player %s left lobby %s, removed", userID, pin)
		p.games.broadcastRoster(ctx, pin)
		return nil
	}

	var player models.Player
	if err := json.Unmarshal([]byte(raw), &player); err != nil {
		return err
	}
	player.ID = userID
	player.Connected = false
	if err := p.games.setPlayer(ctx, pin, player); err != nil {
		return err
	}
	if err := p.store.Set(ctx, keyOffline(pin, userID), "1", p.cfg.DisconnectGrace); err != nil {
		return err
	}

	log.Printf("Player %s disconnected from %s mid-game, grace period %s", userID, pin, p.cfg.DisconnectGrace)
	p.games.broadcastRoster(ctx, pin)

	// The departed player may have been the last pending voter.
	if phase == models.PhaseVote {
		return p.games.evaluateVotes(ctx, pin)
	}
	return nil
}

// Watch consumes the store's expiry notifications and finalizes removals
// whose grace period ran out. Expiring lease keys flow through the same
// channel and are skipped.
func (p *PresenceManager) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-p.store.Expirations():
			if !ok {
				return
			}
			pin, userID, ok := parseOfflineKey(key)
			if !ok {
				continue
			}
			if err := p.finalizeRemoval(ctx, pin, userID); err != nil {
				log.Printf("Failed to finalize removal of %s from %s: %v", userID, pin, err)
			}
		}
	}
}

// finalizeRemoval permanently removes an in-game player whose marker
// expired. Their score and initial-roster entry are kept so final standings
// stay meaningful.
func (p *PresenceManager) finalizeRemoval(ctx context.Context, pin, userID string) error {
	raw, err := p.store.HGet(ctx, keyPlayers(pin), userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var player models.Player
	if err := json.Unmarshal([]byte(raw), &player); err != nil {
		return err
	}
	if player.Connected {
		// Rejoined between marker expiry and delivery; nothing to do.
		return nil
	}

	if err := p.removeRecords(ctx, pin, userID, false); err != nil {
		return err
	}
	if err := p.promoteHostIfNeeded(ctx, pin, userID); err != nil {
		return err
	}

	log.Printf("Player %s permanently removed from %s after grace period", userID, pin)
	p.games.broadcastRoster(ctx, pin)

	phase, err := p.games.phase(ctx, pin)
	if err != nil {
		if errors.Is(err, models.ErrRoomNotFound) {
			return nil
		}
		return err
	}
	if phase == models.PhaseVote {
		return p.games.evaluateVotes(ctx, pin)
	}
	return nil
}

// removeRecords deletes a player's live-game records. withScore additionally
// drops their score, which only lobby removals do.
func (p *PresenceManager) removeRecords(ctx context.Context, pin, userID string, withScore bool) error {
	if err := p.store.HDel(ctx, keyPlayers(pin), userID); err != nil {
		return err
	}
	if err := p.store.HDel(ctx, keyStories(pin), userID); err != nil {
		return err
	}
	if err := p.store.SRem(ctx, keySubmissions(pin), userID); err != nil {
		return err
	}
	if withScore {
		if err := p.store.HDel(ctx, keyScores(pin), userID); err != nil {
			return err
		}
	}
	return nil
}

// promoteHostIfNeeded reassigns the host binding after the current host is
// removed for good. Temporary disconnects never reach here; the host keeps
// their role through a grace period.
func (p *PresenceManager) promoteHostIfNeeded(ctx context.Context, pin, departedID string) error {
	hostID, err := p.store.Get(ctx, keyHost(pin))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if hostID != departedID {
		return nil
	}

	players, err := p.games.roster(ctx, pin)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return p.store.Del(ctx, keyHost(pin))
	}

	next := players[0]
	for _, candidate := range players {
		if candidate.Connected {
			next = candidate
			break
		}
	}
	if err := p.store.Set(ctx, keyHost(pin), next.ID, 0); err != nil {
		return err
	}
	for _, player := range players {
		isHost := player.ID == next.ID
		if player.IsHost == isHost {
			continue
		}
		player.IsHost = isHost
		if err := p.games.setPlayer(ctx, pin, player); err != nil {
			return err
		}
	}
	log.Printf("Room %s host reassigned %s -> %s", pin, departedID, next.ID)
	p.games.notifier.SendToUser(pin, next.ID, "host_granted", gin.H{"user_id": next.ID})
	return nil
}
