package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	mrand "math/rand"
	"sort"
	"strconv"
	"time"

	"storyroom/config"
	"storyroom/models"
	"storyroom/store"

	"github.com/gin-gonic/gin"
)

const pinAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GameService owns every room's lifecycle: registry, phase transitions,
// story scheduling and vote tallying. All durable state lives in the shared
// store; the service itself keeps nothing between calls, so concurrent
// handler invocations coordinate exclusively through store leases.
type GameService struct {
	store    store.Store
	cfg      *config.Config
	notifier Notifier
}

func NewGameService(st store.Store, cfg *config.Config) *GameService {
	return &GameService{
		store:    st,
		cfg:      cfg,
		notifier: noopNotifier{},
	}
}

// AttachNotifier wires the push layer in after construction; the hub and the
// service reference each other, so one of the two links is late-bound.
func (s *GameService) AttachNotifier(n Notifier) {
	s.notifier = n
}

// RoomState is the full snapshot pushed to a joining or resyncing connection
// so a reconnect rehydrates without replaying history.
type RoomState struct {
	Pin            string            `json:"pin"`
	Phase          models.Phase      `json:"phase"`
	Players        []models.Player   `json:"players"`
	InitialPlayers []string          `json:"initial_players"`
	Round          int               `json:"round"`
	TotalRounds    int               `json:"total_rounds"`
	AuthorID       string            `json:"author_id"`
	Story          string            `json:"story"`
	Votes          map[string]string `json:"votes"`
	Scores         map[string]int    `json:"scores"`
}

// CreateRoom allocates an unused PIN and initializes an empty lobby. The
// phase key doubles as the room's existence marker, so SetNX on it makes the
// PIN claim atomic under concurrent creates.
func (s *GameService) CreateRoom(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 32; attempt++ {
		pin := generatePin(s.cfg.PinLength)
		claimed, err := s.store.SetNX(ctx, keyPhase(pin), string(models.PhaseLobby), 0)
		if err != nil {
			return "", fmt.Errorf("claim pin: %w", err)
		}
		if !claimed {
			continue
		}
		if err := s.store.Del(ctx, s.gameKeys(pin, true)...); err != nil {
			return "", fmt.Errorf("clear room %s: %w", pin, err)
		}
		log.Printf("Room %s created", pin)
		return pin, nil
	}
	return "", errors.New("could not allocate an unused pin")
}

func (s *GameService) RoomExists(ctx context.Context, pin string) (bool, error) {
	return s.store.Exists(ctx, keyPhase(pin))
}

// JoinRoom validates and performs a join or rejoin. Late joins are blocked
// once play has started, but anyone already in the player map may always come
// back; a rejoin cancels their pending removal.
func (s *GameService) JoinRoom(ctx context.Context, pin, userID, username string) (*RoomState, error) {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return nil, err
	}

	raw, err := s.store.HGet(ctx, keyPlayers(pin), userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	rejoining := err == nil

	if !rejoining {
		if phase == models.PhaseLobby {
			count, err := s.store.HLen(ctx, keyPlayers(pin))
			if err != nil {
				return nil, err
			}
			if count >= int64(s.cfg.MaxPlayers) {
				return nil, models.ErrRoomFull
			}
		} else {
			// Mid-game the door stays open to the frozen starting roster.
			// An original player removed after the grace period comes back
			// as a fresh record; everyone else waits for the next game.
			initial, err := s.store.SMembers(ctx, keyInitial(pin))
			if err != nil {
				return nil, err
			}
			member := false
			for _, id := range initial {
				if id == userID {
					member = true
					break
				}
			}
			if !member {
				return nil, models.ErrGameInProgress
			}
		}
	}

	// Cancel any pending grace-period removal.
	if err := s.store.Del(ctx, keyOffline(pin, userID)); err != nil {
		return nil, err
	}

	// First joiner wins the host claim.
	claimed, err := s.store.SetNX(ctx, keyHost(pin), userID, 0)
	if err != nil {
		return nil, err
	}
	hostID := userID
	if !claimed {
		if hostID, err = s.store.Get(ctx, keyHost(pin)); err != nil {
			return nil, err
		}
	}

	var player models.Player
	if rejoining {
		if err := json.Unmarshal([]byte(raw), &player); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", userID, err)
		}
		player.Connected = true
		if username != "" {
			player.Username = username
		}
	} else {
		player = models.Player{
			ID:        userID,
			Username:  username,
			Connected: true,
		}
	}
	player.ID = userID
	player.IsHost = userID == hostID

	if err := s.setPlayer(ctx, pin, player); err != nil {
		return nil, err
	}
	if _, err := s.store.HSetNX(ctx, keyScores(pin), userID, "0"); err != nil {
		return nil, err
	}

	log.Printf("Player %s (%s) joined room %s (rejoin=%v)", userID, player.Username, pin, rejoining)
	s.broadcastRoster(ctx, pin)

	return s.RoomSnapshot(ctx, pin)
}

// SubmitStories records a player's content, marks them ready and notifies the
// room once everyone has submitted.
func (s *GameService) SubmitStories(ctx context.Context, pin, userID string, stories []string) error {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return err
	}
	if phase != models.PhaseLobby {
		return models.ErrGameInProgress
	}

	raw, err := s.store.HGet(ctx, keyPlayers(pin), userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.ErrUnauthorized
	}
	if err != nil {
		return err
	}

	data, err := json.Marshal(stories)
	if err != nil {
		return err
	}
	if err := s.store.HSet(ctx, keyStories(pin), userID, string(data)); err != nil {
		return err
	}
	if err := s.store.SAdd(ctx, keySubmissions(pin), userID); err != nil {
		return err
	}

	var player models.Player
	if err := json.Unmarshal([]byte(raw), &player); err != nil {
		return fmt.Errorf("decode player %s: %w", userID, err)
	}
	player.ID = userID
	player.Ready = true
	if err := s.setPlayer(ctx, pin, player); err != nil {
		return err
	}

	s.broadcastRoster(ctx, pin)

	submitted, err := s.store.SCard(ctx, keySubmissions(pin))
	if err != nil {
		return err
	}
	total, err := s.store.HLen(ctx, keyPlayers(pin))
	if err != nil {
		return err
	}
	if total > 0 && submitted >= total {
		s.notifier.BroadcastToRoom(pin, "stories_submitted", gin.H{})
	}
	return nil
}

// StartGame is host-only. It freezes the initial roster, builds the shuffled
// story list and moves the room into round 1.
func (s *GameService) StartGame(ctx context.Context, pin, userID string) error {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return err
	}
	if phase != models.PhaseLobby {
		return models.ErrGameInProgress
	}
	if err := s.requireHost(ctx, pin, userID); err != nil {
		return err
	}

	players, err := s.roster(ctx, pin)
	if err != nil {
		return err
	}
	connected := 0
	for _, p := range players {
		if p.Connected {
			connected++
		}
	}
	if connected < s.cfg.MinPlayers {
		return fmt.Errorf("%w: have %d, need %d", models.ErrInsufficientPlayers, connected, s.cfg.MinPlayers)
	}

	list, err := s.buildStoryList(ctx, pin)
	if err != nil {
		return err
	}

	// Only one trigger may win the LOBBY -> ROUND transition; losers see the
	// claim taken and leave the winner's shuffle and broadcast alone.
	acquired, err := s.store.SetNX(ctx, keyStarted(pin), "1", 0)
	if err != nil {
		return err
	}
	if !acquired {
		return models.ErrAlreadyProcessed
	}

	// Freeze the roster for scoring and late-join rejection.
	initial := make([]string, 0, len(players))
	for _, p := range players {
		initial = append(initial, p.ID)
	}
	sort.Strings(initial)
	if err := s.store.Del(ctx, keyInitial(pin)); err != nil {
		return err
	}
	if err := s.store.SAdd(ctx, keyInitial(pin), initial...); err != nil {
		return err
	}
	for _, id := range initial {
		if _, err := s.store.HSetNX(ctx, keyScores(pin), id, "0"); err != nil {
			return err
		}
	}

	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyStoryList(pin), string(data), 0); err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyRound(pin), "1", 0); err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyAuthor(pin), list[1].AuthorID, 0); err != nil {
		return err
	}
	if err := s.setPhase(ctx, pin, models.PhaseRound); err != nil {
		return err
	}

	s.notifier.BroadcastToRoom(pin, "game_started", gin.H{
		"round":           1,
		"total_rounds":    len(list) - 1,
		"author_id":       list[1].AuthorID,
		"text":            list[1].Text,
		"initial_players": initial,
	})
	s.scheduleVote(pin, 1)
	return nil
}

// BeginVote moves ROUND -> VOTE for the given round. Both the server round
// timer and client-driven triggers funnel through here; the round-scoped
// lease makes duplicates no-ops.
func (s *GameService) BeginVote(ctx context.Context, pin string, round int) error {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return err
	}
	if phase != models.PhaseRound {
		return models.ErrAlreadyProcessed
	}
	current, err := s.currentRound(ctx, pin)
	if err != nil {
		return err
	}
	if current != round {
		return models.ErrAlreadyProcessed
	}

	acquired, err := s.store.SetNX(ctx, keyRoundLease(pin, round, "vote"), "1", s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return models.ErrAlreadyProcessed
	}

	if err := s.setPhase(ctx, pin, models.PhaseVote); err != nil {
		return err
	}
	s.notifier.BroadcastToRoom(pin, "vote_started", gin.H{"round": round})
	return nil
}

// AdvanceRound moves the room to the next round, or to FINAL when the story
// list is exhausted. Safe to trigger concurrently: only the lease winner for
// the current round index advances the pointer.
func (s *GameService) AdvanceRound(ctx context.Context, pin, userID string, expectedRound int) error {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return err
	}
	switch phase {
	case models.PhaseLobby:
		return models.ErrInvalidRound
	case models.PhaseFinal:
		return models.ErrAlreadyProcessed
	}
	if err := s.requireHost(ctx, pin, userID); err != nil {
		return err
	}

	list, err := s.storyList(ctx, pin)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ErrInvalidRound
		}
		return err
	}
	current, err := s.currentRound(ctx, pin)
	if err != nil {
		return err
	}
	if current == 0 {
		return models.ErrInvalidRound
	}
	if expectedRound < 1 {
		return models.ErrInvalidRound
	}
	if expectedRound != current {
		if expectedRound < current {
			return models.ErrAlreadyProcessed
		}
		return models.ErrInvalidRound
	}

	acquired, err := s.store.SetNX(ctx, keyRoundLease(pin, current, "advance"), "1", s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return models.ErrAlreadyProcessed
	}

	next := current + 1
	if next >= len(list) {
		if err := s.setPhase(ctx, pin, models.PhaseFinal); err != nil {
			return err
		}
		scores, err := s.scores(ctx, pin)
		if err != nil {
			return err
		}
		s.notifier.BroadcastToRoom(pin, "game_ended", gin.H{"scores": scores})
		return nil
	}

	if err := s.store.Del(ctx, keyVotes(pin)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyRound(pin), strconv.Itoa(next), 0); err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyAuthor(pin), list[next].AuthorID, 0); err != nil {
		return err
	}
	if err := s.setPhase(ctx, pin, models.PhaseRound); err != nil {
		return err
	}

	s.notifier.BroadcastToRoom(pin, "round_advanced", gin.H{
		"round":     next,
		"author_id": list[next].AuthorID,
		"text":      list[next].Text,
	})
	s.scheduleVote(pin, next)
	return nil
}

// CastVote records (or overwrites) a vote, shares the interim tally and
// completes the round once every eligible voter has spoken.
func (s *GameService) CastVote(ctx context.Context, pin, voterID, choiceID string) error {
	if choiceID == "" {
		return models.ErrInvalidChoice
	}
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return err
	}
	if phase != models.PhaseVote {
		return models.ErrInvalidRound
	}

	authorID, err := s.store.Get(ctx, keyAuthor(pin))
	if err != nil {
		return err
	}
	if voterID == authorID {
		return models.ErrUnauthorized
	}
	if _, err := s.store.HGet(ctx, keyPlayers(pin), voterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return err
	}

	if err := s.store.HSet(ctx, keyVotes(pin), voterID, choiceID); err != nil {
		return err
	}
	votes, err := s.store.HGetAll(ctx, keyVotes(pin))
	if err != nil {
		return err
	}
	s.notifier.BroadcastToRoom(pin, "votes_update", gin.H{"votes": votes})

	return s.evaluateVotes(ctx, pin)
}

// evaluateVotes checks round completion and, behind the per-round scoring
// lease, applies scores exactly once. Eligibility is computed from the
// currently-connected roster at evaluation time, so a disconnected voter
// never blocks the round.
func (s *GameService) evaluateVotes(ctx context.Context, pin string) error {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return err
	}
	if phase != models.PhaseVote {
		return nil
	}

	players, err := s.roster(ctx, pin)
	if err != nil {
		return err
	}
	authorID, err := s.store.Get(ctx, keyAuthor(pin))
	if err != nil {
		return err
	}
	votes, err := s.store.HGetAll(ctx, keyVotes(pin))
	if err != nil {
		return err
	}

	var eligible []string
	for _, p := range players {
		if p.Connected && p.ID != authorID {
			eligible = append(eligible, p.ID)
		}
	}
	for _, id := range eligible {
		if votes[id] == "" {
			return nil
		}
	}

	round, err := s.currentRound(ctx, pin)
	if err != nil {
		return err
	}
	acquired, err := s.store.SetNX(ctx, keyRoundLease(pin, round, "scored"), "1", s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		// Another completion trigger won the race; nothing left to do.
		return nil
	}

	correct := 0
	for _, id := range eligible {
		if votes[id] == authorID {
			correct++
			if _, err := s.store.HIncrBy(ctx, keyScores(pin), id, 2); err != nil {
				return err
			}
		}
	}
	wrong := len(eligible) - correct
	if wrong > 0 {
		if _, err := s.store.HIncrBy(ctx, keyScores(pin), authorID, int64(wrong)); err != nil {
			return err
		}
	}

	if err := s.setPhase(ctx, pin, models.PhaseReveal); err != nil {
		return err
	}
	scores, err := s.scores(ctx, pin)
	if err != nil {
		return err
	}
	log.Printf("Room %s round %d scored: %d correct, %d wrong", pin, round, correct, wrong)
	s.notifier.BroadcastToRoom(pin, "vote_result", gin.H{"votes": votes, "scores": scores})
	return nil
}

// ResetGame is host-only. It clears all per-game state, returns the room to
// LOBBY and evicts every connection so a fresh lobby can form.
func (s *GameService) ResetGame(ctx context.Context, pin, userID string) error {
	if _, err := s.phase(ctx, pin); err != nil {
		return err
	}
	if err := s.requireHost(ctx, pin, userID); err != nil {
		return err
	}

	keys := s.gameKeys(pin, true)
	ids, err := s.store.HKeys(ctx, keyPlayers(pin))
	if err != nil {
		return err
	}
	for _, id := range ids {
		keys = append(keys, keyOffline(pin, id))
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		return err
	}
	if err := s.setPhase(ctx, pin, models.PhaseLobby); err != nil {
		return err
	}

	log.Printf("Room %s reset", pin)
	s.notifier.BroadcastToRoom(pin, "room_reset", gin.H{})
	s.notifier.EvictRoom(pin)
	return nil
}

// RoomSnapshot assembles the best-effort state snapshot for sync pushes and
// the room-info endpoint.
func (s *GameService) RoomSnapshot(ctx context.Context, pin string) (*RoomState, error) {
	phase, err := s.phase(ctx, pin)
	if err != nil {
		return nil, err
	}
	players, err := s.roster(ctx, pin)
	if err != nil {
		return nil, err
	}
	initial, err := s.store.SMembers(ctx, keyInitial(pin))
	if err != nil {
		return nil, err
	}
	sort.Strings(initial)
	votes, err := s.store.HGetAll(ctx, keyVotes(pin))
	if err != nil {
		return nil, err
	}
	scores, err := s.scores(ctx, pin)
	if err != nil {
		return nil, err
	}

	state := &RoomState{
		Pin:            pin,
		Phase:          phase,
		Players:        players,
		InitialPlayers: initial,
		Votes:          votes,
		Scores:         scores,
	}

	round, err := s.currentRound(ctx, pin)
	if err != nil {
		return nil, err
	}
	state.Round = round
	if authorID, err := s.store.Get(ctx, keyAuthor(pin)); err == nil {
		state.AuthorID = authorID
	}
	if round >= 1 {
		list, err := s.storyList(ctx, pin)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if list != nil {
			state.TotalRounds = len(list) - 1
			if round < len(list) && list[round] != nil {
				state.Story = list[round].Text
			}
		}
	}
	return state, nil
}

// buildStoryList flattens every submission into {author, text} pairs and
// draws a uniform sample of the target count, sentinel-prefixed so round
// numbers index it 1-based.
func (s *GameService) buildStoryList(ctx context.Context, pin string) ([]*models.StoryItem, error) {
	raw, err := s.store.HGetAll(ctx, keyStories(pin))
	if err != nil {
		return nil, err
	}

	var all []*models.StoryItem
	// Stable iteration so the shuffle alone decides the order.
	authors := make([]string, 0, len(raw))
	for authorID := range raw {
		authors = append(authors, authorID)
	}
	sort.Strings(authors)
	for _, authorID := range authors {
		var texts []string
		if err := json.Unmarshal([]byte(raw[authorID]), &texts); err != nil {
			return nil, fmt.Errorf("decode stories for %s: %w", authorID, err)
		}
		for _, text := range texts {
			all = append(all, &models.StoryItem{AuthorID: authorID, Text: text})
		}
	}
	if len(all) == 0 {
		return nil, models.ErrNoStories
	}

	mrand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	count := s.cfg.StoryTarget
	if len(all) < count {
		count = len(all)
	}

	list := make([]*models.StoryItem, 0, count+1)
	list = append(list, nil)
	return append(list, all[:count]...), nil
}

func (s *GameService) phase(ctx context.Context, pin string) (models.Phase, error) {
	raw, err := s.store.Get(ctx, keyPhase(pin))
	if errors.Is(err, store.ErrNotFound) {
		return "", models.ErrRoomNotFound
	}
	if err != nil {
		return "", err
	}
	phase := models.Phase(raw)
	if !phase.Valid() {
		return "", fmt.Errorf("room %s has corrupt phase %q", pin, raw)
	}
	return phase, nil
}

func (s *GameService) setPhase(ctx context.Context, pin string, phase models.Phase) error {
	if err := s.store.Set(ctx, keyPhase(pin), string(phase), 0); err != nil {
		return err
	}
	log.Printf("Room %s phase -> %s", pin, phase)
	return nil
}

func (s *GameService) currentRound(ctx context.Context, pin string) (int, error) {
	raw, err := s.store.Get(ctx, keyRound(pin))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	round, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("decode round for %s: %w", pin, err)
	}
	return round, nil
}

func (s *GameService) storyList(ctx context.Context, pin string) ([]*models.StoryItem, error) {
	raw, err := s.store.Get(ctx, keyStoryList(pin))
	if err != nil {
		return nil, err
	}
	var list []*models.StoryItem
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode story list for %s: %w", pin, err)
	}
	return list, nil
}

// roster returns the player map as a value snapshot, sorted by id for stable
// broadcasts.
func (s *GameService) roster(ctx context.Context, pin string) ([]models.Player, error) {
	raw, err := s.store.HGetAll(ctx, keyPlayers(pin))
	if err != nil {
		return nil, err
	}
	players := make([]models.Player, 0, len(raw))
	for id, data := range raw {
		var p models.Player
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", id, err)
		}
		p.ID = id
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

func (s *GameService) scores(ctx context.Context, pin string) (map[string]int, error) {
	raw, err := s.store.HGetAll(ctx, keyScores(pin))
	if err != nil {
		return nil, err
	}
	scores := make(map[string]int, len(raw))
	for id, val := range raw {
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("decode score for %s: %w", id, err)
		}
		scores[id] = n
	}
	return scores, nil
}

func (s *GameService) setPlayer(ctx context.Context, pin string, player models.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	return s.store.HSet(ctx, keyPlayers(pin), player.ID, string(data))
}

func (s *GameService) requireHost(ctx context.Context, pin, userID string) error {
	hostID, err := s.store.Get(ctx, keyHost(pin))
	if errors.Is(err, store.ErrNotFound) {
		return models.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if hostID != userID {
		return models.ErrUnauthorized
	}
	return nil
}

func (s *GameService) broadcastRoster(ctx context.Context, pin string) {
	players, err := s.roster(ctx, pin)
	if err != nil {
		log.Printf("Failed to build roster for %s: %v", pin, err)
		return
	}
	s.notifier.BroadcastToRoom(pin, "players_update", gin.H{"players": players})
}

// scheduleVote arms the server-authoritative round timer. BeginVote's lease
// keeps this harmless when a client trigger lands first.
func (s *GameService) scheduleVote(pin string, round int) {
	if s.cfg.RoundDuration <= 0 {
		return
	}
	time.AfterFunc(s.cfg.RoundDuration, func() {
		err := s.BeginVote(context.Background(), pin, round)
		if err != nil && !errors.Is(err, models.ErrAlreadyProcessed) && !errors.Is(err, models.ErrRoomNotFound) {
			log.Printf("Round timer for %s round %d: %v", pin, round, err)
		}
	})
}

// gameKeys lists every per-game key for a room, including the lease keys of
// all rounds a game could have had. withHost also clears the host binding.
func (s *GameService) gameKeys(pin string, withHost bool) []string {
	keys := []string{
		keyPlayers(pin),
		keyScores(pin),
		keyStories(pin),
		keySubmissions(pin),
		keyVotes(pin),
		keyStoryList(pin),
		keyRound(pin),
		keyAuthor(pin),
		keyInitial(pin),
		keyStarted(pin),
	}
	if withHost {
		keys = append(keys, keyHost(pin))
	}
	for round := 1; round <= s.cfg.StoryTarget; round++ {
		for _, op := range []string{"vote", "advance", "scored"} {
			keys = append(keys, keyRoundLease(pin, round, op))
		}
	}
	return keys
}

func generatePin(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	pin := make([]byte, length)
	for i, b := range bytes {
		pin[i] = pinAlphabet[int(b)%len(pinAlphabet)]
	}
	return string(pin)
}
