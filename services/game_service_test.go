package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storyroom/config"
	"storyroom/models"
	"storyroom/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Pin     string
	UserID  string
	Type    string
	Payload interface{}
}

// recordingNotifier captures push traffic so tests can assert on what the
// room would have seen.
type recordingNotifier struct {
	mu      sync.Mutex
	events  []recordedEvent
	evicted []string
}

func (r *recordingNotifier) BroadcastToRoom(pin, messageType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Pin: pin, Type: messageType, Payload: payload})
}

func (r *recordingNotifier) SendToUser(pin, userID, messageType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Pin: pin, UserID: userID, Type: messageType, Payload: payload})
}

func (r *recordingNotifier) EvictRoom(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, pin)
}

func (r *recordingNotifier) count(messageType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == messageType {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) sentTo(userID, messageType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.UserID == userID && ev.Type == messageType {
			return true
		}
	}
	return false
}

func (r *recordingNotifier) evictedRoom(pin string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.evicted {
		if p == pin {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		DisconnectGrace: 50 * time.Millisecond,
		RoundDuration:   0, // rounds are advanced explicitly in tests
		LeaseTTL:        time.Minute,
		MaxPlayers:      10,
		MinPlayers:      3,
		StoryTarget:     8,
		PinLength:       4,
	}
}

func newTestService(t *testing.T) (*GameService, *store.Memory, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	games := NewGameService(mem, testConfig())
	notifier := &recordingNotifier{}
	games.AttachNotifier(notifier)
	return games, mem, notifier
}

func setupLobby(t *testing.T, games *GameService, ids ...string) string {
	t.Helper()
	ctx := context.Background()
	pin, err := games.CreateRoom(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := games.JoinRoom(ctx, pin, id, "player-"+id)
		require.NoError(t, err)
	}
	return pin
}

// startedGame builds a three-player room, submits one story per player and
// starts the game. It returns the round-1 author and the two voters.
func startedGame(t *testing.T, games *GameService) (pin, author string, voters []string) {
	t.Helper()
	ctx := context.Background()
	pin = setupLobby(t, games, "alice", "bob", "carol")
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, games.SubmitStories(ctx, pin, id, []string{"story by " + id}))
	}
	require.NoError(t, games.StartGame(ctx, pin, "alice"))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	require.NotEmpty(t, state.AuthorID)
	author = state.AuthorID
	for _, id := range []string{"alice", "bob", "carol"} {
		if id != author {
			voters = append(voters, id)
		}
	}
	return pin, author, voters
}

func TestCreateRoomInitializesLobby(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()

	pin, err := games.CreateRoom(ctx)
	require.NoError(t, err)
	require.Len(t, pin, 4)

	exists, err := games.RoomExists(ctx, pin)
	require.NoError(t, err)
	assert.True(t, exists)

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLobby, state.Phase)
	assert.Empty(t, state.Players)
}

func TestJoinRoomUnknownPin(t *testing.T) {
	games, _, _ := newTestService(t)

	_, err := games.JoinRoom(context.Background(), "ZZZZ", "alice", "Alice")
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
}

func TestJoinRoomFirstJoinerIsHost(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob", "carol")

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	require.Len(t, state.Players, 3)

	hosts := 0
	for _, p := range state.Players {
		if p.IsHost {
			hosts++
			assert.Equal(t, "alice", p.ID)
		}
		assert.True(t, p.Connected)
	}
	assert.Equal(t, 1, hosts)
}

func TestJoinRoomFull(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, err := games.CreateRoom(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := games.JoinRoom(ctx, pin, fmt.Sprintf("user-%02d", i), "u")
		require.NoError(t, err)
	}

	_, err = games.JoinRoom(ctx, pin, "one-too-many", "u")
	assert.ErrorIs(t, err, models.ErrRoomFull)

	// An existing member is never turned away by the cap.
	_, err = games.JoinRoom(ctx, pin, "user-03", "u")
	assert.NoError(t, err)
}

func TestJoinRoomRejectsNewcomersMidGame(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	_, err := games.JoinRoom(ctx, pin, "dave", "Dave")
	assert.ErrorIs(t, err, models.ErrGameInProgress)

	// A member who drops may always come back.
	_, err = games.JoinRoom(ctx, pin, "bob", "Bob")
	assert.NoError(t, err)
}

func TestRemovedOriginalPlayerMayRejoin(t *testing.T) {
	games, mem, _ := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	// bob's permanent removal after a missed grace period: player record,
	// stories and submission membership gone, initial-roster entry kept.
	require.NoError(t, mem.HDel(ctx, keyPlayers(pin), "bob"))
	require.NoError(t, mem.HDel(ctx, keyStories(pin), "bob"))
	require.NoError(t, mem.SRem(ctx, keySubmissions(pin), "bob"))

	state, err := games.JoinRoom(ctx, pin, "bob", "Bob")
	require.NoError(t, err)
	found := false
	for _, p := range state.Players {
		if p.ID == "bob" {
			found = true
			assert.True(t, p.Connected)
			assert.False(t, p.Ready)
		}
	}
	assert.True(t, found)

	// The open door is for the starting roster only.
	_, err = games.JoinRoom(ctx, pin, "dave", "Dave")
	assert.ErrorIs(t, err, models.ErrGameInProgress)
}

func TestRejoinPreservesReadyAndUsernameChange(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob", "carol")
	require.NoError(t, games.SubmitStories(ctx, pin, "bob", []string{"one"}))

	_, err := games.JoinRoom(ctx, pin, "bob", "Bobby")
	require.NoError(t, err)

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	for _, p := range state.Players {
		if p.ID == "bob" {
			assert.True(t, p.Ready)
			assert.Equal(t, "Bobby", p.Username)
		}
	}
}

func TestSubmitStoriesMarksReadyAndAnnouncesCompletion(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob", "carol")

	require.NoError(t, games.SubmitStories(ctx, pin, "alice", []string{"a1", "a2"}))
	require.NoError(t, games.SubmitStories(ctx, pin, "bob", []string{"b1"}))
	assert.Equal(t, 0, notifier.count("stories_submitted"))

	require.NoError(t, games.SubmitStories(ctx, pin, "carol", []string{"c1"}))
	assert.Equal(t, 1, notifier.count("stories_submitted"))
}

func TestSubmitStoriesRequiresMembership(t *testing.T) {
	games, _, _ := newTestService(t)
	pin := setupLobby(t, games, "alice")

	err := games.SubmitStories(context.Background(), pin, "stranger", []string{"x"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestStartGameRequiresMinimumPlayers(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob")
	require.NoError(t, games.SubmitStories(ctx, pin, "alice", []string{"a"}))
	require.NoError(t, games.SubmitStories(ctx, pin, "bob", []string{"b"}))

	err := games.StartGame(ctx, pin, "alice")
	assert.ErrorIs(t, err, models.ErrInsufficientPlayers)

	_, err = games.JoinRoom(ctx, pin, "carol", "Carol")
	require.NoError(t, err)
	require.NoError(t, games.SubmitStories(ctx, pin, "carol", []string{"c"}))
	assert.NoError(t, games.StartGame(ctx, pin, "alice"))
}

func TestStartGameRequiresHost(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob", "carol")
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, games.SubmitStories(ctx, pin, id, []string{"s"}))
	}

	assert.ErrorIs(t, games.StartGame(ctx, pin, "bob"), models.ErrUnauthorized)
	assert.NoError(t, games.StartGame(ctx, pin, "alice"))
}

func TestStartGameWithoutStories(t *testing.T) {
	games, _, _ := newTestService(t)
	pin := setupLobby(t, games, "alice", "bob", "carol")

	err := games.StartGame(context.Background(), pin, "alice")
	assert.ErrorIs(t, err, models.ErrNoStories)
}

func TestStartGameFreezesInitialRoster(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRound, state.Phase)
	assert.Equal(t, 1, state.Round)
	assert.Equal(t, 3, state.TotalRounds)
	assert.Equal(t, []string{"alice", "bob", "carol"}, state.InitialPlayers)
	assert.Equal(t, 1, notifier.count("game_started"))
}

func TestConcurrentStartGameStartsOnce(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob", "carol")
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, games.SubmitStories(ctx, pin, id, []string{"story by " + id}))
	}

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- games.StartGame(ctx, pin, "alice")
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.True(t,
			errors.Is(err, models.ErrAlreadyProcessed) || errors.Is(err, models.ErrGameInProgress),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, notifier.count("game_started"))
}

func TestStartGamePossibleAgainAfterReset(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)
	require.NoError(t, games.ResetGame(ctx, pin, "alice"))

	for _, id := range []string{"dave", "erin", "frank"} {
		_, err := games.JoinRoom(ctx, pin, id, "player-"+id)
		require.NoError(t, err)
		require.NoError(t, games.SubmitStories(ctx, pin, id, []string{"story by " + id}))
	}
	require.NoError(t, games.StartGame(ctx, pin, "dave"))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRound, state.Phase)
}

func TestBuildStoryListSamplesToTarget(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin := setupLobby(t, games, "alice", "bob", "carol")
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, games.SubmitStories(ctx, pin, id, []string{id + "-1", id + "-2", id + "-3"}))
	}

	list, err := games.buildStoryList(ctx, pin)
	require.NoError(t, err)
	// 9 submitted, sampled down to the target of 8, plus the index-0 sentinel.
	require.Len(t, list, 9)
	assert.Nil(t, list[0])
	seen := make(map[string]bool)
	for _, item := range list[1:] {
		require.NotNil(t, item)
		assert.False(t, seen[item.Text], "story %q drawn twice", item.Text)
		seen[item.Text] = true
	}
}

func TestBeginVoteOnlyOncePerRound(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	require.NoError(t, games.BeginVote(ctx, pin, 1))
	assert.ErrorIs(t, games.BeginVote(ctx, pin, 1), models.ErrAlreadyProcessed)
	assert.ErrorIs(t, games.BeginVote(ctx, pin, 2), models.ErrAlreadyProcessed)
	assert.Equal(t, 1, notifier.count("vote_started"))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVote, state.Phase)
}

func TestCastVoteRejectsAuthorAndOutsiders(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, author, voters := startedGame(t, games)
	require.NoError(t, games.BeginVote(ctx, pin, 1))

	assert.ErrorIs(t, games.CastVote(ctx, pin, author, voters[0]), models.ErrUnauthorized)
	assert.ErrorIs(t, games.CastVote(ctx, pin, "stranger", author), models.ErrUnauthorized)
}

func TestCastVoteOutsideVotePhase(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, _, voters := startedGame(t, games)

	err := games.CastVote(ctx, pin, voters[0], "whoever")
	assert.ErrorIs(t, err, models.ErrInvalidRound)
}

func TestCastVoteRejectsEmptyChoice(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin, _, voters := startedGame(t, games)
	require.NoError(t, games.BeginVote(ctx, pin, 1))

	assert.ErrorIs(t, games.CastVote(ctx, pin, voters[0], ""), models.ErrInvalidChoice)
	assert.Equal(t, 0, notifier.count("votes_update"))
}

func TestVoteCompletionScoresRound(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin, author, voters := startedGame(t, games)
	require.NoError(t, games.BeginVote(ctx, pin, 1))

	// One correct guess, one wrong one.
	require.NoError(t, games.CastVote(ctx, pin, voters[0], author))
	require.NoError(t, games.CastVote(ctx, pin, voters[1], voters[0]))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReveal, state.Phase)
	assert.Equal(t, 2, state.Scores[voters[0]])
	assert.Equal(t, 0, state.Scores[voters[1]])
	assert.Equal(t, 1, state.Scores[author])
	assert.Equal(t, 1, notifier.count("vote_result"))
}

func TestVoteOverwriteBeforeCompletion(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, author, voters := startedGame(t, games)
	require.NoError(t, games.BeginVote(ctx, pin, 1))

	require.NoError(t, games.CastVote(ctx, pin, voters[0], voters[1]))
	require.NoError(t, games.CastVote(ctx, pin, voters[0], author))
	require.NoError(t, games.CastVote(ctx, pin, voters[1], author))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	// The replacement vote counts, not the first one.
	assert.Equal(t, 2, state.Scores[voters[0]])
	assert.Equal(t, 2, state.Scores[voters[1]])
	assert.Equal(t, 0, state.Scores[author])
}

func TestConcurrentEvaluationScoresExactlyOnce(t *testing.T) {
	games, mem, notifier := newTestService(t)
	ctx := context.Background()
	pin, author, voters := startedGame(t, games)
	require.NoError(t, games.BeginVote(ctx, pin, 1))

	// Seed a fully-voted round without letting CastVote evaluate it.
	for _, voter := range voters {
		require.NoError(t, mem.HSet(ctx, keyVotes(pin), voter, author))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, games.evaluateVotes(ctx, pin))
		}()
	}
	wg.Wait()

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReveal, state.Phase)
	assert.Equal(t, 2, state.Scores[voters[0]])
	assert.Equal(t, 2, state.Scores[voters[1]])
	assert.Equal(t, 0, state.Scores[author])
	assert.Equal(t, 1, notifier.count("vote_result"))
}

func TestAdvanceRoundDuplicateTriggers(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	require.NoError(t, games.AdvanceRound(ctx, pin, "alice", 1))
	assert.ErrorIs(t, games.AdvanceRound(ctx, pin, "alice", 1), models.ErrAlreadyProcessed)

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Round)
	assert.Equal(t, models.PhaseRound, state.Phase)
	assert.Equal(t, 1, notifier.count("round_advanced"))
}

func TestAdvanceRoundRequiresHost(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	assert.ErrorIs(t, games.AdvanceRound(ctx, pin, "bob", 1), models.ErrUnauthorized)
}

func TestAdvanceRoundPastLastEndsGame(t *testing.T) {
	games, _, notifier := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	require.NoError(t, games.AdvanceRound(ctx, pin, "alice", 1))
	require.NoError(t, games.AdvanceRound(ctx, pin, "alice", 2))
	require.NoError(t, games.AdvanceRound(ctx, pin, "alice", 3))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinal, state.Phase)
	assert.Equal(t, 1, notifier.count("game_ended"))

	assert.ErrorIs(t, games.AdvanceRound(ctx, pin, "alice", 3), models.ErrAlreadyProcessed)
}

func TestAdvanceRoundRequiresRoundIndex(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, _, _ := startedGame(t, games)

	assert.ErrorIs(t, games.AdvanceRound(ctx, pin, "alice", 0), models.ErrInvalidRound)
	assert.ErrorIs(t, games.AdvanceRound(ctx, pin, "alice", -1), models.ErrInvalidRound)

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Round)
	assert.Equal(t, models.PhaseRound, state.Phase)
}

func TestAdvanceRoundInLobby(t *testing.T) {
	games, _, _ := newTestService(t)
	pin := setupLobby(t, games, "alice", "bob", "carol")

	err := games.AdvanceRound(context.Background(), pin, "alice", 1)
	assert.ErrorIs(t, err, models.ErrInvalidRound)
}

func TestResetGameReturnsToLobby(t *testing.T) {
	games, mem, notifier := newTestService(t)
	ctx := context.Background()
	pin, author, voters := startedGame(t, games)
	require.NoError(t, games.BeginVote(ctx, pin, 1))
	require.NoError(t, games.CastVote(ctx, pin, voters[0], author))

	assert.ErrorIs(t, games.ResetGame(ctx, pin, voters[0]), models.ErrUnauthorized)
	require.NoError(t, games.ResetGame(ctx, pin, "alice"))

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLobby, state.Phase)
	assert.Empty(t, state.Players)
	assert.Empty(t, state.Scores)
	assert.Empty(t, state.Votes)
	assert.Zero(t, state.Round)
	assert.True(t, notifier.evictedRoom(pin))

	// The host binding is gone, so the next lobby's first joiner claims it.
	_, err = mem.Get(ctx, keyHost(pin))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = games.JoinRoom(ctx, pin, "dave", "Dave")
	require.NoError(t, err)
	state, err = games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	require.Len(t, state.Players, 1)
	assert.True(t, state.Players[0].IsHost)
}

func TestCorruptPhaseIsSurfaced(t *testing.T) {
	games, mem, _ := newTestService(t)
	ctx := context.Background()
	pin, err := games.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, keyPhase(pin), "SCORING", 0))

	_, err = games.RoomSnapshot(ctx, pin)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrRoomNotFound)
}

func TestConcurrentJoinsSingleHost(t *testing.T) {
	games, _, _ := newTestService(t)
	ctx := context.Background()
	pin, err := games.CreateRoom(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := games.JoinRoom(ctx, pin, fmt.Sprintf("user-%d", n), "u")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := games.RoomSnapshot(ctx, pin)
	require.NoError(t, err)
	hosts := 0
	for _, p := range state.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}
