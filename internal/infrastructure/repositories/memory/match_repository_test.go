package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"skillcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMatchFixture(t *testing.T, online ...domain.UserID) (*MatchRepository, *PresenceRepository) {
	presence := NewPresenceRepository(time.Minute)
	for _, u := range online {
		require.NoError(t, presence.MarkOnline(context.Background(), u, "conn-"+string(u)))
	}
	return NewMatchRepository(presence), presence
}

func TestRoundEnqueuesWhenNoCandidate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice")

	matched, _, err := repo.RunMatchRound(ctx, "alice", []string{"go", "rust"})
	require.NoError(t, err)
	assert.Empty(t, matched)

	state, _ := repo.GetState(ctx, "alice")
	assert.Equal(t, domain.MatchSearching, state)
}

func TestRoundMatchesOldestWaiter(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice", "bob", "carol")

	_, _, err := repo.RunMatchRound(ctx, "alice", []string{"go"})
	require.NoError(t, err)
	_, _, err = repo.RunMatchRound(ctx, "bob", []string{"go"})
	require.NoError(t, err)

	matched, skill, err := repo.RunMatchRound(ctx, "carol", []string{"go"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), matched)
	assert.Equal(t, "go", skill)

	for u, want := range map[domain.UserID]domain.MatchState{
		"alice": domain.MatchMatched,
		"bob":   domain.MatchSearching,
		"carol": domain.MatchMatched,
	} {
		state, _ := repo.GetState(ctx, u)
		assert.Equal(t, want, state, "user %s", u)
	}
}

func TestRoundSkillOrderWins(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice", "bob", "carol")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"rust"})
	_, _, _ = repo.RunMatchRound(ctx, "bob", []string{"go"})

	// Requester's skill list order decides, not queue age.
	matched, skill, err := repo.RunMatchRound(ctx, "carol", []string{"go", "rust"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("bob"), matched)
	assert.Equal(t, "go", skill)
}

func TestRoundNeverSelfMatches(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"go"})

	// Re-running with self at the queue head must requeue, not match.
	matched, _, err := repo.RunMatchRound(ctx, "alice", []string{"go"})
	require.NoError(t, err)
	assert.Empty(t, matched)

	assert.Equal(t, []domain.UserID{"alice"}, repo.queues["go"])
}

func TestRoundDiscardsStaleCandidates(t *testing.T) {
	ctx := context.Background()
	repo, presence := newMatchFixture(t, "alice", "bob", "carol")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"go"})
	_, _, _ = repo.RunMatchRound(ctx, "bob", []string{"go"})

	// Alice disconnects while queued; her entry is stale.
	require.NoError(t, presence.MarkOffline(ctx, "alice", "conn-alice"))

	matched, _, err := repo.RunMatchRound(ctx, "carol", []string{"go"})
	require.NoError(t, err)
	// One candidate is popped per skill per round, so the stale alice is
	// cleaned up and carol waits; the next round pairs carol with bob.
	assert.Empty(t, matched)

	matched, _, err = repo.RunMatchRound(ctx, "bob", []string{"go"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("carol"), matched)
}

func TestMatchedUsersLeaveEveryQueue(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice", "bob")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"go", "rust", "zig"})

	matched, _, err := repo.RunMatchRound(ctx, "bob", []string{"rust"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), matched)

	for skill, q := range repo.queues {
		assert.Empty(t, q, "queue %s", skill)
	}
}

func TestCancelMatchingClearsQueuesAndState(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"go", "rust"})
	require.NoError(t, repo.CancelMatching(ctx, "alice"))

	state, _ := repo.GetState(ctx, "alice")
	assert.Equal(t, domain.MatchIdle, state)
	for skill, q := range repo.queues {
		assert.Empty(t, q, "queue %s", skill)
	}

	// Cancel when not searching is still a defensive reset to IDLE.
	require.NoError(t, repo.SetState(ctx, "alice", domain.MatchInCall))
	require.NoError(t, repo.CancelMatching(ctx, "alice"))
	state, _ = repo.GetState(ctx, "alice")
	assert.Equal(t, domain.MatchIdle, state)
}

func TestSetStateAwayFromSearchingPurgesQueues(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"go"})
	require.NoError(t, repo.SetState(ctx, "alice", domain.MatchInCall))

	assert.Empty(t, repo.queues["go"])
}

func TestConcurrentRoundsMatchExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMatchFixture(t, "alice", "bob")

	_, _, _ = repo.RunMatchRound(ctx, "alice", []string{"go"})

	var wg sync.WaitGroup
	results := make([]domain.UserID, 2)
	for i, u := range []domain.UserID{"bob", "bob"} {
		wg.Add(1)
		go func(i int, u domain.UserID) {
			defer wg.Done()
			matched, _, err := repo.RunMatchRound(ctx, u, []string{"go"})
			assert.NoError(t, err)
			results[i] = matched
		}(i, u)
	}
	wg.Wait()

	// Alice can be claimed by exactly one round.
	claimed := 0
	for _, m := range results {
		if m == "alice" {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}
