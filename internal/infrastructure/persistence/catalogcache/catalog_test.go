package catalogcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

type countingCatalog struct {
	calls     map[string]int
	published bool
}

func newCountingCatalog() *countingCatalog {
	return &countingCatalog{calls: make(map[string]int), published: true}
}

func (c *countingCatalog) mission() *mission.Mission {
	return &mission.Mission{ID: "m-1", Period: mission.Period{Year: 2026, Month: 3}, ChallengeIDs: []string{"ch-1"}}
}

func (c *countingCatalog) GetByID(_ context.Context, id string) (*mission.Mission, error) {
	c.calls["id"]++
	if id != "m-1" {
		return nil, shared.ErrMissionNotFound
	}
	return c.mission(), nil
}

func (c *countingCatalog) GetByPeriod(_ context.Context, p mission.Period) (*mission.Mission, error) {
	c.calls["period"]++
	if !c.published {
		return nil, shared.ErrMissionNotFound
	}
	return c.mission(), nil
}

func (c *countingCatalog) GetChallenge(_ context.Context, id string) (*mission.Challenge, error) {
	c.calls["challenge"]++
	return &mission.Challenge{ID: id, MissionID: "m-1", AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto}}, nil
}

func (c *countingCatalog) ListChallenges(_ context.Context, missionID string) ([]*mission.Challenge, error) {
	c.calls["list"]++
	return []*mission.Challenge{{ID: "ch-1", MissionID: missionID}}, nil
}

func TestCatalog_CachesHits(t *testing.T) {
	ctx := context.Background()
	next := newCountingCatalog()
	c, err := New(next, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.GetByPeriod(ctx, mission.Period{Year: 2026, Month: 3})
		require.NoError(t, err)
		_, err = c.GetChallenge(ctx, "ch-1")
		require.NoError(t, err)
		_, err = c.ListChallenges(ctx, "m-1")
		require.NoError(t, err)
	}
	// The period lookup also primed the id entry.
	_, err = c.GetByID(ctx, "m-1")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls["period"])
	assert.Equal(t, 1, next.calls["challenge"])
	assert.Equal(t, 1, next.calls["list"])
	assert.Equal(t, 0, next.calls["id"])
}

func TestCatalog_MissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	next := newCountingCatalog()
	next.published = false
	c, err := New(next, 8)
	require.NoError(t, err)

	p := mission.Period{Year: 2026, Month: 4}
	_, err = c.GetByPeriod(ctx, p)
	assert.ErrorIs(t, err, shared.ErrMissionNotFound)

	next.published = true
	m, err := c.GetByPeriod(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.ID)
	assert.Equal(t, 2, next.calls["period"])
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c, err := New(newCountingCatalog(), 8)
	require.NoError(t, err)

	m, err := c.GetByID(ctx, "m-1")
	require.NoError(t, err)
	m.ChallengeIDs[0] = "mutated"

	again, err := c.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "ch-1", again.ChallengeIDs[0])
}

func TestCatalog_BoundedAndPurge(t *testing.T) {
	ctx := context.Background()
	c, err := New(newCountingCatalog(), 2)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		_, err := c.GetChallenge(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
