package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/memory"
)

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (d *recordingDispatcher) Channel() notification.ChannelType { return notification.ChannelTypeLog }

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notification.Message) notification.DeliveryStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return notification.Delivered(d.Channel(), "ok")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addChildren(t *testing.T, s *memory.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		c, err := child.NewChild(child.NewChildParams{
			GuardianID:  "guardian-1",
			DisplayName: "Mateo",
			AgeYears:    8,
			Archangels:  []string{"rafael"},
			Random:      shared.NewSeededRandom(int64(i + 1)),
			Now:         now,
		})
		require.NoError(t, err)
		require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
			return uow.Children().Create(ctx, c)
		}))
	}
}

func TestAnnounceMission(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	addChildren(t, s, 3)
	disp := &recordingDispatcher{}

	job := NewAnnounceMissionJob(s, disp, time.UTC, shared.FixedClock{T: now}, quietLogger())
	job.pageSize = 2

	// Nothing published for April yet.
	require.NoError(t, job.Run(ctx))
	assert.Empty(t, disp.msgs)

	m := &mission.Mission{
		ID:                 shared.NewID(),
		Period:             mission.Period{Year: 2026, Month: 4},
		Title:              "Misión de la Bondad",
		PointsPerChallenge: 25,
		PublishedAt:        now,
	}
	ch := &mission.Challenge{ID: shared.NewID(), Order: 1, Title: "Ayuda", PointReward: 25,
		AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto}}
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Missions().Publish(ctx, m, []*mission.Challenge{ch})
	}))

	require.NoError(t, job.Run(ctx))
	require.Len(t, disp.msgs, 3)
	for _, msg := range disp.msgs {
		assert.Equal(t, notification.KindMissionReleased, msg.Kind)
		assert.Equal(t, "guardian-1", msg.RecipientID)
		assert.Equal(t, "Misión de la Bondad", msg.Payload["missionTitle"])
		assert.Equal(t, "Mateo", msg.Payload["childName"])
	}

	// Same period again is a no-op.
	require.NoError(t, job.Run(ctx))
	assert.Len(t, disp.msgs, 3)
}

func TestReconcileProgressionJob(t *testing.T) {
	s := memory.NewStore()
	addChildren(t, s, 2)
	clock := shared.FixedClock{T: now}
	handler := command.NewReconcileProgressionHandler(s, progression.NewTracker(clock), nil, 0, nil)

	job := NewReconcileProgressionJob(handler, time.Minute, quietLogger())
	assert.Equal(t, "reconcile_progression", job.Name())
	assert.NoError(t, job.Run(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}
