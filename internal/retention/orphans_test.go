package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
)

func TestOrphanSweep(t *testing.T) {
	f := newFixture(t, Options{
		Retention:        2 * time.Hour,
		OrphanSweepEvery: 1,
		BotUserID:        "bot",
		Conversations:    []string{"c1"},
	})
	now := f.clock.Now()
	old := now.Add(-30 * time.Hour)

	put := func(id, name, owner string, archived bool, created time.Time) {
		f.platform.PutThread(platform.Thread{
			ID: id, ParentID: "c1", Name: name, OwnerID: owner,
			Archived: archived, CreatedAt: created,
		})
	}
	put("orphan-archived", "Charts - bob", "bot", true, old)
	put("unarchived-idle", "Charts - fred", "bot", false, old)
	put("referenced", "Charts - carol", "bot", true, old)
	put("not-ours", "general", "bot", true, old)
	put("other-owner", "Charts - dave", "someone", true, old)
	put("busy", "Charts - erin", "bot", true, old)
	put("fresh", "Charts - gina", "bot", false, now.Add(-time.Hour))

	f.registry.TrackChartResponse("live", "c1", "carol", "AAPL", []string{"AAPL_2024-01-01"}, "referenced", false)
	f.platform.PutMessage(platform.Message{
		ID: "human", ConversationID: "busy", AuthorID: "erin",
		Type: platform.MessageTypeDefault, Timestamp: now.Add(-time.Hour),
	})

	summary := f.engine.RunCleanup(context.Background())
	require.True(t, summary.OrphanRun)
	assert.Equal(t, 1, summary.Orphans)
	assert.Equal(t, []string{"orphan-archived"}, f.platform.DeletedThreads())

	for _, id := range []string{"unarchived-idle", "referenced", "not-ours", "other-owner", "busy", "fresh"} {
		assert.True(t, f.platform.HasThread(id), id)
	}
}

func TestOrphanSweepSparesHandles(t *testing.T) {
	f := newFixture(t, Options{Retention: 2 * time.Hour, OrphanSweepEvery: 1})
	res, err := f.threads.GetOrCreate(context.Background(), "u1", threads.Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Hour)
	summary := f.engine.RunCleanup(context.Background())
	assert.Equal(t, 0, summary.Orphans)
	assert.True(t, f.platform.HasThread(res.Handle.ThreadID))
}

func TestOrphanSweepIgnoresSystemMessages(t *testing.T) {
	f := newFixture(t, Options{Retention: 2 * time.Hour, OrphanSweepEvery: 1, Conversations: []string{"c1"}})
	now := f.clock.Now()
	f.platform.PutThread(platform.Thread{
		ID: "t1", ParentID: "c1", Name: "Charts - bob", OwnerID: "bot", Archived: true,
	})
	f.platform.PutMessage(platform.Message{
		ID: "starter", ConversationID: "t1",
		Type: platform.MessageTypeThreadStarter, Timestamp: now.Add(-time.Minute),
	})

	summary := f.engine.RunCleanup(context.Background())
	assert.Equal(t, 1, summary.Orphans)
}

func TestOrphanSweepCadence(t *testing.T) {
	f := newFixture(t, Options{Retention: 2 * time.Hour, OrphanSweepEvery: 3})
	var runs []bool
	for i := 0; i < 6; i++ {
		runs = append(runs, f.engine.RunCleanup(context.Background()).OrphanRun)
	}
	assert.Equal(t, []bool{false, false, true, false, false, true}, runs)

	off := newFixture(t, Options{OrphanSweepEvery: -1})
	for i := 0; i < 6; i++ {
		assert.False(t, off.engine.RunCleanup(context.Background()).OrphanRun)
	}
}

func TestOrphanSweepWaitsForArchive(t *testing.T) {
	f := newFixture(t, Options{Retention: 2 * time.Hour, OrphanSweepEvery: 1, Conversations: []string{"c1"}})
	f.platform.PutThread(platform.Thread{
		ID: "t1", ParentID: "c1", Name: "Charts - bob", OwnerID: "bot",
		CreatedAt: f.clock.Now().Add(-30 * time.Hour),
	})

	assert.Equal(t, 0, f.engine.RunCleanup(context.Background()).Orphans)
	assert.True(t, f.platform.HasThread("t1"))

	f.platform.PutThread(platform.Thread{
		ID: "t1", ParentID: "c1", Name: "Charts - bob", OwnerID: "bot", Archived: true,
		CreatedAt: f.clock.Now().Add(-30 * time.Hour),
	})
	assert.Equal(t, 1, f.engine.RunCleanup(context.Background()).Orphans)
	assert.False(t, f.platform.HasThread("t1"))
}
