package threads

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

func testDirectory(t *testing.T) (*Directory, *platform.Mock, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	p := platform.NewMock(clk)
	p.AddConversation("c1")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(p, Config{NamePrefix: "Charts", ArchiveAfter: time.Hour}, clk, logger)
	t.Cleanup(d.Close)
	return d, p, clk
}

func TestThreadName(t *testing.T) {
	assert.Equal(t, "Charts - alice", ThreadName("Charts", " alice "))
	assert.True(t, IsBotThread("Charts", "Charts - alice"))
	assert.False(t, IsBotThread("Charts", "Charts alice"))
	assert.False(t, IsBotThread("Charts", "general"))

	long := ThreadName("Charts", string(make([]byte, 200)))
	assert.Len(t, long, maxNameLen)
}

func TestGetOrCreateReusesLiveThread(t *testing.T) {
	d, p, _ := testDirectory(t)
	ctx := context.Background()

	first, err := d.GetOrCreate(ctx, "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)
	assert.True(t, first.CreatedNew)
	assert.NotEmpty(t, first.NoticeID)

	second, err := d.GetOrCreate(ctx, "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)
	assert.False(t, second.CreatedNew)
	assert.Empty(t, second.NoticeID)
	assert.Equal(t, first.Handle.ThreadID, second.Handle.ThreadID)
	assert.Equal(t, 1, p.Calls("CreateThread"))
}

func TestGetOrCreateReplacesStaleThread(t *testing.T) {
	d, p, _ := testDirectory(t)
	ctx := context.Background()

	first, err := d.GetOrCreate(ctx, "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)
	require.NoError(t, p.DeleteThread(ctx, first.Handle.ThreadID))

	second, err := d.GetOrCreate(ctx, "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)
	assert.True(t, second.CreatedNew)
	assert.NotEqual(t, first.Handle.ThreadID, second.Handle.ThreadID)
	assert.Equal(t, 1, d.Len())
}

func TestGetOrCreateFailure(t *testing.T) {
	d, p, _ := testDirectory(t)
	p.CreateThreadErr = errors.NewForbidden("thread", "c1")

	_, err := d.GetOrCreate(context.Background(), "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrForbidden))
	assert.Equal(t, 0, d.Len())

	_, err = d.GetOrCreate(context.Background(), "u1", Context{UserName: "alice"})
	assert.Error(t, err)
}

func TestAutoExpiry(t *testing.T) {
	d, _, clk := testDirectory(t)
	_, err := d.GetOrCreate(context.Background(), "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	assert.Equal(t, 1, d.Len())

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestRemoveIfSafe(t *testing.T) {
	d, _, clk := testDirectory(t)
	_, err := d.GetOrCreate(context.Background(), "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)

	assert.False(t, d.RemoveIfSafe("u1", func(string) bool { return true }))
	assert.Equal(t, 1, d.Len())

	assert.True(t, d.RemoveIfSafe("u1", func(string) bool { return false }))
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, clk.PendingTimers(), "removal stops the expiry timer")

	d.Remove("nobody")
}

func TestReleaseThreadOnlyDropsMatchingHandle(t *testing.T) {
	d, _, _ := testDirectory(t)
	res, err := d.GetOrCreate(context.Background(), "u1", Context{ConversationID: "c1", UserName: "alice"})
	require.NoError(t, err)

	safe := d.ReleaseThread("u1", "older-thread", func(string, string) bool { return false })
	assert.True(t, safe)
	assert.Equal(t, 1, d.Len(), "handle points at a different thread")
	assert.False(t, d.Tracks("older-thread"))
	assert.True(t, d.Tracks(res.Handle.ThreadID))

	assert.True(t, d.ReleaseThread("u1", res.Handle.ThreadID, func(string, string) bool { return false }))
	assert.Equal(t, 0, d.Len())
}

func TestWithThreadBlocksRelease(t *testing.T) {
	d, _, _ := testDirectory(t)
	ctx := context.Background()

	inside := make(chan struct{})
	proceed := make(chan struct{})
	var tracked sync.Map

	var wg sync.WaitGroup
	wg.Add(1)
	var threadID string
	go func() {
		defer wg.Done()
		err := d.WithThread(ctx, "u1", Context{ConversationID: "c1", UserName: "alice"}, func(r Result) error {
			threadID = r.Handle.ThreadID
			close(inside)
			<-proceed
			tracked.Store(r.Handle.ThreadID, true)
			return nil
		})
		assert.NoError(t, err)
	}()

	<-inside
	released := make(chan bool)
	go func() {
		released <- d.ReleaseThread("u1", threadID, func(_, tid string) bool {
			_, ok := tracked.Load(tid)
			return ok
		})
	}()

	close(proceed)
	wg.Wait()
	assert.False(t, <-released, "release must observe the artifact tracked inside WithThread")
	assert.Equal(t, 1, d.Len())
}

func TestUserLocksArePruned(t *testing.T) {
	d, _, _ := testDirectory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, user := range []string{"u1", "u2", "u3"} {
		user := user
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := d.GetOrCreate(ctx, user, Context{ConversationID: "c1", UserName: user})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()
	assert.Equal(t, 3, d.Len(), "one thread per user")

	d.Remove("u1")
	d.RemoveIfSafe("u2", func(string) bool { return false })

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.locks)
}
