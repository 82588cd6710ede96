package discord

import (
	"context"
	"fmt"
	"net/url"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

// noticeScan is how far back in the parent we look for the creation notice.
const noticeScan = 10

// CreateThread starts a public thread in a channel and records the id of
// the system notice Discord posts in the parent.
func (c *Client) CreateThread(ctx context.Context, conversationID, name string, archiveAfterMinutes int) (*platform.Thread, error) {
	req := struct {
		Name                string `json:"name"`
		AutoArchiveDuration int    `json:"auto_archive_duration"`
		Type                int    `json:"type"`
	}{name, archiveAfterMinutes, channelPublicThread}

	var ch channel
	if err := c.call(ctx, "POST", "/channels/"+url.PathEscape(conversationID)+"/threads", req, &ch); err != nil {
		return nil, err
	}
	th := ch.toThread()
	if th.ParentID == "" {
		th.ParentID = conversationID
	}

	// The notice is best effort; a thread without one is still usable.
	recent, err := c.RecentMessages(ctx, conversationID, noticeScan)
	if err != nil {
		c.logger.Warn("discord: could not look up thread notice", "thread", th.ID, "error", err)
		return &th, nil
	}
	for _, m := range recent {
		if m.Type == platform.MessageTypeThreadCreated && m.ReferenceID == th.ID {
			th.NoticeID = m.ID
			break
		}
	}
	return &th, nil
}

// FetchThread returns a thread by id. A channel that is not a thread
// reads as not found.
func (c *Client) FetchThread(ctx context.Context, threadID string) (*platform.Thread, error) {
	var ch channel
	if err := c.call(ctx, "GET", "/channels/"+url.PathEscape(threadID), nil, &ch); err != nil {
		return nil, err
	}
	if !ch.isThread() {
		return nil, errors.NewNotFound("thread", threadID)
	}
	th := ch.toThread()
	return &th, nil
}

// DeleteThread deletes a thread channel.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.call(ctx, "DELETE", "/channels/"+url.PathEscape(threadID), nil, nil)
}

// ListActiveThreads returns the active threads whose parent is the channel.
// Discord lists active threads per guild, so the channel is resolved first.
func (c *Client) ListActiveThreads(ctx context.Context, conversationID string) ([]platform.Thread, error) {
	conv, err := c.FetchConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.GuildID == "" {
		return nil, nil
	}
	var list threadList
	if err := c.call(ctx, "GET", "/guilds/"+url.PathEscape(conv.GuildID)+"/threads/active", nil, &list); err != nil {
		return nil, err
	}
	var out []platform.Thread
	for _, ch := range list.Threads {
		if ch.ParentID == conversationID {
			out = append(out, ch.toThread())
		}
	}
	return out, nil
}

// ListArchivedThreads returns public archived threads of the channel,
// following pagination.
func (c *Client) ListArchivedThreads(ctx context.Context, conversationID string) ([]platform.Thread, error) {
	var out []platform.Thread
	before := ""
	for page := 0; page < 10; page++ {
		path := fmt.Sprintf("/channels/%s/threads/archived/public?limit=100", url.PathEscape(conversationID))
		if before != "" {
			path += "&before=" + url.QueryEscape(before)
		}
		var list threadList
		if err := c.call(ctx, "GET", path, nil, &list); err != nil {
			return out, err
		}
		for _, ch := range list.Threads {
			out = append(out, ch.toThread())
		}
		if !list.HasMore || len(list.Threads) == 0 {
			break
		}
		last := list.Threads[len(list.Threads)-1]
		if last.ThreadMetadata == nil {
			break
		}
		before = last.ThreadMetadata.ArchiveTimestamp.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return out, nil
}
