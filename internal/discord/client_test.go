package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/greenghost107/TradersMind-chartBot/internal/config"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

func newTestClient(t *testing.T, r http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := New(config.DiscordConfig{Token: "tok", APIURL: srv.URL},
		WithHTTPClient(srv.Client()),
		WithRateLimit(rate.NewLimiter(rate.Inf, 1)))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(config.DiscordConfig{})
	assert.Error(t, err)
}

func TestAuthAndCurrentUser(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/users/@me", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bot tok", req.Header.Get("Authorization"))
		assert.Contains(t, req.Header.Get("User-Agent"), "DiscordBot")
		writeJSON(w, 200, map[string]any{"id": "999", "bot": true})
	})
	id, err := newTestClient(t, r).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "999", id)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   errors.Code
	}{
		{404, errors.ErrNotFound},
		{403, errors.ErrForbidden},
		{401, errors.ErrForbidden},
		{500, errors.ErrTransient},
		{502, errors.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			r := chi.NewRouter()
			r.Delete("/channels/{c}/messages/{m}", func(w http.ResponseWriter, req *http.Request) {
				writeJSON(w, tt.status, map[string]any{"code": 10008, "message": "Unknown Message"})
			})
			err := newTestClient(t, r).DeleteMessage(context.Background(), "c1", "m1")
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Classify(err))
		})
	}
}

func TestDeleteMessage(t *testing.T) {
	var path string
	r := chi.NewRouter()
	r.Delete("/channels/{c}/messages/{m}", func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, newTestClient(t, r).DeleteMessage(context.Background(), "c1", "m1"))
	assert.Equal(t, "/channels/c1/messages/m1", path)
}

func TestRateLimitRetry(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/channels/{c}", func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, 429, map[string]any{"message": "You are being rate limited.", "retry_after": 0.01, "global": false})
			return
		}
		writeJSON(w, 200, map[string]any{"id": "c1", "guild_id": "g1", "name": "charts"})
	})
	conv, err := newTestClient(t, r).FetchConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "g1", conv.GuildID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitLongWaitIsTransient(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/channels/{c}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 429, map[string]any{"retry_after": 60})
	})
	_, err := newTestClient(t, r).FetchConversation(context.Background(), "c1")
	assert.True(t, errors.Is(err, errors.ErrTransient))
}

func TestSendMessageWithButtons(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/channels/{c}/messages", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		var p messagePayload
		require.NoError(t, json.NewDecoder(req.Body).Decode(&p))
		require.Len(t, p.Components, 2, "six buttons need two rows")
		assert.Len(t, p.Components[0].Components, 5)
		assert.Equal(t, "chart:AAPL", p.Components[0].Components[0].CustomID)
		writeJSON(w, 200, map[string]any{
			"id": "m1", "channel_id": chi.URLParam(req, "c"), "type": 0,
			"author":    map[string]any{"id": "999", "bot": true},
			"timestamp": "2024-01-01T12:00:00.000000+00:00",
		})
	})

	var buttons []platform.Button
	for _, s := range []string{"AAPL", "MSFT", "NVDA", "AMD", "TSLA", "META"} {
		buttons = append(buttons, platform.Button{CustomID: "chart:" + s, Label: s})
	}
	msg, err := newTestClient(t, r).SendMessage(context.Background(), "c1", platform.OutgoingMessage{Content: "charts", Buttons: buttons})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.True(t, msg.AuthorBot)
	assert.True(t, msg.Timestamp.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestSendMessageWithAttachment(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/channels/{c}/messages", func(w http.ResponseWriter, req *http.Request) {
		require.True(t, strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, req.ParseMultipartForm(1<<20))

		var p messagePayload
		require.NoError(t, json.Unmarshal([]byte(req.FormValue("payload_json")), &p))
		require.Len(t, p.Attachments, 1)
		assert.Equal(t, "aapl.png", p.Attachments[0].Filename)

		f, hdr, err := req.FormFile("files[0]")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "aapl.png", hdr.Filename)
		assert.Equal(t, []byte("png"), data)
		writeJSON(w, 200, map[string]any{"id": "m2", "channel_id": "t1"})
	})

	msg, err := newTestClient(t, r).SendMessage(context.Background(), "t1", platform.OutgoingMessage{
		Content:    "AAPL",
		Attachment: &platform.Attachment{Filename: "aapl.png", Data: []byte("png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
}

func TestCreateThreadFindsNotice(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/channels/{c}/threads", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "Charts - alice", body["name"])
		assert.EqualValues(t, 60, body["auto_archive_duration"])
		assert.EqualValues(t, channelPublicThread, body["type"])
		writeJSON(w, 201, map[string]any{
			"id": "t1", "type": 11, "parent_id": "c1", "owner_id": "999", "name": "Charts - alice",
			"thread_metadata": map[string]any{"archived": false, "create_timestamp": "2024-01-01T12:00:00Z"},
		})
	})
	r.Get("/channels/{c}/messages", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "10", req.URL.Query().Get("limit"))
		writeJSON(w, 200, []map[string]any{
			{"id": "n2", "channel_id": "c1", "type": 18, "message_reference": map[string]any{"channel_id": "t1"}},
			{"id": "n1", "channel_id": "c1", "type": 18, "message_reference": map[string]any{"channel_id": "t0"}},
		})
	})

	th, err := newTestClient(t, r).CreateThread(context.Background(), "c1", "Charts - alice", 60)
	require.NoError(t, err)
	assert.Equal(t, "t1", th.ID)
	assert.Equal(t, "n2", th.NoticeID)
	assert.Equal(t, "999", th.OwnerID)
	assert.True(t, th.CreatedAt.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestFetchThreadRejectsPlainChannel(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/channels/{c}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "c1", "type": 0})
	})
	_, err := newTestClient(t, r).FetchThread(context.Background(), "c1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListThreads(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/channels/{c}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "c1", "guild_id": "g1"})
	})
	r.Get("/guilds/{g}/threads/active", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, map[string]any{"threads": []map[string]any{
			{"id": "t1", "type": 11, "parent_id": "c1"},
			{"id": "t2", "type": 11, "parent_id": "other"},
		}})
	})
	var pages atomic.Int32
	r.Get("/channels/{c}/threads/archived/public", func(w http.ResponseWriter, req *http.Request) {
		if pages.Add(1) == 1 {
			assert.Empty(t, req.URL.Query().Get("before"))
			writeJSON(w, 200, map[string]any{"has_more": true, "threads": []map[string]any{
				{"id": "t3", "type": 11, "parent_id": "c1", "thread_metadata": map[string]any{"archived": true, "archive_timestamp": "2024-01-01T10:00:00Z"}},
			}})
			return
		}
		assert.NotEmpty(t, req.URL.Query().Get("before"))
		writeJSON(w, 200, map[string]any{"has_more": false, "threads": []map[string]any{
			{"id": "t4", "type": 11, "parent_id": "c1", "thread_metadata": map[string]any{"archived": true, "archive_timestamp": "2024-01-01T09:00:00Z"}},
		}})
	})

	c := newTestClient(t, r)
	active, err := c.ListActiveThreads(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "t1", active[0].ID)

	archived, err := c.ListArchivedThreads(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.True(t, archived[0].Archived)
	assert.Equal(t, "t4", archived[1].ID)
}

func TestRespondEphemeral(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/interactions/{id}/{token}/callback", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "true", req.URL.Query().Get("with_response"))
		assert.Equal(t, "i1", chi.URLParam(req, "id"))
		var body struct {
			Type int            `json:"type"`
			Data messagePayload `json:"data"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, callbackChannelMessage, body.Type)
		assert.Equal(t, flagEphemeral, body.Data.Flags)
		writeJSON(w, 200, map[string]any{"resource": map[string]any{"type": 4,
			"message": map[string]any{"id": "e1", "channel_id": "c1", "type": 19}}})
	})

	msg, err := newTestClient(t, r).RespondEphemeral(context.Background(),
		platform.Interaction{ID: "i1", Token: "itok"}, platform.OutgoingMessage{Content: "no thread"})
	require.NoError(t, err)
	assert.Equal(t, "e1", msg.ID)
}

func TestDeferredReply(t *testing.T) {
	var deferred, edited atomic.Bool
	r := chi.NewRouter()
	r.Get("/users/@me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "app1", "bot": true})
	})
	r.Post("/interactions/{id}/{token}/callback", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Type int `json:"type"`
			Data struct {
				Flags int `json:"flags"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, callbackDeferredChannelMessage, body.Type)
		assert.Equal(t, flagEphemeral, body.Data.Flags)
		deferred.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Patch("/webhooks/{app}/{token}/messages/@original", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "app1", chi.URLParam(req, "app"))
		assert.Equal(t, "itok", chi.URLParam(req, "token"))
		require.NoError(t, req.ParseMultipartForm(1<<20))
		assert.Contains(t, req.FormValue("payload_json"), "AAPL 190")
		_, hdr, err := req.FormFile("files[0]")
		require.NoError(t, err)
		assert.Equal(t, "aapl.png", hdr.Filename)
		edited.Store(true)
		writeJSON(w, 200, map[string]any{"id": "orig1", "channel_id": "c1", "type": 19})
	})

	c := newTestClient(t, r)
	_, err := c.CurrentUser(context.Background())
	require.NoError(t, err)

	in := platform.Interaction{ID: "i1", Token: "itok"}
	require.NoError(t, c.DeferEphemeral(context.Background(), in))
	msg, err := c.EditReply(context.Background(), in, platform.OutgoingMessage{
		Content:    "AAPL 190",
		Attachment: &platform.Attachment{Filename: "aapl.png", Data: []byte("\x89PNG")},
	})
	require.NoError(t, err)
	assert.Equal(t, "orig1", msg.ID)
	assert.True(t, deferred.Load())
	assert.True(t, edited.Load())
}

func TestEditReplyNeedsApplication(t *testing.T) {
	c := newTestClient(t, chi.NewRouter())
	_, err := c.EditReply(context.Background(), platform.Interaction{ID: "i1", Token: "itok"},
		platform.OutgoingMessage{Content: "x"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSnowflakeTime(t *testing.T) {
	// 175928847299117063 is the example id from Discord's documentation.
	got := SnowflakeTime("175928847299117063")
	assert.Equal(t, time.Date(2016, 4, 30, 11, 18, 25, 796000000, time.UTC), got)
	assert.True(t, SnowflakeTime("garbage").IsZero())
}
