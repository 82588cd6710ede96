// Package bot turns chat events into tracked bot output: ticker prompts
// for messages and chart replies for button presses.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
	"github.com/greenghost107/TradersMind-chartBot/internal/chart"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/quote"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
	"github.com/greenghost107/TradersMind-chartBot/internal/ticker"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// ButtonPrefix starts the custom id of every chart button.
const ButtonPrefix = "chart:"

// MessageEvent is a message posted in a watched conversation.
type MessageEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	AuthorID       string `json:"author_id"`
	AuthorName     string `json:"author_name"`
	AuthorBot      bool   `json:"author_bot"`
	Content        string `json:"content"`
}

// ButtonEvent is a press on one of the prompt's chart buttons.
type ButtonEvent struct {
	InteractionID    string `json:"interaction_id"`
	InteractionToken string `json:"interaction_token"`
	ApplicationID    string `json:"application_id,omitempty"`
	ConversationID   string `json:"conversation_id"`
	UserID           string `json:"user_id"`
	UserName         string `json:"user_name"`
	CustomID         string `json:"custom_id"`
}

func (e ButtonEvent) interaction() platform.Interaction {
	return platform.Interaction{ID: e.InteractionID, Token: e.InteractionToken, ApplicationID: e.ApplicationID}
}

// Reply describes a chart the bot posted.
type Reply struct {
	MessageID string   `json:"message_id"`
	Ticker    string   `json:"ticker"`
	ThreadID  string   `json:"thread_id,omitempty"`
	NoticeID  string   `json:"notice_id,omitempty"`
	Ephemeral bool     `json:"ephemeral"`
	CacheKeys []string `json:"cache_keys"`
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Platform platform.Platform
	Registry *tracking.Registry
	Threads  *threads.Directory
	Quotes   *quote.Service
	Charts   *chart.Service
	Logger   *slog.Logger

	// Channels limits prompts to these conversations. Empty means all.
	Channels []string
}

// Bot handles inbound chat events.
type Bot struct {
	platform platform.Platform
	registry *tracking.Registry
	threads  *threads.Directory
	quotes   *quote.Service
	charts   *chart.Service
	logger   *slog.Logger
	watched  map[string]bool
}

// New creates a Bot.
func New(d Deps) *Bot {
	b := &Bot{
		platform: d.Platform,
		registry: d.Registry,
		threads:  d.Threads,
		quotes:   d.Quotes,
		charts:   d.Charts,
		logger:   d.Logger,
		watched:  make(map[string]bool),
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	for _, c := range d.Channels {
		b.watched[c] = true
	}
	return b
}

// Watches reports whether prompts are posted in conversationID.
func (b *Bot) Watches(conversationID string) bool {
	return len(b.watched) == 0 || b.watched[conversationID]
}

// ButtonID returns the custom id for a ticker's chart button.
func ButtonID(symbol string) string {
	return ButtonPrefix + cache.NormalizeTicker(symbol)
}

// ParseButton extracts the ticker from a chart button custom id.
func ParseButton(customID string) (string, bool) {
	sym, ok := strings.CutPrefix(customID, ButtonPrefix)
	sym = cache.NormalizeTicker(sym)
	if !ok || sym == "" {
		return "", false
	}
	return sym, true
}

// HandleMessage posts a button prompt for the tickers in a message and
// tracks it. Returns nil without error when nothing was posted.
func (b *Bot) HandleMessage(ctx context.Context, ev MessageEvent) (*platform.Message, error) {
	if ev.AuthorBot || !b.Watches(ev.ConversationID) {
		return nil, nil
	}
	symbols := ticker.Detect(ev.Content)
	if len(symbols) == 0 {
		return nil, nil
	}

	buttons := make([]platform.Button, len(symbols))
	for i, s := range symbols {
		buttons[i] = platform.Button{CustomID: ButtonID(s), Label: s}
	}
	msg, err := b.platform.SendMessage(ctx, ev.ConversationID, platform.OutgoingMessage{
		Content: "Charts: " + strings.Join(symbols, ", "),
		Buttons: buttons,
	})
	if err != nil {
		return nil, fmt.Errorf("post prompt: %w", err)
	}
	b.registry.TrackButtonPrompt(msg.ID, ev.ConversationID, symbols)
	b.logger.Debug("bot: prompt posted", "conversation_id", ev.ConversationID, "message_id", msg.ID, "tickers", symbols)
	return msg, nil
}

// HandleButton answers a chart button: the chart is posted into the
// user's thread, or ephemerally when no thread can be used. Every posted
// message is tracked with the cache keys it consumed.
//
// The interaction is acknowledged with a deferred ephemeral response
// before any slow work, and the answer later replaces that response.
func (b *Bot) HandleButton(ctx context.Context, ev ButtonEvent) (*Reply, error) {
	sym, ok := ParseButton(ev.CustomID)
	if !ok {
		return nil, errors.NewValidation("not a chart button: " + ev.CustomID)
	}
	if ev.UserID == "" || ev.ConversationID == "" {
		return nil, errors.NewValidation("button event needs user_id and conversation_id")
	}

	deferred := b.acknowledge(ctx, ev)

	rec, quoteKey, err := b.quotes.Get(ctx, sym)
	if err != nil {
		b.logger.Warn("bot: quote failed", "ticker", sym, "error", err)
		b.notify(ctx, ev, deferred, fmt.Sprintf("Couldn't get a quote for %s right now.", sym))
		return nil, fmt.Errorf("quote %s: %w", sym, err)
	}
	keys := []string{quoteKey}

	out := platform.OutgoingMessage{Content: rec.Summary()}
	img, chartKey, err := b.charts.Get(ctx, rec)
	if err != nil {
		b.logger.Warn("bot: chart failed, sending quote only", "ticker", sym, "error", err)
	} else {
		keys = append(keys, chartKey)
		out.Attachment = &platform.Attachment{Filename: chart.Filename(sym), Data: img}
	}

	reply := &Reply{Ticker: sym, CacheKeys: keys}
	tc := threads.Context{ConversationID: ev.ConversationID, UserName: displayName(ev)}
	err = b.threads.WithThread(ctx, ev.UserID, tc, func(res threads.Result) error {
		th := res.Handle.ThreadID
		if res.CreatedNew && res.NoticeID != "" {
			b.registry.TrackThreadSystemNotice(res.NoticeID, ev.ConversationID, th, ev.UserID)
			reply.NoticeID = res.NoticeID
		}
		msg, err := b.platform.SendMessage(ctx, th, out)
		if err != nil {
			return fmt.Errorf("post chart in thread %s: %w", th, err)
		}
		b.registry.TrackChartResponse(msg.ID, ev.ConversationID, ev.UserID, sym, keys, th, false)
		reply.MessageID = msg.ID
		reply.ThreadID = th
		return nil
	})
	if err == nil {
		b.notify(ctx, ev, deferred, fmt.Sprintf("%s chart posted in <#%s>", sym, reply.ThreadID))
		return reply, nil
	}

	b.logger.Warn("bot: thread unavailable, answering ephemerally",
		"user_id", ev.UserID, "ticker", sym, "error", err)
	msg, rerr := b.answer(ctx, ev, deferred, out)
	if rerr != nil {
		return nil, fmt.Errorf("ephemeral reply for %s: %w", sym, rerr)
	}
	b.registry.TrackChartResponse(msg.ID, ev.ConversationID, ev.UserID, sym, keys, "", true)
	reply.MessageID = msg.ID
	reply.ThreadID = ""
	reply.Ephemeral = true
	return reply, nil
}

// acknowledge defers the interaction response. It reports whether the
// deferral went through; when it did not, answers fall back to an
// immediate response.
func (b *Bot) acknowledge(ctx context.Context, ev ButtonEvent) bool {
	if ev.InteractionID == "" {
		return false
	}
	if err := b.platform.DeferEphemeral(ctx, ev.interaction()); err != nil {
		b.logger.Warn("bot: interaction deferral failed", "interaction_id", ev.InteractionID, "error", err)
		return false
	}
	return true
}

// answer delivers the one ephemeral response an interaction gets.
func (b *Bot) answer(ctx context.Context, ev ButtonEvent, deferred bool, out platform.OutgoingMessage) (*platform.Message, error) {
	if deferred {
		return b.platform.EditReply(ctx, ev.interaction(), out)
	}
	return b.platform.RespondEphemeral(ctx, ev.interaction(), out)
}

// notify sends a short untracked ephemeral answer to the interaction. The
// platform expires these itself.
func (b *Bot) notify(ctx context.Context, ev ButtonEvent, deferred bool, text string) {
	if ev.InteractionID == "" {
		return
	}
	if _, err := b.answer(ctx, ev, deferred, platform.OutgoingMessage{Content: text}); err != nil {
		b.logger.Debug("bot: interaction notice failed", "interaction_id", ev.InteractionID, "error", err)
	}
}

func displayName(ev ButtonEvent) string {
	if ev.UserName != "" {
		return ev.UserName
	}
	return ev.UserID
}
