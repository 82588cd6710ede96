package discord

import (
	"strconv"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

// discordEpoch is the first millisecond of 2015, the snowflake epoch.
const discordEpoch = 1420070400000

// Channel types.
const (
	channelPublicThread  = 11
	channelPrivateThread = 12
)

// Interaction callback types and message flags.
const (
	callbackChannelMessage         = 4
	callbackDeferredChannelMessage = 5
	flagEphemeral                  = 1 << 6
)

type user struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

type messageReference struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type message struct {
	ID               string            `json:"id"`
	ChannelID        string            `json:"channel_id"`
	Author           user              `json:"author"`
	Type             int               `json:"type"`
	Content          string            `json:"content"`
	Timestamp        time.Time         `json:"timestamp"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
}

func (m message) toPlatform() platform.Message {
	out := platform.Message{
		ID:             m.ID,
		ConversationID: m.ChannelID,
		AuthorID:       m.Author.ID,
		AuthorBot:      m.Author.Bot,
		Type:           platform.MessageType(m.Type),
		Content:        m.Content,
		Timestamp:      m.Timestamp,
	}
	if m.MessageReference != nil {
		out.ReferenceID = m.MessageReference.ChannelID
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = SnowflakeTime(m.ID)
	}
	return out
}

type threadMetadata struct {
	Archived         bool       `json:"archived"`
	ArchiveTimestamp time.Time  `json:"archive_timestamp"`
	CreateTimestamp  *time.Time `json:"create_timestamp,omitempty"`
}

type channel struct {
	ID             string          `json:"id"`
	Type           int             `json:"type"`
	GuildID        string          `json:"guild_id"`
	Name           string          `json:"name"`
	ParentID       string          `json:"parent_id"`
	OwnerID        string          `json:"owner_id"`
	ThreadMetadata *threadMetadata `json:"thread_metadata,omitempty"`
}

func (c channel) isThread() bool {
	return c.Type == channelPublicThread || c.Type == channelPrivateThread
}

func (c channel) toThread() platform.Thread {
	t := platform.Thread{
		ID:       c.ID,
		ParentID: c.ParentID,
		Name:     c.Name,
		OwnerID:  c.OwnerID,
	}
	if md := c.ThreadMetadata; md != nil {
		t.Archived = md.Archived
		if md.Archived {
			t.ArchivedAt = md.ArchiveTimestamp
		}
		if md.CreateTimestamp != nil {
			t.CreatedAt = *md.CreateTimestamp
		}
	}
	// Threads created before 2022 carry no create_timestamp.
	if t.CreatedAt.IsZero() {
		t.CreatedAt = SnowflakeTime(c.ID)
	}
	return t
}

type threadList struct {
	Threads []channel `json:"threads"`
	HasMore bool      `json:"has_more"`
}

type component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []component `json:"components,omitempty"`
}

type attachmentRef struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

type messagePayload struct {
	Content     string          `json:"content,omitempty"`
	Components  []component     `json:"components,omitempty"`
	Attachments []attachmentRef `json:"attachments,omitempty"`
	Flags       int             `json:"flags,omitempty"`
}

// Discord allows five buttons per action row and five rows per message.
const buttonsPerRow = 5

func payload(msg platform.OutgoingMessage) messagePayload {
	p := messagePayload{Content: msg.Content}
	for i := 0; i < len(msg.Buttons) && i < buttonsPerRow*5; i += buttonsPerRow {
		row := component{Type: 1}
		for _, b := range msg.Buttons[i:min(i+buttonsPerRow, len(msg.Buttons))] {
			row.Components = append(row.Components, component{
				Type:     2,
				Style:    1,
				Label:    b.Label,
				CustomID: b.CustomID,
			})
		}
		p.Components = append(p.Components, row)
	}
	if msg.Attachment != nil {
		p.Attachments = []attachmentRef{{ID: 0, Filename: msg.Attachment.Filename}}
	}
	return p
}

// SnowflakeTime returns the creation time encoded in a Discord id.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(n>>22) + discordEpoch).UTC()
}
