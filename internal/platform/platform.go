// Package platform defines the chat-platform operations the bot consumes.
//
// Errors returned by implementations are classified with
// internal/errors: NOT_FOUND when the object is already gone, FORBIDDEN
// when the bot lacks permission, anything else is transient.
package platform

import (
	"context"
	"time"
)

// MessageType is the structural type the platform assigns to a message.
type MessageType int

// Values follow the Discord message type enumeration.
const (
	MessageTypeDefault       MessageType = 0
	MessageTypeThreadCreated MessageType = 18
	MessageTypeReply         MessageType = 19
	MessageTypeSlashCommand  MessageType = 20
	MessageTypeThreadStarter MessageType = 21
)

// System reports whether the platform generated the message rather than a
// user or bot writing it.
func (t MessageType) System() bool {
	switch t {
	case MessageTypeDefault, MessageTypeReply, MessageTypeSlashCommand:
		return false
	}
	return true
}

// Conversation is a channel messages are posted into.
type Conversation struct {
	ID      string
	GuildID string
	Name    string
}

// Message is a posted message.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	AuthorBot      bool
	Type           MessageType
	Content        string
	Timestamp      time.Time

	// ReferenceID is the channel a system notice points at, e.g. the
	// thread announced by a MessageTypeThreadCreated notice.
	ReferenceID string
}

// Thread is a side conversation under a parent conversation.
type Thread struct {
	ID       string
	ParentID string
	Name     string
	OwnerID  string
	Archived bool

	CreatedAt  time.Time
	ArchivedAt time.Time

	// NoticeID is the id of the system notice the platform posted in the
	// parent conversation when the thread was created, if any.
	NoticeID string
}

// Button is an interactive component attached to a message.
type Button struct {
	CustomID string
	Label    string
}

// Attachment is a file uploaded with a message.
type Attachment struct {
	Filename string
	Data     []byte
}

// OutgoingMessage is a message the bot wants to post.
type OutgoingMessage struct {
	Content    string
	Buttons    []Button
	Attachment *Attachment
}

// Interaction identifies a user interaction that can be answered.
type Interaction struct {
	ID    string
	Token string

	// ApplicationID addresses follow-up edits of a deferred response.
	ApplicationID string
}

// Platform is the chat client the bot and the retention engine depend on.
type Platform interface {
	FetchConversation(ctx context.Context, conversationID string) (*Conversation, error)
	FetchMessage(ctx context.Context, conversationID, messageID string) (*Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error
	SendMessage(ctx context.Context, conversationID string, msg OutgoingMessage) (*Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	CreateThread(ctx context.Context, conversationID, name string, archiveAfterMinutes int) (*Thread, error)
	FetchThread(ctx context.Context, threadID string) (*Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListActiveThreads(ctx context.Context, conversationID string) ([]Thread, error)
	ListArchivedThreads(ctx context.Context, conversationID string) ([]Thread, error)

	// RespondEphemeral answers an interaction with a message only the
	// interacting user sees. The platform expires it by itself.
	RespondEphemeral(ctx context.Context, interaction Interaction, msg OutgoingMessage) (*Message, error)

	// DeferEphemeral acknowledges an interaction with an ephemeral
	// "thinking" response. The real answer follows with EditReply.
	DeferEphemeral(ctx context.Context, interaction Interaction) error

	// EditReply replaces the deferred response of an interaction and
	// returns the resulting message.
	EditReply(ctx context.Context, interaction Interaction, msg OutgoingMessage) (*Message, error)
}
