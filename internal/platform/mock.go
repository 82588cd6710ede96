package platform

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Mock is an in-memory Platform for tests and dry runs. Zero value is not
// usable; call NewMock.
type Mock struct {
	// BotUserID is recorded as author and thread owner for everything the
	// mock creates.
	BotUserID string

	// NoThreadNotices disables the system notice posted on thread creation.
	NoThreadNotices bool

	// Error hooks. Returning nil lets the call proceed normally.
	DeleteMessageErr func(conversationID, messageID string) error
	DeleteThreadErr  func(threadID string) error
	FetchThreadErr   func(threadID string) error
	CreateThreadErr  error
	SendMessageErr   error
	RespondErr       error
	DeferErr         error

	// BeforeDeleteMessage runs before a delete is applied. Tests use it to
	// interleave event handler work with a cleanup tick.
	BeforeDeleteMessage func(conversationID, messageID string)

	clock clock.Clock

	mu            sync.Mutex
	conversations map[string]Conversation
	messages      map[string]map[string]Message
	threads       map[string]Thread
	sent          map[string]OutgoingMessage

	// deferred maps an acknowledged interaction to its reply message id,
	// empty until the first EditReply.
	deferred map[string]string

	deletedMessages []string
	deletedThreads  []string
	calls           map[string]int
}

// NewMock returns an empty Mock using clk for timestamps.
func NewMock(clk clock.Clock) *Mock {
	if clk == nil {
		clk = clock.Real()
	}
	return &Mock{
		BotUserID:     "bot",
		clock:         clk,
		conversations: make(map[string]Conversation),
		messages:      make(map[string]map[string]Message),
		threads:       make(map[string]Thread),
		sent:          make(map[string]OutgoingMessage),
		deferred:      make(map[string]string),
		calls:         make(map[string]int),
	}
}

// AddConversation registers a conversation.
func (m *Mock) AddConversation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[id] = Conversation{ID: id, GuildID: "guild", Name: id}
}

// PutMessage stores a message, creating its channel if needed.
func (m *Mock) PutMessage(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putMessageLocked(msg)
}

// PutThread stores a thread.
func (m *Mock) PutThread(th Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[th.ID] = th
	if _, ok := m.messages[th.ID]; !ok {
		m.messages[th.ID] = make(map[string]Message)
	}
}

// HasMessage reports whether a message still exists.
func (m *Mock) HasMessage(conversationID, messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.messages[conversationID][messageID]
	return ok
}

// HasThread reports whether a thread still exists.
func (m *Mock) HasThread(threadID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.threads[threadID]
	return ok
}

// DeletedMessages returns the ids of successfully deleted messages.
func (m *Mock) DeletedMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletedMessages...)
}

// DeletedThreads returns the ids of successfully deleted threads.
func (m *Mock) DeletedThreads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletedThreads...)
}

// Sent returns what was posted as message id, by SendMessage,
// RespondEphemeral or EditReply.
func (m *Mock) Sent(id string) (OutgoingMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, ok := m.sent[id]
	return out, ok
}

// Calls returns how many times the named method was invoked.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// call counts the invocation and refuses it once ctx is done, the way a
// network client fails before sending.
func (m *Mock) call(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errors.NewTransient(method, err)
	}
	return nil
}

func (m *Mock) putMessageLocked(msg Message) {
	channel, ok := m.messages[msg.ConversationID]
	if !ok {
		channel = make(map[string]Message)
		m.messages[msg.ConversationID] = channel
	}
	channel[msg.ID] = msg
}

func (m *Mock) FetchConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if err := m.call(ctx, "FetchConversation"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[conversationID]; ok {
		return &c, nil
	}
	if th, ok := m.threads[conversationID]; ok {
		return &Conversation{ID: th.ID, GuildID: "guild", Name: th.Name}, nil
	}
	return nil, errors.NewNotFound("conversation", conversationID)
}

func (m *Mock) FetchMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	if err := m.call(ctx, "FetchMessage"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[conversationID][messageID]
	if !ok {
		return nil, errors.NewNotFound("message", messageID)
	}
	return &msg, nil
}

func (m *Mock) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if err := m.call(ctx, "DeleteMessage"); err != nil {
		return err
	}
	if m.BeforeDeleteMessage != nil {
		m.BeforeDeleteMessage(conversationID, messageID)
	}
	if m.DeleteMessageErr != nil {
		if err := m.DeleteMessageErr(conversationID, messageID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[conversationID][messageID]; !ok {
		return errors.NewNotFound("message", messageID)
	}
	delete(m.messages[conversationID], messageID)
	m.deletedMessages = append(m.deletedMessages, messageID)
	return nil
}

func (m *Mock) SendMessage(ctx context.Context, conversationID string, out OutgoingMessage) (*Message, error) {
	if err := m.call(ctx, "SendMessage"); err != nil {
		return nil, err
	}
	if m.SendMessageErr != nil {
		return nil, m.SendMessageErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, isConv := m.conversations[conversationID]
	_, isThread := m.threads[conversationID]
	if !isConv && !isThread {
		return nil, errors.NewNotFound("conversation", conversationID)
	}
	msg := Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		AuthorID:       m.BotUserID,
		AuthorBot:      true,
		Type:           MessageTypeDefault,
		Content:        out.Content,
		Timestamp:      m.clock.Now(),
	}
	m.putMessageLocked(msg)
	m.sent[msg.ID] = out
	return &msg, nil
}

func (m *Mock) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if err := m.call(ctx, "RecentMessages"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, ok := m.messages[conversationID]
	if !ok {
		return nil, errors.NewNotFound("conversation", conversationID)
	}
	out := make([]Message, 0, len(channel))
	for _, msg := range channel {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Mock) CreateThread(ctx context.Context, conversationID, name string, archiveAfterMinutes int) (*Thread, error) {
	if err := m.call(ctx, "CreateThread"); err != nil {
		return nil, err
	}
	if m.CreateThreadErr != nil {
		return nil, m.CreateThreadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return nil, errors.NewNotFound("conversation", conversationID)
	}
	now := m.clock.Now()
	th := Thread{
		ID:        ulid.Make().String(),
		ParentID:  conversationID,
		Name:      name,
		OwnerID:   m.BotUserID,
		CreatedAt: now,
	}
	if !m.NoThreadNotices {
		notice := Message{
			ID:             ulid.Make().String(),
			ConversationID: conversationID,
			AuthorID:       m.BotUserID,
			AuthorBot:      true,
			Type:           MessageTypeThreadCreated,
			Content:        name,
			Timestamp:      now,
			ReferenceID:    th.ID,
		}
		m.putMessageLocked(notice)
		th.NoticeID = notice.ID
	}
	m.threads[th.ID] = th
	m.messages[th.ID] = make(map[string]Message)
	return &th, nil
}

func (m *Mock) FetchThread(ctx context.Context, threadID string) (*Thread, error) {
	if err := m.call(ctx, "FetchThread"); err != nil {
		return nil, err
	}
	if m.FetchThreadErr != nil {
		if err := m.FetchThreadErr(threadID); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	th, ok := m.threads[threadID]
	if !ok {
		return nil, errors.NewNotFound("thread", threadID)
	}
	return &th, nil
}

func (m *Mock) DeleteThread(ctx context.Context, threadID string) error {
	if err := m.call(ctx, "DeleteThread"); err != nil {
		return err
	}
	if m.DeleteThreadErr != nil {
		if err := m.DeleteThreadErr(threadID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[threadID]; !ok {
		return errors.NewNotFound("thread", threadID)
	}
	delete(m.threads, threadID)
	delete(m.messages, threadID)
	m.deletedThreads = append(m.deletedThreads, threadID)
	return nil
}

func (m *Mock) ListActiveThreads(ctx context.Context, conversationID string) ([]Thread, error) {
	if err := m.call(ctx, "ListActiveThreads"); err != nil {
		return nil, err
	}
	return m.listThreads(conversationID, false), nil
}

func (m *Mock) ListArchivedThreads(ctx context.Context, conversationID string) ([]Thread, error) {
	if err := m.call(ctx, "ListArchivedThreads"); err != nil {
		return nil, err
	}
	return m.listThreads(conversationID, true), nil
}

func (m *Mock) listThreads(conversationID string, archived bool) []Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Thread
	for _, th := range m.threads {
		if th.ParentID == conversationID && th.Archived == archived {
			out = append(out, th)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mock) RespondEphemeral(ctx context.Context, interaction Interaction, out OutgoingMessage) (*Message, error) {
	if err := m.call(ctx, "RespondEphemeral"); err != nil {
		return nil, err
	}
	if m.RespondErr != nil {
		return nil, m.RespondErr
	}
	msg := m.reply(ulid.Make().String(), out)
	m.mu.Lock()
	m.sent[msg.ID] = out
	m.mu.Unlock()
	return msg, nil
}

func (m *Mock) DeferEphemeral(ctx context.Context, interaction Interaction) error {
	if err := m.call(ctx, "DeferEphemeral"); err != nil {
		return err
	}
	if m.DeferErr != nil {
		return m.DeferErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deferred[interaction.ID]; ok {
		return errors.NewValidation("interaction " + interaction.ID + " already acknowledged")
	}
	m.deferred[interaction.ID] = ""
	return nil
}

// EditReply fails with NOT_FOUND for an interaction that was never
// deferred. Repeated edits keep the same message id.
func (m *Mock) EditReply(ctx context.Context, interaction Interaction, out OutgoingMessage) (*Message, error) {
	if err := m.call(ctx, "EditReply"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.deferred[interaction.ID]
	if !ok {
		return nil, errors.NewNotFound("interaction response", interaction.ID)
	}
	if id == "" {
		id = ulid.Make().String()
		m.deferred[interaction.ID] = id
	}
	m.sent[id] = out
	return m.reply(id, out), nil
}

func (m *Mock) reply(id string, out OutgoingMessage) *Message {
	return &Message{
		ID:        id,
		AuthorID:  m.BotUserID,
		AuthorBot: true,
		Type:      MessageTypeReply,
		Content:   out.Content,
		Timestamp: m.clock.Now(),
	}
}
