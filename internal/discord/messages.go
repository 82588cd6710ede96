package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

// FetchConversation returns a channel by id.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*platform.Conversation, error) {
	var ch channel
	if err := c.call(ctx, "GET", "/channels/"+url.PathEscape(conversationID), nil, &ch); err != nil {
		return nil, err
	}
	return &platform.Conversation{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

// FetchMessage returns one message from a channel.
func (c *Client) FetchMessage(ctx context.Context, conversationID, messageID string) (*platform.Message, error) {
	var m message
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(conversationID), url.PathEscape(messageID))
	if err := c.call(ctx, "GET", path, nil, &m); err != nil {
		return nil, err
	}
	pm := m.toPlatform()
	return &pm, nil
}

// DeleteMessage deletes one message.
func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(conversationID), url.PathEscape(messageID))
	return c.call(ctx, "DELETE", path, nil, nil)
}

// SendMessage posts a message, uploading the attachment if there is one.
func (c *Client) SendMessage(ctx context.Context, conversationID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	path := "/channels/" + url.PathEscape(conversationID) + "/messages"
	var m message
	if err := c.post(ctx, path, payload(msg), msg.Attachment, &m); err != nil {
		return nil, err
	}
	pm := m.toPlatform()
	return &pm, nil
}

// RecentMessages returns up to limit messages, newest first.
func (c *Client) RecentMessages(ctx context.Context, conversationID string, limit int) ([]platform.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", url.PathEscape(conversationID), limit)
	var msgs []message
	if err := c.call(ctx, "GET", path, nil, &msgs); err != nil {
		return nil, err
	}
	out := make([]platform.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.toPlatform()
	}
	return out, nil
}

// post sends body as JSON, or as multipart with payload_json when a file
// is attached.
func (c *Client) post(ctx context.Context, path string, body any, file *platform.Attachment, out any) error {
	return c.write(ctx, "POST", path, body, file, out)
}

func (c *Client) write(ctx context.Context, method, path string, body any, file *platform.Attachment, out any) error {
	if file == nil {
		return c.call(ctx, method, path, body, out)
	}
	data, contentType, err := multipartBody(body, file)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, contentType, data, out)
}

func multipartBody(body any, file *platform.Attachment) ([]byte, string, error) {
	js, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="payload_json"`)
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(js); err != nil {
		return nil, "", err
	}

	h = make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files[0]"; filename=`+strconv.Quote(file.Filename))
	h.Set("Content-Type", "image/png")
	part, err = w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
