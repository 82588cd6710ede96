package discord

import (
	"context"
	"fmt"
	"net/url"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

// RespondEphemeral answers an interaction with a message only the user
// sees. with_response=true makes Discord return the created message so
// its id can be tracked.
func (c *Client) RespondEphemeral(ctx context.Context, in platform.Interaction, msg platform.OutgoingMessage) (*platform.Message, error) {
	data := payload(msg)
	data.Flags = flagEphemeral
	body := struct {
		Type int            `json:"type"`
		Data messagePayload `json:"data"`
	}{callbackChannelMessage, data}

	var resp struct {
		Resource struct {
			Message *message `json:"message"`
		} `json:"resource"`
	}
	path := fmt.Sprintf("/interactions/%s/%s/callback?with_response=true",
		url.PathEscape(in.ID), url.PathEscape(in.Token))
	if err := c.post(ctx, path, body, msg.Attachment, &resp); err != nil {
		return nil, err
	}
	if resp.Resource.Message == nil {
		return nil, fmt.Errorf("interaction %s: callback returned no message", in.ID)
	}
	m := resp.Resource.Message.toPlatform()
	return &m, nil
}

// DeferEphemeral acknowledges an interaction within Discord's initial
// response window. The user sees a private "thinking" state until
// EditReply fills it in.
func (c *Client) DeferEphemeral(ctx context.Context, in platform.Interaction) error {
	body := struct {
		Type int `json:"type"`
		Data struct {
			Flags int `json:"flags"`
		} `json:"data"`
	}{Type: callbackDeferredChannelMessage}
	body.Data.Flags = flagEphemeral

	path := fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(in.ID), url.PathEscape(in.Token))
	return c.call(ctx, "POST", path, body, nil)
}

// EditReply replaces the original response of a deferred interaction.
// The edit keeps the ephemeral flag set by DeferEphemeral.
func (c *Client) EditReply(ctx context.Context, in platform.Interaction, msg platform.OutgoingMessage) (*platform.Message, error) {
	app := in.ApplicationID
	if app == "" {
		app = c.appID
	}
	if app == "" {
		return nil, errors.NewValidation("interaction " + in.ID + ": no application id to edit the reply with")
	}

	var m message
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", url.PathEscape(app), url.PathEscape(in.Token))
	if err := c.write(ctx, "PATCH", path, payload(msg), msg.Attachment, &m); err != nil {
		return nil, err
	}
	pm := m.toPlatform()
	return &pm, nil
}
