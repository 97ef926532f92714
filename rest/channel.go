package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"discord-gateway-client/types"
)

// ChannelAPI binds a channel id to the REST engine. Message endpoints
// share one bucket per channel; reaction endpoints get their own bucket
// because the server throttles them separately.
type ChannelAPI struct {
	c  *Client
	id types.Snowflake
}

// Channel returns a handle for id.
func (c *Client) Channel(id types.Snowflake) *ChannelAPI {
	return &ChannelAPI{c: c, id: id}
}

func (a *ChannelAPI) prefix() string {
	return "/channels/" + a.id.String()
}

func (a *ChannelAPI) messageBucket() string {
	return a.prefix() + "/messages"
}

func (a *ChannelAPI) reactionBucket() string {
	return a.prefix() + "/messages/reactions"
}

// Get fetches the channel.
func (a *ChannelAPI) Get(ctx context.Context) (*types.Channel, error) {
	var ch types.Channel
	if err := a.c.doJSON(ctx, a.prefix(), a.prefix(), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ChannelEdit names the modifiable channel fields.
type ChannelEdit struct {
	Name      string `json:"name,omitempty"`
	Position  *int   `json:"position,omitempty"`
	Topic     string `json:"topic,omitempty"`
	NSFW      *bool  `json:"nsfw,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"`
	UserLimit *int   `json:"user_limit,omitempty"`
}

// Modify patches the channel.
func (a *ChannelAPI) Modify(ctx context.Context, edit ChannelEdit) (*types.Channel, error) {
	var ch types.Channel
	err := a.c.doJSON(ctx, a.prefix(), a.prefix(), func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = edit
	}, &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Delete deletes the channel (closes a private channel).
func (a *ChannelAPI) Delete(ctx context.Context) error {
	return a.c.doJSON(ctx, a.prefix(), a.prefix(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// Messages fetches up to limit messages around at most one anchor.
func (a *ChannelAPI) Messages(ctx context.Context, limit int, around, before, after types.Snowflake) ([]types.Message, error) {
	if limit < 1 || limit > 100 {
		return nil, fmt.Errorf("%w: message limit %d outside [1,100]", ErrBadRequest, limit)
	}
	anchors := 0
	for _, s := range []types.Snowflake{around, before, after} {
		if !s.IsZero() {
			anchors++
		}
	}
	if anchors > 1 {
		return nil, fmt.Errorf("%w: around, before and after are mutually exclusive", ErrBadRequest)
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if !around.IsZero() {
		q.Set("around", around.String())
	}
	if !before.IsZero() {
		q.Set("before", before.String())
	}
	if !after.IsZero() {
		q.Set("after", after.String())
	}
	var msgs []types.Message
	err := a.c.doJSON(ctx, a.prefix()+"/messages", a.messageBucket(), func(r *Request) {
		r.Query = q
	}, &msgs)
	return msgs, err
}

// Message fetches one message.
func (a *ChannelAPI) Message(ctx context.Context, id types.Snowflake) (*types.Message, error) {
	var msg types.Message
	err := a.c.doJSON(ctx, a.prefix()+"/messages/"+id.String(), a.messageBucket(), nil, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessageSend is the create-message payload.
type MessageSend struct {
	Content string       `json:"content,omitempty"`
	Nonce   string       `json:"nonce,omitempty"`
	TTS     bool         `json:"tts,omitempty"`
	Embed   *types.Embed `json:"embed,omitempty"`
}

// CreateMessage posts a message.
func (a *ChannelAPI) CreateMessage(ctx context.Context, send MessageSend) (*types.Message, error) {
	var msg types.Message
	err := a.c.doJSON(ctx, a.prefix()+"/messages", a.messageBucket(), func(r *Request) {
		r.Method = http.MethodPost
		r.Body = send
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendMessage posts a plain text message.
func (a *ChannelAPI) SendMessage(ctx context.Context, content string) (*types.Message, error) {
	return a.CreateMessage(ctx, MessageSend{Content: content})
}

// EditMessage replaces a message's content.
func (a *ChannelAPI) EditMessage(ctx context.Context, id types.Snowflake, content string) (*types.Message, error) {
	var msg types.Message
	err := a.c.doJSON(ctx, a.prefix()+"/messages/"+id.String(), a.messageBucket(), func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = map[string]string{"content": content}
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes one message.
func (a *ChannelAPI) DeleteMessage(ctx context.Context, id types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/messages/"+id.String(), a.messageBucket(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// DeleteMessages bulk-deletes up to 100 messages. A single id routes to
// the single-message endpoint.
func (a *ChannelAPI) DeleteMessages(ctx context.Context, ids []types.Snowflake) error {
	switch {
	case len(ids) == 0:
		return fmt.Errorf("%w: no message ids", ErrBadRequest)
	case len(ids) == 1:
		return a.DeleteMessage(ctx, ids[0])
	case len(ids) > 100:
		return fmt.Errorf("%w: %d ids exceeds the bulk delete cap of 100", ErrBadRequest, len(ids))
	}
	return a.c.doJSON(ctx, a.prefix()+"/messages/bulk-delete", a.messageBucket(), func(r *Request) {
		r.Method = http.MethodPost
		r.Body = map[string][]types.Snowflake{"messages": ids}
	}, nil)
}

func (a *ChannelAPI) reactionPath(message types.Snowflake, emoji string) string {
	// PathEscape leaves ':' alone; the name:id separator of a custom emoji
	// is escaped as well.
	escaped := strings.ReplaceAll(url.PathEscape(emoji), ":", "%3A")
	return a.prefix() + "/messages/" + message.String() + "/reactions/" + escaped
}

// CreateReaction adds the caller's reaction to a message.
func (a *ChannelAPI) CreateReaction(ctx context.Context, message types.Snowflake, emoji string) error {
	return a.c.doJSON(ctx, a.reactionPath(message, emoji)+"/@me", a.reactionBucket(), func(r *Request) {
		r.Method = http.MethodPut
	}, nil)
}

// DeleteOwnReaction removes the caller's reaction.
func (a *ChannelAPI) DeleteOwnReaction(ctx context.Context, message types.Snowflake, emoji string) error {
	return a.c.doJSON(ctx, a.reactionPath(message, emoji)+"/@me", a.reactionBucket(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// DeleteUserReaction removes another user's reaction.
func (a *ChannelAPI) DeleteUserReaction(ctx context.Context, message, user types.Snowflake, emoji string) error {
	return a.c.doJSON(ctx, a.reactionPath(message, emoji)+"/"+user.String(), a.reactionBucket(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// Reactions lists the users that reacted with emoji.
func (a *ChannelAPI) Reactions(ctx context.Context, message types.Snowflake, emoji string) ([]types.User, error) {
	var users []types.User
	err := a.c.doJSON(ctx, a.reactionPath(message, emoji), a.reactionBucket(), nil, &users)
	return users, err
}

// DeleteAllReactions clears every reaction from a message.
func (a *ChannelAPI) DeleteAllReactions(ctx context.Context, message types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/messages/"+message.String()+"/reactions", a.reactionBucket(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// TriggerTyping starts the typing indicator.
func (a *ChannelAPI) TriggerTyping(ctx context.Context) error {
	return a.c.doJSON(ctx, a.prefix()+"/typing", a.prefix(), func(r *Request) {
		r.Method = http.MethodPost
	}, nil)
}

// Pins lists pinned messages.
func (a *ChannelAPI) Pins(ctx context.Context) ([]types.Message, error) {
	var msgs []types.Message
	err := a.c.doJSON(ctx, a.prefix()+"/pins", a.prefix(), nil, &msgs)
	return msgs, err
}

// AddPin pins a message.
func (a *ChannelAPI) AddPin(ctx context.Context, message types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/pins/"+message.String(), a.prefix(), func(r *Request) {
		r.Method = http.MethodPut
	}, nil)
}

// DeletePin unpins a message.
func (a *ChannelAPI) DeletePin(ctx context.Context, message types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/pins/"+message.String(), a.prefix(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// Invites lists the channel's invites.
func (a *ChannelAPI) Invites(ctx context.Context) ([]types.Invite, error) {
	var invites []types.Invite
	err := a.c.doJSON(ctx, a.prefix()+"/invites", a.prefix(), nil, &invites)
	return invites, err
}

// CreateInvite creates an invite, sending only non-default fields.
func (a *ChannelAPI) CreateInvite(ctx context.Context, maxAge, maxUses int, temporary, unique bool) (*types.Invite, error) {
	body := map[string]interface{}{}
	if maxAge > 0 {
		body["max_age"] = maxAge
	}
	if maxUses > 0 {
		body["max_uses"] = maxUses
	}
	if temporary {
		body["temporary"] = true
	}
	if unique {
		body["unique"] = true
	}
	var inv types.Invite
	err := a.c.doJSON(ctx, a.prefix()+"/invites", a.prefix(), func(r *Request) {
		r.Method = http.MethodPost
		r.Body = body
	}, &inv)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// EditPermissions sets a permission overwrite on the channel.
func (a *ChannelAPI) EditPermissions(ctx context.Context, overwrite types.PermissionOverwrite) error {
	return a.c.doJSON(ctx, a.prefix()+"/permissions/"+overwrite.ID.String(), a.prefix(), func(r *Request) {
		r.Method = http.MethodPut
		r.Body = overwrite
	}, nil)
}

// DeletePermission removes a permission overwrite.
func (a *ChannelAPI) DeletePermission(ctx context.Context, id types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/permissions/"+id.String(), a.prefix(), func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}
