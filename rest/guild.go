package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"discord-gateway-client/types"
)

// GuildAPI binds a guild id to the REST engine.
type GuildAPI struct {
	c  *Client
	id types.Snowflake
}

// Guild returns a handle for id.
func (c *Client) Guild(id types.Snowflake) *GuildAPI {
	return &GuildAPI{c: c, id: id}
}

func (a *GuildAPI) prefix() string {
	return "/guilds/" + a.id.String()
}

// Get fetches the guild.
func (a *GuildAPI) Get(ctx context.Context) (*types.Guild, error) {
	var g types.Guild
	if err := a.c.doJSON(ctx, a.prefix(), a.prefix(), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GuildEdit names the modifiable guild fields.
type GuildEdit struct {
	Name                        string          `json:"name,omitempty"`
	Region                      string          `json:"region,omitempty"`
	VerificationLevel           *int            `json:"verification_level,omitempty"`
	DefaultMessageNotifications *int            `json:"default_message_notifications,omitempty"`
	AFKChannelID                types.Snowflake `json:"afk_channel_id,omitempty"`
	AFKTimeout                  int             `json:"afk_timeout,omitempty"`
	Icon                        string          `json:"icon,omitempty"`
	OwnerID                     types.Snowflake `json:"owner_id,omitempty"`
	Splash                      string          `json:"splash,omitempty"`
}

// Modify patches the guild.
func (a *GuildAPI) Modify(ctx context.Context, edit GuildEdit) (*types.Guild, error) {
	var g types.Guild
	err := a.c.doJSON(ctx, a.prefix(), a.prefix(), func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = edit
	}, &g)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Channels lists the guild's channels.
func (a *GuildAPI) Channels(ctx context.Context) ([]types.Channel, error) {
	var chs []types.Channel
	err := a.c.doJSON(ctx, a.prefix()+"/channels", a.prefix(), nil, &chs)
	return chs, err
}

// ChannelCreate is the create-channel payload.
type ChannelCreate struct {
	Name      string `json:"name"`
	Type      int    `json:"type,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"`
	UserLimit int    `json:"user_limit,omitempty"`
	NSFW      bool   `json:"nsfw,omitempty"`
}

// CreateChannel creates a channel.
func (a *GuildAPI) CreateChannel(ctx context.Context, create ChannelCreate) (*types.Channel, error) {
	var ch types.Channel
	err := a.c.doJSON(ctx, a.prefix()+"/channels", a.prefix(), func(r *Request) {
		r.Method = http.MethodPost
		r.Body = create
	}, &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Member fetches one member.
func (a *GuildAPI) Member(ctx context.Context, user types.Snowflake) (*types.GuildMember, error) {
	var m types.GuildMember
	err := a.c.doJSON(ctx, a.prefix()+"/members/"+user.String(), a.prefix()+"/members", nil, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Members pages through the member list.
func (a *GuildAPI) Members(ctx context.Context, limit int, after types.Snowflake) ([]types.GuildMember, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !after.IsZero() {
		q.Set("after", after.String())
	}
	var ms []types.GuildMember
	err := a.c.doJSON(ctx, a.prefix()+"/members", a.prefix()+"/members", func(r *Request) {
		r.Query = q
	}, &ms)
	return ms, err
}

// MemberEdit names the modifiable member fields.
type MemberEdit struct {
	Nick      *string           `json:"nick,omitempty"`
	Roles     []types.Snowflake `json:"roles,omitempty"`
	Mute      *bool             `json:"mute,omitempty"`
	Deaf      *bool             `json:"deaf,omitempty"`
	ChannelID *types.Snowflake  `json:"channel_id,omitempty"`
}

// ModifyMember patches a member.
func (a *GuildAPI) ModifyMember(ctx context.Context, user types.Snowflake, edit MemberEdit) error {
	return a.c.doJSON(ctx, a.prefix()+"/members/"+user.String(), a.prefix()+"/members", func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = edit
	}, nil)
}

// SetNickname changes a member's nickname.
func (a *GuildAPI) SetNickname(ctx context.Context, user types.Snowflake, nick string) error {
	return a.ModifyMember(ctx, user, MemberEdit{Nick: &nick})
}

// ChangeNickname changes the caller's own nickname and returns the
// nickname the server settled on.
func (a *GuildAPI) ChangeNickname(ctx context.Context, nick string) (string, error) {
	var out struct {
		Nick string `json:"nick"`
	}
	err := a.c.doJSON(ctx, a.prefix()+"/members/@me/nick", a.prefix()+"/members", func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = map[string]string{"nick": nick}
	}, &out)
	return out.Nick, err
}

// Kick removes a member.
func (a *GuildAPI) Kick(ctx context.Context, user types.Snowflake, reason string) error {
	return a.c.doJSON(ctx, a.prefix()+"/members/"+user.String(), a.prefix()+"/members", func(r *Request) {
		r.Method = http.MethodDelete
		if reason != "" {
			r.Query = url.Values{"reason": {reason}}
		}
	}, nil)
}

// Roles lists the guild's roles.
func (a *GuildAPI) Roles(ctx context.Context) ([]types.Role, error) {
	var roles []types.Role
	err := a.c.doJSON(ctx, a.prefix()+"/roles", a.prefix()+"/roles", nil, &roles)
	return roles, err
}

// RoleEdit names the modifiable role fields.
type RoleEdit struct {
	Name        string `json:"name,omitempty"`
	Permissions *int64 `json:"permissions,omitempty"`
	Color       *int   `json:"color,omitempty"`
	Hoist       *bool  `json:"hoist,omitempty"`
	Mentionable *bool  `json:"mentionable,omitempty"`
}

// CreateRole creates a role.
func (a *GuildAPI) CreateRole(ctx context.Context, edit RoleEdit) (*types.Role, error) {
	var role types.Role
	err := a.c.doJSON(ctx, a.prefix()+"/roles", a.prefix()+"/roles", func(r *Request) {
		r.Method = http.MethodPost
		r.Body = edit
	}, &role)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ModifyRole patches a role.
func (a *GuildAPI) ModifyRole(ctx context.Context, role types.Snowflake, edit RoleEdit) (*types.Role, error) {
	var out types.Role
	err := a.c.doJSON(ctx, a.prefix()+"/roles/"+role.String(), a.prefix()+"/roles", func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = edit
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRole deletes a role.
func (a *GuildAPI) DeleteRole(ctx context.Context, role types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/roles/"+role.String(), a.prefix()+"/roles", func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// AddMemberRole grants a role to a member.
func (a *GuildAPI) AddMemberRole(ctx context.Context, user, role types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/members/"+user.String()+"/roles/"+role.String(),
		a.prefix()+"/members", func(r *Request) {
			r.Method = http.MethodPut
		}, nil)
}

// RemoveMemberRole revokes a role from a member.
func (a *GuildAPI) RemoveMemberRole(ctx context.Context, user, role types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/members/"+user.String()+"/roles/"+role.String(),
		a.prefix()+"/members", func(r *Request) {
			r.Method = http.MethodDelete
		}, nil)
}

// Bans lists the guild's bans.
func (a *GuildAPI) Bans(ctx context.Context) ([]types.Ban, error) {
	var bans []types.Ban
	err := a.c.doJSON(ctx, a.prefix()+"/bans", a.prefix()+"/bans", nil, &bans)
	return bans, err
}

// Ban bans a user, adding only the provided query parameters.
func (a *GuildAPI) Ban(ctx context.Context, user types.Snowflake, reason string, deleteMessageDays int) error {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", reason)
	}
	if deleteMessageDays > 0 {
		q.Set("delete-message-days", strconv.Itoa(deleteMessageDays))
	}
	return a.c.doJSON(ctx, a.prefix()+"/bans/"+user.String(), a.prefix()+"/bans", func(r *Request) {
		r.Method = http.MethodPut
		r.Query = q
	}, nil)
}

// Unban lifts a ban.
func (a *GuildAPI) Unban(ctx context.Context, user types.Snowflake) error {
	return a.c.doJSON(ctx, a.prefix()+"/bans/"+user.String(), a.prefix()+"/bans", func(r *Request) {
		r.Method = http.MethodDelete
	}, nil)
}

// PruneCount reports how many members a prune of the given idle days
// would remove.
func (a *GuildAPI) PruneCount(ctx context.Context, days int) (int, error) {
	var out struct {
		Pruned int `json:"pruned"`
	}
	err := a.c.doJSON(ctx, a.prefix()+"/prune", a.prefix(), func(r *Request) {
		r.Query = url.Values{"days": {strconv.Itoa(days)}}
	}, &out)
	return out.Pruned, err
}

// BeginPrune kicks members idle for the given number of days.
func (a *GuildAPI) BeginPrune(ctx context.Context, days int) (int, error) {
	var out struct {
		Pruned int `json:"pruned"`
	}
	err := a.c.doJSON(ctx, a.prefix()+"/prune", a.prefix(), func(r *Request) {
		r.Method = http.MethodPost
		r.Query = url.Values{"days": {strconv.Itoa(days)}}
	}, &out)
	return out.Pruned, err
}

// Invites lists the guild's invites.
func (a *GuildAPI) Invites(ctx context.Context) ([]types.Invite, error) {
	var invites []types.Invite
	err := a.c.doJSON(ctx, a.prefix()+"/invites", a.prefix(), nil, &invites)
	return invites, err
}

// Integrations lists the guild's integrations.
func (a *GuildAPI) Integrations(ctx context.Context) ([]types.Integration, error) {
	var ints []types.Integration
	err := a.c.doJSON(ctx, a.prefix()+"/integrations", a.prefix(), nil, &ints)
	return ints, err
}

// Embed fetches the guild embed settings.
func (a *GuildAPI) Embed(ctx context.Context) (*types.GuildEmbed, error) {
	var e types.GuildEmbed
	if err := a.c.doJSON(ctx, a.prefix()+"/embed", a.prefix(), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ModifyEmbed updates the guild embed settings.
func (a *GuildAPI) ModifyEmbed(ctx context.Context, embed types.GuildEmbed) (*types.GuildEmbed, error) {
	var out types.GuildEmbed
	err := a.c.doJSON(ctx, a.prefix()+"/embed", a.prefix(), func(r *Request) {
		r.Method = http.MethodPatch
		r.Body = embed
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Regions lists the voice regions available to the guild.
func (a *GuildAPI) Regions(ctx context.Context) ([]types.VoiceRegion, error) {
	var regions []types.VoiceRegion
	err := a.c.doJSON(ctx, a.prefix()+"/regions", a.prefix(), nil, &regions)
	return regions, err
}

// Emojis lists the guild's emojis.
func (a *GuildAPI) Emojis(ctx context.Context) ([]types.Emoji, error) {
	var emojis []types.Emoji
	err := a.c.doJSON(ctx, a.prefix()+"/emojis", a.prefix(), nil, &emojis)
	return emojis, err
}
