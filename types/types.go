package types

import "time"

// Timestamp is an ISO8601 timestamp carried verbatim off the wire.
type Timestamp string

// Parse interprets the timestamp. The zero value yields the zero time.
func (t Timestamp) Parse() (time.Time, error) {
	if t == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, string(t))
}

type User struct {
	ID            Snowflake `json:"id"`
	Username      string    `json:"username,omitempty"`
	Discriminator string    `json:"discriminator,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	Bot           bool      `json:"bot,omitempty"`
	MFAEnabled    bool      `json:"mfa_enabled,omitempty"`
	Verified      bool      `json:"verified,omitempty"`
	Email         string    `json:"email,omitempty"`
}

type PermissionOverwrite struct {
	ID    Snowflake `json:"id"`
	Type  string    `json:"type,omitempty"`
	Allow int64     `json:"allow"`
	Deny  int64     `json:"deny"`
}

type Channel struct {
	ID                   Snowflake             `json:"id"`
	GuildID              Snowflake             `json:"guild_id,omitempty"`
	Type                 int                   `json:"type"`
	Position             int                   `json:"position,omitempty"`
	PermissionOverwrites []PermissionOverwrite `json:"permission_overwrites,omitempty"`
	Name                 string                `json:"name,omitempty"`
	Topic                string                `json:"topic,omitempty"`
	NSFW                 bool                  `json:"nsfw,omitempty"`
	LastMessageID        Snowflake             `json:"last_message_id,omitempty"`
	Bitrate              int                   `json:"bitrate,omitempty"`
	UserLimit            int                   `json:"user_limit,omitempty"`
	Recipients           []User                `json:"recipients,omitempty"`
	Icon                 string                `json:"icon,omitempty"`
	OwnerID              Snowflake             `json:"owner_id,omitempty"`
	ApplicationID        Snowflake             `json:"application_id,omitempty"`
	ParentID             Snowflake             `json:"parent_id,omitempty"`
	LastPinTimestamp     Timestamp             `json:"last_pin_timestamp,omitempty"`
}

type Role struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name,omitempty"`
	Color       int       `json:"color,omitempty"`
	Hoist       bool      `json:"hoist,omitempty"`
	Position    int       `json:"position,omitempty"`
	Permissions int64     `json:"permissions,omitempty"`
	Managed     bool      `json:"managed,omitempty"`
	Mentionable bool      `json:"mentionable,omitempty"`
}

type Emoji struct {
	ID            Snowflake   `json:"id"`
	Name          string      `json:"name,omitempty"`
	Roles         []Snowflake `json:"roles,omitempty"`
	User          *User       `json:"user,omitempty"`
	RequireColons bool        `json:"require_colons,omitempty"`
	Managed       bool        `json:"managed,omitempty"`
	Animated      bool        `json:"animated,omitempty"`
}

type Guild struct {
	ID                          Snowflake        `json:"id"`
	Name                        string           `json:"name,omitempty"`
	Icon                        string           `json:"icon,omitempty"`
	Splash                      string           `json:"splash,omitempty"`
	OwnerID                     Snowflake        `json:"owner_id,omitempty"`
	Region                      string           `json:"region,omitempty"`
	AFKChannelID                Snowflake        `json:"afk_channel_id,omitempty"`
	AFKTimeout                  int              `json:"afk_timeout,omitempty"`
	EmbedEnabled                bool             `json:"embed_enabled,omitempty"`
	EmbedChannelID              Snowflake        `json:"embed_channel_id,omitempty"`
	VerificationLevel           int              `json:"verification_level,omitempty"`
	DefaultMessageNotifications int              `json:"default_message_notifications,omitempty"`
	ExplicitContentFilter       int              `json:"explicit_content_filter,omitempty"`
	Roles                       []Role           `json:"roles,omitempty"`
	Emojis                      []Emoji          `json:"emojis,omitempty"`
	Features                    []string         `json:"features,omitempty"`
	MFALevel                    int              `json:"mfa_level,omitempty"`
	ApplicationID               Snowflake        `json:"application_id,omitempty"`
	JoinedAt                    Timestamp        `json:"joined_at,omitempty"`
	Large                       bool             `json:"large,omitempty"`
	Unavailable                 bool             `json:"unavailable,omitempty"`
	MemberCount                 int              `json:"member_count,omitempty"`
	VoiceStates                 []VoiceState     `json:"voice_states,omitempty"`
	Members                     []GuildMember    `json:"members,omitempty"`
	Channels                    []Channel        `json:"channels,omitempty"`
	Presences                   []PresenceUpdate `json:"presences,omitempty"`
}

type GuildMember struct {
	GuildID  Snowflake   `json:"guild_id,omitempty"`
	User     *User       `json:"user,omitempty"`
	Nick     string      `json:"nick,omitempty"`
	Roles    []Snowflake `json:"roles,omitempty"`
	JoinedAt Timestamp   `json:"joined_at,omitempty"`
	Deaf     bool        `json:"deaf,omitempty"`
	Mute     bool        `json:"mute,omitempty"`
}

type Attachment struct {
	ID       Snowflake `json:"id"`
	Filename string    `json:"filename,omitempty"`
	Size     int       `json:"size,omitempty"`
	URL      string    `json:"url,omitempty"`
	ProxyURL string    `json:"proxy_url,omitempty"`
	Height   int       `json:"height,omitempty"`
	Width    int       `json:"width,omitempty"`
}

type EmbedFooter struct {
	Text         string `json:"text,omitempty"`
	IconURL      string `json:"icon_url,omitempty"`
	ProxyIconURL string `json:"proxy_icon_url,omitempty"`
}

type EmbedImage struct {
	URL      string `json:"url,omitempty"`
	ProxyURL string `json:"proxy_url,omitempty"`
	Height   int    `json:"height,omitempty"`
	Width    int    `json:"width,omitempty"`
}

type EmbedVideo struct {
	URL    string `json:"url,omitempty"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type EmbedProvider struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

type EmbedAuthor struct {
	Name         string `json:"name,omitempty"`
	URL          string `json:"url,omitempty"`
	IconURL      string `json:"icon_url,omitempty"`
	ProxyIconURL string `json:"proxy_icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`
	Inline bool   `json:"inline,omitempty"`
}

type Embed struct {
	Title       string         `json:"title,omitempty"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Timestamp   Timestamp      `json:"timestamp,omitempty"`
	Color       int            `json:"color,omitempty"`
	Footer      *EmbedFooter   `json:"footer,omitempty"`
	Image       *EmbedImage    `json:"image,omitempty"`
	Thumbnail   *EmbedImage    `json:"thumbnail,omitempty"`
	Video       *EmbedVideo    `json:"video,omitempty"`
	Provider    *EmbedProvider `json:"provider,omitempty"`
	Author      *EmbedAuthor   `json:"author,omitempty"`
	Fields      []EmbedField   `json:"fields,omitempty"`
}

type Reaction struct {
	Count int   `json:"count"`
	Me    bool  `json:"me,omitempty"`
	Emoji Emoji `json:"emoji"`
	// Users is maintained locally from reaction events; it is not part of
	// the wire representation.
	Users []Snowflake `json:"-"`
}

type Message struct {
	ID              Snowflake    `json:"id"`
	ChannelID       Snowflake    `json:"channel_id"`
	GuildID         Snowflake    `json:"guild_id,omitempty"`
	Author          *User        `json:"author,omitempty"`
	Content         string       `json:"content,omitempty"`
	Timestamp       Timestamp    `json:"timestamp,omitempty"`
	EditedTimestamp Timestamp    `json:"edited_timestamp,omitempty"`
	TTS             bool         `json:"tts,omitempty"`
	MentionEveryone bool         `json:"mention_everyone,omitempty"`
	Mentions        []User       `json:"mentions,omitempty"`
	MentionRoles    []Snowflake  `json:"mention_roles,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Embeds          []Embed      `json:"embeds,omitempty"`
	Reactions       []Reaction   `json:"reactions,omitempty"`
	Pinned          bool         `json:"pinned,omitempty"`
	WebhookID       Snowflake    `json:"webhook_id,omitempty"`
	Type            int          `json:"type,omitempty"`
}

type VoiceState struct {
	GuildID   Snowflake `json:"guild_id,omitempty"`
	ChannelID Snowflake `json:"channel_id,omitempty"`
	UserID    Snowflake `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Deaf      bool      `json:"deaf,omitempty"`
	Mute      bool      `json:"mute,omitempty"`
	SelfDeaf  bool      `json:"self_deaf,omitempty"`
	SelfMute  bool      `json:"self_mute,omitempty"`
	Suppress  bool      `json:"suppress,omitempty"`
}

type Activity struct {
	Name string `json:"name,omitempty"`
	Type int    `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

type PresenceUpdate struct {
	User    User        `json:"user"`
	GuildID Snowflake   `json:"guild_id,omitempty"`
	Roles   []Snowflake `json:"roles,omitempty"`
	Game    *Activity   `json:"game,omitempty"`
	Status  string      `json:"status,omitempty"`
}

type Invite struct {
	Code    string   `json:"code"`
	Guild   *Guild   `json:"guild,omitempty"`
	Channel *Channel `json:"channel,omitempty"`
	Inviter *User    `json:"inviter,omitempty"`

	Uses      int       `json:"uses,omitempty"`
	MaxUses   int       `json:"max_uses,omitempty"`
	MaxAge    int       `json:"max_age,omitempty"`
	Temporary bool      `json:"temporary,omitempty"`
	CreatedAt Timestamp `json:"created_at,omitempty"`
	Revoked   bool      `json:"revoked,omitempty"`
}

type Ban struct {
	Reason string `json:"reason,omitempty"`
	User   User   `json:"user"`
}

type IntegrationAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Integration struct {
	ID                Snowflake          `json:"id"`
	Name              string             `json:"name,omitempty"`
	Type              string             `json:"type,omitempty"`
	Enabled           bool               `json:"enabled,omitempty"`
	Syncing           bool               `json:"syncing,omitempty"`
	RoleID            Snowflake          `json:"role_id,omitempty"`
	ExpireBehavior    int                `json:"expire_behavior,omitempty"`
	ExpireGracePeriod int                `json:"expire_grace_period,omitempty"`
	User              *User              `json:"user,omitempty"`
	Account           IntegrationAccount `json:"account"`
	SyncedAt          Timestamp          `json:"synced_at,omitempty"`
}

type GuildEmbed struct {
	Enabled   bool      `json:"enabled"`
	ChannelID Snowflake `json:"channel_id,omitempty"`
}

type VoiceRegion struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	VIP        bool   `json:"vip,omitempty"`
	Optimal    bool   `json:"optimal,omitempty"`
	Deprecated bool   `json:"deprecated,omitempty"`
	Custom     bool   `json:"custom,omitempty"`
}
