// Package state owns the in-memory entity caches and maps gateway events
// onto them. A State is instantiated per client, so tests get disposable
// contexts instead of process globals.
package state

import (
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"discord-gateway-client/cache"
	"discord-gateway-client/etf"
	"discord-gateway-client/types"
)

// messageCacheLimit bounds the message cache to roughly a 16 MiB
// footprint assuming an average message of ~2 KiB.
const messageCacheLimit = 8192

// GuildUserKey is the composite key for per-guild member state.
type GuildUserKey struct {
	GuildID types.Snowflake
	UserID  types.Snowflake
}

// GuildUser is the cached per-guild member state.
type GuildUser struct {
	GuildID  types.Snowflake
	UserID   types.Snowflake
	JoinedAt types.Timestamp
	Roles    []types.Snowflake
	Nick     string
	Status   string
	Game     *types.Activity
	Deaf     bool
	Mute     bool
}

// ChannelUserKey is the composite key for per-channel user state.
type ChannelUserKey struct {
	ChannelID types.Snowflake
	UserID    types.Snowflake
}

// ChannelUser is the cached per-channel user state.
type ChannelUser struct {
	ChannelID  types.Snowflake
	UserID     types.Snowflake
	LastTyping int64
}

// VoiceStateKey identifies a voice state. A user has at most one voice
// state per guild, so the key is per-user; the channel lives in the
// value, where a move or disconnect overwrites it.
type VoiceStateKey struct {
	GuildID types.Snowflake
	UserID  types.Snowflake
}

// State is the top-level cache context shared by the gateway handlers
// (write-mostly) and caller code (read-mostly).
type State struct {
	Users        *cache.Store[types.Snowflake, types.User]
	Channels     *cache.Store[types.Snowflake, types.Channel]
	Guilds       *cache.Store[types.Snowflake, types.Guild]
	Messages     *cache.Store[types.Snowflake, types.Message]
	GuildUsers   *cache.Store[GuildUserKey, GuildUser]
	ChannelUsers *cache.Store[ChannelUserKey, ChannelUser]
	VoiceStates  *cache.Store[VoiceStateKey, types.VoiceState]

	log *zap.Logger

	mu                sync.Mutex
	sessionID         string
	protocolVersion   int
	selfUser          types.User
	guildIDs          []types.Snowflake
	privateChannelIDs []types.Snowflake
}

// New returns an empty state context.
func New(log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{
		Users: cache.New(
			func(v *types.User) types.Snowflake { return v.ID },
			func(v *types.User, k types.Snowflake) { v.ID = k },
		),
		Channels: cache.New(
			func(v *types.Channel) types.Snowflake { return v.ID },
			func(v *types.Channel, k types.Snowflake) { v.ID = k },
		),
		Guilds: cache.New(
			func(v *types.Guild) types.Snowflake { return v.ID },
			func(v *types.Guild, k types.Snowflake) { v.ID = k },
		),
		Messages: cache.NewBounded(
			func(v *types.Message) types.Snowflake { return v.ID },
			func(v *types.Message, k types.Snowflake) { v.ID = k },
			messageCacheLimit,
		),
		GuildUsers: cache.New(
			func(v *GuildUser) GuildUserKey { return GuildUserKey{v.GuildID, v.UserID} },
			func(v *GuildUser, k GuildUserKey) { v.GuildID, v.UserID = k.GuildID, k.UserID },
		),
		ChannelUsers: cache.New(
			func(v *ChannelUser) ChannelUserKey { return ChannelUserKey{v.ChannelID, v.UserID} },
			func(v *ChannelUser, k ChannelUserKey) { v.ChannelID, v.UserID = k.ChannelID, k.UserID },
		),
		VoiceStates: cache.New(
			func(v *types.VoiceState) VoiceStateKey {
				return VoiceStateKey{v.GuildID, v.UserID}
			},
			func(v *types.VoiceState, k VoiceStateKey) {
				v.GuildID, v.UserID = k.GuildID, k.UserID
			},
		),
		log: log,
	}
}

// SessionID returns the session id captured from READY.
func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Self returns the authenticated user captured from READY.
func (s *State) Self() types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfUser
}

// GuildIDs returns the guild ids announced in READY.
func (s *State) GuildIDs() []types.Snowflake {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Snowflake, len(s.guildIDs))
	copy(out, s.guildIDs)
	return out
}

// PrivateChannelIDs returns the private channel ids announced in READY.
func (s *State) PrivateChannelIDs() []types.Snowflake {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Snowflake, len(s.privateChannelIDs))
	copy(out, s.privateChannelIDs)
	return out
}

// ProtocolVersion returns the version announced in READY.
func (s *State) ProtocolVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// MemberGuild resolves a member key's guild through the cache.
func (s *State) MemberGuild(k GuildUserKey) (types.Guild, bool) {
	return s.Guilds.Get(k.GuildID)
}

// MemberUser resolves a member key's user through the cache.
func (s *State) MemberUser(k GuildUserKey) (types.User, bool) {
	return s.Users.Get(k.UserID)
}

// decode sniffs the payload format: version-prefixed ETF, else JSON.
func decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == etf.Version {
		return etf.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
