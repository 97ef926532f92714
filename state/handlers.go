package state

import (
	"errors"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"discord-gateway-client/cache"
	"discord-gateway-client/types"
)

var eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "state_events_handled_total",
	Help: "Gateway events folded into the caches, by kind.",
}, []string{"event"})

// HandleEvent maps a dispatch onto cache mutations. Unknown events are
// logged and ignored.
func (s *State) HandleEvent(event string, data []byte) {
	eventsHandled.WithLabelValues(event).Inc()
	var err error
	switch event {
	case "READY":
		err = s.handleReady(data)
	case "RESUMED":
		// Nothing to fold in.
	case "CHANNEL_CREATE":
		err = s.handleChannelCreate(data)
	case "CHANNEL_UPDATE":
		err = s.handleChannelUpdate(data)
	case "CHANNEL_DELETE":
		err = s.handleChannelDelete(data)
	case "GUILD_CREATE":
		err = s.handleGuildCreate(data)
	case "GUILD_UPDATE":
		err = s.handleGuildUpdate(data)
	case "GUILD_DELETE":
		err = s.handleGuildDelete(data)
	case "GUILD_EMOJIS_UPDATE":
		err = s.handleGuildEmojisUpdate(data)
	case "GUILD_MEMBER_ADD":
		err = s.handleGuildMemberAdd(data)
	case "GUILD_MEMBER_REMOVE":
		err = s.handleGuildMemberRemove(data)
	case "GUILD_MEMBER_UPDATE":
		err = s.handleGuildMemberUpdate(data)
	case "GUILD_MEMBERS_CHUNK":
		err = s.handleGuildMembersChunk(data)
	case "GUILD_ROLE_CREATE":
		err = s.handleGuildRoleCreate(data)
	case "GUILD_ROLE_UPDATE":
		err = s.handleGuildRoleUpdate(data)
	case "GUILD_ROLE_DELETE":
		err = s.handleGuildRoleDelete(data)
	case "MESSAGE_CREATE":
		err = s.handleMessageCreate(data)
	case "MESSAGE_UPDATE":
		err = s.handleMessageUpdate(data)
	case "MESSAGE_DELETE":
		err = s.handleMessageDelete(data)
	case "MESSAGE_DELETE_BULK":
		err = s.handleMessageDeleteBulk(data)
	case "MESSAGE_REACTION_ADD":
		err = s.handleReactionAdd(data)
	case "MESSAGE_REACTION_REMOVE":
		err = s.handleReactionRemove(data)
	case "MESSAGE_REACTION_REMOVE_ALL":
		err = s.handleReactionRemoveAll(data)
	case "PRESENCE_UPDATE":
		err = s.handlePresenceUpdate(data)
	case "TYPING_START":
		err = s.handleTypingStart(data)
	case "USER_UPDATE":
		err = s.handleUserUpdate(data)
	case "VOICE_STATE_UPDATE":
		err = s.handleVoiceStateUpdate(data)
	default:
		s.log.Debug("ignoring event", zap.String("event", event))
	}
	if err != nil {
		s.log.Warn("event handler failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *State) handleReady(data []byte) error {
	var ready types.Ready
	if err := decode(data, &ready); err != nil {
		return err
	}
	s.mu.Lock()
	s.sessionID = ready.SessionID
	s.protocolVersion = ready.Version
	s.selfUser = ready.User
	s.guildIDs = s.guildIDs[:0]
	for _, g := range ready.Guilds {
		s.guildIDs = append(s.guildIDs, g.ID)
	}
	s.privateChannelIDs = s.privateChannelIDs[:0]
	for _, ch := range ready.PrivateChannels {
		s.privateChannelIDs = append(s.privateChannelIDs, ch.ID)
	}
	s.mu.Unlock()

	if err := s.Users.Patch(ready.User, true); err != nil {
		return err
	}
	for _, ch := range ready.PrivateChannels {
		if err := s.Channels.Patch(ch, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) handleChannelCreate(data []byte) error {
	var ch types.Channel
	if err := decode(data, &ch); err != nil {
		return err
	}
	if err := s.Channels.Put(ch); errors.Is(err, cache.ErrDuplicateKey) {
		return s.Channels.Patch(ch, false)
	} else if err != nil {
		return err
	}
	return nil
}

func (s *State) handleChannelUpdate(data []byte) error {
	var ch types.Channel
	if err := decode(data, &ch); err != nil {
		return err
	}
	return s.Channels.Patch(ch, true)
}

func (s *State) handleChannelDelete(data []byte) error {
	var ch types.Channel
	if err := decode(data, &ch); err != nil {
		return err
	}
	s.Channels.Remove(ch.ID)
	return nil
}

func (s *State) handleGuildCreate(data []byte) error {
	var g types.Guild
	if err := decode(data, &g); err != nil {
		return err
	}

	// Channels and members arrive embedded; they are stored flattened.
	channels := g.Channels
	members := g.Members
	g.Channels = nil
	g.Members = nil

	if err := s.Guilds.Put(g); errors.Is(err, cache.ErrDuplicateKey) {
		if err := s.Guilds.Patch(g, false); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	for _, ch := range channels {
		ch.GuildID = g.ID
		if err := s.Channels.Patch(ch, true); err != nil {
			return err
		}
	}
	for _, m := range members {
		m.GuildID = g.ID
		if err := s.putMember(m); err != nil {
			return err
		}
	}
	return nil
}

// putMember stores the per-guild entry and folds the embedded user into
// the user cache.
func (s *State) putMember(m types.GuildMember) error {
	if m.User == nil {
		return nil
	}
	entry := GuildUser{
		GuildID:  m.GuildID,
		UserID:   m.User.ID,
		JoinedAt: m.JoinedAt,
		Roles:    m.Roles,
		Nick:     m.Nick,
		Deaf:     m.Deaf,
		Mute:     m.Mute,
	}
	if err := s.GuildUsers.Put(entry); errors.Is(err, cache.ErrDuplicateKey) {
		key := GuildUserKey{m.GuildID, m.User.ID}
		uerr := s.GuildUsers.Update(key, func(v *GuildUser) {
			*v = entry
		}, false)
		if uerr != nil {
			return uerr
		}
	} else if err != nil {
		return err
	}
	return s.Users.Patch(*m.User, true)
}

func (s *State) handleGuildUpdate(data []byte) error {
	var g types.Guild
	if err := decode(data, &g); err != nil {
		return err
	}
	g.Channels = nil
	g.Members = nil
	return s.Guilds.Patch(g, true)
}

func (s *State) handleGuildDelete(data []byte) error {
	var g types.Guild
	if err := decode(data, &g); err != nil {
		return err
	}
	err := s.Guilds.Update(g.ID, func(v *types.Guild) {
		v.Unavailable = true
	}, false)
	if errors.Is(err, cache.ErrNotFound) {
		s.log.Debug("guild delete for unknown guild", zap.String("guild", g.ID.String()))
		return nil
	}
	return err
}

func (s *State) handleGuildEmojisUpdate(data []byte) error {
	var ev types.GuildEmojisUpdate
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.Guilds.Update(ev.GuildID, func(v *types.Guild) {
		v.Emojis = ev.Emojis
	}, true)
}

func (s *State) handleGuildMemberAdd(data []byte) error {
	var m types.GuildMember
	if err := decode(data, &m); err != nil {
		return err
	}
	return s.putMember(m)
}

func (s *State) handleGuildMemberRemove(data []byte) error {
	var ev types.GuildMemberRemove
	if err := decode(data, &ev); err != nil {
		return err
	}
	s.GuildUsers.Remove(GuildUserKey{ev.GuildID, ev.User.ID})
	return nil
}

func (s *State) handleGuildMemberUpdate(data []byte) error {
	var ev types.GuildMemberUpdate
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.GuildUsers.Update(GuildUserKey{ev.GuildID, ev.User.ID}, func(v *GuildUser) {
		v.Roles = ev.Roles
		v.Nick = ev.Nick
	}, true)
}

func (s *State) handleGuildMembersChunk(data []byte) error {
	var ev types.GuildMembersChunk
	if err := decode(data, &ev); err != nil {
		return err
	}
	for _, m := range ev.Members {
		m.GuildID = ev.GuildID
		if err := s.putMember(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) handleGuildRoleCreate(data []byte) error {
	var ev types.GuildRoleCreate
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.Guilds.Update(ev.GuildID, func(v *types.Guild) {
		v.Roles = append(v.Roles, ev.Role)
	}, true)
}

func (s *State) handleGuildRoleUpdate(data []byte) error {
	var ev types.GuildRoleUpdate
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.Guilds.Update(ev.GuildID, func(v *types.Guild) {
		for i := range v.Roles {
			if v.Roles[i].ID == ev.Role.ID {
				v.Roles[i] = ev.Role
				return
			}
		}
		v.Roles = append(v.Roles, ev.Role)
	}, true)
}

func (s *State) handleGuildRoleDelete(data []byte) error {
	var ev types.GuildRoleDelete
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.Guilds.Update(ev.GuildID, func(v *types.Guild) {
		for i := range v.Roles {
			if v.Roles[i].ID == ev.RoleID {
				v.Roles = append(v.Roles[:i], v.Roles[i+1:]...)
				return
			}
		}
	}, true)
}

func (s *State) handleMessageCreate(data []byte) error {
	var m types.Message
	if err := decode(data, &m); err != nil {
		return err
	}
	if err := s.Messages.Put(m); errors.Is(err, cache.ErrDuplicateKey) {
		s.log.Debug("duplicate message create", zap.String("message", m.ID.String()))
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

func (s *State) handleMessageUpdate(data []byte) error {
	var m types.Message
	if err := decode(data, &m); err != nil {
		return err
	}
	err := s.Messages.Patch(m, false)
	if errors.Is(err, cache.ErrNotFound) {
		// Edits to messages outside the cache window are not tracked.
		return nil
	}
	return err
}

func (s *State) handleMessageDelete(data []byte) error {
	var ev types.MessageDelete
	if err := decode(data, &ev); err != nil {
		return err
	}
	if !s.Messages.Remove(ev.ID) {
		s.log.Debug("delete for uncached message", zap.String("message", ev.ID.String()))
	}
	return nil
}

func (s *State) handleMessageDeleteBulk(data []byte) error {
	var ev types.MessageDeleteBulk
	if err := decode(data, &ev); err != nil {
		return err
	}
	if missing := s.Messages.RemoveAll(ev.IDs); len(missing) > 0 {
		s.log.Debug("bulk delete included uncached messages", zap.Int("missing", len(missing)))
	}
	return nil
}

// sameEmoji matches custom emojis by id and unicode emojis by name.
func sameEmoji(a, b types.Emoji) bool {
	if !a.ID.IsZero() || !b.ID.IsZero() {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}

func (s *State) handleReactionAdd(data []byte) error {
	var ev types.MessageReactionAdd
	if err := decode(data, &ev); err != nil {
		return err
	}
	err := s.Messages.Update(ev.MessageID, func(m *types.Message) {
		for i := range m.Reactions {
			if sameEmoji(m.Reactions[i].Emoji, ev.Emoji) {
				m.Reactions[i].Count++
				m.Reactions[i].Users = append(m.Reactions[i].Users, ev.UserID)
				return
			}
		}
		m.Reactions = append(m.Reactions, types.Reaction{
			Count: 1,
			Emoji: ev.Emoji,
			Users: []types.Snowflake{ev.UserID},
		})
	}, false)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

func (s *State) handleReactionRemove(data []byte) error {
	var ev types.MessageReactionRemove
	if err := decode(data, &ev); err != nil {
		return err
	}
	err := s.Messages.Update(ev.MessageID, func(m *types.Message) {
		for i := range m.Reactions {
			if !sameEmoji(m.Reactions[i].Emoji, ev.Emoji) {
				continue
			}
			r := &m.Reactions[i]
			r.Count--
			for j, u := range r.Users {
				if u == ev.UserID {
					r.Users = append(r.Users[:j], r.Users[j+1:]...)
					break
				}
			}
			if r.Count <= 0 {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			}
			return
		}
	}, false)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

func (s *State) handleReactionRemoveAll(data []byte) error {
	var ev types.MessageReactionRemoveAll
	if err := decode(data, &ev); err != nil {
		return err
	}
	err := s.Messages.Update(ev.MessageID, func(m *types.Message) {
		m.Reactions = nil
	}, false)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

func (s *State) handlePresenceUpdate(data []byte) error {
	var ev types.PresenceUpdate
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.GuildUsers.Update(GuildUserKey{ev.GuildID, ev.User.ID}, func(v *GuildUser) {
		v.Status = ev.Status
		v.Game = ev.Game
		// Presence frames often omit roles entirely; an absent list must
		// not wipe the roles learned from member events.
		if len(ev.Roles) > 0 {
			v.Roles = ev.Roles
		}
	}, true)
}

func (s *State) handleTypingStart(data []byte) error {
	var ev types.TypingStart
	if err := decode(data, &ev); err != nil {
		return err
	}
	return s.ChannelUsers.Update(ChannelUserKey{ev.ChannelID, ev.UserID}, func(v *ChannelUser) {
		v.LastTyping = ev.Timestamp
	}, true)
}

func (s *State) handleUserUpdate(data []byte) error {
	var u types.User
	if err := decode(data, &u); err != nil {
		return err
	}
	return s.Users.Patch(u, true)
}

func (s *State) handleVoiceStateUpdate(data []byte) error {
	var vs types.VoiceState
	if err := decode(data, &vs); err != nil {
		return err
	}
	key := VoiceStateKey{vs.GuildID, vs.UserID}
	return s.VoiceStates.Update(key, func(v *types.VoiceState) {
		*v = vs
	}, true)
}
