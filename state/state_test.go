package state

import (
	"testing"

	"github.com/goccy/go-json"

	"discord-gateway-client/types"
)

func dispatch(t *testing.T, s *State, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	s.HandleEvent(event, data)
}

func TestReadySnapshot(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "READY", types.Ready{
		Version:         6,
		SessionID:       "sess-1",
		User:            types.User{ID: 1, Username: "self"},
		Guilds:          []types.Guild{{ID: 10, Unavailable: true}},
		PrivateChannels: []types.Channel{{ID: 20, Type: 1}},
	})
	if s.SessionID() != "sess-1" {
		t.Errorf("session id = %q", s.SessionID())
	}
	if s.ProtocolVersion() != 6 {
		t.Errorf("version = %d", s.ProtocolVersion())
	}
	if s.Self().Username != "self" {
		t.Errorf("self = %+v", s.Self())
	}
	if ids := s.GuildIDs(); len(ids) != 1 || ids[0] != 10 {
		t.Errorf("guild ids = %v", ids)
	}
	if ids := s.PrivateChannelIDs(); len(ids) != 1 || ids[0] != 20 {
		t.Errorf("private channel ids = %v", ids)
	}
}

func TestChannelLifecycle(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "CHANNEL_CREATE", types.Channel{ID: 5, Name: "general", Topic: "hi"})
	if ch, ok := s.Channels.Get(5); !ok || ch.Name != "general" {
		t.Fatalf("channel = %+v, ok=%v", ch, ok)
	}

	// Update patches without clearing absent fields.
	dispatch(t, s, "CHANNEL_UPDATE", types.Channel{ID: 5, Name: "renamed"})
	ch, _ := s.Channels.Get(5)
	if ch.Name != "renamed" || ch.Topic != "hi" {
		t.Errorf("after update: %+v", ch)
	}

	dispatch(t, s, "CHANNEL_DELETE", types.Channel{ID: 5})
	if s.Channels.Has(5) {
		t.Error("channel should be gone")
	}
}

func TestGuildCreateFlattens(t *testing.T) {
	s := New(nil)
	user := types.User{ID: 100, Username: "alice"}
	dispatch(t, s, "GUILD_CREATE", types.Guild{
		ID:   1,
		Name: "g",
		Channels: []types.Channel{
			{ID: 11, Name: "general"},
		},
		Members: []types.GuildMember{
			{User: &user, Nick: "al", Roles: []types.Snowflake{7}},
		},
	})
	if g, ok := s.Guilds.Get(1); !ok || g.Name != "g" {
		t.Fatalf("guild = %+v ok=%v", g, ok)
	}
	ch, ok := s.Channels.Get(11)
	if !ok || ch.GuildID != 1 {
		t.Errorf("embedded channel not stamped: %+v ok=%v", ch, ok)
	}
	gu, ok := s.GuildUsers.Get(GuildUserKey{1, 100})
	if !ok || gu.Nick != "al" || len(gu.Roles) != 1 {
		t.Errorf("member entry = %+v ok=%v", gu, ok)
	}
	if u, ok := s.Users.Get(100); !ok || u.Username != "alice" {
		t.Errorf("user = %+v ok=%v", u, ok)
	}
}

func TestGuildDeleteMarksUnavailable(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "GUILD_CREATE", types.Guild{ID: 1, Name: "g"})
	dispatch(t, s, "GUILD_DELETE", types.Guild{ID: 1})
	g, ok := s.Guilds.Get(1)
	if !ok || !g.Unavailable {
		t.Errorf("guild = %+v ok=%v", g, ok)
	}
}

func TestRoleEvents(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "GUILD_CREATE", types.Guild{ID: 1})
	dispatch(t, s, "GUILD_ROLE_CREATE", types.GuildRoleCreate{GuildID: 1, Role: types.Role{ID: 2, Name: "mod"}})
	dispatch(t, s, "GUILD_ROLE_UPDATE", types.GuildRoleUpdate{GuildID: 1, Role: types.Role{ID: 2, Name: "admin"}})
	g, _ := s.Guilds.Get(1)
	if len(g.Roles) != 1 || g.Roles[0].Name != "admin" {
		t.Fatalf("roles = %+v", g.Roles)
	}
	// Updating an unknown role appends it.
	dispatch(t, s, "GUILD_ROLE_UPDATE", types.GuildRoleUpdate{GuildID: 1, Role: types.Role{ID: 3, Name: "new"}})
	g, _ = s.Guilds.Get(1)
	if len(g.Roles) != 2 {
		t.Fatalf("roles = %+v", g.Roles)
	}
	dispatch(t, s, "GUILD_ROLE_DELETE", types.GuildRoleDelete{GuildID: 1, RoleID: 2})
	g, _ = s.Guilds.Get(1)
	if len(g.Roles) != 1 || g.Roles[0].ID != 3 {
		t.Fatalf("roles after delete = %+v", g.Roles)
	}
}

func TestMemberEvents(t *testing.T) {
	s := New(nil)
	user := types.User{ID: 9, Username: "bob"}
	dispatch(t, s, "GUILD_MEMBER_ADD", types.GuildMember{GuildID: 1, User: &user, Nick: "b"})
	if _, ok := s.GuildUsers.Get(GuildUserKey{1, 9}); !ok {
		t.Fatal("member missing")
	}

	dispatch(t, s, "GUILD_MEMBER_UPDATE", types.GuildMemberUpdate{
		GuildID: 1, User: user, Nick: "bb", Roles: []types.Snowflake{4},
	})
	gu, _ := s.GuildUsers.Get(GuildUserKey{1, 9})
	if gu.Nick != "bb" || len(gu.Roles) != 1 {
		t.Errorf("after update: %+v", gu)
	}

	dispatch(t, s, "GUILD_MEMBER_REMOVE", types.GuildMemberRemove{GuildID: 1, User: user})
	if _, ok := s.GuildUsers.Get(GuildUserKey{1, 9}); ok {
		t.Error("member should be gone")
	}
}

func TestMembersChunk(t *testing.T) {
	s := New(nil)
	u1 := types.User{ID: 1}
	u2 := types.User{ID: 2}
	dispatch(t, s, "GUILD_MEMBERS_CHUNK", types.GuildMembersChunk{
		GuildID: 7,
		Members: []types.GuildMember{{User: &u1}, {User: &u2}},
	})
	if !s.GuildUsers.Has(GuildUserKey{7, 1}) || !s.GuildUsers.Has(GuildUserKey{7, 2}) {
		t.Error("chunk members missing")
	}
}

func TestPresenceAndTyping(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "PRESENCE_UPDATE", types.PresenceUpdate{
		User: types.User{ID: 3}, GuildID: 1, Status: "online",
		Game: &types.Activity{Name: "chess"},
	})
	gu, ok := s.GuildUsers.Get(GuildUserKey{1, 3})
	if !ok || gu.Status != "online" || gu.Game == nil {
		t.Errorf("presence entry = %+v ok=%v", gu, ok)
	}

	dispatch(t, s, "TYPING_START", types.TypingStart{ChannelID: 5, UserID: 3, Timestamp: 12345})
	cu, ok := s.ChannelUsers.Get(ChannelUserKey{5, 3})
	if !ok || cu.LastTyping != 12345 {
		t.Errorf("typing entry = %+v ok=%v", cu, ok)
	}
}

func TestVoiceStateUpdate(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "VOICE_STATE_UPDATE", types.VoiceState{GuildID: 1, ChannelID: 2, UserID: 3, SelfMute: true})
	got, ok := s.VoiceStates.Get(VoiceStateKey{1, 3})
	if !ok || got.ChannelID != 2 || !got.SelfMute {
		t.Errorf("voice state = %+v ok=%v", got, ok)
	}

	// Moving channels overwrites the same entry instead of orphaning the
	// old one.
	dispatch(t, s, "VOICE_STATE_UPDATE", types.VoiceState{GuildID: 1, ChannelID: 9, UserID: 3})
	if s.VoiceStates.Len() != 1 {
		t.Fatalf("voice state count = %d after move", s.VoiceStates.Len())
	}
	got, _ = s.VoiceStates.Get(VoiceStateKey{1, 3})
	if got.ChannelID != 9 || got.SelfMute {
		t.Errorf("after move: %+v", got)
	}

	// A disconnect carries a null channel id and overwrites in place.
	dispatch(t, s, "VOICE_STATE_UPDATE", types.VoiceState{GuildID: 1, UserID: 3})
	if s.VoiceStates.Len() != 1 {
		t.Fatalf("voice state count = %d after disconnect", s.VoiceStates.Len())
	}
	got, _ = s.VoiceStates.Get(VoiceStateKey{1, 3})
	if !got.ChannelID.IsZero() {
		t.Errorf("after disconnect: %+v", got)
	}
}

func TestUserUpdateCreatesIfMissing(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "USER_UPDATE", types.User{ID: 4, Username: "zed"})
	if u, ok := s.Users.Get(4); !ok || u.Username != "zed" {
		t.Errorf("user = %+v ok=%v", u, ok)
	}
}

// TestMessageFlow drives the message-centric slice of a session: create,
// react, unreact, delete.
func TestMessageFlow(t *testing.T) {
	s := New(nil)
	author := types.User{ID: 50}
	dispatch(t, s, "MESSAGE_CREATE", types.Message{ID: 1000, ChannelID: 5, Author: &author, Content: "hi"})
	if s.Messages.Len() != 1 {
		t.Fatalf("message cache len = %d", s.Messages.Len())
	}

	emoji := types.Emoji{Name: "👍"}
	dispatch(t, s, "MESSAGE_REACTION_ADD", types.MessageReactionAdd{
		UserID: 60, ChannelID: 5, MessageID: 1000, Emoji: emoji,
	})
	m, _ := s.Messages.Get(1000)
	if len(m.Reactions) != 1 || m.Reactions[0].Count != 1 {
		t.Fatalf("reactions = %+v", m.Reactions)
	}
	if len(m.Reactions[0].Users) != 1 || m.Reactions[0].Users[0] != 60 {
		t.Errorf("reaction users = %v", m.Reactions[0].Users)
	}

	// A second user on the same emoji increments in place.
	dispatch(t, s, "MESSAGE_REACTION_ADD", types.MessageReactionAdd{
		UserID: 61, ChannelID: 5, MessageID: 1000, Emoji: emoji,
	})
	m, _ = s.Messages.Get(1000)
	if len(m.Reactions) != 1 || m.Reactions[0].Count != 2 {
		t.Fatalf("reactions = %+v", m.Reactions)
	}

	dispatch(t, s, "MESSAGE_REACTION_REMOVE", types.MessageReactionRemove{
		UserID: 60, ChannelID: 5, MessageID: 1000, Emoji: emoji,
	})
	m, _ = s.Messages.Get(1000)
	if len(m.Reactions) != 1 || m.Reactions[0].Count != 1 {
		t.Fatalf("after remove: %+v", m.Reactions)
	}

	dispatch(t, s, "MESSAGE_REACTION_REMOVE_ALL", types.MessageReactionRemoveAll{
		ChannelID: 5, MessageID: 1000,
	})
	m, _ = s.Messages.Get(1000)
	if len(m.Reactions) != 0 {
		t.Fatalf("after remove all: %+v", m.Reactions)
	}

	dispatch(t, s, "MESSAGE_DELETE", types.MessageDelete{ID: 1000, ChannelID: 5})
	if s.Messages.Has(1000) {
		t.Error("message should be gone")
	}
}

func TestMessageDeleteBulk(t *testing.T) {
	s := New(nil)
	for i := types.Snowflake(1); i <= 3; i++ {
		dispatch(t, s, "MESSAGE_CREATE", types.Message{ID: i, ChannelID: 5})
	}
	dispatch(t, s, "MESSAGE_DELETE_BULK", types.MessageDeleteBulk{
		IDs: []types.Snowflake{1, 2, 99}, ChannelID: 5,
	})
	if s.Messages.Has(1) || s.Messages.Has(2) || !s.Messages.Has(3) {
		t.Error("wrong survivors after bulk delete")
	}
}

func TestGuildEmojisUpdate(t *testing.T) {
	s := New(nil)
	dispatch(t, s, "GUILD_CREATE", types.Guild{ID: 1, Emojis: []types.Emoji{{ID: 5, Name: "old"}}})
	dispatch(t, s, "GUILD_EMOJIS_UPDATE", types.GuildEmojisUpdate{
		GuildID: 1, Emojis: []types.Emoji{{ID: 6, Name: "new"}},
	})
	g, _ := s.Guilds.Get(1)
	if len(g.Emojis) != 1 || g.Emojis[0].Name != "new" {
		t.Errorf("emojis = %+v", g.Emojis)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	s := New(nil)
	s.HandleEvent("SOME_FUTURE_EVENT", []byte(`{"whatever":true}`))
}
