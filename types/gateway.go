package types

import "github.com/goccy/go-json"

// Gateway opcodes.
const (
	OpDispatch            = 0
	OpHeartbeat           = 1
	OpIdentify            = 2
	OpStatusUpdate        = 3
	OpVoiceStateUpdate    = 4
	OpVoiceServerPing     = 5
	OpResume              = 6
	OpReconnect           = 7
	OpRequestGuildMembers = 8
	OpInvalidSession      = 9
	OpHello               = 10
	OpHeartbeatACK        = 11
)

// Gateway close codes.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSequence      = 4007
	CloseRateLimited          = 4008
	CloseSessionTimeout       = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
)

// FatalCloseCode reports whether a close code is permanent: the gateway
// surfaces the error instead of reconnecting.
func FatalCloseCode(code int) bool {
	switch code {
	case CloseUnknownOpcode, CloseDecodeError, CloseNotAuthenticated,
		CloseAuthenticationFailed, CloseAlreadyAuthenticated,
		CloseRateLimited, CloseInvalidShard, CloseShardingRequired:
		return true
	}
	return false
}

// ResetSessionCloseCode reports whether a close code invalidates the
// session: the gateway reconnects with a fresh identify.
func ResetSessionCloseCode(code int) bool {
	return code == CloseInvalidSequence || code == CloseSessionTimeout
}

// CloseCodeText returns a human-readable description for the close codes
// the gateway interprets.
func CloseCodeText(code int) string {
	switch code {
	case CloseUnknownError:
		return "unknown error"
	case CloseUnknownOpcode:
		return "unknown opcode sent"
	case CloseDecodeError:
		return "malformed payload sent"
	case CloseNotAuthenticated:
		return "payload sent before identify"
	case CloseAuthenticationFailed:
		return "authentication failed"
	case CloseAlreadyAuthenticated:
		return "already identified"
	case CloseInvalidSequence:
		return "invalid resume sequence"
	case CloseRateLimited:
		return "gateway rate limit exceeded"
	case CloseSessionTimeout:
		return "session timed out"
	case CloseInvalidShard:
		return "invalid shard"
	case CloseShardingRequired:
		return "sharding required"
	}
	return "unexpected close"
}

// Frame is the gateway envelope. D is kept raw so payload decoding can be
// deferred until the event kind is known.
type Frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// IdentifyProperties fingerprints the connecting client.
type IdentifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

// StatusUpdate is the payload of a status-update frame.
type StatusUpdate struct {
	Since  *int64    `json:"since"`
	Game   *Activity `json:"game"`
	Status string    `json:"status"`
	AFK    bool      `json:"afk"`
}

// Identify is the payload of an identify frame.
type Identify struct {
	Token          string             `json:"token"`
	Properties     IdentifyProperties `json:"properties"`
	Compress       bool               `json:"compress,omitempty"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          *[2]int            `json:"shard,omitempty"`
	Presence       *StatusUpdate      `json:"presence,omitempty"`
}

// Resume is the payload of a resume frame.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// RequestGuildMembers asks the gateway to stream a guild's member list.
type RequestGuildMembers struct {
	GuildID Snowflake `json:"guild_id"`
	Query   string    `json:"query"`
	Limit   int       `json:"limit"`
	Nonce   string    `json:"nonce,omitempty"`
}
