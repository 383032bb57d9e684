package domain

import (
	"regexp"
	"time"
)

// Namespace scopes an identity to one of the two linked surfaces
type Namespace string

const (
	NamespaceGame Namespace = "game"
	NamespaceChat Namespace = "chat"
)

// Identity is an opaque principal token. Game identities are Q3 player GUIDs,
// chat identities are Discord user snowflakes.
type Identity string

// Link is a committed pairing between one game identity and one chat identity
type Link struct {
	Game     Identity  `json:"game_id"`
	Chat     Identity  `json:"chat_id"`
	LinkedAt time.Time `json:"linked_at"`
}

// PendingCode is a short-lived code issued to a game identity
type PendingCode struct {
	Requester Identity  `json:"requester"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
}

// RoleMode selects whether configured roles are granted or revoked
type RoleMode int

const (
	RoleGrant RoleMode = iota
	RoleRevoke
)

func (m RoleMode) String() string {
	if m == RoleRevoke {
		return "revoke"
	}
	return "grant"
}

// Tone selects how a chat-side notice is presented
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneError
	ToneDeauth
)

// Notice is a message delivered to a chat identity
type Notice struct {
	Text string
	Tone Tone
}

// Permissions checked on the game side before a command runs
const (
	PermAuth   = "trinitylink.auth"
	PermDeauth = "trinitylink.deauth"
)

// q3ColorCodeRegex matches Quake 3 color codes like ^1, ^2, etc.
var q3ColorCodeRegex = regexp.MustCompile(`\^[0-9]`)

// CleanQ3Name removes Quake 3 color codes from a player name
func CleanQ3Name(name string) string {
	return q3ColorCodeRegex.ReplaceAllString(name, "")
}
