package linker

import (
	"strings"

	"github.com/ernie/trinity-link/internal/domain"
)

// Message keys
const (
	MsgCodeGeneration         = "code_generation"
	MsgCodeExpired            = "code_expired"
	MsgAuthenticated          = "authenticated"
	MsgGameDeauthenticated    = "game_deauthenticated"
	MsgDiscordDeauthenticated = "discord_deauthenticated"
	MsgAlreadyAuthenticated   = "already_authenticated"
	MsgNotAuthenticated       = "not_authenticated"
	MsgGroupRevoked           = "group_revoked"
	MsgGroupGranted           = "group_granted"
	MsgUnableToFindCode       = "unable_to_find_code"
	MsgNoPermission           = "no_permission"
	MsgDeauthFailed           = "deauth_failed"
)

// DefaultMessages holds the built-in templates. Game-side text may carry
// Quake 3 color codes; they are stripped before a template is sent to Discord.
var DefaultMessages = map[string]string{
	MsgCodeGeneration:         "Here is your code: ^5{code}^7. Join our ^1Discord^7 and DM the code to the bot",
	MsgCodeExpired:            "Your code has ^1expired!",
	MsgAuthenticated:          "Thank you for authenticating your account",
	MsgGameDeauthenticated:    "Successfully deauthenticated your account",
	MsgDiscordDeauthenticated: "You have been deauthenticated from {guild}",
	MsgAlreadyAuthenticated:   "You have already ^5authenticated^7 your account, no need to do it again",
	MsgNotAuthenticated:       "You are not authenticated",
	MsgGroupRevoked:           "Your '{group}' group has been revoked! Join the server back to regain it",
	MsgGroupGranted:           "Granted '{group}' group and the Discord roles for joining {guild} back",
	MsgUnableToFindCode:       "Sorry, we couldn't find your code. Please try to authenticate again. If you haven't generated a code, type !auth in-game",
	MsgNoPermission:           "You don't have permission to use this command",
	MsgDeauthFailed:           "^1Could not deauthenticate^7 your account right now, try again later",
}

// Messages renders templates, falling back to DefaultMessages for missing keys
type Messages struct {
	templates map[string]string
}

// NewMessages overlays overrides on the default templates
func NewMessages(overrides map[string]string) Messages {
	templates := make(map[string]string, len(DefaultMessages))
	for k, v := range DefaultMessages {
		templates[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			templates[k] = v
		}
	}
	return Messages{templates: templates}
}

// Vars are the values substituted into a template
type Vars struct {
	Code  string
	Group string
	Guild string
	ID    domain.Identity
}

// Render fills in the template for key
func (m Messages) Render(key string, v Vars) string {
	tmpl, ok := m.templates[key]
	if !ok {
		tmpl = DefaultMessages[key]
	}
	return strings.NewReplacer(
		"{code}", v.Code,
		"{group}", v.Group,
		"{guild}", v.Guild,
		"{id}", string(v.ID),
	).Replace(tmpl)
}

// RenderPlain renders key without Quake 3 color codes
func (m Messages) RenderPlain(key string, v Vars) string {
	return domain.CleanQ3Name(m.Render(key, v))
}
