package command

import (
	"errors"
	"strings"
)

// ErrNotCommand reports that a chat text is not a recognized slash command.
// Callers branch on it to fall back to treating the message as a plain comment.
var ErrNotCommand = errors.New("not a command")

// MentionBot is the literal mention verb users type instead of a slash command.
const MentionBot = "@GitMaya"

// Reserved placeholder tokens the chat platform substitutes for @-mentions.
// They carry no command meaning and are stripped before tokenizing.
var reservedMentions = []string{"@_user_1", "@_user_2"}

// Spec declares one supported verb and the names of its positional parameters.
// All parameters are optional; missing trailing tokens bind to the empty string.
type Spec struct {
	Verb   string
	Params []string
}

// Table is the static set of supported chat commands.
var Table = map[string]Spec{
	"/help":      {Verb: "/help"},
	"/man":       {Verb: "/man", Params: []string{"command"}},
	"/match":     {Verb: "/match", Params: []string{"repo_url", "chat_name"}},
	"/new":       {Verb: "/new", Params: []string{"name"}},
	"/unbind":    {Verb: "/unbind"},
	"/view":      {Verb: "/view"},
	"/setting":   {Verb: "/setting"},
	"/visit":     {Verb: "/visit", Params: []string{"visibility"}},
	"/access":    {Verb: "/access", Params: []string{"permission", "username"}},
	"/rename":    {Verb: "/rename", Params: []string{"name"}},
	"/edit":      {Verb: "/edit", Params: []string{"description"}},
	"/link":      {Verb: "/link", Params: []string{"url"}},
	"/label":     {Verb: "/label", Params: []string{"label"}},
	"/archive":   {Verb: "/archive"},
	"/unarchive": {Verb: "/unarchive"},
	"/insight":   {Verb: "/insight"},
	"/close":     {Verb: "/close"},
	"/reopen":    {Verb: "/reopen"},
	MentionBot:   {Verb: MentionBot},
}

// Command is one parsed chat command.
type Command struct {
	Verb string
	// Args holds positional parameters bound by name; absent trailing
	// parameters are present with an empty value.
	Args map[string]string
	// Unrecognized holds tokens beyond the verb's declared arity. They are
	// not an error; handlers may ignore or report them.
	Unrecognized []string
}

// Arg returns the named positional argument, or "" when unbound.
func (c Command) Arg(name string) string {
	return c.Args[name]
}

// Parse turns one message text into a Command.
//
// The text is stripped of reserved mention placeholders, trimmed, and split on
// spaces (empty tokens dropped; no quoting support). The first token must be a
// verb from Table: slash-prefixed or the literal bot mention. Anything else,
// including empty text, yields ErrNotCommand. Verbs are case-sensitive and
// must lead the trimmed text.
func Parse(text string) (Command, error) {
	for _, m := range reservedMentions {
		text = strings.ReplaceAll(text, m, " ")
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Command{}, ErrNotCommand
	}
	verb := tokens[0]
	if !strings.HasPrefix(verb, "/") && verb != MentionBot {
		return Command{}, ErrNotCommand
	}
	spec, ok := Table[verb]
	if !ok {
		return Command{}, ErrNotCommand
	}

	cmd := Command{Verb: spec.Verb, Args: make(map[string]string, len(spec.Params))}
	rest := tokens[1:]
	for i, name := range spec.Params {
		if i < len(rest) {
			cmd.Args[name] = rest[i]
		} else {
			cmd.Args[name] = ""
		}
	}
	if len(rest) > len(spec.Params) {
		cmd.Unrecognized = rest[len(spec.Params):]
	}
	return cmd, nil
}
