package command

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessageContext carries the chat context a handler needs: which bot
// application received the message, where to reply, and who asked.
type MessageContext struct {
	AppID     string // im application id
	MessageID string // inbound message id (reply anchor)
	ChatID    string
	OpenID    string // sender's open id
	ChatType  string // "group" or "p2p"
	RootID    string // thread root message id, when inside a thread
	Content   string // original structured message content
	Raw       json.RawMessage // full webhook payload, forwarded untouched
}

// Reply is what a handler produces. Informational commands fill Tag/Data;
// mutating commands fill JobIDs with the queue job handles they enqueued.
type Reply struct {
	Tag    string
	Data   any
	JobIDs []string
}

// HandlerFunc executes one parsed command.
type HandlerFunc func(ctx context.Context, cmd Command, mctx MessageContext) (Reply, error)

// Dispatcher maps verbs to handlers through a fixed table built at startup.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc, len(Table))}
}

// Register binds a handler to a verb. Unknown verbs are rejected so a typo in
// wiring fails at startup rather than at dispatch time.
func (d *Dispatcher) Register(verb string, fn HandlerFunc) error {
	if _, ok := Table[verb]; !ok {
		return fmt.Errorf("register: unsupported verb %q", verb)
	}
	d.handlers[verb] = fn
	return nil
}

// Dispatch parses text and invokes the matching handler. ErrNotCommand
// propagates unwrapped so callers can fall back to comment relay; a verb that
// is in the table but has no registered handler is reported as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, mctx MessageContext) (Reply, error) {
	cmd, err := Parse(text)
	if err != nil {
		return Reply{}, err
	}
	fn, ok := d.handlers[cmd.Verb]
	if !ok {
		return Reply{}, fmt.Errorf("no handler registered for %s", cmd.Verb)
	}
	return fn(ctx, cmd, mctx)
}
