package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IncomingMessage is what the dispatcher needs from a transport message.
type IncomingMessage interface {
	Text() string
	ConversationID() string
	AuthorID() string
	Timestamp() time.Time
}

// Sender delivers replies to a conversation.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) error
}

// Message is a plain IncomingMessage, used by the CLI and tests.
type Message struct {
	Content      string
	Conversation string
	Author       string
	Sent         time.Time
}

func (m Message) Text() string           { return m.Content }
func (m Message) ConversationID() string { return m.Conversation }
func (m Message) AuthorID() string       { return m.Author }
func (m Message) Timestamp() time.Time   { return m.Sent }

// Context is the state of one command invocation.
type Context struct {
	context.Context

	ID         uuid.UUID
	Dispatcher *MessageDispatcher
	Message    IncomingMessage
	View       *Cursor

	// Prefix that matched, empty when the message was not a command.
	Prefix      string
	InvokedWith string
	Command     *Command

	InvokedSubcommand *Command
	SubcommandPassed  string

	// Args holds the parsed positional values, variadic values flattened.
	Args   []any
	Kwargs map[string]any
	Failed bool

	named     map[string]any
	argsStart int
}

// Valid reports whether the message resolved to a command.
func (c *Context) Valid() bool {
	return c.Prefix != "" && c.Command != nil
}

// Arg returns the parsed value of the named parameter. For a variadic
// parameter this is a []any.
func (c *Context) Arg(name string) any {
	return c.named[name]
}

// ArgAs is Arg with a type assertion.
func ArgAs[T any](c *Context, name string) (T, bool) {
	v, ok := c.named[name].(T)
	return v, ok
}

// ArgsAs returns the elements of a variadic or greedy parameter that have
// type T.
func ArgsAs[T any](c *Context, name string) []T {
	values, _ := c.named[name].([]any)
	out := make([]T, 0, len(values))
	for _, v := range values {
		if t, ok := v.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func (c *Context) Cog() Cog {
	if c.Command == nil {
		return nil
	}
	return c.Command.Cog()
}

// Send replies to the conversation the message came from.
func (c *Context) Send(format string, v ...any) error {
	if c.Dispatcher == nil || c.Dispatcher.sender == nil {
		return ErrNoSender
	}
	return c.Dispatcher.sender.Send(c, c.Message.ConversationID(), fmt.Sprintf(format, v...))
}

func (c *Context) now() time.Time {
	if c.Dispatcher != nil {
		return c.Dispatcher.now()
	}
	return time.Now()
}

// Invoke calls cmd's handler directly with args bound to its parameters in
// order. Checks, cooldowns and hooks are skipped.
func (c *Context) Invoke(cmd *Command, args ...any) error {
	saved := *c
	defer func() {
		c.Command, c.Args, c.Kwargs, c.named = saved.Command, saved.Args, saved.Kwargs, saved.named
	}()

	c.Command = cmd
	c.Args = args
	c.Kwargs = map[string]any{}
	c.named = map[string]any{}
	for i, p := range cmd.Params {
		switch {
		case p.Kind == Variadic:
			if i < len(args) {
				c.named[p.Name] = append([]any(nil), args[i:]...)
			}
			return cmd.callHandler(c)
		case i < len(args):
			c.named[p.Name] = args[i]
		default:
			c.named[p.Name] = p.Default
		}
		if p.Kind == KeywordOnly {
			c.Kwargs[p.Name] = c.named[p.Name]
		}
	}
	return cmd.callHandler(c)
}

// Reinvoke runs the command again without checks or cooldowns. With restart
// it starts over from the root group's arguments. The context's command
// state and cursor are restored afterwards.
func (c *Context) Reinvoke(callHooks, restart bool) error {
	if c.Command == nil {
		return fmt.Errorf("%w: context has no command", ErrInvalidSignature)
	}

	cmd, view := c.Command, c.View
	index, previous := view.index, view.previous
	invokedWith, invokedSub, passed := c.InvokedWith, c.InvokedSubcommand, c.SubcommandPassed
	defer func() {
		c.Command = cmd
		view.index, view.previous = index, previous
		c.InvokedWith, c.InvokedSubcommand, c.SubcommandPassed = invokedWith, invokedSub, passed
	}()

	toCall := cmd
	if restart {
		if root := cmd.RootParent(); root != nil {
			toCall = root
		}
		view.index, view.previous = c.argsStart, c.argsStart
	}
	return toCall.Reinvoke(c, callHooks)
}
