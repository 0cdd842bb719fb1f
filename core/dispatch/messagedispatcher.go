package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"VKBot/core"

	"github.com/google/uuid"
)

// PrefixFunc returns the prefixes accepted for msg, most specific first.
type PrefixFunc func(d *MessageDispatcher, msg IncomingMessage) ([]string, error)

// StaticPrefix always accepts the given prefixes.
func StaticPrefix(prefixes ...string) PrefixFunc {
	return func(*MessageDispatcher, IncomingMessage) ([]string, error) {
		return prefixes, nil
	}
}

// WhenMentionedOr accepts a mention of the bot followed by a space, or any of
// prefixes.
func WhenMentionedOr(prefixes ...string) PrefixFunc {
	return func(d *MessageDispatcher, msg IncomingMessage) ([]string, error) {
		id := d.SelfID()
		if id == "" {
			return prefixes, nil
		}
		mentions := []string{"<@" + id + "> ", "<@!" + id + "> "}
		// [id42|any display name]
		if text := msg.Text(); strings.HasPrefix(text, "[id"+id+"|") {
			if end := strings.IndexByte(text, ']'); end > 0 {
				mentions = append(mentions, text[:end+1]+" ")
			}
		}
		return append(mentions, prefixes...), nil
	}
}

type Options struct {
	// Prefix defaults to StaticPrefix("!").
	Prefix          PrefixFunc
	CaseInsensitive bool
	// RejectExtra makes every command fail on unparsed trailing input.
	RejectExtra bool
	// SelfID is the bot's own user id; its messages are ignored.
	SelfID string
	Sender Sender
	// Clock feeds cooldown arithmetic. Defaults to time.Now.
	Clock func() time.Time
}

// MessageDispatcher resolves messages to commands and runs them.
// It filters out the bot's own messages and anything without a prefix.
type MessageDispatcher struct {
	*Group

	prefix      PrefixFunc
	sender      Sender
	clock       func() time.Time
	rejectExtra bool

	selfMu sync.RWMutex
	selfID string

	checksMu   sync.RWMutex
	checks     []Check
	onceChecks []Check

	beforeInvoke Hook
	afterInvoke  Hook

	listenersMu    sync.RWMutex
	listeners      map[EventKind][]registeredListener
	nextListenerID uint64

	cogsMu sync.RWMutex
	cogs   map[string]*loadedCog
}

func NewDispatcher(opts Options) *MessageDispatcher {
	if opts.Prefix == nil {
		opts.Prefix = StaticPrefix("!")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &MessageDispatcher{
		Group:       NewGroup(opts.CaseInsensitive),
		prefix:      opts.Prefix,
		sender:      opts.Sender,
		clock:       opts.Clock,
		rejectExtra: opts.RejectExtra,
		selfID:      opts.SelfID,
		listeners:   map[EventKind][]registeredListener{},
		cogs:        map[string]*loadedCog{},
	}
}

func (d *MessageDispatcher) SelfID() string {
	d.selfMu.RLock()
	defer d.selfMu.RUnlock()
	return d.selfID
}

// SetSelfID updates the bot's id once the transport knows it.
func (d *MessageDispatcher) SetSelfID(id string) {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()
	d.selfID = id
}

func (d *MessageDispatcher) SetSender(s Sender) {
	d.sender = s
}

func (d *MessageDispatcher) now() time.Time {
	return d.clock()
}

// AddCheck adds a global check. Once checks run a single time per message,
// before the command is invoked; the others run for every command and
// subcommand as part of its own checks.
func (d *MessageDispatcher) AddCheck(check Check, once bool) {
	d.checksMu.Lock()
	defer d.checksMu.Unlock()
	if once {
		d.onceChecks = append(d.onceChecks, check)
	} else {
		d.checks = append(d.checks, check)
	}
}

// CanRun evaluates the global checks of one kind.
func (d *MessageDispatcher) CanRun(ctx *Context, once bool) (bool, error) {
	d.checksMu.RLock()
	checks := d.checks
	if once {
		checks = d.onceChecks
	}
	checks = append([]Check(nil), checks...)
	d.checksMu.RUnlock()

	for _, check := range checks {
		ok, err := runCheck(check, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// BeforeInvoke sets the hook run after every command's own and cog hooks.
func (d *MessageDispatcher) BeforeInvoke(hook Hook) {
	d.beforeInvoke = hook
}

func (d *MessageDispatcher) AfterInvoke(hook Hook) {
	d.afterInvoke = hook
}

// GetPrefix resolves the prefixes for msg.
func (d *MessageDispatcher) GetPrefix(msg IncomingMessage) ([]string, error) {
	prefixes, err := d.prefix(d, msg)
	if err != nil {
		return nil, fmt.Errorf("get prefix: %w", err)
	}
	if len(prefixes) == 0 {
		return nil, ErrNoPrefix
	}
	return prefixes, nil
}

// GetContext builds the invocation context for msg: the matched prefix, the
// invoked name and the command it resolved to, if any.
func (d *MessageDispatcher) GetContext(ctx context.Context, msg IncomingMessage) (*Context, error) {
	c := &Context{
		Context:    ctx,
		ID:         uuid.New(),
		Dispatcher: d,
		Message:    msg,
		View:       NewCursor(msg.Text()),
	}

	// Short-circuit if author of the message is the bot itself to avoid loops
	if self := d.SelfID(); self != "" && msg.AuthorID() == self {
		return c, nil
	}

	prefixes, err := d.GetPrefix(msg)
	if err != nil {
		return c, err
	}

	matched := false
	for _, p := range prefixes {
		if c.View.SkipString(p) {
			c.Prefix = p
			matched = true
			break
		}
	}
	if !matched {
		return c, nil
	}

	c.InvokedWith, c.Command = d.resolveName(c.View)
	c.argsStart = c.View.Index()
	return c, nil
}

// resolveName finds the longest run of leading words that is a registered
// name, so "tag create" shadows "tag". Without a match the first word is
// returned with a nil command.
func (d *MessageDispatcher) resolveName(view *Cursor) (string, *Command) {
	start := view.Index()
	rest := view.ReadRest()
	view.SetIndex(start)

	if first, ok := view.Peek(); !ok || unicode.IsSpace(first) {
		return view.GetWord(), nil
	}

	words := strings.Fields(rest)
	for n := min(len(words), d.maxNameWords()); n > 0; n-- {
		name := strings.Join(words[:n], " ")
		if cmd := d.get(name); cmd != nil {
			for i := 0; i < n; i++ {
				view.SkipWhitespace()
				view.GetWord()
			}
			return name, cmd
		}
	}
	return view.GetWord(), nil
}

// Dispatch handles one inbound message. Command failures go to the error
// event; only configuration errors such as a broken prefix function are
// returned.
func (d *MessageDispatcher) Dispatch(ctx context.Context, msg IncomingMessage) error {
	c, err := d.GetContext(ctx, msg)
	if err != nil {
		return err
	}
	if c.Prefix != "" || c.InvokedWith != "" {
		core.LogDebugF("[%s] Got command %q from %s in %s", c.ID, c.InvokedWith, msg.AuthorID(), msg.ConversationID())
	}
	d.Invoke(c)
	return nil
}

// Invoke runs the command resolved in c and reports the outcome through the
// events.
func (d *MessageDispatcher) Invoke(c *Context) {
	if c.Command == nil {
		if c.InvokedWith != "" {
			d.dispatchError(c, &CommandNotFound{Name: c.InvokedWith}, false)
		}
		return
	}

	d.emit(EventCommand, c, nil)

	ok, err := d.CanRun(c, true)
	if err == nil && ok {
		err = c.Command.Invoke(c)
	}
	if err != nil {
		c.Command.DispatchError(c, err)
		return
	}
	d.emit(EventCommandCompletion, c, nil)
}

// RegisterAll adds every command and cog queued with Register and
// RegisterCog.
func (d *MessageDispatcher) RegisterAll() error {
	registryMu.Lock()
	commands := append([]*Command(nil), registeredCommands...)
	factories := append([]CogFactory(nil), registeredCogs...)
	registryMu.Unlock()

	for _, cmd := range commands {
		if err := d.AddCommand(cmd); err != nil {
			return err
		}
		if core.IsLogInfo() {
			core.LogInfoF("Registered command: %s", cmd.QualifiedName())
		}
	}
	for _, factory := range factories {
		cog, err := factory()
		if err != nil {
			return err
		}
		if cog == nil {
			continue
		}
		if err := d.AddCog(cog); err != nil {
			return err
		}
		if core.IsLogInfo() {
			core.LogInfoF("Registered cog: %s", cog.CogName())
		}
	}
	return nil
}

// CogFactory builds a cog once settings are loaded. A nil cog is skipped.
type CogFactory func() (Cog, error)

var (
	registryMu         sync.Mutex
	registeredCommands []*Command
	registeredCogs     []CogFactory
)

// Register queues commands for RegisterAll, typically from a handler's init.
func Register(commands ...*Command) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredCommands = append(registeredCommands, commands...)
}

func RegisterCog(factory CogFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredCogs = append(registeredCogs, factory)
}
