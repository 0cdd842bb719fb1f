package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_LongestMatchWins(t *testing.T) {
	h := newHarness(Options{})
	short := capture(t, h, CommandSpec{Name: "a", Params: []Param{VarArgs("rest", String)}})
	long := capture(t, h, CommandSpec{Name: "a b", Params: []Param{VarArgs("rest", String)}})

	h.send(t, "!a b c")
	assert.Nil(t, *short)
	require.NotNil(t, *long)
	assert.Equal(t, "a b", (*long).InvokedWith)
	assert.Equal(t, []any{"c"}, (*long).Args)

	h.send(t, "!a   b   c")
	assert.Nil(t, *short)
	assert.Equal(t, []any{"c"}, (*long).Args)

	h.send(t, "!a c b")
	require.NotNil(t, *short)
	assert.Equal(t, []any{"c", "b"}, (*short).Args)
}

func TestDispatch_CommandNotFound(t *testing.T) {
	h := newHarness(Options{})
	capture(t, h, CommandSpec{Name: "known"})

	h.send(t, "!unknown foo")
	require.Equal(t, 1, h.errs.count())
	var notFound *CommandNotFound
	require.ErrorAs(t, h.errs.last(), &notFound)
	assert.Equal(t, "unknown", notFound.Name)
	assert.Equal(t, `Command "unknown" is not found`, notFound.Error())
	assert.Equal(t, "unknown", h.errs.ctxs[0].InvokedWith)
	assert.Nil(t, h.errs.ctxs[0].Command)
}

func TestDispatch_IgnoresNonCommands(t *testing.T) {
	h := newHarness(Options{SelfID: "999"})
	got := capture(t, h, CommandSpec{Name: "ping"})

	for _, text := range []string{"ping", "", "!", "! ping", "hello !ping"} {
		h.send(t, text)
	}
	h.sendAs(t, "999", "!ping")

	assert.Nil(t, *got)
	assert.Zero(t, h.errs.count())
}

func TestDispatch_PrefixListIsFirstMatch(t *testing.T) {
	h := newHarness(Options{Prefix: StaticPrefix("!!", "!")})
	got := capture(t, h, CommandSpec{Name: "ping"})

	h.send(t, "!!ping")
	require.NotNil(t, *got)
	assert.Equal(t, "!!", (*got).Prefix)

	h.send(t, "!ping")
	assert.Equal(t, "!", (*got).Prefix)

	wrongOrder := newHarness(Options{Prefix: StaticPrefix("!", "!!")})
	capture(t, wrongOrder, CommandSpec{Name: "ping"})
	wrongOrder.send(t, "!!ping")
	var notFound *CommandNotFound
	require.ErrorAs(t, wrongOrder.errs.last(), &notFound)
	assert.Equal(t, "!ping", notFound.Name)
}

func TestDispatch_PrefixFunc(t *testing.T) {
	perConversation := func(_ *MessageDispatcher, msg IncomingMessage) ([]string, error) {
		if msg.ConversationID() == "2000000001" {
			return []string{"/"}, nil
		}
		return []string{"!"}, nil
	}
	h := newHarness(Options{Prefix: perConversation})
	got := capture(t, h, CommandSpec{Name: "ping"})

	h.send(t, "!ping")
	assert.Nil(t, *got)
	h.send(t, "/ping")
	assert.NotNil(t, *got)

	empty := NewDispatcher(Options{Prefix: StaticPrefix()})
	err := empty.Dispatch(context.Background(), Message{Content: "!x"})
	assert.ErrorIs(t, err, ErrNoPrefix)

	broken := errors.New("lookup failed")
	failing := NewDispatcher(Options{Prefix: func(*MessageDispatcher, IncomingMessage) ([]string, error) { return nil, broken }})
	assert.ErrorIs(t, failing.Dispatch(context.Background(), Message{Content: "!x"}), broken)
}

func TestDispatch_WhenMentionedOr(t *testing.T) {
	h := newHarness(Options{Prefix: WhenMentionedOr("!")})
	got := capture(t, h, CommandSpec{Name: "ping"})

	h.send(t, "<@42> ping")
	assert.Nil(t, *got, "no self id yet")

	h.d.SetSelfID("42")
	for _, text := range []string{"<@42> ping", "<@!42> ping", "[id42|Бот] ping", "!ping"} {
		*got = nil
		h.send(t, text)
		assert.NotNil(t, *got, text)
	}

	*got = nil
	h.send(t, "[id7|Someone] ping")
	assert.Nil(t, *got)
}

func TestDispatch_CaseInsensitive(t *testing.T) {
	h := newHarness(Options{CaseInsensitive: true})
	got := capture(t, h, CommandSpec{Name: "Ping", Aliases: []string{"пинг"}})

	h.send(t, "!PING")
	require.NotNil(t, *got)
	assert.Equal(t, "PING", (*got).InvokedWith)

	*got = nil
	h.send(t, "!ПИНГ")
	assert.NotNil(t, *got)
}

func TestDispatch_EventsInOrder(t *testing.T) {
	h := newHarness(Options{})
	var mu sync.Mutex
	var events []string
	record := func(name string) Listener {
		return func(*Context, error) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, name)
			return nil
		}
	}
	h.d.AddListener(EventCommand, record("command"))
	h.d.AddListener(EventCommandCompletion, record("completion"))
	h.d.AddListener(EventCommandError, record("error"))
	require.NoError(t, h.d.AddCommand(CommandSpec{Name: "ok", Handler: func(*Context) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "handler")
		return nil
	}}.MustBuild()))
	require.NoError(t, h.d.AddCommand(CommandSpec{Name: "fail", Handler: func(*Context) error { return errors.New("x") }}.MustBuild()))

	h.send(t, "!ok")
	h.send(t, "!fail")
	h.send(t, "!missing")
	assert.Equal(t, []string{"command", "handler", "completion", "command", "error", "error"}, events)
}

func TestDispatch_FailingListenerDoesNotBreakDispatch(t *testing.T) {
	h := newHarness(Options{})
	h.d.AddListener(EventCommand, func(*Context, error) error { return errors.New("listener") })
	h.d.AddListener(EventCommand, func(*Context, error) error { panic("listener panic") })
	got := capture(t, h, CommandSpec{Name: "ping"})

	h.send(t, "!ping")
	assert.NotNil(t, *got)
}

func TestDispatch_UnhandledErrorsAreLogged(t *testing.T) {
	d := NewDispatcher(Options{})
	require.NoError(t, d.AddCommand(CommandSpec{Name: "fail", Handler: func(*Context) error { return errors.New("x") }}.MustBuild()))

	assert.NoError(t, d.Dispatch(context.Background(), Message{Content: "!fail"}))
	assert.NoError(t, d.Dispatch(context.Background(), Message{Content: "!nothing"}))
}

func TestDispatch_Reply(t *testing.T) {
	h := newHarness(Options{})
	require.NoError(t, h.d.AddCommand(CommandSpec{
		Name:    "say",
		Params:  []Param{Rest("text", String)},
		Handler: func(ctx *Context) error { return ctx.Send("%s!", ctx.Arg("text")) },
	}.MustBuild()))

	h.send(t, "!say hi there")
	assert.Equal(t, []string{"hi there!"}, h.sender.texts())
	assert.Equal(t, "2000000001", h.sender.sent[0].conversation)
}

type testCog struct {
	BaseCog
	allow     bool
	listeners map[EventKind][]Listener
	unloaded  bool
}

func (c *testCog) CogCheck(*Context) (bool, error) { return c.allow, nil }

func (c *testCog) Listeners() map[EventKind][]Listener { return c.listeners }

func (c *testCog) CogUnload() { c.unloaded = true }

func newTestCog(t *testing.T, name string, cmds ...string) *testCog {
	t.Helper()
	cog := &testCog{BaseCog: BaseCog{Name: name}, allow: true}
	for _, n := range cmds {
		cog.Cmds = append(cog.Cmds, newCmd(t, n))
	}
	return cog
}

func TestCogs_AddAndRemove(t *testing.T) {
	h := newHarness(Options{})
	cog := newTestCog(t, "fun", "roll", "flip")
	completed := 0
	cog.listeners = map[EventKind][]Listener{
		EventCommandCompletion: {func(*Context, error) error { completed++; return nil }},
	}

	require.NoError(t, h.d.AddCog(cog))
	assert.Same(t, cog, h.d.GetCog("fun").(*testCog))
	assert.Len(t, h.d.Cogs(), 1)
	assert.Same(t, Cog(cog), h.d.GetCommand("roll").Cog())

	h.send(t, "!roll")
	assert.Equal(t, 1, completed)
	assert.ErrorIs(t, h.d.AddCog(cog), ErrCogExists)

	assert.Same(t, cog, h.d.RemoveCog("fun").(*testCog))
	assert.True(t, cog.unloaded)
	assert.Nil(t, h.d.GetCommand("roll"))
	assert.Nil(t, h.d.GetCog("fun"))
	assert.Nil(t, h.d.RemoveCog("fun"))

	h.send(t, "!roll")
	assert.Equal(t, 1, completed)
	var notFound *CommandNotFound
	assert.ErrorAs(t, h.errs.last(), &notFound)
}

func TestCogs_AddIsAtomic(t *testing.T) {
	h := newHarness(Options{})
	require.NoError(t, h.d.AddCommand(newCmd(t, "taken")))

	cog := newTestCog(t, "clash", "free", "taken")
	assert.ErrorIs(t, h.d.AddCog(cog), ErrCommandExists)
	assert.Nil(t, h.d.GetCommand("free"))
	assert.Nil(t, h.d.GetCog("clash"))
	assert.Nil(t, cog.Cmds[0].Cog())
}

func TestCogs_CogCheck(t *testing.T) {
	h := newHarness(Options{})
	cog := newTestCog(t, "locked", "secret")
	cog.allow = false
	require.NoError(t, h.d.AddCog(cog))

	h.send(t, "!secret")
	var failure *CheckFailure
	assert.ErrorAs(t, h.errs.last(), &failure)
}

func TestRegisterAll(t *testing.T) {
	registryMu.Lock()
	savedCommands, savedCogs := registeredCommands, registeredCogs
	registeredCommands, registeredCogs = nil, nil
	registryMu.Unlock()
	defer func() {
		registryMu.Lock()
		registeredCommands, registeredCogs = savedCommands, savedCogs
		registryMu.Unlock()
	}()

	Register(newCmd(t, "one"), newCmd(t, "two"))
	RegisterCog(func() (Cog, error) { return newTestCog(t, "extra", "three"), nil })
	RegisterCog(func() (Cog, error) { return nil, nil })

	d := NewDispatcher(Options{})
	require.NoError(t, d.RegisterAll())
	assert.Equal(t, []string{"one", "three", "two"}, names(d.Commands()))
	assert.NotNil(t, d.GetCog("extra"))

	boom := errors.New("no database")
	RegisterCog(func() (Cog, error) { return nil, boom })
	assert.ErrorIs(t, NewDispatcher(Options{}).RegisterAll(), boom)
}
