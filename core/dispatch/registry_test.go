package dispatch

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*Context) error { return nil }

func newCmd(t *testing.T, name string, aliases ...string) *Command {
	t.Helper()
	cmd, err := CommandSpec{Name: name, Aliases: aliases, Handler: noop}.Build()
	require.NoError(t, err)
	return cmd
}

func names(cmds []*Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.QualifiedName()
	}
	return out
}

func TestGroup_AliasesShareCommand(t *testing.T) {
	g := NewGroup(false)
	cmd := newCmd(t, "remind", "rem", "r")
	require.NoError(t, g.AddCommand(cmd))

	for _, n := range []string{"remind", "rem", "r"} {
		assert.Same(t, cmd, g.GetCommand(n), n)
	}
	assert.Len(t, g.Commands(), 1)
	assert.Len(t, g.AllCommands(), 3)
}

func TestGroup_AddRejectsWithoutMutating(t *testing.T) {
	g := NewGroup(false)
	require.NoError(t, g.AddCommand(newCmd(t, "ping", "p")))

	err := g.AddCommand(newCmd(t, "pong", "x", "p"))
	assert.ErrorIs(t, err, ErrCommandExists)
	assert.Nil(t, g.GetCommand("pong"))
	assert.Nil(t, g.GetCommand("x"))

	err = g.AddCommand(newCmd(t, "dup", "d", "d"))
	assert.ErrorIs(t, err, ErrCommandExists)
	assert.Nil(t, g.GetCommand("dup"))

	assert.ErrorIs(t, g.AddCommand(nil), ErrInvalidSignature)
}

func TestGroup_RemoveByNameDropsAliases(t *testing.T) {
	g := NewGroup(false)
	cmd := newCmd(t, "remind", "rem", "r")
	require.NoError(t, g.AddCommand(cmd))

	assert.Same(t, cmd, g.RemoveCommand("remind"))
	assert.Zero(t, g.Len())
	assert.Nil(t, g.RemoveCommand("remind"))
}

func TestGroup_RemoveByAliasKeepsTheRest(t *testing.T) {
	g := NewGroup(false)
	cmd := newCmd(t, "remind", "rem", "r")
	require.NoError(t, g.AddCommand(cmd))

	assert.Same(t, cmd, g.RemoveCommand("rem"))
	assert.Nil(t, g.GetCommand("rem"))
	assert.Same(t, cmd, g.GetCommand("remind"))
	assert.Same(t, cmd, g.GetCommand("r"))
}

func TestGroup_CaseInsensitive(t *testing.T) {
	g := NewGroup(true)
	cmd := newCmd(t, "Ping", "ПИНГ")
	require.NoError(t, g.AddCommand(cmd))

	assert.Same(t, cmd, g.GetCommand("PING"))
	assert.Same(t, cmd, g.GetCommand("пинг"))
	assert.ErrorIs(t, g.AddCommand(newCmd(t, "ping")), ErrCommandExists)
	assert.Same(t, cmd, g.RemoveCommand("pInG"))
	assert.Nil(t, g.GetCommand("пинг"))

	sensitive := NewGroup(false)
	require.NoError(t, sensitive.AddCommand(newCmd(t, "Ping")))
	assert.Nil(t, sensitive.GetCommand("ping"))
}

func TestGroup_NestedLookup(t *testing.T) {
	tag := CommandSpec{
		Name: "tag",
		Subcommands: []CommandSpec{
			{Name: "create", Handler: noop, Subcommands: []CommandSpec{{Name: "now", Handler: noop}}},
			{Name: "delete", Aliases: []string{"rm"}, Handler: noop},
		},
	}.MustBuild()
	g := NewGroup(false)
	require.NoError(t, g.AddCommand(tag))

	create := g.GetCommand("tag create")
	require.NotNil(t, create)
	assert.Equal(t, "tag create", create.QualifiedName())
	assert.Same(t, tag, create.Parent())
	assert.Same(t, g.GetCommand("tag delete"), g.GetCommand("tag rm"))
	assert.Equal(t, "tag create now", g.GetCommand("tag create now").QualifiedName())
	assert.Same(t, tag, g.GetCommand("tag create now").RootParent())
	assert.Nil(t, tag.RootParent())

	assert.Nil(t, g.GetCommand("tag missing"))
	assert.Nil(t, g.GetCommand("tag delete extra"))
	assert.Nil(t, g.GetCommand("nope create"))
}

func TestGroup_ExactKeyWinsOverNested(t *testing.T) {
	g := NewGroup(false)
	group := CommandSpec{Name: "a", Subcommands: []CommandSpec{{Name: "b", Handler: noop}}}.MustBuild()
	literal := newCmd(t, "a b")
	require.NoError(t, g.AddCommand(group))
	require.NoError(t, g.AddCommand(literal))

	assert.Same(t, literal, g.GetCommand("a b"))
}

func TestGroup_WalkCommands(t *testing.T) {
	g := NewGroup(false)
	require.NoError(t, g.AddCommand(CommandSpec{
		Name:    "tag",
		Aliases: []string{"t"},
		Subcommands: []CommandSpec{
			{Name: "create", Handler: noop},
			{Name: "delete", Handler: noop},
		},
	}.MustBuild()))
	require.NoError(t, g.AddCommand(newCmd(t, "ping", "p")))

	walked := names(slices.Collect(g.WalkCommands()))
	want := []string{"ping", "tag", "tag create", "tag delete"}
	if diff := cmp.Diff(want, walked); diff != "" {
		t.Errorf("WalkCommands() mismatch (-want +got):\n%s", diff)
	}

	// restartable
	assert.Equal(t, walked, names(slices.Collect(g.WalkCommands())))

	var first []string
	for cmd := range g.WalkCommands() {
		first = append(first, cmd.Name)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"ping", "tag"}, first)
}

func TestGroup_RemoveAllCommands(t *testing.T) {
	g := NewGroup(false)
	require.NoError(t, g.AddCommand(newCmd(t, "one")))
	require.NoError(t, g.AddCommand(newCmd(t, "two words")))
	assert.Equal(t, 2, g.maxNameWords())

	g.RemoveAllCommands()
	assert.Zero(t, g.Len())
	assert.Equal(t, 1, g.maxNameWords())
}
