package dispatch

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/thoas/go-funk"
	"golang.org/x/text/cases"
)

// Group maps command names and aliases to commands. Every alias points at
// the same *Command as its name. Nested groups hold subcommands.
type Group struct {
	mu              sync.RWMutex
	caseInsensitive bool
	all             map[string]*Command
	// command owning this group, nil for the dispatcher
	owner *Command
}

func NewGroup(caseInsensitive bool) *Group {
	return &Group{caseInsensitive: caseInsensitive, all: map[string]*Command{}}
}

func (g *Group) CaseInsensitive() bool {
	return g.caseInsensitive
}

func (g *Group) key(name string) string {
	if g.caseInsensitive {
		return cases.Fold().String(name)
	}
	return name
}

// AddCommand registers cmd under its name and aliases. Nothing is registered
// if any of them is taken.
func (g *Group) AddCommand(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidSignature)
	}

	keys := make([]string, 0, len(cmd.Aliases)+1)
	keys = append(keys, g.key(cmd.Name))
	for _, alias := range cmd.Aliases {
		keys = append(keys, g.key(alias))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for i, k := range keys {
		if _, taken := g.all[k]; taken || funk.ContainsString(keys[:i], k) {
			return fmt.Errorf("%w: %q", ErrCommandExists, k)
		}
	}
	for _, k := range keys {
		g.all[k] = cmd
	}
	if g.owner != nil {
		cmd.parent = g.owner
	}
	return nil
}

// RemoveCommand removes name. Removing an alias detaches only that alias;
// removing the command's own name also drops all its aliases.
func (g *Group) RemoveCommand(name string) *Command {
	k := g.key(name)

	g.mu.Lock()
	defer g.mu.Unlock()

	cmd, ok := g.all[k]
	if !ok {
		return nil
	}
	delete(g.all, k)

	if k != g.key(cmd.Name) {
		return cmd
	}
	for _, alias := range cmd.Aliases {
		ak := g.key(alias)
		if g.all[ak] == cmd {
			delete(g.all, ak)
		}
	}
	return cmd
}

func (g *Group) get(name string) *Command {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.all[g.key(name)]
}

// GetCommand looks name up, descending into subcommands for space separated
// names ("tag create"). It returns nil on any miss.
func (g *Group) GetCommand(name string) *Command {
	if cmd := g.get(name); cmd != nil || !strings.Contains(name, " ") {
		return cmd
	}

	names := strings.Fields(name)
	if len(names) == 0 {
		return nil
	}
	cmd := g.get(names[0])
	for _, n := range names[1:] {
		if cmd == nil {
			return nil
		}
		cmd = cmd.Group.get(n)
	}
	return cmd
}

// Commands returns each registered command once, ordered by name.
func (g *Group) Commands() []*Command {
	g.mu.RLock()
	unique := funk.Uniq(funk.Values(g.all)).([]*Command)
	g.mu.RUnlock()

	sort.Slice(unique, func(i, j int) bool { return unique[i].Name < unique[j].Name })
	return unique
}

// AllCommands returns a snapshot of the key to command mapping.
func (g *Group) AllCommands() map[string]*Command {
	g.mu.RLock()
	defer g.mu.RUnlock()
	all := make(map[string]*Command, len(g.all))
	for k, v := range g.all {
		all[k] = v
	}
	return all
}

// WalkCommands yields every command and, depth first, its subcommands.
func (g *Group) WalkCommands() iter.Seq[*Command] {
	return func(yield func(*Command) bool) {
		g.walk(yield)
	}
}

func (g *Group) walk(yield func(*Command) bool) bool {
	for _, cmd := range g.Commands() {
		if !yield(cmd) {
			return false
		}
		if !cmd.Group.walk(yield) {
			return false
		}
	}
	return true
}

func (g *Group) RemoveAllCommands() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.all = map[string]*Command{}
}

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.all)
}

// maxNameWords is the word count of the longest registered key.
func (g *Group) maxNameWords() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	longest := 1
	for k := range g.all {
		longest = max(longest, len(strings.Fields(k)))
	}
	return longest
}
