package dispatch

import "fmt"

// Cog bundles commands and listeners that are loaded and unloaded together.
type Cog interface {
	CogName() string
	// Commands returns the cog's commands. Only those without a parent are
	// registered with the dispatcher; subcommands come along with their group.
	Commands() []*Command
}

// CogChecker applies a check to every command of the cog.
type CogChecker interface {
	CogCheck(ctx *Context) (bool, error)
}

type CogBeforeInvoker interface {
	CogBeforeInvoke(ctx *Context) error
}

type CogAfterInvoker interface {
	CogAfterInvoke(ctx *Context) error
}

// CogErrorHandler sees the errors of the cog's commands before the
// dispatcher's error listeners do.
type CogErrorHandler interface {
	CogCommandError(ctx *Context, err error)
}

type CogListeners interface {
	Listeners() map[EventKind][]Listener
}

// CogUnloader is called after RemoveCog detached the cog.
type CogUnloader interface {
	CogUnload()
}

// BaseCog implements Cog for embedding.
type BaseCog struct {
	Name string
	Cmds []*Command
}

func (b *BaseCog) CogName() string {
	return b.Name
}

func (b *BaseCog) Commands() []*Command {
	return b.Cmds
}

type loadedCog struct {
	cog       Cog
	commands  []*Command
	listeners []listenerHandle
}

// AddCog registers the cog's commands and listeners. Either all of them are
// added or none.
func (d *MessageDispatcher) AddCog(cog Cog) error {
	name := cog.CogName()

	d.cogsMu.Lock()
	defer d.cogsMu.Unlock()

	if _, exists := d.cogs[name]; exists {
		return fmt.Errorf("%w: %q", ErrCogExists, name)
	}

	loaded := &loadedCog{cog: cog}
	for _, cmd := range cog.Commands() {
		if cmd.Parent() != nil {
			continue
		}
		cmd.setCog(cog)
		if err := d.AddCommand(cmd); err != nil {
			for _, added := range loaded.commands {
				d.RemoveCommand(added.Name)
				added.setCog(nil)
			}
			cmd.setCog(nil)
			return err
		}
		loaded.commands = append(loaded.commands, cmd)
	}

	if withListeners, ok := cog.(CogListeners); ok {
		for kind, listeners := range withListeners.Listeners() {
			for _, l := range listeners {
				loaded.listeners = append(loaded.listeners, d.addListener(kind, l))
			}
		}
	}

	d.cogs[name] = loaded
	return nil
}

// RemoveCog detaches a cog's commands and listeners. It returns nil if no cog
// has that name.
func (d *MessageDispatcher) RemoveCog(name string) Cog {
	d.cogsMu.Lock()
	loaded, ok := d.cogs[name]
	delete(d.cogs, name)
	d.cogsMu.Unlock()
	if !ok {
		return nil
	}

	for _, cmd := range loaded.commands {
		if d.GetCommand(cmd.Name) == cmd {
			d.RemoveCommand(cmd.Name)
		}
	}
	for _, h := range loaded.listeners {
		d.removeListener(h)
	}
	if unloader, ok := loaded.cog.(CogUnloader); ok {
		unloader.CogUnload()
	}
	return loaded.cog
}

func (d *MessageDispatcher) GetCog(name string) Cog {
	d.cogsMu.RLock()
	defer d.cogsMu.RUnlock()
	if loaded, ok := d.cogs[name]; ok {
		return loaded.cog
	}
	return nil
}

func (d *MessageDispatcher) Cogs() map[string]Cog {
	d.cogsMu.RLock()
	defer d.cogsMu.RUnlock()
	cogs := make(map[string]Cog, len(d.cogs))
	for name, loaded := range d.cogs {
		cogs[name] = loaded.cog
	}
	return cogs
}
