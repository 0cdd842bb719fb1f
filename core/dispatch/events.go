package dispatch

import (
	"fmt"

	"VKBot/core"

	"golang.org/x/sync/errgroup"
)

type EventKind int

const (
	// EventCommand fires when a message resolved to a command, before checks.
	EventCommand EventKind = iota
	// EventCommandCompletion fires after a command ran without error.
	EventCommandCompletion
	// EventCommandError fires for every CommandError, CommandNotFound included.
	EventCommandError
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventCommandCompletion:
		return "command_completion"
	case EventCommandError:
		return "command_error"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Listener observes an event. err is only set for EventCommandError.
type Listener func(ctx *Context, err error) error

type listenerHandle struct {
	kind EventKind
	id   uint64
}

type registeredListener struct {
	id uint64
	fn Listener
}

// AddListener subscribes fn to kind.
func (d *MessageDispatcher) AddListener(kind EventKind, fn Listener) {
	d.addListener(kind, fn)
}

func (d *MessageDispatcher) addListener(kind EventKind, fn Listener) listenerHandle {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.nextListenerID++
	h := listenerHandle{kind: kind, id: d.nextListenerID}
	d.listeners[kind] = append(d.listeners[kind], registeredListener{id: h.id, fn: fn})
	return h
}

func (d *MessageDispatcher) removeListener(h listenerHandle) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	list := d.listeners[h.kind]
	for i, l := range list {
		if l.id == h.id {
			d.listeners[h.kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (d *MessageDispatcher) listenersFor(kind EventKind) []Listener {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	fns := make([]Listener, len(d.listeners[kind]))
	for i, l := range d.listeners[kind] {
		fns[i] = l.fn
	}
	return fns
}

// emit runs every listener of kind concurrently and waits for all of them.
// Listener failures are logged. It reports whether any listener ran.
func (d *MessageDispatcher) emit(kind EventKind, ctx *Context, err error) bool {
	listeners := d.listenersFor(kind)
	if len(listeners) == 0 {
		return false
	}

	var g errgroup.Group
	for _, l := range listeners {
		g.Go(func() (lerr error) {
			defer func() {
				if r := recover(); r != nil {
					lerr = &PanicError{Value: r}
				}
			}()
			return l(ctx, err)
		})
	}
	if werr := g.Wait(); werr != nil {
		core.LogErrorF("%s listener failed: %v", kind, werr)
	}
	return true
}

// dispatchError emits EventCommandError. Without listeners or another
// handler the error is logged.
func (d *MessageDispatcher) dispatchError(ctx *Context, err error, handled bool) {
	if d.emit(EventCommandError, ctx, err) || handled {
		return
	}
	name := ctx.InvokedWith
	if ctx.Command != nil {
		name = ctx.Command.QualifiedName()
	}
	core.LogErrorF("Ignoring exception in command %s: %v", name, err)
}
