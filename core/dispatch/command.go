package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"unicode"

	"VKBot/core"
	"VKBot/core/cooldown"
)

type HandlerFunc func(ctx *Context) error

// Hook runs before or after a command's handler.
type Hook func(ctx *Context) error

// ErrorHandler receives the CommandErrors of one command or cog.
type ErrorHandler func(ctx *Context, err error)

// CommandSpec declares a command. Build turns it into a *Command.
type CommandSpec struct {
	Name    string
	Aliases []string
	Help    string
	Params  []Param
	Handler HandlerFunc
	Checks  []Check
	// Cooldown is copied per partition key. Nil disables rate limiting.
	Cooldown *cooldown.Cooldown

	Disabled bool
	// RestIsRaw hands the rest parameter the untrimmed remainder.
	RestIsRaw bool
	// RejectExtra fails with TooManyArguments on unparsed trailing input.
	RejectExtra          bool
	CooldownAfterParsing bool

	// Group commands run their own handler before the matched subcommand
	// unless InvokeWithoutCommand is set.
	Group                bool
	InvokeWithoutCommand bool
	CaseInsensitive      bool
	Subcommands          []CommandSpec

	BeforeInvoke Hook
	AfterInvoke  Hook
	OnError      ErrorHandler
}

func (s CommandSpec) Build() (*Command, error) {
	return NewCommand(s)
}

// MustBuild is Build for package level declarations; it panics on error.
func (s CommandSpec) MustBuild() *Command {
	cmd, err := NewCommand(s)
	if err != nil {
		panic(err)
	}
	return cmd
}

type Command struct {
	*Group

	Name    string
	Aliases []string
	Help    string
	Params  []Param
	Handler HandlerFunc
	Checks  []Check

	Disabled             bool
	RestIsRaw            bool
	RejectExtra          bool
	CooldownAfterParsing bool
	InvokeWithoutCommand bool

	BeforeInvokeHook Hook
	AfterInvokeHook  Hook
	OnError          ErrorHandler

	buckets *cooldown.Mapping
	parent  *Command
	cog     Cog
	group   bool
}

func NewCommand(spec CommandSpec) (*Command, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: command name is empty", ErrInvalidSignature)
	}
	if strings.IndexFunc(spec.Name, unicode.IsSpace) == 0 {
		return nil, fmt.Errorf("%w: command name %q starts with whitespace", ErrInvalidSignature, spec.Name)
	}
	params, err := resolveParams(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", name, err)
	}
	isGroup := spec.Group || len(spec.Subcommands) > 0
	if spec.Handler == nil && !isGroup {
		return nil, fmt.Errorf("%w: command %q has no handler", ErrInvalidSignature, name)
	}

	cmd := &Command{
		Group:                NewGroup(spec.CaseInsensitive),
		Name:                 name,
		Aliases:              append([]string(nil), spec.Aliases...),
		Help:                 spec.Help,
		Params:               params,
		Handler:              spec.Handler,
		Checks:               append([]Check(nil), spec.Checks...),
		Disabled:             spec.Disabled,
		RestIsRaw:            spec.RestIsRaw,
		RejectExtra:          spec.RejectExtra,
		CooldownAfterParsing: spec.CooldownAfterParsing,
		InvokeWithoutCommand: spec.InvokeWithoutCommand,
		BeforeInvokeHook:     spec.BeforeInvoke,
		AfterInvokeHook:      spec.AfterInvoke,
		OnError:              spec.OnError,
		buckets:              cooldown.NewMapping(spec.Cooldown),
		group:                isGroup,
	}
	cmd.Group.owner = cmd

	for _, sub := range spec.Subcommands {
		child, err := NewCommand(sub)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		if err := cmd.AddCommand(child); err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
	}
	return cmd, nil
}

func (c *Command) IsGroup() bool {
	return c.group || c.Group.Len() > 0
}

func (c *Command) Parent() *Command {
	return c.parent
}

func (c *Command) Cog() Cog {
	return c.cog
}

// Parents lists the enclosing groups, nearest first.
func (c *Command) Parents() []*Command {
	var parents []*Command
	for p := c.parent; p != nil; p = p.parent {
		parents = append(parents, p)
	}
	return parents
}

// RootParent is the outermost enclosing group, or nil for a top level command.
func (c *Command) RootParent() *Command {
	parents := c.Parents()
	if len(parents) == 0 {
		return nil
	}
	return parents[len(parents)-1]
}

func (c *Command) FullParentName() string {
	parents := c.Parents()
	names := make([]string, len(parents))
	for i, p := range parents {
		names[len(parents)-1-i] = p.Name
	}
	return strings.Join(names, " ")
}

func (c *Command) QualifiedName() string {
	if parent := c.FullParentName(); parent != "" {
		return parent + " " + c.Name
	}
	return c.Name
}

// Signature renders the parameters for help output.
func (c *Command) Signature() string {
	usage := make([]string, len(c.Params))
	for i, p := range c.Params {
		usage[i] = p.Usage()
	}
	return strings.Join(usage, " ")
}

func (c *Command) String() string {
	return c.QualifiedName()
}

func (c *Command) AddCheck(check Check) {
	c.Checks = append(c.Checks, check)
}

func (c *Command) setCog(cog Cog) {
	c.cog = cog
	for sub := range c.WalkCommands() {
		sub.cog = cog
	}
}

// CanRun evaluates the dispatcher's per-call checks, the cog check and the
// command's own checks, in that order. A false result with a nil error means a
// cog or command check declined.
func (c *Command) CanRun(ctx *Context) (bool, error) {
	if c.Disabled {
		return false, &DisabledCommand{Name: c.Name}
	}

	original := ctx.Command
	ctx.Command = c
	defer func() { ctx.Command = original }()

	if d := ctx.Dispatcher; d != nil {
		ok, err := d.CanRun(ctx, false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, &CheckFailure{Message: fmt.Sprintf("The global check functions for command %s failed.", c.QualifiedName())}
		}
	}

	if checker, ok := c.cog.(CogChecker); ok {
		passed, err := runCheck(checker.CogCheck, ctx)
		if err != nil || !passed {
			return false, err
		}
	}

	for _, check := range c.Checks {
		passed, err := runCheck(check, ctx)
		if err != nil || !passed {
			return false, err
		}
	}
	return true, nil
}

func (c *Command) verifyChecks(ctx *Context) error {
	ok, err := c.CanRun(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &CheckFailure{Message: fmt.Sprintf("The check functions for command %s failed.", c.QualifiedName())}
	}
	return nil
}

func (c *Command) prepareCooldowns(ctx *Context) error {
	if !c.buckets.Valid() {
		return nil
	}
	if retry := c.buckets.UpdateRateLimit(ctx.Message, ctx.now()); retry > 0 {
		return &CommandOnCooldown{Cooldown: c.buckets.Original(), RetryAfter: retry}
	}
	return nil
}

// Prepare runs the checks, the cooldown and argument parsing (in the
// configured order) and the before hooks.
func (c *Command) Prepare(ctx *Context) error {
	ctx.Command = c

	if err := c.verifyChecks(ctx); err != nil {
		return err
	}

	if c.CooldownAfterParsing {
		if err := c.parseArguments(ctx); err != nil {
			return err
		}
		if err := c.prepareCooldowns(ctx); err != nil {
			return err
		}
	} else {
		if err := c.prepareCooldowns(ctx); err != nil {
			return err
		}
		if err := c.parseArguments(ctx); err != nil {
			return err
		}
	}

	if core.IsLogDebug() {
		core.LogDebugF("[%s] %s args=%v kwargs=%v", ctx.ID, c.QualifiedName(), ctx.Args, ctx.Kwargs)
	}
	return c.callBeforeHooks(ctx)
}

// Invoke prepares and runs the command. Group commands then hand over to the
// subcommand named by the next word.
func (c *Command) Invoke(ctx *Context) error {
	if !c.IsGroup() {
		if err := c.Prepare(ctx); err != nil {
			return err
		}
		// terminate the invoked_subcommand chain
		ctx.InvokedSubcommand = nil
		ctx.SubcommandPassed = ""
		return c.invokeHandler(ctx, true)
	}

	ctx.InvokedSubcommand = nil
	ctx.SubcommandPassed = ""
	early := !c.InvokeWithoutCommand
	if early {
		if err := c.Prepare(ctx); err != nil {
			return err
		}
	}

	start := ctx.View.Index()
	trigger, sub := c.nextSubcommand(ctx)

	if early {
		if err := c.invokeHandler(ctx, true); err != nil {
			return err
		}
	}

	if sub != nil {
		ctx.InvokedWith = trigger
		return sub.Invoke(ctx)
	}
	if !early {
		// not a subcommand after all: undo the trigger parsing
		ctx.View.SetIndex(start)
		if err := c.Prepare(ctx); err != nil {
			return err
		}
		return c.invokeHandler(ctx, true)
	}
	return nil
}

// Reinvoke parses and calls the command again without checks or cooldowns.
func (c *Command) Reinvoke(ctx *Context, callHooks bool) error {
	ctx.Command = c
	if err := c.parseArguments(ctx); err != nil {
		return err
	}

	if !c.IsGroup() {
		ctx.InvokedSubcommand = nil
		return c.reinvokeHandler(ctx, callHooks)
	}

	ctx.InvokedSubcommand = nil
	ctx.SubcommandPassed = ""
	trigger, sub := c.nextSubcommand(ctx)
	if !c.InvokeWithoutCommand || sub == nil {
		if err := c.reinvokeHandler(ctx, callHooks); err != nil {
			return err
		}
	}
	if sub != nil {
		ctx.InvokedWith = trigger
		return sub.Reinvoke(ctx, callHooks)
	}
	return nil
}

// nextSubcommand reads the trigger word for a group and records it on ctx.
func (c *Command) nextSubcommand(ctx *Context) (string, *Command) {
	view := ctx.View
	view.SkipWhitespace()
	trigger := view.GetWord()

	if trigger == "" {
		return "", nil
	}
	ctx.SubcommandPassed = trigger
	ctx.InvokedSubcommand = c.Group.get(trigger)
	return trigger, ctx.InvokedSubcommand
}

func (c *Command) reinvokeHandler(ctx *Context, callHooks bool) (err error) {
	if callHooks {
		if err := c.callBeforeHooks(ctx); err != nil {
			return err
		}
		defer func() {
			if herr := c.callAfterHooks(ctx); herr != nil && err == nil {
				err = herr
			}
		}()
	}
	if err = c.callHandler(ctx); err != nil {
		ctx.Failed = true
	}
	return err
}

// invokeHandler runs the handler and then, unconditionally, the after hooks.
// Cancellation marks the context failed and is otherwise swallowed.
func (c *Command) invokeHandler(ctx *Context, hooks bool) (err error) {
	if hooks {
		defer func() {
			if herr := c.callAfterHooks(ctx); herr != nil && err == nil {
				err = herr
			}
		}()
	}

	err = c.callHandler(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		ctx.Failed = true
		return nil
	case IsCommandError(err):
		ctx.Failed = true
		return err
	}
	ctx.Failed = true
	return &CommandInvokeError{Cause: err}
}

func (c *Command) callHandler(ctx *Context) (err error) {
	if c.Handler == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.Handler(ctx)
}

func wrapHookError(err error) error {
	if err == nil || IsCommandError(err) {
		return err
	}
	return &CommandInvokeError{Cause: err}
}

// callBeforeHooks runs the command, cog and dispatcher hooks in that order.
func (c *Command) callBeforeHooks(ctx *Context) error {
	if c.BeforeInvokeHook != nil {
		if err := c.BeforeInvokeHook(ctx); err != nil {
			return wrapHookError(err)
		}
	}
	if hook, ok := c.cog.(CogBeforeInvoker); ok {
		if err := hook.CogBeforeInvoke(ctx); err != nil {
			return wrapHookError(err)
		}
	}
	if d := ctx.Dispatcher; d != nil && d.beforeInvoke != nil {
		if err := d.beforeInvoke(ctx); err != nil {
			return wrapHookError(err)
		}
	}
	return nil
}

func (c *Command) callAfterHooks(ctx *Context) error {
	if c.AfterInvokeHook != nil {
		if err := c.AfterInvokeHook(ctx); err != nil {
			return wrapHookError(err)
		}
	}
	if hook, ok := c.cog.(CogAfterInvoker); ok {
		if err := hook.CogAfterInvoke(ctx); err != nil {
			return wrapHookError(err)
		}
	}
	if d := ctx.Dispatcher; d != nil && d.afterInvoke != nil {
		if err := d.afterInvoke(ctx); err != nil {
			return wrapHookError(err)
		}
	}
	return nil
}

// IsOnCooldown reports whether the caller's bucket has no tokens left.
func (c *Command) IsOnCooldown(ctx *Context) bool {
	if !c.buckets.Valid() {
		return false
	}
	return c.buckets.Tokens(ctx.Message, ctx.now()) == 0
}

func (c *Command) ResetCooldown(ctx *Context) {
	if c.buckets.Valid() {
		c.buckets.Reset(ctx.Message, ctx.now())
	}
}

// DispatchError marks ctx failed and reports err to the command's handler,
// the cog's handler and the dispatcher's error listeners.
func (c *Command) DispatchError(ctx *Context, err error) {
	ctx.Failed = true
	handled := false

	if c.OnError != nil {
		c.OnError(ctx, err)
		handled = true
	}
	if h, ok := c.cog.(CogErrorHandler); ok {
		h.CogCommandError(ctx, err)
		handled = true
	}
	if d := ctx.Dispatcher; d != nil {
		d.dispatchError(ctx, err, handled)
	}
}

// errStopVariadic ends a variadic parameter without failing the parse.
var errStopVariadic = errors.New("stop variadic")

func (c *Command) parseArguments(ctx *Context) error {
	ctx.Args = nil
	ctx.Kwargs = map[string]any{}
	ctx.named = map[string]any{}
	view := ctx.View

params:
	for _, param := range c.Params {
		switch param.Kind {
		case Positional:
			value, err := c.transform(ctx, param)
			if err != nil {
				return err
			}
			ctx.Args = append(ctx.Args, value)
			ctx.named[param.Name] = value

		case KeywordOnly:
			var value any
			var err error
			if c.RestIsRaw {
				value, err = c.doConversion(ctx, param.Converter, view.ReadRest(), param)
			} else {
				value, err = c.transform(ctx, param)
			}
			if err != nil {
				return err
			}
			ctx.Kwargs[param.Name] = value
			ctx.named[param.Name] = value
			break params

		case Variadic:
			values := []any{}
			for !view.EOF() {
				value, err := c.transform(ctx, param)
				if errors.Is(err, errStopVariadic) {
					break
				}
				if err != nil {
					return err
				}
				values = append(values, value)
			}
			ctx.Args = append(ctx.Args, values...)
			ctx.named[param.Name] = values
		}
	}

	if c.RejectExtra || (ctx.Dispatcher != nil && ctx.Dispatcher.rejectExtra) {
		view.SkipWhitespace()
		if !view.EOF() {
			return &TooManyArguments{Command: c.QualifiedName()}
		}
	}
	return nil
}

func (c *Command) transform(ctx *Context, param Param) (any, error) {
	view := ctx.View
	conv := param.Converter
	view.SkipWhitespace()

	if g, ok := conv.(*greedyConverter); ok {
		switch param.Kind {
		case Positional:
			return c.transformGreedyPositional(ctx, param, g.converter)
		case Variadic:
			return c.transformGreedyVariadic(ctx, param, g.converter)
		}
		// a greedy rest parameter is just the inner converter
		conv = g.converter
	}

	if view.EOF() {
		if param.Kind == Variadic {
			return nil, errStopVariadic
		}
		if param.Required {
			if isOptional(conv) {
				return nil, nil
			}
			return nil, &MissingRequiredArgument{Param: param}
		}
		return param.Default, nil
	}

	previous := view.Index()
	var argument string
	if param.Kind == KeywordOnly {
		argument = strings.TrimSpace(view.ReadRest())
	} else {
		var err error
		if argument, err = view.GetQuotedWord(); err != nil {
			return nil, err
		}
	}
	view.previous = previous

	return c.doConversion(ctx, conv, argument, param)
}

func (c *Command) transformGreedyPositional(ctx *Context, param Param, conv Converter) (any, error) {
	view := ctx.View
	var result []any
	for !view.EOF() {
		previous := view.Index()
		view.SkipWhitespace()

		start := view.Index()
		argument, err := view.GetQuotedWord()
		var value any
		if err == nil {
			value, err = c.doConversion(ctx, conv, argument, param)
		}
		if err != nil || view.Index() == start {
			view.SetIndex(previous)
			break
		}
		result = append(result, value)
	}

	if len(result) == 0 {
		if param.Required {
			return nil, &MissingRequiredArgument{Param: param}
		}
		return param.Default, nil
	}
	return result, nil
}

func (c *Command) transformGreedyVariadic(ctx *Context, param Param, conv Converter) (any, error) {
	view := ctx.View
	if view.EOF() {
		return nil, errStopVariadic
	}
	previous := view.Index()

	argument, err := view.GetQuotedWord()
	var value any
	if err == nil {
		value, err = c.doConversion(ctx, conv, argument, param)
	}
	if err != nil || view.Index() == previous {
		view.SetIndex(previous)
		return nil, errStopVariadic
	}
	return value, nil
}
