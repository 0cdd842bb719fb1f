package handlers

import (
	"fmt"
	"strings"

	"VKBot/core/dispatch"
)

func init() {
	dispatch.Register(dispatch.CommandSpec{
		Name:    "help",
		Aliases: []string{"помощь"},
		Help:    "List commands, or show usage of one command",
		Params:  []dispatch.Param{dispatch.OptRest("command", dispatch.String, nil)},
		Handler: help,
	}.MustBuild())
}

func help(ctx *dispatch.Context) error {
	if name, _ := dispatch.ArgAs[string](ctx, "command"); name != "" {
		cmd := ctx.Dispatcher.GetCommand(name)
		if cmd == nil {
			return ctx.Send("No command called %q found.", name)
		}
		return ctx.Send("%s", usage(ctx.Prefix, cmd))
	}

	var lines []string
	for cmd := range ctx.Dispatcher.WalkCommands() {
		if cmd.Disabled {
			continue
		}
		lines = append(lines, usage(ctx.Prefix, cmd))
	}
	if len(lines) == 0 {
		return ctx.Send("No commands available.")
	}
	return ctx.Send("Commands:\n\t%s", strings.Join(lines, "\n\t"))
}

func usage(prefix string, cmd *dispatch.Command) string {
	line := prefix + cmd.QualifiedName()
	if sig := cmd.Signature(); sig != "" {
		line = fmt.Sprint(line, " ", sig)
	}
	if cmd.Help != "" {
		line = fmt.Sprint(line, ": ", cmd.Help)
	}
	return line
}
