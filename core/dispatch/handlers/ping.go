package handlers

import (
	"VKBot/core/dispatch"
)

func init() {
	dispatch.Register(
		dispatch.CommandSpec{
			Name:    "ping",
			Help:    "Simple command to check that bot is alive",
			Handler: func(ctx *dispatch.Context) error { return ctx.Send("Pong!") },
		}.MustBuild(),
		dispatch.CommandSpec{
			Name:    "pong",
			Help:    "Simple command to check that bot is alive",
			Handler: func(ctx *dispatch.Context) error { return ctx.Send("Ping!") },
		}.MustBuild(),
	)
}
