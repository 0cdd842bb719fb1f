package handlers

import (
	"fmt"
	"strings"

	"VKBot/core/dispatch"

	"github.com/thoas/go-funk"
)

func init() {
	dispatch.Register(dispatch.CommandSpec{
		Name:    "id",
		Help:    "Return VK ID for the user, or all mentioned users",
		Params:  []dispatch.Param{dispatch.VarArgs("users", dispatch.Mention)},
		Handler: identify,
	}.MustBuild())
}

func identify(ctx *dispatch.Context) error {
	users := dispatch.ArgsAs[string](ctx, "users")
	if len(users) == 0 {
		users = []string{ctx.Message.AuthorID()}
	}
	identities := funk.Map(funk.UniqString(users), func(id string) string {
		return fmt.Sprintf("[id%s] has id %s", id, id)
	}).([]string)
	if len(identities) > 0 {
		return ctx.Send("Identities:\n\t%s", strings.Join(identities, "\n\t"))
	}
	return ctx.Send("No one was identified")
}
