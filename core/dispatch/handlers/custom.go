package handlers

import (
	"errors"
	"fmt"
	"strings"

	"VKBot/core"
	"VKBot/core/database"
	"VKBot/core/dispatch"

	"github.com/thoas/go-funk"
)

const (
	AddCommand         = "addcmd"
	RemoveCommand      = "rmcmd"
	EditCommand        = "editcmd"
	SetHelpText        = "sethelp"
	AddToCategory      = "addtocat"
	RemoveFromCategory = "rmfromcat"
	DeleteCategory     = "delcat"
	ListCommands       = "listcmds"
)

// custom serves reply commands stored in the database. Unknown command names
// are looked up there before they count as not found.
type custom struct {
	dispatch.BaseCog
}

func init() {
	dispatch.RegisterCog(func() (dispatch.Cog, error) {
		if core.Settings.Database() == "" {
			return nil, nil
		}
		if !database.IsOpen() {
			return nil, fmt.Errorf("custom commands: %w", database.ErrNotOpen)
		}
		return newCustom(core.Settings.OwnerIds()), nil
	})
}

func newCustom(owners []string) *custom {
	ownerOnly := []dispatch.Check{dispatch.InUserList(owners...)}
	name := dispatch.Arg("command", dispatch.String)
	category := dispatch.Arg("category", dispatch.String)

	specs := []dispatch.CommandSpec{
		{
			Name:    AddCommand,
			Help:    "Add new command",
			Params:  []dispatch.Param{name, dispatch.Rest("text", dispatch.String)},
			Checks:  ownerOnly,
			Handler: addCommand,
		},
		{
			Name:    RemoveCommand,
			Help:    "Remove existing command",
			Params:  []dispatch.Param{name},
			Checks:  ownerOnly,
			Handler: removeCommand,
		},
		{
			Name:    EditCommand,
			Help:    "Replace text for existing command",
			Params:  []dispatch.Param{name, dispatch.Rest("text", dispatch.String)},
			Checks:  ownerOnly,
			Handler: editCommand,
		},
		{
			Name:    SetHelpText,
			Help:    "Set (or remove) a help string for an existing command or category",
			Params:  []dispatch.Param{dispatch.Arg("name", dispatch.String), dispatch.OptRest("text", dispatch.String, nil)},
			Checks:  ownerOnly,
			Handler: setHelp,
		},
		{
			Name:    AddToCategory,
			Help:    "Add an existing command to a category. Category will be created if it doesn't exist",
			Params:  []dispatch.Param{category, name},
			Checks:  ownerOnly,
			Handler: addToCategory,
		},
		{
			Name:    RemoveFromCategory,
			Help:    "Remove a command from a category",
			Params:  []dispatch.Param{category, name},
			Checks:  ownerOnly,
			Handler: removeFromCategory,
		},
		{
			Name:    DeleteCategory,
			Help:    "Delete an existing category. Commands in the category will not be removed",
			Params:  []dispatch.Param{category},
			Checks:  ownerOnly,
			Handler: deleteCategory,
		},
		{
			Name:    ListCommands,
			Help:    "List existing custom commands and categories",
			Handler: listCommands,
		},
	}

	c := &custom{BaseCog: dispatch.BaseCog{Name: "Custom Command Management"}}
	for _, spec := range specs {
		c.Cmds = append(c.Cmds, spec.MustBuild())
	}
	return c
}

func (*custom) Listeners() map[dispatch.EventKind][]dispatch.Listener {
	return map[dispatch.EventKind][]dispatch.Listener{
		dispatch.EventCommandError: {handleStored},
	}
}

// CogCommandError turns the usual mistakes into replies.
func (*custom) CogCommandError(ctx *dispatch.Context, err error) {
	var notOwner *dispatch.NotInUserList
	var reply string
	switch {
	case errors.As(err, &notOwner):
		reply = "Only bot owners can manage custom commands."
	case dispatch.IsArgumentError(err):
		reply = fmt.Sprintf("%s\nUsage: %s", err, usage(ctx.Prefix, ctx.Command))
	default:
		core.LogErrorF("Custom command %s failed: %v", ctx.Command, err)
		reply = "Something went wrong, try again later."
	}
	if serr := ctx.Send("%s", reply); serr != nil {
		core.LogWarnF("Failed to reply: %v", serr)
	}
}

func storeError(ctx *dispatch.Context, err error, what string) error {
	switch {
	case errors.Is(err, database.ErrExists):
		return ctx.Send("%s already exists.", what)
	case errors.Is(err, database.ErrNotFound):
		return ctx.Send("%s not found.", what)
	}
	return err
}

func addCommand(ctx *dispatch.Context) error {
	name, _ := dispatch.ArgAs[string](ctx, "command")
	if ctx.Dispatcher.GetCommand(name) != nil {
		return ctx.Send("%s is a built-in command.", name)
	}
	text, _ := dispatch.ArgAs[string](ctx, "text")
	if err := database.AddCommandAlias(name, text); err != nil {
		return storeError(ctx, err, "Command "+name)
	}
	return ctx.Send("Command %s added.", name)
}

func removeCommand(ctx *dispatch.Context) error {
	name, _ := dispatch.ArgAs[string](ctx, "command")
	if err := database.RemoveCommandAlias(name); err != nil {
		return storeError(ctx, err, "Command "+name)
	}
	return ctx.Send("Command %s removed.", name)
}

func editCommand(ctx *dispatch.Context) error {
	name, _ := dispatch.ArgAs[string](ctx, "command")
	text, _ := dispatch.ArgAs[string](ctx, "text")
	if err := database.EditCommandAlias(name, text); err != nil {
		return storeError(ctx, err, "Command "+name)
	}
	return ctx.Send("Command %s updated.", name)
}

func setHelp(ctx *dispatch.Context) error {
	name, _ := dispatch.ArgAs[string](ctx, "name")
	text, _ := dispatch.ArgAs[string](ctx, "text")
	if err := database.SetHelp(name, text); err != nil {
		return storeError(ctx, err, "Command or category "+name)
	}
	if text == "" {
		return ctx.Send("Help for %s removed.", name)
	}
	return ctx.Send("Help for %s set.", name)
}

func addToCategory(ctx *dispatch.Context) error {
	category, _ := dispatch.ArgAs[string](ctx, "category")
	name, _ := dispatch.ArgAs[string](ctx, "command")
	if err := database.AddToGroup(category, name); err != nil {
		if errors.Is(err, database.ErrExists) {
			return ctx.Send("Category %s clashes with an existing command.", category)
		}
		return storeError(ctx, err, "Command "+name)
	}
	return ctx.Send("Command %s added to category %s.", name, category)
}

func removeFromCategory(ctx *dispatch.Context) error {
	category, _ := dispatch.ArgAs[string](ctx, "category")
	name, _ := dispatch.ArgAs[string](ctx, "command")
	if err := database.RemoveFromGroup(category, name); err != nil {
		return storeError(ctx, err, fmt.Sprintf("Command %s in category %s", name, category))
	}
	return ctx.Send("Command %s removed from category %s.", name, category)
}

func deleteCategory(ctx *dispatch.Context) error {
	category, _ := dispatch.ArgAs[string](ctx, "category")
	if err := database.DeleteGroup(category); err != nil {
		return storeError(ctx, err, "Category "+category)
	}
	return ctx.Send("Category %s deleted.", category)
}

func commandNames(cmds []database.CommandAlias) string {
	return strings.Join(funk.Map(cmds, func(cmd database.CommandAlias) string { return cmd.Command }).([]string), ", ")
}

func listCommands(ctx *dispatch.Context) error {
	var output []string
	prefix := ctx.Prefix
	if groups := database.FetchCommandGroups(); len(groups) > 0 {
		output = append(output, "Commands by Category:")
		lines := funk.Map(groups, func(group database.CommandGroup) string {
			cmdString := "No commands in category."
			if cmds := group.FetchCommands(); len(cmds) > 0 {
				cmdString = commandNames(cmds)
			}
			return fmt.Sprintf("\t%s%s:\n\t\t%s", prefix, group.Command, cmdString)
		}).([]string)
		output = append(output, strings.Join(lines, "\n"))
	} else {
		output = append(output, "Categories:\n\tNone found")
	}
	if standalone := database.FetchStandaloneCommands(); len(standalone) > 0 {
		output = append(output, fmt.Sprint("Uncategorised Commands:\n\t", commandNames(standalone)))
	} else {
		output = append(output, "Uncategorised Commands:\n\tNone found")
	}
	return ctx.Send("%s", strings.Join(output, "\n"))
}

// handleStored answers an unknown command name with a stored reply or a
// category listing.
func handleStored(ctx *dispatch.Context, err error) error {
	var notFound *dispatch.CommandNotFound
	if !errors.As(err, &notFound) {
		return nil
	}
	if cmd := database.FetchCommandAlias(notFound.Name); cmd != nil {
		return ctx.Send("%s", cmd.Value)
	}
	if grp := database.FetchCommandGroup(notFound.Name); grp != nil {
		return ctx.Send("%s", describeGroup(ctx.Prefix, grp))
	}
	return nil
}

func describeGroup(prefix string, grp *database.CommandGroup) string {
	header := fmt.Sprint("Category ", grp.Command, ":")
	if grp.Help != nil && len(*grp.Help) > 0 {
		header = fmt.Sprint(header, " ", *grp.Help)
	}
	output := []string{header}
	for _, command := range grp.FetchCommands() {
		cmdline := fmt.Sprintf("\t%s%s", prefix, command.Command)
		if command.Help != nil && len(*command.Help) > 0 {
			cmdline = fmt.Sprint(cmdline, ": ", *command.Help)
		}
		output = append(output, cmdline)
	}
	return strings.Join(output, "\n")
}
