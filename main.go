package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"VKBot/core"
	"VKBot/core/database"
	"VKBot/core/dispatch"
	_ "VKBot/core/dispatch/handlers" // Load the handlers to let them self-register
	"VKBot/core/gateway"

	"github.com/spf13/cobra"
)

// Variables used for command line parameters
var (
	settingsFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "vkbot",
		Short:        "Chat bot with prefix commands",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&settingsFile, "config", "c", "config.json", "Configuration path")

	root.AddCommand(
		newRunCommand(),
		newCommandsCommand(),
		newConsoleCommand(),
	)
	return root
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and serve commands until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			// Wait here until CTRL-C or other term signal is received.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return gateway.Run(ctx, core.Settings.AuthToken(), d)
		},
	}
}

func newCommandsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List registered commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			for c := range d.WalkCommands() {
				indent := strings.Repeat("  ", len(c.Parents()))
				line := indent + c.Name
				if sig := c.Signature(); sig != "" {
					line += " " + sig
				}
				if len(c.Aliases) > 0 {
					line += fmt.Sprintf(" (aliases: %s)", strings.Join(c.Aliases, ", "))
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newConsoleCommand() *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Dispatch lines read from stdin and print the replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			d.SetSender(writerSender{cmd.OutOrStdout()})
			return console(cmd.Context(), d, cmd.InOrStdin(), author)
		},
	}
	cmd.Flags().StringVarP(&author, "author", "a", "console", "Author id of the typed messages")
	return cmd
}

// writerSender prints replies instead of posting them.
type writerSender struct {
	w io.Writer
}

func (s writerSender) Send(_ context.Context, conversationID, text string) error {
	_, err := fmt.Fprintf(s.w, "[%s] %s\n", conversationID, text)
	return err
}

func console(ctx context.Context, d *dispatch.MessageDispatcher, in io.Reader, author string) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		msg := dispatch.Message{Content: scanner.Text(), Conversation: "console", Author: author, Sent: time.Now()}
		if err := d.Dispatch(ctx, msg); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// setup loads settings, opens the custom command database when one is
// configured and builds the dispatcher with every registered command.
func setup() (*dispatch.MessageDispatcher, func(), error) {
	if err := core.LoadSettings(settingsFile); err != nil {
		return nil, nil, err
	}
	if path := core.Settings.Database(); path != "" {
		if err := database.InitializeDatabase(path); err != nil {
			return nil, nil, err
		}
	}

	d := dispatch.NewDispatcher(dispatch.Options{
		Prefix:          dispatch.WhenMentionedOr(core.Settings.CommandPrefixes()...),
		CaseInsensitive: core.Settings.CaseInsensitive(),
		RejectExtra:     !core.Settings.IgnoreExtra(),
	})
	if err := d.RegisterAll(); err != nil {
		database.Close()
		return nil, nil, err
	}
	return d, database.Close, nil
}
