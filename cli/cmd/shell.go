/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
)

var commandSuggestions = []prompt.Suggest{
	{Text: "/join", Description: "join a room"},
	{Text: "/leave", Description: "leave the current room"},
	{Text: "/room", Description: "show the current room"},
	{Text: "/topic", Description: "set the room topic (owner only)"},
	{Text: "/setname", Description: "change your name"},
	{Text: "/name", Description: "show your name"},
	{Text: "/id", Description: "show your id"},
	{Text: "/token", Description: "show your identity token"},
	{Text: "/migrate", Description: "take over an identity token"},
	{Text: "/link", Description: "show a link to the current room"},
	{Text: "/qr", Description: "show a QR code link to the current room"},
	{Text: "/ping", Description: "check the connection"},
	{Text: "/help", Description: "list server commands"},
	{Text: "/quit", Description: "leave the shell"},
}

func completer(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	if !strings.HasPrefix(before, "/") || strings.Contains(before, " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commandSuggestions, d.GetWordBeforeCursor(), true)
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell [room]",
	Short: "Opens a line based chat session.",
	Long: `Opens an interactive session with command completion. Plain lines are
sent to the current room. Lines starting with a slash are commands, type
/help for the list the server understands and /quit to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Second*10)
		defer cancel()
		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if len(args) == 1 {
			if err := c.Join(ctx, args[0], printLine); err != nil {
				return fmt.Errorf("failed to join %s: %w", args[0], err)
			}
		}

		go func() {
			for line := range c.Lines() {
				printLine(line)
			}
			fmt.Fprintln(os.Stderr, "connection closed, press enter to exit")
		}()

		p := prompt.New(
			func(in string) {
				in = strings.TrimSpace(in)
				if in == "" || in == "/quit" {
					return
				}
				if err := c.SendRaw(compose(in)); err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
				}
			},
			completer,
			prompt.OptionPrefix("❯❯ "),
			prompt.OptionTitle("relaychat"),
			prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
				if !breakline {
					return false
				}
				if strings.TrimSpace(in) == "/quit" {
					return true
				}
				select {
				case <-c.done:
					return true
				default:
					return false
				}
			}),
		)
		p.Run()
		return nil
	},
}

func printLine(line string) {
	if text, ok := render(line); ok {
		fmt.Println(text)
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
