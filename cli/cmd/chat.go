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

	"github.com/gdamore/tcell/v2"
	"github.com/ponyo877/relaychat/server/domain"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <room>",
	Short: "Starts a chat session in a tview-based interface",
	Long: `Joins the room and opens a full screen chat session.
Type messages at the bottom and see the room above. Lines starting with a
slash are sent as commands, e.g. /topic "new topic". Ctrl+C exits.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Second*10)
		c, err := connect(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()

		if err := runChatUI(cmd.Context(), c, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Chat UI error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func colorize(line string) (string, bool) {
	text, ok := render(line)
	if !ok {
		return "", false
	}
	text = tview.Escape(text)
	switch domain.Tokenize(line)[0] {
	case domain.KeywordChat:
		return "[white]" + text, true
	case domain.KeywordError:
		return "[red]" + text, true
	case domain.KeywordWarning:
		return "[yellow]" + text, true
	case domain.KeywordSuccess:
		return "[green]" + text, true
	default:
		return "[blue]" + text, true
	}
}

func runChatUI(parent context.Context, c *relayClient, room string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	app := tview.NewApplication()

	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true).
		SetScrollable(true).
		ScrollToEnd()

	_, name := c.Identity()
	inputField := tview.NewInputField().
		SetLabel(name + " ❯❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(256))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, false).
		AddItem(inputField, 1, 0, true)

	app.SetRoot(flex, true).SetFocus(inputField)

	write := func(line string) {
		if text, ok := colorize(line); ok {
			fmt.Fprintf(textView, "[gray][%s] %s\n", time.Now().Format("15:04:05"), text)
		}
	}

	if err := c.Join(ctx, room, write); err != nil {
		return fmt.Errorf("failed to join %s: %w", room, err)
	}
	fmt.Fprintf(textView, "[green]Welcome to %s! You are %s. (Ctrl+C to exit)\n", tview.Escape(room), tview.Escape(name))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-c.Lines():
				if !ok {
					app.QueueUpdateDraw(func() {
						fmt.Fprintln(textView, "[red]Connection closed by server.")
					})
					return
				}
				args := domain.Tokenize(line)
				app.QueueUpdateDraw(func() {
					if len(args) > 1 && args[0] == domain.KeywordName {
						inputField.SetLabel(args[1] + " ❯❯ ")
					}
					write(line)
					textView.ScrollToEnd()
				})
			}
		}
	}()

	inputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(inputField.GetText())
		if text == "" {
			return
		}
		if err := c.SendRaw(compose(text)); err != nil {
			fmt.Fprintf(textView, "[red]Failed to send message: %v\n", err)
		}
		inputField.SetText("")
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			cancel()
			app.Stop()
			return nil
		}
		return event
	})

	return app.Run()
}
