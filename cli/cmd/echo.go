/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/spf13/cobra"
)

// echoCmd represents the echo command
var echoCmd = &cobra.Command{
	Use:   "echo <text> <room>",
	Short: "Sends one message to a room.",
	Long:  `Joins the room, sends the text as a chat message and leaves once the server has relayed it.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Second*10)
		defer cancel()

		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		return echo(ctx, c, args[0], args[1])
	},
}

func echo(ctx context.Context, c *relayClient, text, room string) error {
	if err := c.Join(ctx, room, nil); err != nil {
		return fmt.Errorf("failed to join %s: %w", room, err)
	}
	if err := c.Send("SEND", text); err != nil {
		return err
	}
	id, _ := c.Identity()
	return c.await(ctx, func(args []string) bool {
		return len(args) > 3 && args[0] == domain.KeywordChat && args[1] == id && args[3] == text
	}, nil)
}

func init() {
	rootCmd.AddCommand(echoCmd)
}
