/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var showRaw bool

// tailCmd represents the tail command
var tailCmd = &cobra.Command{
	Use:   "tail <room>",
	Short: "Prints the traffic of a room.",
	Long:  `Joins the room and prints everything said in it until interrupted.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		return tail(ctx, c, args[0], cmd.OutOrStdout())
	},
}

func tail(ctx context.Context, c *relayClient, room string, w io.Writer) error {
	show := func(line string) {
		if showRaw {
			fmt.Fprintln(w, line)
			return
		}
		if text, ok := render(line); ok {
			fmt.Fprintf(w, "[%s] %s\n", time.Now().Format("15:04:05"), text)
		}
	}
	if err := c.Join(ctx, room, show); err != nil {
		return fmt.Errorf("failed to join %s: %w", room, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-c.Lines():
			if !ok {
				return errConnectionClosed
			}
			show(line)
		}
	}
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().BoolVarP(&showRaw, "raw", "r", false, "print protocol lines as received")
}
