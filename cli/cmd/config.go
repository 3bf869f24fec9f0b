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
	"github.com/spf13/viper"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [new_display_name]",
	Short: "Gets or sets the display name.",
	Long: `Without arguments, prints the client configuration.
With an argument, changes the display name on the server and stores the
token issued for it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			fmt.Fprintf(out, "Server: %s\n", viper.GetString(serverURLKey))
			fmt.Fprintf(out, "Display Name: %s\n", viper.GetString(nameKey))
			if _, name, err := inspectToken(viper.GetString(tokenKey)); err == nil {
				fmt.Fprintf(out, "Token Name: %s\n", name)
			}
			return nil
		}

		name := args[0]
		if err := domain.ValidateName(name); err != nil {
			return fmt.Errorf("invalid name: %s", domain.Message(err))
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Second*10)
		defer cancel()
		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Send("SETNAME", name); err != nil {
			return err
		}
		if err := c.await(ctx, keyword(domain.KeywordName), nil); err != nil {
			return err
		}

		viper.Set(nameKey, name)
		if err := writeConfig(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(out, "Display name set to: %s\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
