/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// idCmd represents the id command
var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Prints the identity held in the stored token.",
	Long: `Prints the id and name carried by the token in the config file. The
token is not verified; only the server can do that.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, name, err := inspectToken(viper.GetString(tokenKey))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "id=%s name=%s\n", id, name)
		return nil
	},
}

func inspectToken(token string) (id, name string, err error) {
	if token == "" {
		return "", "", errors.New("no token stored, connect once to get one")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", "", fmt.Errorf("stored token is malformed: %w", err)
	}
	id, _ = claims["id"].(string)
	name, _ = claims["name"].(string)
	return id, name, nil
}

func init() {
	rootCmd.AddCommand(idCmd)
}
