/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	serverURLKey = "server_url"
	tokenKey     = "token"
	nameKey      = "name"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relaychat",
	Short: "Terminal client for a relaychat server",
	Long: `relaychat talks to a relay server over a websocket.

Your identity token is kept in the config file so that the next session
picks up the same id and name.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// one‑shot
	if len(os.Args) > 1 {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	// REPL
	fmt.Println("entering interactive mode, type 'exit' to quit")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("❯❯❯ ")
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil && line == "" {
			return
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		args, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error parsing command:", err)
			continue
		}
		rootCmd.SetArgs(args)
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.relaychat.yaml)")
	rootCmd.PersistentFlags().String("server", "ws://localhost:8080/ws", "websocket URL of the relay server")
	rootCmd.PersistentFlags().String("name", "", "display name used when no token is stored")

	viper.BindPFlag(serverURLKey, rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag(nameKey, rootCmd.PersistentFlags().Lookup("name"))
	viper.SetDefault(serverURLKey, "ws://localhost:8080/ws")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".relaychat")
	}

	viper.SetEnvPrefix("relaychat")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

// saveToken persists token so the next session can MIGRATE to it.
func saveToken(token string) {
	viper.Set(tokenKey, token)
	if err := writeConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Error saving token:", err)
	}
}

func writeConfig() error {
	if err := viper.WriteConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return viper.SafeWriteConfig()
		}
		return err
	}
	return nil
}

// connect dials the configured server and restores or creates an identity.
func connect(ctx context.Context) (*relayClient, error) {
	c, err := dialRelay(ctx, clientOptions{
		URL:       viper.GetString(serverURLKey),
		Token:     viper.GetString(tokenKey),
		Name:      viper.GetString(nameKey),
		SaveToken: saveToken,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Identify(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
