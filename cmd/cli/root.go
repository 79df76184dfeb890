package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	apiBase string
	apiTok  string
)

var rootCmd = &cobra.Command{
	Use:   "hostpilotctl",
	Short: "Manage hostpilot automations",
	Long: `hostpilotctl talks to a running hostpilot daemon over its HTTP API.

It lists, creates, updates, deletes and manually executes automation rules,
and shows current host usage and scheduler status.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "daemon API base URL (default http://localhost:62599)")
	rootCmd.PersistentFlags().StringVar(&apiTok, "token", "", "API token (or HOSTPILOT_TOKEN)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if it's not explicitly set
		} else {
			fmt.Println("Error reading config file:", err)
		}
	}
}

func resolveAPIBase() string {
	if apiBase != "" {
		return apiBase
	}
	if v := os.Getenv("HOSTPILOT_API"); v != "" {
		return v
	}
	return "http://localhost:62599"
}

func resolveToken() string {
	if apiTok != "" {
		return apiTok
	}
	return os.Getenv("HOSTPILOT_TOKEN")
}
