package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "casebridge",
	Short: "Bridge between a case-management host and Slack",
	Long: `casebridge mirrors investigations into Slack channels, relays channel
chatter back into case notes, and routes entitlement approvals between
analysts and the host.

Configuration is resolved from flags, CASEBRIDGE_* environment variables
and an optional casebridge.yaml, in that order.`,
	SilenceUsage: true,
	Version:      Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./casebridge.yaml)")
	rootCmd.PersistentFlags().String("investigation", "", "investigation ID to operate on (default: ask the host)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	must(viper.BindPFlag("investigation", rootCmd.PersistentFlags().Lookup("investigation")))
	must(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("casebridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.casebridge")
		}
	}

	viper.SetEnvPrefix("CASEBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("state-path", "casebridge-state.json")
	viper.SetDefault("paginated-count", 200)
	viper.SetDefault("poll-interval", 5*time.Second)
	viper.SetDefault("health-port", 8080)
	viper.SetDefault("notify-incidents", true)
	viper.SetDefault("auto-close", true)

	if err := viper.ReadInConfig(); err == nil {
		log.Printf("casebridge: using config file %s", viper.ConfigFileUsed())
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// firstNonEmpty returns the first non-empty string from the arguments.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
