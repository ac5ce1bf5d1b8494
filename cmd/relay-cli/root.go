package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultAPIURL = "http://localhost:8080/api/v1"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "relay-cli",
		Short:         "Operate a running bridge relay server",
		Long:          "relay-cli talks to relay-server over HTTP: pair with an L2 dApp, inspect the queue, and relay queued transactions to L1.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("api-url", defaultAPIURL, "relay-server API base URL (env RELAY_API_URL)")
	rootCmd.PersistentFlags().Duration("timeout", 60*time.Second, "HTTP timeout; submit blocks until broadcast or signature timeout")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON")
	_ = v.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = v.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = v.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	client := func() *apiClient {
		return newAPIClient(v.GetString("api_url"), v.GetDuration("timeout"))
	}
	asJSON := func() bool { return v.GetBool("json") }

	rootCmd.AddCommand(
		newStatusCmd(client, asJSON),
		newInitCmd(client),
		newPairCmd(client),
		newSessionsCmd(client, asJSON),
		newQueueCmd(client, asJSON),
		newSubmitCmd(client),
		newCheckCmd(client),
		newCancelCmd(client),
		newHistoryCmd(client),
		newNetworksCmd(client, asJSON),
		newAccountCmd(),
	)
	return rootCmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
