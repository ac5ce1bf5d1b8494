package main

import (
	"fmt"
	"net/http"
	"strconv"
	"text/tabwriter"

	"bridge-relay/internal/handler"
	"bridge-relay/internal/session"
	"bridge-relay/pkg/network"

	"github.com/spf13/cobra"
)

type clientFunc func() *apiClient

func newStatusCmd(client clientFunc, asJSON func() bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st handler.StatusView
			if err := client().do(cmd.Context(), http.MethodGet, "/status", nil, &st); err != nil {
				return err
			}
			if asJSON() {
				return writeJSON(cmd, st)
			}
			printf(cmd, "status:    %s\n", st.Text)
			printf(cmd, "connected: %t\n", st.Connected)
			printf(cmd, "session:   %s\n", st.State)
			printf(cmd, "account:   %s\n", st.Account)
			printf(cmd, "network:   %s (%s mode)\n", st.Network, st.Mode)
			printf(cmd, "queued:    %d\n", st.Queued)
			return nil
		},
	}
}

func newInitCmd(client clientFunc) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Re-initialize the session transport (drops existing sessions)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := client().do(cmd.Context(), http.MethodPost, "/session/init", map[string]string{"name": name}, nil); err != nil {
				return err
			}
			printf(cmd, "session transport initialized\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "wallet name shown to the dApp")
	return cmd
}

func newPairCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <wc-uri>",
		Short: "Pair with an L2 dApp using a WalletConnect URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Status string `json:"status"`
			}
			if err := client().do(cmd.Context(), http.MethodPost, "/session/pair", map[string]string{"uri": args[0]}, &out); err != nil {
				return err
			}
			printf(cmd, "%s\n", out.Status)
			return nil
		},
	}
}

func newSessionsCmd(client clientFunc, asJSON func() bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active dApp sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sessions []session.Session
			if err := client().do(cmd.Context(), http.MethodGet, "/sessions", nil, &sessions); err != nil {
				return err
			}
			if asJSON() {
				return writeJSON(cmd, sessions)
			}
			if len(sessions) == 0 {
				printf(cmd, "no active sessions\n")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tPEER\tEXPIRY")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Topic, s.Peer.Name, s.Expiry.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newQueueCmd(client clientFunc, asJSON func() bool) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued and recently completed transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Items       []handler.TransactionView `json:"items"`
				ManualCheck bool                      `json:"manual_check_enabled"`
			}
			if err := client().do(cmd.Context(), http.MethodGet, "/transactions", nil, &out); err != nil {
				return err
			}
			if asJSON() {
				return writeJSON(cmd, out)
			}
			return writeTransactions(cmd, out.Items)
		},
	}
}

func writeTransactions(cmd *cobra.Command, items []handler.TransactionView) error {
	if len(items) == 0 {
		printf(cmd, "queue is empty\n")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTO\tVALUE (ETH)\tL1 TX")
	for _, tx := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", tx.ID, tx.Status, tx.To, tx.Value, tx.Hash)
	}
	return w.Flush()
}

func newSubmitCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Relay a queued transaction to L1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueueID(args[0])
			if err != nil {
				return err
			}
			var out struct {
				Hash    string `json:"hash"`
				L1TxURL string `json:"l1_tx_url"`
			}
			if err := client().do(cmd.Context(), http.MethodPost, fmt.Sprintf("/transactions/%d/submit", id), nil, &out); err != nil {
				return err
			}
			printf(cmd, "submitted: %s\n%s\n", out.Hash, out.L1TxURL)
			return nil
		},
	}
}

func newCheckCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Check the L1 receipt of a submitted transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueueID(args[0])
			if err != nil {
				return err
			}
			var out struct {
				Confirmed bool   `json:"confirmed"`
				Status    string `json:"status"`
			}
			if err := client().do(cmd.Context(), http.MethodPost, fmt.Sprintf("/transactions/%d/check", id), nil, &out); err != nil {
				return err
			}
			if out.Confirmed {
				printf(cmd, "confirmed\n")
			} else {
				printf(cmd, "%s\n", out.Status)
			}
			return nil
		},
	}
}

func newCancelCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued transaction and reject the dApp request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueueID(args[0])
			if err != nil {
				return err
			}
			if err := client().do(cmd.Context(), http.MethodPost, fmt.Sprintf("/transactions/%d/cancel", id), nil, nil); err != nil {
				return err
			}
			printf(cmd, "cancelled %d\n", id)
			return nil
		},
	}
}

func newHistoryCmd(client clientFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show relayed transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Source string      `json:"source"`
				Items  interface{} `json:"items"`
			}
			if err := client().do(cmd.Context(), http.MethodGet, fmt.Sprintf("/history?limit=%d", limit), nil, &out); err != nil {
				return err
			}
			return writeJSON(cmd, out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of records (1-100)")
	return cmd
}

func newNetworksCmd(client clientFunc, asJSON func() bool) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List supported L2 networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Default  string              `json:"default"`
				Networks []network.L2Network `json:"networks"`
			}
			if err := client().do(cmd.Context(), http.MethodGet, "/networks", nil, &out); err != nil {
				return err
			}
			if asJSON() {
				return writeJSON(cmd, out)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tCHAIN ID\tPORTAL")
			for _, n := range out.Networks {
				key := n.Key
				if key == out.Default {
					key += " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", key, n.Name, n.ChainID, n.PortalAddress)
			}
			return w.Flush()
		},
	}
}

func parseQueueID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transaction id %q", s)
	}
	return id, nil
}
