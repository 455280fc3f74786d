package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/config"
	"github.com/witnz/ledgerd/internal/ledger"
)

var statusOutput string

type nodeStatus struct {
	NodeID   string       `json:"node_id" yaml:"node_id"`
	DataDir  string       `json:"data_dir" yaml:"data_dir"`
	Database string       `json:"database" yaml:"database"`
	Raft     bool         `json:"raft" yaml:"raft"`
	Ledger   *ledger.Info `json:"ledger" yaml:"ledger"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display ledger status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validFormat(statusOutput); err != nil {
			return err
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, l, err := openLedger(cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer store.Close()

		info, err := l.Info()
		if err != nil {
			return fmt.Errorf("failed to read ledger info: %w", err)
		}

		status := nodeStatus{
			NodeID:   cfg.Node.ID,
			DataDir:  cfg.Node.DataDir,
			Database: store.Path(),
			Raft:     cfg.Raft.Enabled,
			Ledger:   info,
		}

		if statusOutput != formatText {
			return writeStructured(cmd.OutOrStdout(), statusOutput, status)
		}
		printStatus(cmd, status)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", formatText, "output format: text, json or yaml")
}

func printStatus(cmd *cobra.Command, s nodeStatus) {
	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan)

	cyan.Fprintf(out, "Node ID: ")
	fmt.Fprintln(out, s.NodeID)
	cyan.Fprintf(out, "Data Directory: ")
	fmt.Fprintln(out, s.DataDir)
	cyan.Fprintf(out, "Database: ")
	fmt.Fprintln(out, s.Database)
	mode := "single-node"
	if s.Raft {
		mode = "raft"
	}
	cyan.Fprintf(out, "Mode: ")
	fmt.Fprintln(out, mode)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Owner: %s\n", s.Ledger.Owner)
	if s.Ledger.Paused {
		color.New(color.FgRed).Fprintln(out, "State: PAUSED")
	} else {
		color.New(color.FgGreen).Fprintln(out, "State: active")
	}
	fmt.Fprintf(out, "Version: %d\n", s.Ledger.Version)
	fmt.Fprintf(out, "Height: %d\n", s.Ledger.Height)
	fmt.Fprintf(out, "Admins: %d\n", s.Ledger.AdminCount)
	fmt.Fprintf(out, "Operations: %d\n", s.Ledger.TotalOperations)
	fmt.Fprintf(out, "Last backup height: %d\n", s.Ledger.LastBackupHeight)
	if len(s.Ledger.LastHash) >= 16 {
		fmt.Fprintf(out, "Last hash: %s\n", s.Ledger.LastHash[:16])
	}
}
