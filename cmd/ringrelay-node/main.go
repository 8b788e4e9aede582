// Command ringrelay-node runs a relay node and its interactive console.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ringrelay/internal/config"
	"ringrelay/internal/crypto"
	"ringrelay/internal/node"
	"ringrelay/internal/version"
)

func main() {
	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ringrelay-node",
		Short: "Peer-to-peer text relay with offline mailboxes",
		// Errors are printed by main.
		SilenceErrors: true,
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.AddCommand(
		newRun(),
		newID(),
		newKeygen(),
		newSampleConfig(),
		newVersion(),
	)
	return cmd
}

// addConfigFlags registers --config and the flags in config.FlagKeys that
// are listed in names.
func addConfigFlags(fs *pflag.FlagSet, cfgPath *string, names ...string) {
	fs.StringVarP(cfgPath, "config", "c", "", "TOML configuration file")
	for _, name := range names {
		switch name {
		case "home":
			fs.String(name, "", "state directory (default ~/.ringrelay)")
		case "private-key":
			fs.String(name, "", "PEM private key, created when missing; empty runs with an ephemeral identity")
		case "listen":
			fs.String(name, "", "UDP listen address")
		case "advertise":
			fs.String(name, "", "address announced to peers")
		case "bootstrap":
			fs.StringSlice(name, nil, "peer addresses to dial on start")
		case "whitelist":
			fs.StringSlice(name, nil, "peer identifiers admitted on start")
		case "log-level":
			fs.String(name, "", "log level (debug, info, warn, error)")
		case "debug-addr":
			fs.String(name, "", "serve /metrics and pprof on this address")
		}
	}
}

func newID() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Print the node identifier of the configured private key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			path := cfg.Path(cfg.General.PrivateKey)
			if path == "" {
				return errors.New("no private key configured, pass --private-key")
			}
			priv, err := crypto.LoadKey(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), node.FromKey(priv).ID)
			return nil
		},
	}
	addConfigFlags(cmd.Flags(), &cfgPath, "home", "private-key")
	return cmd
}

func newKeygen() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a private key and print its node identifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			cmd.SilenceUsage = true
			if _, err := os.Stat(out); err == nil && !force {
				return errors.Errorf("%s already exists, pass --force to overwrite", out)
			}
			_, priv, err := crypto.GenKeypair()
			if err != nil {
				return err
			}
			if err := crypto.SaveKey(out, priv); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), node.FromKey(priv).ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination of the PEM key")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func newSampleConfig() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config",
		Short: "Print the default configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			return cfg.Sample(cmd.OutOrStdout())
		},
	}
}

func newVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the ringrelay-node version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ringrelay-node %s\n", version.String())
		},
	}
}
