package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/cmd/tokenhints/scan"
	serve_lsp "github.com/walteh/tokenhints/cmd/tokenhints/serve-lsp"
	"github.com/walteh/tokenhints/cmd/tokenhints/tokens"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:          "tokenhints",
		Short:        "inline design token values for your editor",
		SilenceUsage: true,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(serve_lsp.NewServeLSPCommand(rootCmd.Version))
	rootCmd.AddCommand(scan.NewScanCommand())
	rootCmd.AddCommand(tokens.NewTokensCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
