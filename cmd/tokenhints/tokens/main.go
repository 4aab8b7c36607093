package tokens

import (
	"context"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/config"
	"github.com/walteh/tokenhints/pkg/debug"
	"github.com/walteh/tokenhints/pkg/swatch"
	"github.com/walteh/tokenhints/pkg/tokens"
)

type Handler struct {
	debug      bool
	configFile string
	asYAML     bool
}

func NewTokensCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "print the token dictionary the language server would use",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configFile, "config", "", "config file (default is .tokenhints.yaml in the current directory)")
	cmd.Flags().BoolVar(&me.asYAML, "yaml", false, "print as a yaml token file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := debug.NewConsoleLogger(cmd.ErrOrStderr(), debug.Level(me.debug), false).WithContext(cmd.Context())
		return me.Run(ctx, cmd.OutOrStdout())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, out io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return errors.Errorf("getting working directory: %w", err)
	}

	fs := afero.NewOsFs()
	_, cfg, err := config.Load(fs, me.configFile, cwd)
	if err != nil {
		return err
	}

	dict, err := cfg.Source(fs, cwd).Tokens(ctx)
	if err != nil {
		return errors.Errorf("loading design tokens: %w", err)
	}

	if me.asYAML {
		if err := tokens.EncodeYAML(out, dict); err != nil {
			return errors.Errorf("writing tokens: %w", err)
		}
		return nil
	}
	if err := swatch.Dictionary(out, dict); err != nil {
		return errors.Errorf("writing tokens: %w", err)
	}
	return nil
}
