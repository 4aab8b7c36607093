package scan

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/config"
	"github.com/walteh/tokenhints/pkg/debug"
	"github.com/walteh/tokenhints/pkg/finder"
	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/swatch"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
	"github.com/walteh/tokenhints/pkg/workspace"
)

type Handler struct {
	debug      bool
	configFile string
	tokenFiles []string
}

func NewScanCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "scan [path...]",
		Short: "print every design token reference found under the given paths",
		Args:  cobra.ArbitraryArgs,
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configFile, "config", "", "config file (default is .tokenhints.yaml in the current directory)")
	cmd.Flags().StringSliceVar(&me.tokenFiles, "token-file", nil, "token files overriding the defaults")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		ctx := debug.NewConsoleLogger(cmd.ErrOrStderr(), debug.Level(me.debug), false).WithContext(cmd.Context())
		return me.Run(ctx, cmd, args)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, cmd *cobra.Command, paths []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return errors.Errorf("getting working directory: %w", err)
	}

	fs := afero.NewOsFs()
	loader := config.NewLoader(fs)
	if err := loader.ReadFile(me.configFile, cwd); err != nil {
		return err
	}
	if err := loader.Viper().BindPFlag("tokenfiles", cmd.Flags().Lookup("token-file")); err != nil {
		return errors.Errorf("binding token-file flag: %w", err)
	}
	cfg, err := loader.Config()
	if err != nil {
		return err
	}

	dict, err := cfg.Source(fs, cwd).Tokens(ctx)
	if err != nil {
		return errors.Errorf("loading design tokens: %w", err)
	}

	selector, err := workspace.NewSelector(cfg.Languages, cfg.Include)
	if err != nil {
		return errors.Errorf("building document selector: %w", err)
	}

	m, err := matcher.New(dict.Names())
	if err != nil {
		return errors.Errorf("building token matcher: %w", err)
	}

	f := finder.NewFinder(fs, selector)
	s := &scanner{fs: fs, dict: dict, matcher: m, out: cmd.OutOrStdout()}
	for _, p := range paths {
		files, err := f.Find(ctx, p)
		if err != nil {
			return err
		}
		for _, file := range files {
			if err := s.scanFile(ctx, file); err != nil {
				return err
			}
		}
	}

	zerolog.Ctx(ctx).Debug().Int("files", s.files).Int("references", s.refs).Msg("scan finished")
	return nil
}

type scanner struct {
	fs      afero.Fs
	dict    *tokens.Dictionary
	matcher *matcher.Matcher
	out     io.Writer

	files int
	refs  int
}

func (s *scanner) scanFile(ctx context.Context, p string) error {
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return errors.Errorf("reading %s: %w", p, err)
	}
	s.files++

	doc := text.NewDocument(string(data))
	for _, occ := range s.matcher.Match(ctx, doc) {
		v, ok := s.dict.Get(occ.Name)
		if !ok {
			continue
		}
		s.refs++
		if _, err := io.WriteString(s.out, swatch.Occurrence(p, doc, occ, v)+"\n"); err != nil {
			return errors.Errorf("writing output: %w", err)
		}
	}
	return nil
}
