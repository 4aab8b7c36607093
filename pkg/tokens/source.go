package tokens

import (
	"context"
	_ "embed"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Source produces a token dictionary.
type Source interface {
	Tokens(ctx context.Context) (*Dictionary, error)
}

//go:embed defaults/antd.json
var defaultTokensJSON []byte

// Default returns the built-in antd v5 default theme tokens.
func Default() (*Dictionary, error) {
	d, err := DecodeJSON(defaultTokensJSON)
	if err != nil {
		return nil, errors.Errorf("decoding default tokens: %w", err)
	}
	return d, nil
}

type defaultSource struct{}

func DefaultSource() Source {
	return defaultSource{}
}

func (defaultSource) Tokens(ctx context.Context) (*Dictionary, error) {
	return Default()
}

type staticSource struct {
	dict *Dictionary
}

// Static wraps an already built dictionary.
func Static(d *Dictionary) Source {
	return staticSource{dict: d}
}

func (s staticSource) Tokens(ctx context.Context) (*Dictionary, error) {
	return s.dict, nil
}

// FileSource loads token files through an afero filesystem. Later files
// override earlier ones; a base source, if set, is overridden by all files.
type FileSource struct {
	fs    afero.Fs
	paths []string
	base  Source
}

func NewFileSource(fs afero.Fs, base Source, paths ...string) *FileSource {
	return &FileSource{fs: fs, paths: paths, base: base}
}

func (s *FileSource) Paths() []string {
	return append([]string(nil), s.paths...)
}

func (s *FileSource) Tokens(ctx context.Context) (*Dictionary, error) {
	dicts := make([]*Dictionary, len(s.paths))

	var mu sync.Mutex
	var merr *multierror.Error

	grp := errgroup.Group{}
	grp.SetLimit(4)
	for i, p := range s.paths {
		grp.Go(func() error {
			data, err := afero.ReadFile(s.fs, p)
			if err == nil {
				dicts[i], err = Decode(p, data)
			}
			if err != nil {
				mu.Lock()
				merr = multierror.Append(merr, errors.Errorf("loading %s: %w", p, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = grp.Wait()

	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	out := NewDictionary()
	if s.base != nil {
		base, err := s.base.Tokens(ctx)
		if err != nil {
			return nil, errors.Errorf("loading base tokens: %w", err)
		}
		out = base
	}
	for _, d := range dicts {
		out = out.Merge(d)
	}

	zerolog.Ctx(ctx).Debug().Strs("paths", s.paths).Int("tokens", out.Len()).Msg("loaded token files")

	return out, nil
}
