// Package finder locates the source files tokenhints would decorate.
package finder

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/workspace"
)

// Finder walks directories for files a selector accepts. Dependency and
// hidden directories are skipped below the starting directory.
type Finder struct {
	fs       afero.Fs
	selector *workspace.Selector
}

func NewFinder(fs afero.Fs, selector *workspace.Selector) *Finder {
	return &Finder{fs: fs, selector: selector}
}

// Find returns matching files under root in lexical order. A root that is
// a file is returned if it matches.
func (f *Finder) Find(ctx context.Context, root string) ([]string, error) {
	var found []string
	err := afero.Walk(f.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Errorf("walking %s: %w", p, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if p != root && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		slashed := filepath.ToSlash(p)
		if f.selector.Matches(slashed, workspace.LanguageOf(slashed)) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Trace().Str("root", root).Int("files", len(found)).Msg("found files")
	return found, nil
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}
