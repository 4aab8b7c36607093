// Package workspace decides which workspaces and documents get decorated.
package workspace

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

type packageJSON struct {
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// UsesDependency reports whether root/package.json lists dep in any of its
// dependency groups. A missing package.json is not an error.
func UsesDependency(ctx context.Context, fs afero.Fs, root, dep string) (bool, error) {
	file := filepath.Join(root, "package.json")
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			zerolog.Ctx(ctx).Debug().Str("root", root).Msg("no package.json in workspace")
			return false, nil
		}
		return false, errors.Errorf("reading %s: %w", file, err)
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, errors.Errorf("parsing %s: %w", file, err)
	}

	for _, deps := range []map[string]string{pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies} {
		if _, ok := deps[dep]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Selector matches documents by language id or by path glob.
type Selector struct {
	languages map[string]struct{}
	include   []string
}

func NewSelector(languages, include []string) (*Selector, error) {
	s := &Selector{languages: make(map[string]struct{}, len(languages))}
	for _, l := range languages {
		s.languages[l] = struct{}{}
	}
	for _, g := range include {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.Errorf("invalid include pattern %q", g)
		}
		s.include = append(s.include, g)
	}
	return s, nil
}

// Matches reports whether a document should be decorated. An empty selector
// matches everything.
func (s *Selector) Matches(uri, languageID string) bool {
	if len(s.languages) == 0 && len(s.include) == 0 {
		return true
	}
	if _, ok := s.languages[languageID]; ok && languageID != "" {
		return true
	}
	p := PathFromURI(uri)
	for _, g := range s.include {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
		if !strings.Contains(g, "/") {
			if ok, _ := doublestar.Match(g, path.Base(p)); ok {
				return true
			}
		}
	}
	return false
}

// PathFromURI converts a file URI to a slash separated path. Other strings
// are returned unchanged.
func PathFromURI(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return u.Path
}

var languageByExt = map[string]string{
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "javascriptreact",
	".ts":   "typescript",
	".mts":  "typescript",
	".cts":  "typescript",
	".tsx":  "typescriptreact",
	".vue":  "vue",
	".html": "html",
	".css":  "css",
	".less": "less",
	".scss": "scss",
}

// LanguageOf guesses the editor language id of a file outside an editor.
// Unknown extensions give "".
func LanguageOf(p string) string {
	return languageByExt[strings.ToLower(path.Ext(p))]
}
