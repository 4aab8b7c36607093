package index

import (
	"context"
	"sort"

	"github.com/walteh/tokenhints/pkg/annotation"
	"go.uber.org/multierr"
)

// Registry holds one State per document. It is not safe for concurrent use.
type Registry struct {
	host annotation.Host
	docs map[string]*State
}

func NewRegistry(host annotation.Host) *Registry {
	return &Registry{host: host, docs: map[string]*State{}}
}

func (r *Registry) Get(document string) (*State, bool) {
	s, ok := r.docs[document]
	return s, ok
}

func (r *Registry) GetOrCreate(document string) *State {
	s, ok := r.docs[document]
	if !ok {
		s = NewState(document, r.host)
		r.docs[document] = s
	}
	return s
}

// Remove releases everything held for document and forgets it.
func (r *Registry) Remove(ctx context.Context, document string) error {
	s, ok := r.docs[document]
	if !ok {
		return nil
	}
	delete(r.docs, document)
	return s.ClearAll(ctx)
}

func (r *Registry) Documents() []string {
	out := make([]string, 0, len(r.docs))
	for d := range r.docs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Len is the number of annotations across all documents.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.docs {
		n += s.Len()
	}
	return n
}

func (r *Registry) ReleaseAll(ctx context.Context) error {
	var err error
	for _, d := range r.Documents() {
		err = multierr.Append(err, r.Remove(ctx, d))
	}
	return err
}
