package lsp

import (
	"sort"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/edit"
	"github.com/walteh/tokenhints/pkg/engine"
	"github.com/walteh/tokenhints/pkg/text"
)

// Document is an open editor buffer.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       *text.Document
}

// DocumentManager holds the open documents by URI.
type DocumentManager struct {
	mu    sync.RWMutex
	store map[string]*Document
}

var _ engine.Documents = (*DocumentManager)(nil)

func NewDocumentManager() *DocumentManager {
	return &DocumentManager{store: map[string]*Document{}}
}

func (m *DocumentManager) Open(uri, languageID string, version int32, content string) *Document {
	doc := &Document{URI: uri, LanguageID: languageID, Version: version, Text: text.NewDocument(content)}
	m.mu.Lock()
	m.store[uri] = doc
	m.mu.Unlock()
	return doc
}

func (m *DocumentManager) Get(uri string) (*Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.store[uri]
	return doc, ok
}

func (m *DocumentManager) Document(uri string) (*text.Document, bool) {
	doc, ok := m.Get(uri)
	if !ok {
		return nil, false
	}
	return doc.Text, true
}

// Apply applies changes in order and returns one edit event per change,
// each described against the text it was applied to.
func (m *DocumentManager) Apply(uri string, version int32, changes []text.Change, reason edit.Reason) ([]edit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.store[uri]
	if !ok {
		return nil, errors.Errorf("document not open: %s", uri)
	}

	current := doc.Text
	events := make([]edit.Event, 0, len(changes))
	for i, c := range changes {
		next, err := current.Apply(c)
		if err != nil {
			return nil, errors.Errorf("applying change %d to %s: %w", i, uri, err)
		}
		events = append(events, edit.NewEvent(current, c, reason))
		current = next
	}

	m.store[uri] = &Document{URI: uri, LanguageID: doc.LanguageID, Version: version, Text: current}
	return events, nil
}

func (m *DocumentManager) Close(uri string) {
	m.mu.Lock()
	delete(m.store, uri)
	m.mu.Unlock()
}

func (m *DocumentManager) URIs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.store))
	for uri := range m.store {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}
