package lsp

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/config"
	"github.com/walteh/tokenhints/pkg/engine"
	"github.com/walteh/tokenhints/pkg/lsp/protocol"
	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/scheduler"
	"github.com/walteh/tokenhints/pkg/tokens"
	"github.com/walteh/tokenhints/pkg/workspace"
)

const serverName = "tokenhints"

// Server answers the language server protocol for one workspace and drives
// the decoration engine from editor events.
type Server struct {
	mu sync.Mutex

	id         string
	version    string
	fs         afero.Fs
	clock      scheduler.Clock
	configFile string
	watch      bool

	documents *DocumentManager
	host      *decorationHost

	// clientMu is separate from mu because the engine reaches the client
	// while mu is held.
	clientMu sync.RWMutex
	client   protocol.Client

	root     string
	loader   *config.Loader
	cfg      *config.Config
	selector *workspace.Selector
	engine   *engine.Engine

	// usesLibrary is false when the workspace does not depend on the
	// configured component library; nothing is decorated then.
	usesLibrary bool
	// on is flipped by the toggle command.
	on bool

	dict        *tokens.Dictionary
	matcher     *matcher.Matcher
	loadFailed  bool
	watcher     *tokens.Watcher
	stopWatcher context.CancelFunc

	initialized bool
	shutdown    bool
}

var _ protocol.Server = (*Server)(nil)

type ServerOption func(*Server)

func WithFs(fs afero.Fs) ServerOption {
	return func(s *Server) { s.fs = fs }
}

func WithClock(c scheduler.Clock) ServerOption {
	return func(s *Server) { s.clock = c }
}

// WithConfigFile reads settings from file instead of the workspace default.
func WithConfigFile(file string) ServerOption {
	return func(s *Server) { s.configFile = file }
}

// WithWatch controls whether token files are watched for changes.
func WithWatch(watch bool) ServerOption {
	return func(s *Server) { s.watch = watch }
}

func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

func NewServer(ctx context.Context, opts ...ServerOption) *Server {
	s := &Server{
		id:        xid.New().String(),
		fs:        afero.NewOsFs(),
		clock:     scheduler.RealClock{},
		watch:     true,
		documents: NewDocumentManager(),
		on:        true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.host = &decorationHost{client: s.callbackClient}
	return s
}

func (s *Server) SetCallbackClient(client protocol.Client) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	s.client = client
}

func (s *Server) callbackClient() protocol.Client {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

func (s *Server) Documents() *DocumentManager {
	return s.documents
}

// Engine is nil until the server is initialized.
func (s *Server) Engine() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// BuildServerInstance wires the server into a jrpc2 server whose callback
// client carries decorations and logs back to the editor.
func (s *Server) BuildServerInstance(ctx context.Context, opts *jrpc2.ServerOptions) *protocol.ServerInstance {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	// edits must be classified in the order the editor sent them
	opts.Concurrency = 1
	instance := protocol.NewServerInstance(ctx, s, opts)
	s.SetCallbackClient(instance.Client())
	return instance
}

func (s *Server) Initialize(ctx context.Context, params *protocol.ParamInitialize) (*protocol.InitializeResult, error) {
	logger := zerolog.Ctx(ctx)

	root := rootOf(params)
	loader := config.NewLoader(s.fs)
	if err := loader.ReadFile(s.configFile, root); err != nil {
		return nil, errors.Errorf("loading configuration: %w", err)
	}
	if err := loader.Merge(params.InitializationOptions); err != nil {
		return nil, errors.Errorf("applying initialization options: %w", err)
	}

	s.mu.Lock()
	s.root = root
	s.loader = loader
	s.mu.Unlock()

	if err := s.reconfigure(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	logger.Info().Str("root", root).Str("server_id", s.id).Msg("server initialized")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.Incremental,
			},
			HoverProvider:      true,
			CompletionProvider: &protocol.CompletionOptions{TriggerCharacters: []string{".", "-"}},
			InlayHintProvider:  true,
			ColorProvider:      true,
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{protocol.CommandToggle, protocol.CommandRescan},
			},
		},
		ServerInfo: &protocol.ServerInfo{Name: serverName, Version: s.version},
	}, nil
}

func rootOf(params *protocol.ParamInitialize) string {
	switch {
	case params.RootURI != "":
		return workspace.PathFromURI(string(params.RootURI))
	case len(params.WorkspaceFolders) > 0:
		return workspace.PathFromURI(string(params.WorkspaceFolders[0].URI))
	default:
		return params.RootPath
	}
}

func (s *Server) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil
	}
	s.shutdown = true
	s.stopWatchLocked()
	if s.engine != nil {
		s.engine.Teardown(ctx)
	}
	zerolog.Ctx(ctx).Info().Msg("server shut down")
	return nil
}

func (s *Server) Exit(ctx context.Context) error {
	return nil
}

// reconfigure rebuilds everything derived from the loaded settings: the
// document selector, the engine and the token watcher.
func (s *Server) reconfigure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loader.Config()
	if err != nil {
		return errors.Errorf("reading configuration: %w", err)
	}
	selector, err := workspace.NewSelector(cfg.Languages, cfg.Include)
	if err != nil {
		return errors.Errorf("building document selector: %w", err)
	}

	usesLibrary := true
	if cfg.RequireDependency != "" && s.root != "" {
		usesLibrary, err = workspace.UsesDependency(ctx, s.fs, s.root, cfg.RequireDependency)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("checking workspace dependencies")
			usesLibrary = false
		}
		if !usesLibrary {
			zerolog.Ctx(ctx).Info().Str("dependency", cfg.RequireDependency).Msg("workspace does not use dependency, decorations disabled")
		}
	}

	active := ""
	if s.engine != nil {
		active = s.engine.Active()
		s.engine.Teardown(ctx)
	}

	s.cfg = cfg
	s.selector = selector
	s.usesLibrary = usesLibrary
	s.engine = engine.New(s.host, s.documents, engine.WithClock(s.clock), engine.WithConfig(cfg.EngineConfig()))
	s.engine.Activate(ctx, active)
	s.loadFailed = false

	s.stopWatchLocked()
	if s.watch && len(cfg.TokenFiles) > 0 {
		s.startWatchLocked(ctx, cfg.ResolveTokenFiles(s.root))
	}

	return s.startLocked(ctx)
}

func (s *Server) enabledLocked() bool {
	return s.on && s.usesLibrary && s.cfg != nil && s.cfg.Enabled
}

// startLocked loads the tokens and (re)initializes the engine. A token
// source failure is shown to the user once and leaves the engine stopped.
func (s *Server) startLocked(ctx context.Context) error {
	if !s.enabledLocked() {
		return nil
	}

	dict, err := s.cfg.Source(s.fs, s.root).Tokens(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("loading design tokens")
		if client := s.callbackClient(); !s.loadFailed && client != nil {
			msg := &protocol.ShowMessageParams{Type: protocol.Error, Message: "tokenhints: could not load design tokens: " + err.Error()}
			if nerr := client.ShowMessage(ctx, msg); nerr != nil {
				zerolog.Ctx(ctx).Warn().Err(nerr).Msg("showing token load failure")
			}
		}
		s.loadFailed = true
		return nil
	}
	s.loadFailed = false

	m, err := matcher.New(dict.Names())
	if err != nil {
		return errors.Errorf("building token matcher: %w", err)
	}
	s.dict = dict
	s.matcher = m

	// debounced passes outlive the request that started the engine
	if err := s.engine.Initialize(context.WithoutCancel(ctx), dict); err != nil {
		return errors.Errorf("starting decoration engine: %w", err)
	}
	return nil
}

func (s *Server) startWatchLocked(ctx context.Context, files []string) {
	w, err := tokens.NewWatcher(files, s.cfg.Debounce(), s.clock)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Strs("files", files).Msg("watching token files")
		return
	}
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.watcher = w
	s.stopWatcher = cancel
	changes := w.Start(wctx)
	go func() {
		for {
			select {
			case <-wctx.Done():
				return
			case <-changes:
				zerolog.Ctx(wctx).Info().Msg("token files changed, reloading")
				s.reload(wctx)
			}
		}
	}()
}

func (s *Server) stopWatchLocked() {
	if s.stopWatcher != nil {
		s.stopWatcher()
		s.stopWatcher = nil
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
}

func (s *Server) reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown || s.engine == nil {
		return
	}
	if err := s.startLocked(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("reloading design tokens")
	}
}

// state returns what request handlers need under one lock.
func (s *Server) state() (*engine.Engine, *workspace.Selector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine, s.selector, s.initialized && !s.shutdown && s.enabledLocked()
}

func (s *Server) tokenState() (*tokens.Dictionary, *matcher.Matcher, *config.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.initialized && !s.shutdown && s.enabledLocked() && s.dict != nil
	return s.dict, s.matcher, s.cfg, ok
}
