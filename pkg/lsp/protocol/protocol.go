package protocol

import (
	"context"
	"io"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
)

var RequestCancelledError = &jrpc2.Error{Code: -32800, Message: "JSON RPC cancelled"}

const (
	MethodCreateDecorationType  = "tokenhints/createDecorationType"
	MethodSetDecorations        = "tokenhints/setDecorations"
	MethodDisposeDecorationType = "tokenhints/disposeDecorationType"
	MethodDidChangeActiveEditor = "tokenhints/didChangeActiveEditor"

	CommandToggle = "tokenhints.toggle"
	CommandRescan = "tokenhints.rescan"
)

// Server is the subset of the language server protocol tokenhints answers,
// plus the active editor notification.
type Server interface {
	Initialize(context.Context, *ParamInitialize) (*InitializeResult, error)
	Initialized(context.Context, *InitializedParams) error
	Shutdown(context.Context) error
	Exit(context.Context) error
	DidOpen(context.Context, *DidOpenTextDocumentParams) error
	DidChange(context.Context, *DidChangeTextDocumentParams) error
	DidClose(context.Context, *DidCloseTextDocumentParams) error
	DidChangeConfiguration(context.Context, *DidChangeConfigurationParams) error
	DidChangeActiveEditor(context.Context, *DidChangeActiveEditorParams) error
	Hover(context.Context, *HoverParams) (*Hover, error)
	Completion(context.Context, *CompletionParams) (*CompletionList, error)
	InlayHint(context.Context, *InlayHintParams) ([]InlayHint, error)
	DocumentColor(context.Context, *DocumentColorParams) ([]ColorInformation, error)
	ColorPresentation(context.Context, *ColorPresentationParams) ([]ColorPresentation, error)
	ExecuteCommand(context.Context, *ExecuteCommandParams) (any, error)
}

// Client is what the server sends back to the editor.
type Client interface {
	LogMessage(context.Context, *LogMessageParams) error
	ShowMessage(context.Context, *ShowMessageParams) error
	CreateDecorationType(context.Context, *CreateDecorationTypeParams) error
	SetDecorations(context.Context, *SetDecorationsParams) error
	DisposeDecorationType(context.Context, *DisposeDecorationTypeParams) error
}

func buildServerDispatchMap(server Server) handler.Map {
	return handler.Map{
		"initialize":                       createHandler(server.Initialize),
		"initialized":                      createEmptyResultHandler(server.Initialized),
		"shutdown":                         createEmptyHandler(server.Shutdown),
		"exit":                             createEmptyHandler(server.Exit),
		"textDocument/didOpen":             createEmptyResultHandler(server.DidOpen),
		"textDocument/didChange":           createEmptyResultHandler(server.DidChange),
		"textDocument/didClose":            createEmptyResultHandler(server.DidClose),
		"workspace/didChangeConfiguration": createEmptyResultHandler(server.DidChangeConfiguration),
		MethodDidChangeActiveEditor:        createEmptyResultHandler(server.DidChangeActiveEditor),
		"textDocument/hover":               createHandler(server.Hover),
		"textDocument/completion":          createHandler(server.Completion),
		"textDocument/inlayHint":           createHandler(server.InlayHint),
		"textDocument/documentColor":       createHandler(server.DocumentColor),
		"textDocument/colorPresentation":   createHandler(server.ColorPresentation),
		"workspace/executeCommand":         createHandler(server.ExecuteCommand),
		"$/cancelRequest":                  createEmptyResultHandler(cancelRequest),
		"$/setTrace":                       handler.New(func(context.Context, *jrpc2.Request) (any, error) { return nil, nil }),
	}
}

func cancelRequest(ctx context.Context, _ *CancelParams) error {
	return nil
}

// CallbackClient sends server to client traffic over a running jrpc2 server.
type CallbackClient struct {
	serverOpts *jrpc2.ServerOptions
	client     *jrpc2.Server
}

var _ Client = (*CallbackClient)(nil)

func NewCallbackClient(server *jrpc2.Server, serverOpts *jrpc2.ServerOptions) *CallbackClient {
	return &CallbackClient{client: server, serverOpts: serverOpts}
}

func (c *CallbackClient) Notify(ctx context.Context, method string, params any) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Notify(ctx, method, params)
}

func (c *CallbackClient) LogMessage(ctx context.Context, params *LogMessageParams) error {
	return c.Notify(ctx, "window/logMessage", params)
}

func (c *CallbackClient) ShowMessage(ctx context.Context, params *ShowMessageParams) error {
	return c.Notify(ctx, "window/showMessage", params)
}

func (c *CallbackClient) CreateDecorationType(ctx context.Context, params *CreateDecorationTypeParams) error {
	return c.Notify(ctx, MethodCreateDecorationType, params)
}

func (c *CallbackClient) SetDecorations(ctx context.Context, params *SetDecorationsParams) error {
	return c.Notify(ctx, MethodSetDecorations, params)
}

func (c *CallbackClient) DisposeDecorationType(ctx context.Context, params *DisposeDecorationTypeParams) error {
	return c.Notify(ctx, MethodDisposeDecorationType, params)
}

// NewServerServer wires server into a jrpc2 server that can push
// notifications back through the returned CallbackClient.
func NewServerServer(ctx context.Context, server Server, opts *jrpc2.ServerOptions) (*jrpc2.Server, *CallbackClient) {
	methods := buildServerDispatchMap(server)
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}

	opts.AllowPush = true

	var callbackClient *CallbackClient

	opts.NewContext = func() context.Context {
		if callbackClient == nil {
			return ctx
		}
		return ApplyClientToZerolog(ctx, callbackClient)
	}

	result := jrpc2.NewServer(methods, opts)
	callbackClient = NewCallbackClient(result, opts)

	return result, callbackClient
}

// ServerInstance is a jrpc2 server ready to be attached to a stream.
type ServerInstance struct {
	server *jrpc2.Server
	client *CallbackClient
}

func NewServerInstance(ctx context.Context, server Server, opts *jrpc2.ServerOptions) *ServerInstance {
	srv, client := NewServerServer(ctx, server, opts)
	return &ServerInstance{server: srv, client: client}
}

func (s *ServerInstance) Client() *CallbackClient {
	return s.client
}

func (s *ServerInstance) Server() *jrpc2.Server {
	return s.server
}

// StartAndWait serves LSP framed messages from r to w until the stream ends.
func (s *ServerInstance) StartAndWait(r io.Reader, w io.WriteCloser) error {
	return s.server.Start(channel.LSP(r, w)).Wait()
}

func newParseError(err error) *jrpc2.Error {
	return &jrpc2.Error{
		Code:    -32700,
		Message: err.Error(),
	}
}

func createHandler[T any, O any](method func(ctx context.Context, params *T) (O, error)) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if r.HasParams() {
			if err := r.UnmarshalParams(&params); err != nil {
				return nil, newParseError(err)
			}
		}
		result, err := method(ctx, &params)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func createEmptyResultHandler[T any](method func(ctx context.Context, params *T) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if r.HasParams() {
			if err := r.UnmarshalParams(&params); err != nil {
				return nil, newParseError(err)
			}
		}
		return nil, method(ctx, &params)
	})
}

func createEmptyHandler(method func(ctx context.Context) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		return nil, method(ctx)
	})
}

func NonNilSlice[T any](x []T) []T {
	if x == nil {
		return []T{}
	}
	return x
}
