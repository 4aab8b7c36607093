package protocol

import (
	"encoding/json"

	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/text"
)

type DocumentURI string

type LanguageKind string

// Position is zero based; Character counts UTF-16 code units.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (p Position) Text() text.Position {
	return text.Position{Line: int(p.Line), Character: int(p.Character)}
}

func (r Range) Text() text.Range {
	return text.Range{Start: r.Start.Text(), End: r.End.Text()}
}

func FromTextPosition(p text.Position) Position {
	return Position{Line: uint32(max(p.Line, 0)), Character: uint32(max(p.Character, 0))}
}

func FromTextRange(r text.Range) Range {
	return Range{Start: FromTextPosition(r.Start), End: FromTextPosition(r.End)}
}

type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int32 `json:"version"`
}

type TextDocumentItem struct {
	URI        DocumentURI  `json:"uri"`
	LanguageID LanguageKind `json:"languageId"`
	Version    int32        `json:"version"`
	Text       string       `json:"text"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ParamInitialize struct {
	ProcessID             int32             `json:"processId"`
	ClientInfo            *ClientInfo       `json:"clientInfo,omitempty"`
	RootURI               DocumentURI       `json:"rootUri,omitempty"`
	RootPath              string            `json:"rootPath,omitempty"`
	WorkspaceFolders      []WorkspaceFolder `json:"workspaceFolders,omitempty"`
	InitializationOptions map[string]any    `json:"initializationOptions,omitempty"`
	Capabilities          json.RawMessage   `json:"capabilities,omitempty"`
}

type TextDocumentSyncKind uint32

const (
	None        TextDocumentSyncKind = 0
	Full        TextDocumentSyncKind = 1
	Incremental TextDocumentSyncKind = 2
)

type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose"`
	Change    TextDocumentSyncKind `json:"change"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

type ServerCapabilities struct {
	TextDocumentSync       *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
	HoverProvider          bool                     `json:"hoverProvider,omitempty"`
	CompletionProvider     *CompletionOptions       `json:"completionProvider,omitempty"`
	InlayHintProvider      bool                     `json:"inlayHintProvider,omitempty"`
	ColorProvider          bool                     `json:"colorProvider,omitempty"`
	ExecuteCommandProvider *ExecuteCommandOptions   `json:"executeCommandProvider,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type InitializedParams struct{}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// TextDocumentContentChangeEvent replaces Range with Text, or the whole
// document when Range is nil.
type TextDocumentContentChangeEvent struct {
	Range       *Range `json:"range,omitempty"`
	RangeLength uint32 `json:"rangeLength,omitempty"`
	Text        string `json:"text"`
}

type ChangeReason uint32

const (
	ChangeReasonUndo ChangeReason = 1
	ChangeReasonRedo ChangeReason = 2
)

// DidChangeTextDocumentParams carries an optional Reason so editors can mark
// undo and redo, which are applied without debouncing.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
	Reason         ChangeReason                     `json:"reason,omitempty"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type DidChangeConfigurationParams struct {
	Settings map[string]any `json:"settings"`
}

// DidChangeActiveEditorParams names the focused document; a nil URI means no
// editor has focus.
type DidChangeActiveEditorParams struct {
	URI *DocumentURI `json:"uri"`
}

type MarkupKind string

const (
	PlainText MarkupKind = "plaintext"
	Markdown  MarkupKind = "markdown"
)

type MarkupContent struct {
	Kind  MarkupKind `json:"kind"`
	Value string     `json:"value"`
}

type HoverParams struct {
	TextDocumentPositionParams
}

type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type CompletionContext struct {
	TriggerKind      uint32 `json:"triggerKind"`
	TriggerCharacter string `json:"triggerCharacter,omitempty"`
}

type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

type CompletionItemKind uint32

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

type CompletionItem struct {
	Label         string             `json:"label"`
	Kind          CompletionItemKind `json:"kind,omitempty"`
	InsertText    string             `json:"insertText,omitempty"`
	FilterText    string             `json:"filterText,omitempty"`
	SortText      string             `json:"sortText,omitempty"`
	TextEdit      *TextEdit          `json:"textEdit,omitempty"`
	Documentation *MarkupContent     `json:"documentation,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type InlayHintParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
}

type InlayHint struct {
	Position    Position       `json:"position"`
	Label       string         `json:"label"`
	PaddingLeft bool           `json:"paddingLeft,omitempty"`
	Tooltip     *MarkupContent `json:"tooltip,omitempty"`
}

type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
	Alpha float64 `json:"alpha"`
}

type DocumentColorParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type ColorInformation struct {
	Range Range `json:"range"`
	Color Color `json:"color"`
}

type ColorPresentationParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Color        Color                  `json:"color"`
	Range        Range                  `json:"range"`
}

type ColorPresentation struct {
	Label    string    `json:"label"`
	TextEdit *TextEdit `json:"textEdit,omitempty"`
}

type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

type CancelParams struct {
	ID any `json:"id"`
}

type MessageType uint32

const (
	Error   MessageType = 1
	Warning MessageType = 2
	Info    MessageType = 3
	Log     MessageType = 4
	Debug   MessageType = 5
)

type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// LogMessageParams carries the structured zerolog fields next to the
// standard type and message.
type LogMessageParams struct {
	Type         MessageType    `json:"type"`
	Message      string         `json:"message"`
	Extra        map[string]any `json:"extra,omitempty"`
	Time         string         `json:"time,omitempty"`
	Source       string         `json:"source,omitempty"`
	IsDependency bool           `json:"is_dependency,omitempty"`
}

type CreateDecorationTypeParams struct {
	ID    string           `json:"id"`
	Style annotation.Style `json:"style"`
}

type DecorationOptions struct {
	Range        Range  `json:"range"`
	HoverMessage string `json:"hoverMessage,omitempty"`
}

type SetDecorationsParams struct {
	ID      string              `json:"id"`
	URI     DocumentURI         `json:"uri"`
	Options []DecorationOptions `json:"options"`
}

type DisposeDecorationTypeParams struct {
	ID string `json:"id"`
}
