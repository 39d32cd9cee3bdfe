// Package server implements the tern language server.
package server

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/manifest"
	"github.com/chazu/tern/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "tern-lsp"

var log = commonlog.GetLogger("tern.server")

// document is an open editor buffer and the result of its last successful
// compile.
type document struct {
	text  string
	proto *vm.FunctionProto
}

// LspServer publishes compile diagnostics for open documents and answers
// hover and completion requests from their compiled prototypes.
type LspServer struct {
	// Options is used for documents outside any tern.toml project.
	Options compiler.Options

	mu   sync.Mutex
	docs map[string]*document // URI → document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a language server compiling with opts by default.
func NewLSP(opts compiler.Options) *LspServer {
	s := &LspServer{
		Options: opts,
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("tern LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.mu.Lock()
	s.docs = make(map[string]*document)
	s.mu.Unlock()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	diagnostics := s.update(uri, params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, diagnostics)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			diagnostics := s.update(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, diagnostics)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	s.publishDiagnostics(ctx, uri, []protocol.Diagnostic{})
	return nil
}

// update stores the new text of uri, compiles it and returns the resulting
// diagnostics. The previous prototype is kept when the compile fails so
// hover keeps working while the user types.
func (s *LspServer) update(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[string(uri)]
	if !ok {
		doc = &document{}
		s.docs[string(uri)] = doc
	}
	doc.text = text

	path := uriToPath(uri)
	proto, err := compiler.Compile(path, text, s.optionsFor(path))
	if err != nil {
		log.Debugf("compile %s: %s", path, firstLine(err.Error()))
		return diagnosticsFor(path, err)
	}
	doc.proto = proto
	return []protocol.Diagnostic{}
}

// optionsFor returns the compile options of the project containing path.
func (s *LspServer) optionsFor(path string) compiler.Options {
	if filepath.IsAbs(path) {
		m, err := manifest.FindAndLoad(filepath.Dir(path))
		if err != nil {
			log.Warningf("manifest for %s: %s", path, err)
		} else if m != nil {
			return m.CompilerOptions()
		}
	}
	opts := s.Options
	// Each compile starts from a fresh type registry.
	opts.Registry = nil
	return opts
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	s.mu.Lock()
	doc, ok := s.docs[string(params.TextDocument.URI)]
	var text string
	var proto *vm.FunctionProto
	if ok {
		text, proto = doc.text, doc.proto
	}
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(proto, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	s.mu.Lock()
	doc, ok := s.docs[string(params.TextDocument.URI)]
	var text string
	var proto *vm.FunctionProto
	if ok {
		text, proto = doc.text, doc.proto
	}
	s.mu.Unlock()

	if !ok || proto == nil {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(proto, word), nil
}

// complete offers keywords and the function names of the compiled document.
func complete(proto *vm.FunctionProto, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	for _, word := range compiler.Keywords() {
		if strings.HasPrefix(word, prefix) {
			kind := protocol.CompletionItemKindKeyword
			items = append(items, protocol.CompletionItem{
				Label: word,
				Kind:  &kind,
			})
		}
	}

	if proto != nil {
		seen := make(map[string]bool)
		var names []string
		proto.Walk(func(p *vm.FunctionProto) {
			if p.Name != "" && p.Name != proto.Name && !seen[p.Name] && strings.HasPrefix(p.Name, prefix) {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		})
		sort.Strings(names)
		for _, name := range names {
			kind := protocol.CompletionItemKindFunction
			detail := "function"
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

// hover describes the functions named word in the prototype tree.
func hover(proto *vm.FunctionProto, word string) *protocol.Hover {
	var matches []*vm.FunctionProto
	proto.Walk(func(p *vm.FunctionProto) {
		if p != proto && p.Name == word {
			matches = append(matches, p)
		}
	})
	if len(matches) == 0 {
		return nil
	}

	var b strings.Builder
	for i, p := range matches {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "```tern\n%s\n```\n\n", signature(p))
		fmt.Fprintf(&b, "%d required, %d optional, %d registers, %d captures",
			p.RequiredParams(), p.OptionalParams(), p.MaxStack, len(p.Captures))
		if p.Line > 0 {
			fmt.Fprintf(&b, ", line %d", p.Line)
		}
		b.WriteByte('\n')
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// signature renders a prototype as a declaration, for example
// "function add(int a, b = ...)".
func signature(p *vm.FunctionProto) string {
	params := make([]string, len(p.Params))
	for i, param := range p.Params {
		var b strings.Builder
		if param.Const {
			b.WriteString("const ")
		}
		if param.Mask != 0 {
			b.WriteString(param.Mask.String())
			b.WriteByte(' ')
		}
		b.WriteString(param.Name)
		if param.HasDefault {
			b.WriteString(" = ...")
		}
		params[i] = b.String()
	}
	return fmt.Sprintf("function %s(%s)", p.Name, strings.Join(params, ", "))
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticsFor converts a compile failure of the document at path into a
// single diagnostic. Errors raised inside an imported file are reported at
// the top of the document.
func diagnosticsFor(path string, err error) []protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  firstLine(err.Error()),
	}

	var ce *compiler.Error
	if errors.As(err, &ce) {
		code := ce.Kind.String()
		d.Code = &protocol.IntegerOrString{Value: code}
		d.Message = ce.Kind.String() + " error: " + ce.Message
		if ce.File == "" || ce.File == path {
			line := protocol.UInteger(0)
			if ce.Pos.Line > 0 {
				line = protocol.UInteger(ce.Pos.Line - 1)
			}
			col := protocol.UInteger(0)
			if ce.Pos.Column > 0 {
				col = protocol.UInteger(ce.Pos.Column - 1)
			}
			d.Range = protocol.Range{
				Start: protocol.Position{Line: line, Character: col},
				End:   protocol.Position{Line: line, Character: col + 1},
			}
		} else {
			d.Message = ce.Summary()
		}
	}

	return []protocol.Diagnostic{d}
}

// --- Text extraction helpers ---

// uriToPath returns the file path of a file:// URI, or the URI itself.
func uriToPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return filepath.FromSlash(u.Path)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentByte(line[end]) {
		end++
	}

	return line[start:end]
}

func isIdentByte(b byte) bool {
	ch := rune(b)
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
