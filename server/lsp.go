package server

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "nifki-lsp"

// structureDocs describes the words the assembler handles itself.
var structureDocs = map[string]string{
	"IF":     "`cond IF then THEN else ELSE`: runs the then-block when cond is TRUE",
	"THEN":   "ends the then-block of IF",
	"ELSE":   "ends the else-block of IF, LOOP or FOR",
	"LOOP":   "`LOOP cond WHILE body NEXT else ELSE`: repeats body while cond is TRUE",
	"WHILE":  "ends the condition of LOOP",
	"NEXT":   "ends the body of LOOP or FOR",
	"FOR":    "`iterable FOR body NEXT else ELSE`: body starts with key and value on the stack",
	"BREAK":  "leaves the innermost loop; `BREAK BREAK` or `BREAK(2)` leaves two",
	"RETURN": "returns the single item on the stack from a function",
	";":      "asserts the stack is empty",
}

// callFormDocs describes the NAME(arg) forms.
var callFormDocs = map[string]string{
	"LOAD":   "`LOAD(name)` ( 0 → 1 ): pushes a global",
	"STORE":  "`STORE(name)` ( 1 → 0 ): pops into a global",
	"LLOAD":  "`LLOAD(name)` ( 0 → 1 ): pushes a local",
	"LSTORE": "`LSTORE(name)` ( 1 → 0 ): pops into a local",
	"SET":    "`obj value SET(field)` ( 2 → 0 ): assigns an existing field of an object",
	"DEF":    "`DEF(name)`: starts a function body; the argument is on the stack",
	"BREAK":  "`BREAK(n)`: leaves n enclosing loops",
}

// LspServer publishes assembler diagnostics and answers hover and
// completion requests for Nifki assembly.
type LspServer struct {
	reg *vm.Registry
	asm *compiler.Assembler
	log commonlog.Logger

	mu    sync.Mutex
	docs  map[string]string      // URI → full document content
	progs map[string]*vm.Program // URI → last program that assembled

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	reg := vm.NewRegistry()
	s := &LspServer{
		reg:     reg,
		asm:     compiler.New(reg),
		log:     commonlog.GetLogger("nifki.lsp"),
		docs:    make(map[string]string),
		progs:   make(map[string]*vm.Program),
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
	s.log.Infof("Nifki LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"("},
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
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	delete(s.progs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update stores the new text, reassembles it and publishes the result.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.check(string(uri), text)
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// check assembles text and returns its diagnostics. The last program
// that assembled is kept for completion and hover.
func (s *LspServer) check(uri, text string) []protocol.Diagnostic {
	prog, err := s.asm.Assemble(text)

	s.mu.Lock()
	s.docs[uri] = text
	if prog != nil {
		s.progs[uri] = prog
	}
	s.mu.Unlock()

	diagnostics := []protocol.Diagnostic{}
	var se *compiler.SyntaxError
	if errors.As(err, &se) {
		severity := protocol.DiagnosticSeverityError
		source := lspName
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: lspPosition(se.Pos),
				End:   lspPosition(se.End),
			},
			Severity: &severity,
			Source:   &source,
			Message:  se.Msg,
		})
	}
	return diagnostics
}

func lspPosition(p compiler.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(p.Line-1, 0)),
		Character: protocol.UInteger(max(p.Column-1, 0)),
	}
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	s.mu.Lock()
	text, ok := s.docs[string(params.TextDocument.URI)]
	prog := s.progs[string(params.TextDocument.URI)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(prog, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	s.mu.Lock()
	text, ok := s.docs[string(params.TextDocument.URI)]
	prog := s.progs[string(params.TextDocument.URI)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	doc := s.describe(prog, word)
	if doc == "" {
		return nil, nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: doc,
		},
	}, nil
}

// complete offers operator words, structural words, call forms and, for
// a prefix inside a call form, the program's global names.
func (s *LspServer) complete(prog *vm.Program, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	if name, arg, ok := strings.Cut(prefix, "("); ok {
		if prog == nil || (name != "LOAD" && name != "STORE") {
			return nil
		}
		for _, g := range prog.Names {
			if strings.HasPrefix(g, arg) {
				add(name+"("+g+")", "global", protocol.CompletionItemKindVariable)
			}
		}
		return items
	}

	upper := strings.ToUpper(prefix)
	for _, w := range s.reg.Words() {
		if strings.HasPrefix(w, upper) {
			op, _ := s.reg.Lookup(w)
			info := s.reg.Info(op)
			add(w, fmt.Sprintf("( %d → %d )", info.StackPop, info.StackPush), protocol.CompletionItemKindOperator)
		}
	}
	for _, w := range sortedKeys(structureDocs) {
		if strings.HasPrefix(w, upper) {
			add(w, "structure", protocol.CompletionItemKindKeyword)
		}
	}
	for _, w := range sortedKeys(callFormDocs) {
		if strings.HasPrefix(w, upper) {
			add(w+"(", "call form", protocol.CompletionItemKindFunction)
		}
	}
	return items
}

// describe returns hover markdown for a token, or "".
func (s *LspServer) describe(prog *vm.Program, word string) string {
	if name, arg, ok := strings.Cut(word, "("); ok {
		doc, known := callFormDocs[name]
		if !known {
			return ""
		}
		arg = strings.TrimSuffix(arg, ")")
		if prog != nil && (name == "LOAD" || name == "STORE" || name == "DEF") {
			if slot, ok := prog.Slot(arg); ok {
				if fn, ok := prog.Values[slot].(*vm.Function); ok {
					doc += fmt.Sprintf("\n\n**%s**: function at %04d, %d locals, stack %d", fn.Name, fn.PC, fn.NumLocals, fn.StackLen)
				}
			}
		}
		return doc
	}
	if op, ok := s.reg.Lookup(word); ok {
		info := s.reg.Info(op)
		return fmt.Sprintf("**%s** ( %d → %d )", word, info.StackPop, info.StackPush)
	}
	if doc, ok := structureDocs[word]; ok {
		return fmt.Sprintf("**%s**: %s", word, doc)
	}
	return ""
}

// --- Text extraction helpers ---

func isTokenSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}

// extractPrefix returns the token fragment before the cursor for
// completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	// Walk backwards from cursor to find the start of the token
	start := col
	for start > 0 && !isTokenSpace(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the whole token under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && !isTokenSpace(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && !isTokenSpace(line[end]) {
		end++
	}
	return line[start:end]
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

func boolPtr(b bool) *bool {
	return &b
}
