package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/tern/compiler"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix_SimpleWord(t *testing.T) {
	text := "var total = coun"
	pos := protocol.Position{Line: 0, Character: 16}
	prefix := extractPrefix(text, pos)
	if prefix != "coun" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "coun")
	}
}

func TestExtractPrefix_AfterDot(t *testing.T) {
	text := "list.pu"
	pos := protocol.Position{Line: 0, Character: 7}
	prefix := extractPrefix(text, pos)
	if prefix != "pu" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "pu")
	}
}

func TestExtractPrefix_EmptyLine(t *testing.T) {
	text := ""
	pos := protocol.Position{Line: 0, Character: 0}
	prefix := extractPrefix(text, pos)
	if prefix != "" {
		t.Errorf("extractPrefix = %q, want empty string", prefix)
	}
}

func TestExtractPrefix_MultiLine(t *testing.T) {
	text := "first line\nsecond line\nfun"
	pos := protocol.Position{Line: 2, Character: 3}
	prefix := extractPrefix(text, pos)
	if prefix != "fun" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "fun")
	}
}

func TestExtractPrefix_CursorPastLineEnd(t *testing.T) {
	text := "ret"
	pos := protocol.Position{Line: 0, Character: 40}
	prefix := extractPrefix(text, pos)
	if prefix != "ret" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "ret")
	}
}

func TestExtractPrefix_LineBeyondDocument(t *testing.T) {
	text := "single line"
	pos := protocol.Position{Line: 5, Character: 0}
	prefix := extractPrefix(text, pos)
	if prefix != "" {
		t.Errorf("extractPrefix beyond document = %q, want empty string", prefix)
	}
}

func TestExtractWord_MiddleOfWord(t *testing.T) {
	text := "return triple(5);"
	pos := protocol.Position{Line: 0, Character: 9}
	word := extractWord(text, pos)
	if word != "triple" {
		t.Errorf("extractWord = %q, want %q", word, "triple")
	}
}

func TestExtractWord_AtSpace(t *testing.T) {
	text := "a  b"
	pos := protocol.Position{Line: 0, Character: 2}
	word := extractWord(text, pos)
	if word != "" {
		t.Errorf("extractWord between spaces = %q, want empty string", word)
	}
}

func TestExtractWord_WithUnderscore(t *testing.T) {
	text := "x = my_func2(1)"
	pos := protocol.Position{Line: 0, Character: 6}
	word := extractWord(text, pos)
	if word != "my_func2" {
		t.Errorf("extractWord = %q, want %q", word, "my_func2")
	}
}

func TestExtractWord_LineBeyondDocument(t *testing.T) {
	word := extractWord("one", protocol.Position{Line: 3, Character: 0})
	if word != "" {
		t.Errorf("extractWord beyond document = %q, want empty string", word)
	}
}

func TestURIToPath(t *testing.T) {
	if got := uriToPath("file:///home/me/src/main.tern"); got != filepath.FromSlash("/home/me/src/main.tern") {
		t.Errorf("uriToPath(file) = %q", got)
	}
	if got := uriToPath("untitled:Untitled-1"); got != "untitled:Untitled-1" {
		t.Errorf("uriToPath(untitled) = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func newTestLSP() *LspServer {
	return &LspServer{docs: make(map[string]*document)}
}

func TestLSP_UpdateValidDocument(t *testing.T) {
	lsp := newTestLSP()
	diagnostics := lsp.update("untitled:ok", "function add(a, b) { return a + b; }\nreturn add(1, 2);")
	if diagnostics == nil || len(diagnostics) != 0 {
		t.Fatalf("diagnostics = %+v, want an empty list", diagnostics)
	}
	doc := lsp.docs["untitled:ok"]
	if doc == nil || doc.proto == nil {
		t.Fatal("document was not compiled")
	}
	if len(doc.proto.Children) != 1 || doc.proto.Children[0].Name != "add" {
		t.Errorf("children = %d", len(doc.proto.Children))
	}
}

func TestLSP_UpdateReportsPosition(t *testing.T) {
	lsp := newTestLSP()
	lsp.update("untitled:doc", "var x = 1;")
	diagnostics := lsp.update("untitled:doc", "var x = 1;\nvar y = ;")
	if len(diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diagnostics))
	}
	d := diagnostics[0]
	if d.Range.Start.Line != 1 || d.Range.Start.Character != 8 {
		t.Errorf("start = %d:%d, want 1:8", d.Range.Start.Line, d.Range.Start.Character)
	}
	if d.Range.End.Character != 9 {
		t.Errorf("end character = %d, want 9", d.Range.End.Character)
	}
	if d.Message != "syntax error: expected expression, got ';'" {
		t.Errorf("message = %q", d.Message)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Error("diagnostic severity should be Error")
	}
	if d.Code == nil || d.Code.Value != "syntax" {
		t.Errorf("code = %+v, want syntax", d.Code)
	}
	if lsp.docs["untitled:doc"].proto == nil {
		t.Error("failed compile dropped the last good prototype")
	}
	if lsp.docs["untitled:doc"].text != "var x = 1;\nvar y = ;" {
		t.Error("document text was not updated")
	}
}

func TestDiagnosticsForImportedFile(t *testing.T) {
	err := &compiler.Error{
		Kind:    compiler.ErrSemantic,
		Message: "unknown type Foo",
		File:    "/src/lib.tern",
		Pos:     compiler.Position{Line: 3, Column: 5},
	}
	diagnostics := diagnosticsFor("/src/main.tern", err)
	if len(diagnostics) != 1 {
		t.Fatalf("got %d diagnostics", len(diagnostics))
	}
	d := diagnostics[0]
	if d.Range.Start.Line != 0 || d.Range.Start.Character != 0 {
		t.Errorf("imported error placed at %d:%d", d.Range.Start.Line, d.Range.Start.Character)
	}
	if d.Message != "/src/lib.tern:3:5: semantic error: unknown type Foo" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestLSP_UsesProjectManifest(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"tern.toml":    "[project]\nname = \"lsp\"\n",
		"src/lib.tern": "function triple(x) { return x * 3; }\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	lsp := newTestLSP()
	uri := protocol.DocumentUri("file://" + filepath.ToSlash(filepath.Join(dir, "src", "main.tern")))
	diagnostics := lsp.update(uri, "import \"lib\";\nreturn triple(2);")
	if len(diagnostics) != 0 {
		t.Fatalf("diagnostics = %+v", diagnostics)
	}

	// Outside a project there is no loader.
	diagnostics = lsp.update("untitled:x", "import \"lib\";")
	if len(diagnostics) != 1 || !strings.HasPrefix(diagnostics[0].Message, "semantic error: cannot import") {
		t.Errorf("diagnostics without a project = %+v", diagnostics)
	}
}

// ---------------------------------------------------------------------------
// Hover and completion
// ---------------------------------------------------------------------------

func TestLSP_Hover(t *testing.T) {
	lsp := newTestLSP()
	src := "function scale(int n, factor = 2) { return n * factor; }\nreturn scale(4);"
	lsp.update("untitled:h", src)
	proto := lsp.docs["untitled:h"].proto

	h := hover(proto, "scale")
	if h == nil {
		t.Fatal("hover for 'scale' should return a result")
	}
	mc, ok := h.Contents.(protocol.MarkupContent)
	if !ok {
		t.Fatal("hover contents should be MarkupContent")
	}
	if mc.Kind != protocol.MarkupKindMarkdown {
		t.Errorf("hover markup kind = %q, want %q", mc.Kind, protocol.MarkupKindMarkdown)
	}
	if !strings.Contains(mc.Value, "function scale(int n, factor = ...)") {
		t.Errorf("hover lacks the signature:\n%s", mc.Value)
	}
	if !strings.Contains(mc.Value, "1 required, 1 optional") {
		t.Errorf("hover lacks the parameter counts:\n%s", mc.Value)
	}

	if hover(proto, "nosuchfunction") != nil {
		t.Error("hover for an unknown word should return nil")
	}
	if hover(proto, "main") != nil {
		t.Error("hover should not describe the top-level unit")
	}
}

func TestLSP_Complete(t *testing.T) {
	lsp := newTestLSP()
	lsp.update("untitled:c", "function frobnicate() {}\nfunction frobble() {}\n")
	proto := lsp.docs["untitled:c"].proto

	items := complete(proto, "fr")
	var labels []string
	for _, item := range items {
		labels = append(labels, item.Label)
		if item.Kind == nil || *item.Kind != protocol.CompletionItemKindFunction {
			t.Errorf("%s: kind should be Function", item.Label)
		}
	}
	if strings.Join(labels, ",") != "frobble,frobnicate" {
		t.Errorf("completions = %v", labels)
	}

	items = complete(nil, "wh")
	if len(items) != 1 || items[0].Label != "while" {
		t.Errorf("keyword completions = %+v", items)
	}
	if items[0].Kind == nil || *items[0].Kind != protocol.CompletionItemKindKeyword {
		t.Error("while completion should have Kind=Keyword")
	}
}

func TestLSP_DocumentStore(t *testing.T) {
	lsp := newTestLSP()
	lsp.update("untitled:a", "var a = 1;")
	lsp.update("untitled:b", "var b = 2;")
	if len(lsp.docs) != 2 {
		t.Errorf("stored %d documents, want 2", len(lsp.docs))
	}
	lsp.update("untitled:a", "var a = 3;")
	if len(lsp.docs) != 2 || lsp.docs["untitled:a"].text != "var a = 3;" {
		t.Error("update did not replace the document")
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Error("boolPtr(true) should point to true")
	}
}
