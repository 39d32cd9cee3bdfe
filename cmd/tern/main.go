// Tern CLI - compiles and runs tern scripts
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/compiler/hash"
	"github.com/chazu/tern/manifest"
	"github.com/chazu/tern/server"
	"github.com/chazu/tern/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tern.cli")

func main() {
	disassemble := flag.Bool("dis", false, "Print the disassembled prototype tree instead of running")
	printHash := flag.Bool("hash", false, "Print the content hash of the compiled script")
	checkOnly := flag.Bool("check", false, "Compile only and report errors")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	verbosity := flag.Int("v", 0, "Log verbosity (1 info, 2 debug)")
	logFile := flag.String("log", "", "Write logs to this file instead of stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tern [options] [file.tern]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a tern script. Without a file, runs the entry of the\n")
		fmt.Fprintf(os.Stderr, "tern.toml project found above the current directory.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tern main.tern          # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  tern -dis main.tern     # Show bytecode\n")
		fmt.Fprintf(os.Stderr, "  tern -check -hash lib.tern\n")
		fmt.Fprintf(os.Stderr, "  tern -lsp -log lsp.log  # Language server for editors\n")
	}
	flag.Parse()

	var logPath *string
	if *logFile != "" {
		logPath = logFile
	}
	commonlog.Configure(*verbosity, logPath)

	if *lspMode {
		if err := runLSP(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	path, opts, err := resolveScript(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	proto, err := compiler.Compile(path, string(src), opts)
	if err != nil {
		// Compile errors render their own location, source line and caret.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Infof("compiled %s", path)

	if *disassemble {
		fmt.Print(vm.Disassemble(proto))
	}
	if *printHash {
		sum, err := hash.HashProto(proto)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s  %s\n", sum, path)
	}
	if *disassemble || *printHash || *checkOnly {
		os.Exit(0)
	}

	result, err := vm.New().Run(proto)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// If the script returns an integer, use it as exit code
	if result.Kind() == vm.KindInt {
		os.Exit(int(result.AsInt()))
	}
}

// resolveScript picks the script to compile and the options to compile it
// with. Imports resolve against the project's source dirs, or against the
// script's own directory outside a project.
func resolveScript(args []string) (string, compiler.Options, error) {
	if len(args) > 1 {
		return "", compiler.Options{}, fmt.Errorf("expected one script, got %d", len(args))
	}

	start := "."
	if len(args) == 1 {
		start = filepath.Dir(args[0])
	}
	m, err := manifest.FindAndLoad(start)
	if err != nil {
		return "", compiler.Options{}, err
	}

	var path string
	switch {
	case len(args) == 1:
		path = args[0]
	case m != nil && m.EntryPath() != "":
		path = m.EntryPath()
	default:
		return "", compiler.Options{}, fmt.Errorf("no script given and no project entry configured")
	}

	if m != nil {
		log.Debugf("using manifest %s", filepath.Join(m.Dir, manifest.FileName))
		return path, m.CompilerOptions(), nil
	}
	return path, compiler.Options{Loader: manifest.NewSourceLoader(filepath.Dir(path))}, nil
}

func runLSP() error {
	var opts compiler.Options
	if m, err := manifest.FindAndLoad("."); err != nil {
		log.Warningf("ignoring manifest: %s", err)
	} else if m != nil {
		opts = m.CompilerOptions()
	}
	return server.NewLSP(opts).Run()
}
