// Command reef-compile is the compile service (spec §6): it compiles a
// single C or Rust source file to Wasm through the content-addressed
// build cache, printing the resulting .wasm bytes to stdout (or writing
// them to -o).
//
// Grounded on the teacher pack's grafana-k6 cmd/root.go for the cobra
// wiring.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reef-runtime/reef/internal/compilecache"
	"github.com/reef-runtime/reef/internal/rlog"
)

type compileFlags struct {
	sourcePath  string
	language    string
	outputPath  string
	cacheDir    string
	templateDir string
	workDir     string
	noCleanup   bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	flags := &compileFlags{}

	root := &cobra.Command{
		Use:   "reef-compile",
		Short: "Compile a C or Rust source file to Reef's Wasm ABI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), flags)
		},
	}

	fs := pflag.NewFlagSet("reef-compile", pflag.ExitOnError)
	fs.StringVarP(&flags.sourcePath, "source", "s", "", "path to the source file to compile (required)")
	fs.StringVarP(&flags.language, "language", "l", "c", "source language: c or rust")
	fs.StringVarP(&flags.outputPath, "output", "o", "", "output .wasm path (default: stdout)")
	fs.StringVar(&flags.cacheDir, "cache-dir", "./reef-cache", "content-addressed artifact cache directory")
	fs.StringVar(&flags.templateDir, "template-dir", "./reef-templates", "per-language build template tree")
	fs.StringVar(&flags.workDir, "work-dir", os.TempDir(), "transient per-job build directory root")
	fs.BoolVar(&flags.noCleanup, "no-cleanup", false, "keep the per-job build directory after compiling")
	fs.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.Flags().SortFlags = false
	root.Flags().AddFlagSet(fs)

	return root
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCompile(ctx context.Context, flags *compileFlags) error {
	if flags.sourcePath == "" {
		return fmt.Errorf("reef-compile: --source is required")
	}

	logger, err := rlog.New(flags.logLevel, false)
	if err != nil {
		return err
	}

	var lang compilecache.Language
	switch flags.language {
	case "c":
		lang = compilecache.LanguageC
	case "rust":
		lang = compilecache.LanguageRust
	default:
		return fmt.Errorf("reef-compile: unknown language %q", flags.language)
	}

	source, err := os.ReadFile(flags.sourcePath)
	if err != nil {
		return fmt.Errorf("reef-compile: %w", err)
	}

	cache := &compilecache.Cache{
		CacheDir:    flags.cacheDir,
		TemplateDir: flags.templateDir,
		WorkDir:     flags.workDir,
		NoCleanup:   flags.noCleanup,
	}

	logger.WithField("hash", compilecache.Hash(source, lang)).Info("compiling")
	artifact, err := cache.Compile(ctx, source, lang)
	if err != nil {
		var compileErr *compilecache.ErrCompileFailed
		if errors.As(err, &compileErr) {
			fmt.Fprintln(os.Stderr, string(compileErr.Output))
		}
		return fmt.Errorf("reef-compile: %w", err)
	}

	if flags.outputPath == "" {
		_, err = os.Stdout.Write(artifact)
		return err
	}
	return os.WriteFile(flags.outputPath, artifact, 0o644)
}
