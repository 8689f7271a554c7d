// Package cli wires flags, configuration and signal handling around the
// translation pipeline.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdf-translator/internal/assets"
	"pdf-translator/internal/cache"
	"pdf-translator/internal/config"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pipeline"
	"pdf-translator/internal/translator"
)

type rootFlags struct {
	configPath      string
	service         string
	pages           string
	output          string
	threads         int
	dpi             int
	langIn          string
	langOut         string
	modelPath       string
	fontPath        string
	ignoreCache     bool
	resetCache      bool
	strict          bool
	skipSubsetFonts bool
	debug           bool
	debugLayout     bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "pdf-translator [files...]",
		Short: "Translate PDF documents while preserving their layout",
		Long: "pdf-translator rewrites the text layer of PDF documents into another\n" +
			"language, keeping figures, tables and formulas untouched. Each input\n" +
			"produces a translated copy and a dual original/translated interleave.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.service, "service", "s", "google", "translation service (google, openai)")
	f.StringVarP(&flags.pages, "pages", "p", "", "pages to translate, e.g. 1,3,5-7 (default all)")
	f.StringVarP(&flags.output, "output", "o", "", "output directory (default next to input)")
	f.IntVarP(&flags.threads, "threads", "t", 0, "concurrent page workers")
	f.IntVar(&flags.dpi, "dpi", 0, "raster resolution for layout detection")
	f.StringVar(&flags.langIn, "lang-in", "", "source language code")
	f.StringVar(&flags.langOut, "lang-out", "", "target language code")
	f.StringVar(&flags.modelPath, "model", "", "layout detection ONNX model path")
	f.StringVar(&flags.fontPath, "font", "", "TrueType font for translated text")
	f.BoolVar(&flags.ignoreCache, "ignore-cache", false, "bypass the translation cache")
	f.BoolVar(&flags.resetCache, "reset-cache", false, "clear the translation cache and exit if no files given")
	f.BoolVar(&flags.strict, "strict", false, "fail a file on the first translation error")
	f.BoolVar(&flags.skipSubsetFonts, "skip-subset-fonts", false, "skip the output optimization pass")
	f.BoolVar(&flags.debug, "debug", false, "verbose logging")
	f.BoolVar(&flags.debugLayout, "debug-layout", false, "dump layout detection overlays next to outputs")
	f.StringVar(&flags.configPath, "config", "", "config file path")

	return cmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func run(cmd *cobra.Command, flags *rootFlags, files []string) error {
	if err := logger.Init(flags.debug); err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.NewManager(flags.configPath)
	if err != nil {
		return err
	}
	pipe := cfg.Pipeline()
	applyFlagDefaults(flags, &pipe)

	cachePath, err := cache.DefaultPath()
	if err != nil {
		return err
	}
	if flags.resetCache {
		if _, err := cache.Reset(cachePath); err != nil {
			return fmt.Errorf("reset cache: %w", err)
		}
		logger.Info("translation cache cleared", zap.String("path", cachePath))
		if len(files) == 0 {
			return nil
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files; see %s --help", cmd.CommandPath())
	}

	tr, err := buildTranslator(cfg, flags, pipe, cachePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pipe.ModelPath == "" {
		if path, err := assets.EnsureModel(ctx); err != nil {
			logger.Warn("layout model unavailable", zap.Error(err))
		} else {
			pipe.ModelPath = path
		}
	}
	if pipe.FallbackFont == "" {
		if path, err := assets.EnsureFont(ctx); err != nil {
			logger.Warn("fallback font unavailable, using Helvetica", zap.Error(err))
		} else {
			pipe.FallbackFont = path
		}
	}

	var det layout.Detector
	if pipe.ModelPath != "" {
		onnx, err := layout.NewOnnxDetector(pipe.ModelPath)
		if err != nil {
			return fmt.Errorf("load layout model: %w", err)
		}
		defer onnx.Close()
		det = onnx
	} else {
		logger.Warn("no layout model configured, translating whole pages " +
			"(figures and formulas will not be protected)")
	}

	orch := pipeline.New(pipeline.Options{
		OutputDir:       flags.output,
		Pages:           flags.pages,
		Threads:         pipe.Threads,
		DPI:             pipe.DPI,
		Strict:          flags.strict,
		SkipSubsetFonts: pipe.SkipSubsetFonts,
		FallbackFont:    pipe.FallbackFont,
		DebugLayout:     flags.debugLayout,
		OnProgress:      printProgress,
	}, tr, det)

	results := orch.Run(ctx, files)
	return summarize(results)
}

// applyFlagDefaults overlays explicit flags onto persisted defaults.
func applyFlagDefaults(flags *rootFlags, pipe *config.Pipeline) {
	if flags.threads > 0 {
		pipe.Threads = flags.threads
	}
	if flags.dpi > 0 {
		pipe.DPI = flags.dpi
	}
	if flags.langIn != "" {
		pipe.SourceLang = flags.langIn
	}
	if flags.langOut != "" {
		pipe.TargetLang = flags.langOut
	}
	if flags.modelPath != "" {
		pipe.ModelPath = flags.modelPath
	}
	if flags.fontPath != "" {
		pipe.FallbackFont = flags.fontPath
	}
	if flags.skipSubsetFonts {
		pipe.SkipSubsetFonts = true
	}
}

func buildTranslator(cfg *config.Manager, flags *rootFlags, pipe config.Pipeline, cachePath string) (translator.Translator, error) {
	service, err := translator.ParseService(flags.service)
	if err != nil {
		return nil, err
	}

	params := cfg.ServiceParams(flags.service)
	params["lang_in"] = pipe.SourceLang
	params["lang_out"] = pipe.TargetLang

	provider, err := translator.NewRegistry().New(service, params)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", flags.service, err)
	}

	var memo *cache.Cache
	if db, err := cache.Open(cachePath); err != nil {
		logger.Warn("translation cache unavailable", zap.Error(err))
	} else if memo, err = cache.New(db, flags.service, params); err != nil {
		logger.Warn("translation cache unavailable", zap.Error(err))
		memo = nil
	}

	return translator.NewCached(provider, memo, flags.ignoreCache), nil
}

func printProgress(p pipeline.Progress) {
	if p.Page > 0 {
		fmt.Fprintf(os.Stderr, "\r%s: page %d/%d", p.File, p.Done, p.Total)
		if p.Done == p.Total {
			fmt.Fprintln(os.Stderr)
		}
		return
	}
	logger.Debug("pipeline state",
		zap.String("file", p.File), zap.String("state", p.State.String()))
}

func summarize(results []pipeline.FileResult) error {
	failed := 0
	for _, r := range results {
		switch r.State {
		case pipeline.StateDone:
			fmt.Printf("%s -> %s, %s (%d pages, %.1fs)\n",
				r.Input, r.MonoPath, r.DualPath, r.Pages, r.Elapsed.Seconds())
		case pipeline.StateCancelled:
			fmt.Printf("%s: cancelled\n", r.Input)
		default:
			failed++
			fmt.Printf("%s: failed: %v\n", r.Input, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
