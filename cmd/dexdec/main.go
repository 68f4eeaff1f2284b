package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/cache"
	"github.com/tangzhangming/dexdec/internal/config"
	"github.com/tangzhangming/dexdec/internal/decompiler"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/i18n"
	"github.com/tangzhangming/dexdec/internal/loader"
	"github.com/tangzhangming/dexdec/internal/profiler"
	"github.com/tangzhangming/dexdec/internal/repl"
)

const (
	Version = "0.1.0"
)

// options 命令行参数
type options struct {
	class       string
	method      string
	all         bool
	disasm      bool
	interactive bool
	verbose     bool
	stats       bool
	format      string
	configPath  string
	lang        string
	initConfig  bool
	version     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("dexdec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.class, "class", "", "class name or fragment to decompile")
	fs.StringVar(&opts.method, "method", "", "method index or name to decompile (requires -class)")
	fs.BoolVar(&opts.all, "all", false, "decompile every method of the selected classes")
	fs.BoolVar(&opts.disasm, "bytecode", false, "print the disassembled bytecode before the source (with -method)")
	fs.BoolVar(&opts.interactive, "i", false, "interactive class and method picker")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	fs.BoolVar(&opts.stats, "stats", false, "print run statistics and per-stage timings")
	fs.StringVar(&opts.format, "format", "", "output format: java or json (overrides config)")
	fs.StringVar(&opts.configPath, "config", "", "configuration file (default: nearest "+config.ConfigFileName+")")
	fs.StringVar(&opts.lang, "lang", "", "message language: en or zh")
	fs.BoolVar(&opts.initConfig, "init-config", false, "write a default "+config.ConfigFileName+" to the current directory")
	fs.BoolVar(&opts.version, "version", false, "print version")
	fs.Usage = func() {
		fmt.Fprintln(stderr, i18n.T(i18n.MsgUsage))
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "dexdec %s\n", Version)
		return 0
	}

	cfg, code := loadConfig(opts, stderr)
	if cfg == nil {
		return code
	}
	i18n.SetLanguageFromString(resolveLanguage(opts.lang, cfg.Run.Language))

	if opts.initConfig {
		return writeConfig(stdout, stderr)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	l := loader.New()
	for _, path := range fs.Args() {
		if err := l.LoadPath(path); err != nil {
			fmt.Fprintln(stderr, i18n.T(i18n.MsgLoadFailed, path, err))
		}
	}
	img := l.Image()
	if len(img.Classes) == 0 {
		fmt.Fprintln(stderr, i18n.T(i18n.MsgNoClasses))
		return 1
	}

	reporter := errors.NewReporter()
	reporter.SetOutput(stderr)
	prof := profiler.NewProfiler()
	if opts.stats {
		prof.Enable()
	}
	ctxOpts := []decompiler.Option{
		decompiler.WithLogger(logger),
		decompiler.WithReporter(reporter),
		decompiler.WithProfiler(prof),
	}
	if cfg.Cache.Dir != "" {
		ch, err := cache.Open(cfg.Cache.Dir)
		if err != nil {
			fmt.Fprintln(stderr, i18n.T(i18n.MsgCacheDisabled, err))
		} else {
			defer ch.Close()
			ctxOpts = append(ctxOpts, decompiler.WithCache(ch))
		}
	}
	dctx := decompiler.NewContext(cfg, ctxOpts...)
	machine := decompiler.NewMachine(dctx, img)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	before := profiler.TakeMemorySnapshot()
	if opts.interactive {
		if err := repl.New(machine, repl.DefaultConfig()).Run(ctx); err != nil && err != context.Canceled {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			code = 1
		}
	} else {
		code = decompile(ctx, machine, opts, stdout, stderr)
	}

	if opts.stats {
		printStats(stderr, dctx, prof, profiler.TakeMemorySnapshot().Since(before))
	}
	if errs, warnings := reporter.Diagnostics(); len(errs)+len(warnings) > 0 {
		fmt.Fprintln(stderr, reporter.Summary())
	}
	if reporter.HasErrors() && code == 0 {
		code = 1
	}
	return code
}

// loadConfig 读取 -config 指定的文件，未指定时向上查找配置文件
func loadConfig(opts options, stderr io.Writer) (*config.Config, int) {
	path := opts.configPath
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = config.FindConfigFile(wd)
		}
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			fmt.Fprintln(stderr, i18n.T(i18n.MsgConfigFailed, path, err))
			return nil, 1
		}
	}
	if opts.format != "" {
		cfg.Output.Format = opts.format
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(stderr, i18n.T(i18n.MsgConfigFailed, "-format", err))
			return nil, 2
		}
	}
	return cfg, 0
}

// writeConfig 在当前目录生成默认配置文件
func writeConfig(stdout, stderr io.Writer) int {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	path := filepath.Join(dir, config.ConfigFileName)
	if err := config.Default().Save(path); err != nil {
		fmt.Fprintln(stderr, i18n.T(i18n.MsgConfigFailed, path, err))
		return 1
	}
	fmt.Fprintln(stdout, i18n.T(i18n.MsgConfigWritten, path))
	return 0
}

// newLogger 详细模式使用开发配置，否则只输出错误
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}

// ============================================================================
// 批量模式
// ============================================================================

func decompile(ctx context.Context, m *decompiler.Machine, opts options, stdout, stderr io.Writer) int {
	classes := m.TopLevel()
	if opts.class != "" {
		if c := m.Class(opts.class); c != nil {
			classes = []*decompiler.Class{c}
		} else {
			classes = m.Find(opts.class)
		}
		if len(classes) == 0 {
			fmt.Fprintln(stderr, i18n.T(i18n.MsgClassNotFound, opts.class))
			return 1
		}
	}

	out := newPrinter(stdout, stderr, m.Context().Config)
	switch {
	case opts.method != "":
		code := 0
		for _, c := range classes {
			i, ok := c.FindMethod(opts.method)
			if !ok {
				fmt.Fprintln(stderr, i18n.T(i18n.MsgMethodNotFound, c.Name()+"->"+opts.method))
				code = 1
				continue
			}
			if opts.disasm {
				fmt.Fprint(stdout, bytecode.Disassemble(c.Methods()[i]))
			}
			out.print(c.RenderMethod(i))
		}
		return code

	case opts.all:
		// 先并发处理，输出时按类顺序
		process := m.ProcessAll
		if opts.class != "" && len(classes) == 1 {
			process = classes[0].ProcessAll
		}
		if err := process(ctx); err != nil && ctx.Err() != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ctx.Err())
			return 1
		}
		for _, c := range classes {
			out.print(c.Render())
		}
		return 0

	case opts.class != "":
		for _, c := range classes {
			fmt.Fprintln(stdout, i18n.T(i18n.MsgMethodList, c.Name()))
			for i, meth := range c.Methods() {
				fmt.Fprintf(stdout, "  [%d] %s%s\n", i, meth.Name, meth.Descriptor)
			}
		}
		return 0
	}

	fmt.Fprintln(stdout, i18n.T(i18n.MsgClassList))
	for _, c := range m.Classes() {
		fmt.Fprintf(stdout, "  %s\n", c.Name())
	}
	return 0
}

// printer 输出源码，终端上的 Java 输出加语法高亮
type printer struct {
	w, errw   io.Writer
	highlight *errors.SyntaxHighlighter
}

func newPrinter(w, errw io.Writer, cfg *config.Config) *printer {
	p := &printer{w: w, errw: errw}
	if f, ok := w.(*os.File); ok && f == os.Stdout && errors.ColorsEnabled() && cfg.Output.Format == config.FormatJava {
		p.highlight = errors.NewSyntaxHighlighter()
	}
	return p
}

func (p *printer) print(text string, err error) {
	if err != nil {
		fmt.Fprintf(p.errw, "Error: %v\n", err)
		return
	}
	if p.highlight != nil {
		text = p.highlight.Highlight(text)
	}
	fmt.Fprint(p.w, text)
}

// ============================================================================
// 统计
// ============================================================================

func printStats(w io.Writer, ctx *decompiler.Context, prof *profiler.Profiler, mem profiler.MemoryDelta) {
	snap := ctx.Stats.Snapshot()
	if ctx.Config.Output.Format == config.FormatJSON {
		data, _ := json.Marshal(snap)
		fmt.Fprintln(w, string(data))
		prof.WriteReport(w, profiler.FormatJSON) //nolint:errcheck
		return
	}
	fmt.Fprintln(w, i18n.T(i18n.MsgStats, snap.Methods, snap.Failed, snap.Gotos, snap.CacheHits))
	for _, st := range prof.Stats() {
		fmt.Fprintln(w, i18n.T(i18n.MsgStageTime, st.Stage, st.Calls, st.Total))
	}
	mem.WriteTo(w) //nolint:errcheck
}
