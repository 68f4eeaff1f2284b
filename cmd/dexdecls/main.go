package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/config"
	"github.com/tangzhangming/dexdec/internal/lsp"
)

func main() {
	showVersion := flag.Bool("version", false, "print version")
	showHelp := flag.Bool("help", false, "print help")
	logFile := flag.String("log", "", "log file (default: no logging)")
	configPath := flag.String("config", "", "configuration file")

	flag.Parse()

	if *showVersion {
		fmt.Printf("dexdec language server v%s\n", lsp.Version)
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := newLogger(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 标准输入输出与编辑器通信
	server := lsp.NewServer(cfg, logger, os.Stdin, os.Stdout)
	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		fmt.Fprintf(os.Stderr, "LSP server error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger 日志只写文件，stdout 留给协议
func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

func printUsage() {
	fmt.Println("dexdecls - language server for smali-style assembly")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dexdecls [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version        print version")
	fmt.Println("  --help           print help")
	fmt.Println("  --log <file>     log file")
	fmt.Println("  --config <file>  configuration file")
	fmt.Println()
	fmt.Println("The server talks to the editor over stdin/stdout. Besides diagnostics")
	fmt.Println("and document symbols it answers dexdec/decompile requests with Java source.")
}
