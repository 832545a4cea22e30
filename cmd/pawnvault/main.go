package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/maynagashev/pawnvault/internal/config"
	"github.com/maynagashev/pawnvault/internal/kdbx"
	"github.com/maynagashev/pawnvault/internal/tui"
	"github.com/maynagashev/pawnvault/internal/vault"
)

const (
	logDirPermissions  = 0o700
	logFilePermissions = 0o600
)

// Переменные для версии и даты сборки, устанавливаются через ldflags.
//
//nolint:gochecknoglobals // Устанавливается через ldflags при сборке
var (
	version    = "dev"
	buildDate  = "unknown"
	commitHash = "N/A"
)

// setupLogging настраивает текстовый лог в файл. Терминал занят TUI,
// поэтому в stdout ничего не пишем.
func setupLogging(path string, debug bool) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirPermissions); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для логов: %w", err)
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть лог-файл: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(logHandler))
	slog.Info("Логгер инициализирован", "path", path, "level", level.String())
	return logFile, nil
}

func printVersion() {
	// slog пишет в файл, версию выводим стандартным log в консоль
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
	log.Println("PawnVault")
	log.Printf("Version: %s", version)
	log.Printf("Build Date: %s", buildDate)
	log.Printf("Commit Hash: %s", commitHash)
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cfg.ShowVersion {
		printVersion()
		return 0
	}

	logFile, err := setupLogging(cfg.Log.Path, cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logFile.Close()

	// Ключи живут в памяти процесса, дамп памяти их бы раскрыл
	vault.DisableCoreDumps()

	engine, err := kdbx.NewEngine(cfg.Vault.Dir)
	if err != nil {
		slog.Error("Не удалось открыть каталог хранилищ", "dir", cfg.Vault.Dir, "error", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	slog.Info("Запуск PawnVault",
		"version", version,
		"vault_dir", engine.Dir(),
		"debug", cfg.Debug,
	)

	if err = tui.Start(vault.NewController(engine), cfg.Debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
