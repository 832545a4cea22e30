// Package config загружает настройки клиента: значения по умолчанию,
// файл конфигурации, переменные окружения PAWNVAULT_* и флаги командной строки.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix     = "PAWNVAULT"
	configEnvVar  = "PAWNVAULT_CONFIG"
	defaultLogDir = "logs"
	logFileName   = "pawnvault.log"
)

// Config - настройки клиента.
type Config struct {
	Vault       VaultConfig
	Log         LogConfig
	Debug       bool
	ShowVersion bool `mapstructure:"-"`
}

// VaultConfig - расположение хранилищ.
type VaultConfig struct {
	Dir string
}

// LogConfig - настройки лог-файла.
type LogConfig struct {
	Path string
}

// DefaultVaultDir возвращает каталог хранилищ по умолчанию.
func DefaultVaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "pawnvault", "vaults")
}

// DefaultLogPath возвращает путь к лог-файлу по умолчанию.
func DefaultLogPath() string {
	return filepath.Join(defaultLogDir, logFileName)
}

// Load разбирает аргументы командной строки (без имени программы) и собирает настройки.
// Приоритет: флаги, окружение, файл конфигурации, значения по умолчанию.
// Для --help возвращает pflag.ErrHelp.
func Load(args []string) (Config, error) {
	flagSet := pflag.NewFlagSet("pawnvault", pflag.ContinueOnError)
	flagSet.String("vault-dir", DefaultVaultDir(), "Каталог с файлами хранилищ (PAWNVAULT_VAULT_DIR)")
	flagSet.String("log-path", DefaultLogPath(), "Путь к лог-файлу (PAWNVAULT_LOG_PATH)")
	flagSet.Bool("debug", false, "Подробное логирование (PAWNVAULT_DEBUG)")
	showVersion := flagSet.Bool("version", false, "Показать версию и дату сборки")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return Config{}, fmt.Errorf("неожиданный аргумент: %s", rest[0])
	}

	v := viper.New()
	v.SetDefault("vault.dir", DefaultVaultDir())
	v.SetDefault("log.path", DefaultLogPath())
	v.SetDefault("debug", false)

	v.SetConfigType("toml")
	if cfgPath := os.Getenv(configEnvVar); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "pawnvault"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindings := map[string]string{"vault.dir": "vault-dir", "log.path": "log-path", "debug": "debug"}
	for key, flagName := range bindings {
		if err := v.BindPFlag(key, flagSet.Lookup(flagName)); err != nil {
			return Config{}, fmt.Errorf("ошибка привязки флага %s: %w", flagName, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Явно указанный файл обязан читаться, файл по умолчанию необязателен
		if os.Getenv(configEnvVar) != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}
	c.ShowVersion = *showVersion

	if c.Vault.Dir == "" {
		return Config{}, errors.New("каталог хранилищ не может быть пустым")
	}
	return c, nil
}
