package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/pawnvault/internal/config"
)

// isolate подменяет HOME и очищает переменные PAWNVAULT_*, чтобы окружение
// разработчика не влияло на тест.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{"PAWNVAULT_CONFIG", "PAWNVAULT_VAULT_DIR", "PAWNVAULT_LOG_PATH", "PAWNVAULT_DEBUG"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "pawnvault", "vaults"), cfg.Vault.Dir)
	assert.Equal(t, filepath.Join("logs", "pawnvault.log"), cfg.Log.Path)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.ShowVersion)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	configDir := filepath.Join(home, ".config", "pawnvault")
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(`
debug = true

[vault]
dir = "/from/file"

[log]
path = "/tmp/file.log"
`), 0o600))

	t.Run("Файл конфигурации", func(t *testing.T) {
		cfg, err := config.Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "/from/file", cfg.Vault.Dir)
		assert.Equal(t, "/tmp/file.log", cfg.Log.Path)
		assert.True(t, cfg.Debug)
	})

	t.Run("Окружение важнее файла", func(t *testing.T) {
		t.Setenv("PAWNVAULT_VAULT_DIR", "/from/env")
		cfg, err := config.Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "/from/env", cfg.Vault.Dir)
		assert.Equal(t, "/tmp/file.log", cfg.Log.Path)
	})

	t.Run("Флаг важнее окружения", func(t *testing.T) {
		t.Setenv("PAWNVAULT_VAULT_DIR", "/from/env")
		cfg, err := config.Load([]string{"--vault-dir", "/from/flag", "--version"})
		require.NoError(t, err)
		assert.Equal(t, "/from/flag", cfg.Vault.Dir)
		assert.True(t, cfg.ShowVersion)
	})
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	isolate(t)

	t.Run("Файл по переменной окружения", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.toml")
		require.NoError(t, os.WriteFile(path, []byte("[vault]\ndir = \"/custom\"\n"), 0o600))
		t.Setenv("PAWNVAULT_CONFIG", path)

		cfg, err := config.Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "/custom", cfg.Vault.Dir)
	})

	t.Run("Отсутствующий явный файл", func(t *testing.T) {
		t.Setenv("PAWNVAULT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
		_, err := config.Load(nil)
		require.Error(t, err)
	})
}

func TestLoad_Flags(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"Справка", []string{"--help"}, pflag.ErrHelp},
		{"Неизвестный флаг", []string{"--unknown"}, nil},
		{"Лишний аргумент", []string{"extra"}, nil},
		{"Пустой каталог", []string{"--vault-dir", ""}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(tt.args)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
