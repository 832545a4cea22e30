// Package gateway описывает контракт внешнего движка хранилищ:
// именованные операции, их аргументы и структурированные ошибки.
package gateway

import (
	"context"

	"github.com/maynagashev/pawnvault/models"
)

// Gateway определяет интерфейс движка, через который выполняются и сохраняются
// все операции над хранилищами и записями.
type Gateway interface {
	// ListVaults возвращает все известные хранилища.
	ListVaults(ctx context.Context) ([]models.Vault, error)
	// CreateVault создает пустое зашифрованное хранилище.
	CreateVault(ctx context.Context, args CreateVaultArgs) (models.Vault, error)
	// RenameVault переименовывает хранилище.
	RenameVault(ctx context.Context, args RenameVaultArgs) (models.Vault, error)
	// DeleteVault безвозвратно удаляет хранилище.
	DeleteVault(ctx context.Context, args DeleteVaultArgs) error
	// UpdateVault перешифровывает хранилище новым мастер-ключом.
	UpdateVault(ctx context.Context, args UpdateVaultArgs) error
	// GetPasswords расшифровывает хранилище и возвращает все записи.
	GetPasswords(ctx context.Context, args GetPasswordsArgs) ([]models.PasswordEntry, error)
	// AddPassword добавляет запись.
	AddPassword(ctx context.Context, args AddPasswordArgs) error
	// UpdatePassword изменяет запись по ID.
	UpdatePassword(ctx context.Context, args UpdatePasswordArgs) error
	// DeletePassword удаляет запись по ID.
	DeletePassword(ctx context.Context, args DeletePasswordArgs) error
}

// CreateVaultArgs - аргументы create_vault.
type CreateVaultArgs struct {
	Name             string
	MasterKey        []byte
	ConfirmMasterKey []byte
}

// RenameVaultArgs - аргументы rename_vault.
type RenameVaultArgs struct {
	Name    string
	NewName string
}

// DeleteVaultArgs - аргументы delete_vault.
type DeleteVaultArgs struct {
	Name string
}

// UpdateVaultArgs - аргументы update_vault.
type UpdateVaultArgs struct {
	Name                string
	OldMasterKey        []byte
	NewMasterKey        []byte
	ConfirmNewMasterKey []byte
}

// GetPasswordsArgs - аргументы get_passwords.
type GetPasswordsArgs struct {
	VaultName string
	MasterKey []byte
}

// AddPasswordArgs - аргументы add_password.
// Пустой SecretValue означает, что секрет сгенерирует движок.
type AddPasswordArgs struct {
	VaultName   string
	MasterKey   []byte
	Notes       string
	SecretValue string
}

// UpdatePasswordArgs - аргументы update_password.
type UpdatePasswordArgs struct {
	VaultName   string
	MasterKey   []byte
	ID          string
	SecretValue string
	Notes       string
}

// DeletePasswordArgs - аргументы delete_password.
type DeletePasswordArgs struct {
	VaultName string
	MasterKey []byte
	ID        string
}
