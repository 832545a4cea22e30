package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/pawnvault/internal/vault"
)

// operationTimeout ограничивает одну операцию над хранилищем. Вывод ключа
// из KDBX занимает заметное время, поэтому запас большой.
const operationTimeout = 30 * time.Second

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), operationTimeout)
}

// loadVaultsCmd асинхронно перечитывает список хранилищ.
func loadVaultsCmd(ctrl *vault.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		vaults, err := ctrl.ListVaults(ctx)
		return vaultsLoadedMsg{vaults: vaults, err: err}
	}
}

func createVaultCmd(ctrl *vault.Controller, name string, key, confirm []byte) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		defer wipe(key, confirm)
		created, err := ctrl.CreateVault(ctx, name, key, confirm)
		return vaultChangedMsg{
			op:     vault.OpCreateVault,
			status: "Хранилище '" + created.Name + "' создано",
			err:    err,
		}
	}
}

func renameVaultCmd(ctrl *vault.Controller, oldName, newName string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		renamed, err := ctrl.RenameVault(ctx, oldName, newName)
		return vaultChangedMsg{
			op:     vault.OpRenameVault,
			status: "Хранилище переименовано в '" + renamed.Name + "'",
			err:    err,
		}
	}
}

func deleteVaultCmd(ctrl *vault.Controller, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		err := ctrl.DeleteVault(ctx, name)
		return vaultChangedMsg{
			op:     vault.OpDeleteVault,
			status: "Хранилище '" + name + "' удалено",
			err:    err,
		}
	}
}

func changeKeyCmd(ctrl *vault.Controller, name string, oldKey, newKey, confirm []byte) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		defer wipe(oldKey, newKey, confirm)
		err := ctrl.UpdateVaultKey(ctx, name, oldKey, newKey, confirm)
		return vaultChangedMsg{
			op:     vault.OpUpdateVault,
			status: "Мастер-ключ хранилища '" + name + "' изменен",
			err:    err,
		}
	}
}

func unlockCmd(ctrl *vault.Controller, name string, key []byte) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		defer wipe(key)
		return unlockedMsg{name: name, err: ctrl.Unlock(ctx, name, key)}
	}
}

func addEntryCmd(ctrl *vault.Controller, notes, secret string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		status := "Запись добавлена"
		if secret == "" {
			status = "Запись добавлена, секрет сгенерирован"
		}
		return entriesChangedMsg{op: vault.OpAddEntry, status: status, err: ctrl.AddEntry(ctx, notes, secret)}
	}
}

func updateEntryCmd(ctrl *vault.Controller, id, secret, notes string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return entriesChangedMsg{
			op:     vault.OpUpdateEntry,
			status: "Запись сохранена",
			err:    ctrl.UpdateEntry(ctx, id, secret, notes),
		}
	}
}

func deleteEntryCmd(ctrl *vault.Controller, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return entriesChangedMsg{op: vault.OpDeleteEntry, status: "Запись удалена", err: ctrl.DeleteEntry(ctx, id)}
	}
}

func refreshEntriesCmd(ctrl *vault.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		_, err := ctrl.Refresh(ctx)
		return entriesChangedMsg{op: vault.OpGetPasswords, status: "Записи перечитаны", err: err}
	}
}

// clearStatusCmd возвращает команду, которая отправит clearStatusMsg через delay.
func clearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}
