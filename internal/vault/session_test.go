//nolint:testpackage // Тесты в том же пакете для доступа к ключу и шлюзу сессии.
package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/pawnvault/internal/gateway"
	"github.com/maynagashev/pawnvault/models"
)

const testKey = "k1"

// newUnlockedSession создает хранилище в фейковом бэкенде и открывает его.
func newUnlockedSession(t *testing.T) (*Session, *fakeGateway) {
	t.Helper()
	ctx := context.Background()
	gw := newFakeGateway()
	v, err := gw.CreateVault(ctx, gateway.CreateVaultArgs{Name: "work", MasterKey: []byte(testKey)})
	require.NoError(t, err)

	s := NewSession(gw, v)
	require.NoError(t, s.Unlock(ctx, []byte(testKey)))
	return s, gw
}

// backendEntries читает записи напрямую из фейкового бэкенда.
func backendEntries(t *testing.T, gw *fakeGateway, name string) []models.PasswordEntry {
	t.Helper()
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return cloneEntries(gw.entries[name])
}

func TestSession_Unlock(t *testing.T) {
	ctx := context.Background()

	t.Run("Неверный ключ", func(t *testing.T) {
		gw := newFakeGateway()
		v, err := gw.CreateVault(ctx, gateway.CreateVaultArgs{Name: "work", MasterKey: []byte(testKey)})
		require.NoError(t, err)
		s := NewSession(gw, v)

		err = s.Unlock(ctx, []byte("wrong"))
		var gwErr *GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, gateway.CodeWrongKey, gwErr.Code)
		assert.Equal(t, gateway.MsgWrongKey, err.Error())
		assert.Equal(t, StateLocked, s.State())
		assert.Nil(t, s.Entries())
		assert.Nil(t, s.key, "Ключ не сохраняется после неудачной разблокировки")

		// Повторная попытка с верным ключом разрешена
		require.NoError(t, s.Unlock(ctx, []byte(testKey)))
		assert.Equal(t, StateUnlocked, s.State())
	})

	t.Run("Пустой ключ", func(t *testing.T) {
		gw := newFakeGateway()
		s := NewSession(gw, models.Vault{Name: "work"})
		err := s.Unlock(ctx, nil)
		require.ErrorIs(t, err, ErrValidation)
		assert.Zero(t, gw.callCount(OpGetPasswords))
	})

	t.Run("Ключ копируется", func(t *testing.T) {
		gw := newFakeGateway()
		v, err := gw.CreateVault(ctx, gateway.CreateVaultArgs{Name: "work", MasterKey: []byte(testKey)})
		require.NoError(t, err)
		s := NewSession(gw, v)

		key := []byte(testKey)
		require.NoError(t, s.Unlock(ctx, key))
		wipe(key)

		require.NoError(t, s.Add(ctx, "note", "secret"), "Изменение буфера вызывающим не портит ключ сессии")
	})

	t.Run("Повторная разблокировка", func(t *testing.T) {
		s, _ := newUnlockedSession(t)
		err := s.Unlock(ctx, []byte(testKey))
		require.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestSession_MutationsRefetch(t *testing.T) {
	ctx := context.Background()
	s, gw := newUnlockedSession(t)
	assert.Empty(t, s.Entries())

	require.NoError(t, s.Add(ctx, "GitHub", "gh-secret"))
	assert.Equal(t, backendEntries(t, gw, "work"), s.Entries())
	require.Len(t, s.Entries(), 1)

	require.NoError(t, s.Add(ctx, "Generated", ""))
	assert.Equal(t, backendEntries(t, gw, "work"), s.Entries())
	assert.Equal(t, "generated-secret", s.Entries()[1].SecretValue, "Пустой секрет генерирует бэкенд")

	id := s.Entries()[0].ID
	require.NoError(t, s.Update(ctx, id, "new-secret", "GitHub work"))
	assert.Equal(t, backendEntries(t, gw, "work"), s.Entries())
	assert.Equal(t, "GitHub work", s.Entries()[0].Notes)

	require.NoError(t, s.Delete(ctx, id))
	assert.Equal(t, backendEntries(t, gw, "work"), s.Entries())
	assert.Len(t, s.Entries(), 1)

	// Каждое изменение сопровождается ровно одним перечитыванием (плюс разблокировка)
	assert.Equal(t, 5, gw.callCount(OpGetPasswords))
}

func TestSession_MutationFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	s, gw := newUnlockedSession(t)
	require.NoError(t, s.Add(ctx, "first", "x"))
	before := s.Entries()
	reads := gw.callCount(OpGetPasswords)

	err := s.Update(ctx, "missing", "y", "z")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeEntryNotFound, gwErr.Code)
	assert.Equal(t, before, s.Entries())
	assert.Equal(t, reads, gw.callCount(OpGetPasswords), "После неудачного изменения перечитывания нет")
	assert.False(t, s.Stale())
}

func TestSession_Desync(t *testing.T) {
	ctx := context.Background()
	s, gw := newUnlockedSession(t)
	before := s.Entries()

	gw.failOn(OpGetPasswords, gateway.Errorf(gateway.CodeIO, "диск недоступен"))
	err := s.Add(ctx, "email", "secret")

	require.ErrorIs(t, err, ErrDesync)
	assert.Equal(t, ErrDesync, Kind(err), "Рассинхронизация важнее ошибки бэкенда")
	var desync *DesyncError
	require.ErrorAs(t, err, &desync)
	assert.Equal(t, OpAddEntry, desync.Op)
	assert.True(t, s.Stale())
	assert.Equal(t, before, s.Entries(), "Кэш сохраняет последний успешный снимок")
	assert.Len(t, backendEntries(t, gw, "work"), 1, "Изменение применено бэкендом")

	// Ручное перечитывание восстанавливает согласованность
	_, err = s.Refresh(ctx)
	require.ErrorIs(t, err, ErrGateway)
	assert.True(t, s.Stale(), "Неудачное чтение не снимает признак")

	gw.failOn(OpGetPasswords, nil)
	entries, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, s.Stale())
	assert.Equal(t, backendEntries(t, gw, "work"), s.Entries())
}

func TestSession_Busy(t *testing.T) {
	ctx := context.Background()
	s, gw := newUnlockedSession(t)

	gw.hold(OpAddEntry)
	firstDone := make(chan error, 1)
	go func() { firstDone <- s.Add(ctx, "first", "x") }()
	require.NoError(t, gw.waitStarted(OpAddEntry))
	assert.True(t, s.Mutating())

	err := s.Add(ctx, "second", "y")
	require.ErrorIs(t, err, ErrBusy)
	err = s.Delete(ctx, "any")
	require.ErrorIs(t, err, ErrBusy)
	err = s.Update(ctx, "any", "a", "b")
	require.ErrorIs(t, err, ErrBusy)

	// Чтение не ограничено шлюзом
	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	gw.release(OpAddEntry)
	require.NoError(t, <-firstDone)
	assert.False(t, s.Mutating())
	assert.Equal(t, 1, gw.callCount(OpAddEntry), "До бэкенда дошло только первое изменение")
	assert.Equal(t, 1, gw.maxConcurrent(OpAddEntry))
	assert.Len(t, s.Entries(), 1)
}

func TestSession_RefreshIssuanceOrder(t *testing.T) {
	ctx := context.Background()
	s, gw := newUnlockedSession(t)

	// Ранний запрос видит пустой список и задерживается
	gw.hold(OpGetPasswords)
	slow := make(chan error, 1)
	go func() {
		_, err := s.Refresh(ctx)
		slow <- err
	}()
	require.NoError(t, gw.waitStarted(OpGetPasswords))

	require.NoError(t, s.Add(ctx, "fresh", "x"))
	require.Len(t, s.Entries(), 1)

	gw.release(OpGetPasswords)
	require.NoError(t, <-slow)
	assert.Len(t, s.Entries(), 1, "Поздний ответ на ранний запрос не перезаписывает свежий")
}

func TestSession_Lock(t *testing.T) {
	ctx := context.Background()

	t.Run("Операции после блокировки", func(t *testing.T) {
		s, gw := newUnlockedSession(t)
		require.NoError(t, s.Add(ctx, "note", "x"))
		key := s.key
		calls := gw.callCount(OpGetPasswords) + gw.callCount(OpAddEntry)

		s.Lock()
		assert.Equal(t, StateClosed, s.State())
		assert.Nil(t, s.Entries())
		assert.True(t, key.destroyed(), "Ключ стирается при блокировке")

		ops := map[string]func() error{
			"add":    func() error { return s.Add(ctx, "n", "x") },
			"update": func() error { return s.Update(ctx, "id", "x", "n") },
			"delete": func() error { return s.Delete(ctx, "id") },
			"refresh": func() error {
				_, err := s.Refresh(ctx)
				return err
			},
			"search": func() error {
				_, err := s.Search("n")
				return err
			},
			"unlock": func() error { return s.Unlock(ctx, []byte(testKey)) },
		}
		for name, op := range ops {
			err := op()
			require.ErrorIs(t, err, ErrInvalidState, "операция %s", name)
		}
		assert.Equal(t, calls, gw.callCount(OpGetPasswords)+gw.callCount(OpAddEntry),
			"Заблокированная сессия не обращается к бэкенду")

		s.Lock() // Повторная блокировка безопасна
	})

	t.Run("Ответ после блокировки отбрасывается", func(t *testing.T) {
		s, gw := newUnlockedSession(t)
		gw.hold(OpAddEntry)
		done := make(chan error, 1)
		go func() { done <- s.Add(ctx, "late", "x") }()
		require.NoError(t, gw.waitStarted(OpAddEntry))

		s.Lock()
		gw.release(OpAddEntry)
		err := <-done
		require.ErrorIs(t, err, ErrInvalidState)
		assert.Nil(t, s.Entries())
	})

	t.Run("Блокировка во время разблокировки", func(t *testing.T) {
		gw := newFakeGateway()
		v, err := gw.CreateVault(ctx, gateway.CreateVaultArgs{Name: "work", MasterKey: []byte(testKey)})
		require.NoError(t, err)
		s := NewSession(gw, v)

		gw.hold(OpGetPasswords)
		done := make(chan error, 1)
		go func() { done <- s.Unlock(ctx, []byte(testKey)) }()
		require.NoError(t, gw.waitStarted(OpGetPasswords))
		assert.Equal(t, StateUnlocking, s.State())

		s.Lock()
		gw.release(OpGetPasswords)
		require.ErrorIs(t, <-done, ErrInvalidState)
		assert.Equal(t, StateClosed, s.State())
		assert.Nil(t, s.key)
	})
}

func TestSession_Search(t *testing.T) {
	ctx := context.Background()
	s, gw := newUnlockedSession(t)
	require.NoError(t, s.Add(ctx, "Personal EMAIL account", "a"))
	require.NoError(t, s.Add(ctx, "bank", "b"))
	require.NoError(t, s.Add(ctx, "work email", "c"))
	before := s.Entries()
	reads := gw.callCount(OpGetPasswords)

	tests := []struct {
		name  string
		term  string
		notes []string
	}{
		{"Без учета регистра", "email", []string{"Personal EMAIL account", "work email"}},
		{"Верхний регистр", "BANK", []string{"bank"}},
		{"Пустой запрос", "", []string{"Personal EMAIL account", "bank", "work email"}},
		{"Нет совпадений", "zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := s.Search(tt.term)
			require.NoError(t, err)
			second, err := s.Search(tt.term)
			require.NoError(t, err)
			assert.Equal(t, first, second, "Поиск идемпотентен")

			notes := make([]string, 0, len(first))
			for _, e := range first {
				notes = append(notes, e.Notes)
			}
			assert.Equal(t, tt.notes, notes)
		})
	}

	assert.Equal(t, before, s.Entries(), "Поиск не меняет кэш")
	assert.Equal(t, reads, gw.callCount(OpGetPasswords), "Поиск не обращается к бэкенду")

	t.Run("Заблокированная сессия", func(t *testing.T) {
		locked := NewSession(gw, models.Vault{Name: "work"})
		_, err := locked.Search("x")
		require.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestSession_GatewayPanic(t *testing.T) {
	gw := new(MockGateway)
	gw.On("GetPasswords", context.Background(), gateway.GetPasswordsArgs{
		VaultName: "work", MasterKey: []byte(testKey),
	}).Panic("boom")
	s := NewSession(gw, models.Vault{Name: "work"})

	err := s.Unlock(context.Background(), []byte(testKey))
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeInternal, gwErr.Code)
	assert.Equal(t, StateLocked, s.State())
	assert.False(t, errors.Is(err, ErrDesync))
}
