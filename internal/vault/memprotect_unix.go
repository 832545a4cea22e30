//go:build linux || darwin

package vault

import "golang.org/x/sys/unix"

// lockMemory запрещает выгрузку страниц с ключом в swap.
// Ошибка игнорируется: процессу может не хватать прав (CAP_IPC_LOCK, RLIMIT_MEMLOCK).
func lockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Mlock(b)
}

// unlockMemory снимает блокировку страниц, установленную lockMemory.
func unlockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}

// DisableCoreDumps обнуляет RLIMIT_CORE, чтобы ключи не попали в дамп памяти.
func DisableCoreDumps() {
	_ = unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0})
}
