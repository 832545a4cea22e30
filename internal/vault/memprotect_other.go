//go:build !linux && !darwin

package vault

func lockMemory(_ []byte) {}

func unlockMemory(_ []byte) {}

// DisableCoreDumps на этой платформе ничего не делает.
func DisableCoreDumps() {}
