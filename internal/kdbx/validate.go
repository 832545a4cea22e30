package kdbx

import (
	"bytes"
	"strings"

	"github.com/maynagashev/pawnvault/internal/gateway"
)

// Ограничения на имя хранилища и мастер-ключ.
const (
	masterKeyMinLength = 12
	vaultNameMaxLength = 128
)

// validateName проверяет, что имя хранилища годится как имя файла.
// Имя должно быть уже очищено от пробелов по краям.
func validateName(name string) error {
	switch {
	case name == "":
		return gateway.Errorf(gateway.CodeInvalidName, "имя хранилища не может быть пустым")
	case len([]rune(name)) > vaultNameMaxLength:
		return gateway.Errorf(gateway.CodeInvalidName, "имя хранилища длиннее %d символов", vaultNameMaxLength)
	case name == "." || name == "..":
		return gateway.Errorf(gateway.CodeInvalidName, "недопустимое имя хранилища: '%s'", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return gateway.Errorf(gateway.CodeInvalidName, "имя хранилища не может содержать разделители пути")
	}
	return nil
}

// validateMasterKey проверяет подтверждение и стойкость мастер-ключа.
func validateMasterKey(masterKey, confirmMasterKey []byte) error {
	if !bytes.Equal(masterKey, confirmMasterKey) {
		return gateway.Errorf(gateway.CodeKeyMismatch, "подтверждение мастер-ключа не совпадает")
	}
	if len(bytes.TrimSpace(masterKey)) != len(masterKey) {
		return gateway.Errorf(gateway.CodeWeakKey, "мастер-ключ не должен начинаться или заканчиваться пробелом")
	}
	if len([]rune(string(masterKey))) < masterKeyMinLength {
		return gateway.Errorf(gateway.CodeWeakKey, "мастер-ключ должен быть не короче %d символов", masterKeyMinLength)
	}
	return nil
}

// validateNewMasterKey дополнительно требует, чтобы новый ключ отличался от старого.
func validateNewMasterKey(oldMasterKey, newMasterKey, confirmNewMasterKey []byte) error {
	if bytes.Equal(oldMasterKey, newMasterKey) {
		return gateway.Errorf(gateway.CodeSameKey, "новый мастер-ключ совпадает с текущим")
	}
	return validateMasterKey(newMasterKey, confirmNewMasterKey)
}
