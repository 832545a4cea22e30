package kdbx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Параметры генерации секрета для записей, добавленных без пароля.
const (
	generatedMinLength = 12
	generatedMaxLength = 20 // не включительно
)

//nolint:gochecknoglobals // Неизменяемые наборы символов
var passwordClasses = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"0123456789",
	"!@#$%^&*()-_=+[]{};:,.<>?",
}

// GeneratePassword создает случайный пароль длиной от 12 до 19 символов,
// в котором есть хотя бы по одному символу каждого класса.
func GeneratePassword() (string, error) {
	extra, err := randIndex(generatedMaxLength - generatedMinLength)
	if err != nil {
		return "", err
	}
	length := generatedMinLength + extra

	buf := make([]byte, 0, length)
	for _, class := range passwordClasses {
		ch, pickErr := pick(class)
		if pickErr != nil {
			return "", pickErr
		}
		buf = append(buf, ch)
	}
	all := strings.Join(passwordClasses, "")
	for len(buf) < length {
		ch, pickErr := pick(all)
		if pickErr != nil {
			return "", pickErr
		}
		buf = append(buf, ch)
	}

	// Перемешиваем, чтобы обязательные символы не стояли в начале
	for i := len(buf) - 1; i > 0; i-- {
		j, shuffleErr := randIndex(i + 1)
		if shuffleErr != nil {
			return "", shuffleErr
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func pick(alphabet string) (byte, error) {
	i, err := randIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("ошибка генератора случайных чисел: %w", err)
	}
	return int(v.Int64()), nil
}
