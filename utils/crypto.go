package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey выводит из секрета ключ длины length для назначения purpose (HKDF-SHA256).
// Разные назначения дают независимые ключи из одного секрета.
func DeriveKey(secret []byte, purpose string, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %v", err)
	}
	return key, nil
}

// SignPayload создает HMAC-SHA256 для данных в base64
func SignPayload(data []byte, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifyPayload проверяет подпись за постоянное время
func VerifyPayload(data []byte, signature string, key []byte) bool {
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return hmac.Equal(expected, h.Sum(nil))
}
