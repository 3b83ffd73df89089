package lark

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// DecryptEvent decrypts an encrypted event delivery body. The platform's
// scheme: AES-256-CBC with key = SHA256(encrypt key), the IV is the first
// block of the base64-decoded payload, padding is PKCS#7.
func DecryptEvent(encryptKey, payload string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("lark decrypt: base64: %w", err)
	}
	if len(buf) < 2*aes.BlockSize || len(buf)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("lark decrypt: bad ciphertext length %d", len(buf))
	}
	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	iv, ct := buf[:aes.BlockSize], buf[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(plain) {
		return nil, fmt.Errorf("lark decrypt: bad padding")
	}
	return plain[:len(plain)-pad], nil
}
