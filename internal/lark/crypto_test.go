package lark

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encryptEvent builds a ciphertext the way the platform does: PKCS#7 pad,
// AES-256-CBC with key = SHA256(encrypt key), IV prepended, base64.
func encryptEvent(t *testing.T, encryptKey string, plain []byte) string {
	t.Helper()
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	buf := make([]byte, aes.BlockSize+len(padded))
	_, err = rand.Read(buf[:aes.BlockSize])
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, buf[:aes.BlockSize]).CryptBlocks(buf[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(buf)
}

func TestDecryptEvent_RoundTrip(t *testing.T) {
	plain := []byte(`{"challenge":"c0ffee","type":"url_verification"}`)
	got, err := DecryptEvent("kudo-key", encryptEvent(t, "kudo-key", plain))
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptEvent_WrongKey(t *testing.T) {
	payload := encryptEvent(t, "right-key", []byte(`{"type":"url_verification"}`))
	got, err := DecryptEvent("wrong-key", payload)
	// 错误的 key 要么解出垃圾填充报错，要么解出非 JSON 的乱码。
	if err == nil {
		assert.NotContains(t, string(got), "url_verification")
	}
}

func TestDecryptEvent_BadInput(t *testing.T) {
	_, err := DecryptEvent("k", "not base64!!")
	assert.Error(t, err)

	// 合法 base64 但长度不足一个 IV + 一个块。
	_, err = DecryptEvent("k", base64.StdEncoding.EncodeToString(make([]byte, aes.BlockSize)))
	assert.Error(t, err)

	// 长度不是块大小的整数倍。
	_, err = DecryptEvent("k", base64.StdEncoding.EncodeToString(make([]byte, 2*aes.BlockSize+1)))
	assert.Error(t, err)
}
