package auth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// AccessKeyManager issues and verifies guest capability keys. The
// plaintext key is returned to the guest exactly once at ticket creation;
// only the bcrypt hash is stored.
type AccessKeyManager struct {
	cost int
}

// NewAccessKeyManager builds a manager with the given bcrypt cost.
func NewAccessKeyManager(cost int) *AccessKeyManager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AccessKeyManager{cost: cost}
}

// Generate returns a new plaintext access key and its hash.
func (m *AccessKeyManager) Generate() (key string, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	key = hex.EncodeToString(raw)
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), m.cost)
	if err != nil {
		return "", "", err
	}
	return key, string(hashed), nil
}

// Verify reports whether key matches the stored hash.
func (m *AccessKeyManager) Verify(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
