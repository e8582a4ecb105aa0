package auth

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// GenerateApiKey mints a new plaintext API key and its bcrypt-hashed,
// prefix-indexed storage form. The plaintext is returned exactly once;
// the caller must hand it to the user and never persist it.
func GenerateApiKey() (plaintext, prefix, hash string, err error) {
	plaintext = "jfk_" + randomToken(32)
	prefix = plaintext[:models.ApiKeyPrefixLen]

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", apperr.Fatal("failed to hash api key", err)
	}
	return plaintext, prefix, string(hashed), nil
}

// VerifyApiKey compares a candidate plaintext key against one of the
// rows sharing its prefix, returning the matching row or
// apperr.KindUnauthenticated.
func VerifyApiKey(candidate string, candidates []*models.ApiKey) (*models.ApiKey, error) {
	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(candidate)) == nil {
			return k, nil
		}
	}
	return nil, apperr.Unauthenticated("invalid api key")
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failing means the platform is broken
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
}
