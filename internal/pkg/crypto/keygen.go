package crypto

import (
	"crypto/rand"
	"fmt"
)

// passwordChars contains characters used in generated passwords.
const passwordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GeneratedPasswordLength is the length of passwords produced by GeneratePassword.
const GeneratedPasswordLength = 20

// GeneratePassword generates a random password for accounts created from the CLI.
// Look-alike characters (0/O, 1/l/I) are excluded.
func GeneratePassword() (string, error) {
	return generateRandomString(GeneratedPasswordLength, passwordChars)
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := len(charset)

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	for i := 0; i < length; i++ {
		result[i] = charset[int(randomBytes[i])%charsetLen]
	}

	return string(result), nil
}
