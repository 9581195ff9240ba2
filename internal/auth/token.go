package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// ambiguous maps look-alike characters to ones that read unambiguously.
var ambiguous = strings.NewReplacer("l", "s", "I", "x", "O", "y", "0", "z")

// FriendlyToken returns an n-character URL-safe random string drawn from
// crypto/rand, with l, I, O and 0 swapped for s, x, y and z.
//
// OAuth-created accounts get a FriendlyToken(20) as their initial password
// so the password column is never empty and never guessable.
func FriendlyToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("auth: friendly token length must be positive, got %d", n)
	}

	// 3 random bytes encode to 4 characters.
	buf := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: reading random bytes: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return ambiguous.Replace(token)[:n], nil
}
