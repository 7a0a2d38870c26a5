package access

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	tokenLength   = 12
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SecretSource produces grant credentials. Injected so tests can pin
// the generated secrets.
type SecretSource interface {
	EmergencyPIN() (string, error)
	SharingToken() (string, error)
}

// CryptoSource draws from crypto/rand. The PIN is uniform over
// 100000-999999; the token is 12 chars over A-Z0-9, uniform per
// character.
type CryptoSource struct{}

func (CryptoSource) EmergencyPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generating emergency pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (CryptoSource) SharingToken() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < tokenLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating sharing token: %w", err)
		}
		sb.WriteByte(tokenAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// FormatToken renders a token in groups of four for manual transcription,
// e.g. AB12-CD34-EF56.
func FormatToken(secret string) string {
	var groups []string
	for i := 0; i < len(secret); i += 4 {
		end := i + 4
		if end > len(secret) {
			end = len(secret)
		}
		groups = append(groups, secret[i:end])
	}
	return strings.ToUpper(strings.Join(groups, "-"))
}
