package access

import (
	"strconv"
	"strings"
	"testing"
)

func TestCryptoSourcePinRange(t *testing.T) {
	src := CryptoSource{}
	for i := 0; i < 200; i++ {
		pin, err := src.EmergencyPIN()
		if err != nil {
			t.Fatalf("pin generation failed: %v", err)
		}
		if len(pin) != 6 {
			t.Fatalf("expected 6 digits, got %q", pin)
		}
		n, err := strconv.Atoi(pin)
		if err != nil {
			t.Fatalf("pin not numeric: %q", pin)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("pin out of range: %d", n)
		}
	}
}

func TestCryptoSourceTokenAlphabet(t *testing.T) {
	src := CryptoSource{}
	for i := 0; i < 200; i++ {
		token, err := src.SharingToken()
		if err != nil {
			t.Fatalf("token generation failed: %v", err)
		}
		if len(token) != 12 {
			t.Fatalf("expected 12 chars, got %q", token)
		}
		for _, c := range token {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Fatalf("token %q contains %q outside the alphabet", token, c)
			}
		}
	}
}

func TestFormatToken(t *testing.T) {
	if got := FormatToken("AB12CD34EF56"); got != "AB12-CD34-EF56" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := FormatToken("ABCDE"); got != "ABCD-E" {
		t.Fatalf("unexpected format %q", got)
	}
}
