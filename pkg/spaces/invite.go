package spaces

import (
	"crypto/rand"
	"fmt"
)

// inviteAlphabet is the symbol set for invite codes. 36 symbols at 8
// positions gives ~2.8e12 codes, so collisions among live spaces are
// vanishingly rare and handled by regeneration.
const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteCodeLength is the fixed length of every invite code.
const InviteCodeLength = 8

// maxInviteAttempts bounds collision regeneration before giving up.
const maxInviteAttempts = 10

// generateInviteCode returns a fixed-length opaque token drawn from the
// invite alphabet using crypto/rand. Rejection sampling keeps the symbol
// distribution uniform: 256 is not a multiple of 36, so reducing raw bytes
// modulo the alphabet size would skew toward the first symbols.
func generateInviteCode() (string, error) {
	// Largest multiple of the alphabet size below 256.
	limit := byte(256 - 256%len(inviteAlphabet))

	code := make([]byte, 0, InviteCodeLength)
	buf := make([]byte, InviteCodeLength)
	for len(code) < InviteCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading randomness for invite code: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, inviteAlphabet[int(b)%len(inviteAlphabet)])
			if len(code) == InviteCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// ValidInviteCode reports whether the string is shaped like an invite code.
// Used for argument validation at the transport boundary; the registry
// still matches codes exactly.
func ValidInviteCode(code string) bool {
	if len(code) != InviteCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
