package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)

// HashPhone derives the storage key for a phone number. Raw numbers are
// never written to the database or logs; the hex SHA-256 digest is the only
// durable identifier.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(phone)))
	return hex.EncodeToString(sum[:])
}

// MaskPhone keeps only the last four digits, the most a CHW alert or log
// line may carry.
func MaskPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) < 4 {
		return "****"
	}
	return string(digits[len(digits)-4:])
}

// Scrub masks phone-number shaped runs inside free text before it is
// forwarded to CHWs or recorded in metric details.
func Scrub(input string) (string, bool) {
	out := phonePattern.ReplaceAllString(input, "[number removed]")
	return out, out != input
}
