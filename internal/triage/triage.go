// Package triage screens inbound messages for maternal danger signs before
// any model call. Keyword matching is deliberately blunt: a false positive
// costs one clinic referral, a false negative can cost a life.
package triage

import (
	"fmt"
	"strings"

	"github.com/ent0n29/mamashield/internal/lang"
)

var (
	enKeywords = []string{
		"bleeding", "severe pain", "headache", "swelling",
		"blurred vision", "convulsions", "fever", "reduced fetal movement",
	}
	swKeywords = []string{
		"damu", "maumivu makali", "kichwa", "uvimbe",
		"kuona giza", "mshtuko", "homa", "mtoto ashangaa",
	}
	// Kalenjin speakers in Bomet mix English and Kiswahili terms.
	kalKeywords = []string{
		"bleeding", "damu", "pain makali", "kichwa kuuma",
		"swelling", "vision", "convulsions", "homa", "baby not moving",
	}
)

// Detector flags danger signs and renders the warning reply.
type Detector struct {
	EmergencyNumber string
	Disclaimer      string
}

func NewDetector(emergencyNumber, disclaimer string) Detector {
	if strings.TrimSpace(emergencyNumber) == "" {
		emergencyNumber = "1195"
	}
	return Detector{EmergencyNumber: emergencyNumber, Disclaimer: disclaimer}
}

// Detect reports whether text contains a danger-sign keyword for the given
// language and, when it does, the warning message to send back. Matching is
// case-insensitive substring, first hit wins.
func (d Detector) Detect(text string, language lang.Language) (bool, string) {
	lowered := strings.ToLower(text)
	for _, kw := range keywordsFor(language) {
		if strings.Contains(lowered, kw) {
			return true, d.warning()
		}
	}
	return false, ""
}

func (d Detector) warning() string {
	msg := fmt.Sprintf("Danger sign detected! Go to clinic NOW or call %s.", d.EmergencyNumber)
	if d.Disclaimer != "" {
		msg += " " + d.Disclaimer
	}
	return msg
}

func keywordsFor(language lang.Language) []string {
	switch language {
	case lang.Kalenjin:
		return kalKeywords
	case lang.Swahili:
		return swKeywords
	default:
		return enKeywords
	}
}
