package triage

import (
	"strings"
	"testing"

	"github.com/ent0n29/mamashield/internal/lang"
)

const testDisclaimer = "Not a diagnosis. Consult your clinic."

func TestDetectEnglishKeywords(t *testing.T) {
	d := NewDetector("1195", testDisclaimer)
	cases := []string{
		"I have bleeding since morning",
		"SEVERE PAIN in my belly",
		"my vision is blurred vision today",
		"baby has reduced fetal movement",
	}
	for _, text := range cases {
		danger, msg := d.Detect(text, lang.English)
		if !danger {
			t.Fatalf("Detect(%q) = false, want true", text)
		}
		if !strings.Contains(msg, "1195") {
			t.Fatalf("warning missing emergency number: %q", msg)
		}
		if !strings.Contains(msg, testDisclaimer) {
			t.Fatalf("warning missing disclaimer: %q", msg)
		}
	}
}

func TestDetectSwahiliKeywords(t *testing.T) {
	d := NewDetector("1195", testDisclaimer)
	danger, _ := d.Detect("nina maumivu makali tumboni", lang.Swahili)
	if !danger {
		t.Fatalf("Detect(sw danger text) = false, want true")
	}
	danger, _ = d.Detect("naona damu", lang.Swahili)
	if !danger {
		t.Fatalf("Detect(damu) = false, want true")
	}
}

func TestDetectKalenjinKeywords(t *testing.T) {
	d := NewDetector("1195", testDisclaimer)
	danger, _ := d.Detect("baby not moving since jana", lang.Kalenjin)
	if !danger {
		t.Fatalf("Detect(kal danger text) = false, want true")
	}
}

func TestDetectNoDanger(t *testing.T) {
	d := NewDetector("1195", testDisclaimer)
	danger, msg := d.Detect("what should I eat this week?", lang.English)
	if danger {
		t.Fatalf("Detect(benign text) = true, want false")
	}
	if msg != "" {
		t.Fatalf("message = %q, want empty", msg)
	}
}

func TestDetectUnknownLanguageUsesEnglish(t *testing.T) {
	d := NewDetector("1195", testDisclaimer)
	danger, _ := d.Detect("I have a fever", lang.Language("fr"))
	if !danger {
		t.Fatalf("unknown language should fall back to English keywords")
	}
}

func TestDetectCustomEmergencyNumber(t *testing.T) {
	d := NewDetector("999", "")
	_, msg := d.Detect("convulsions", lang.English)
	if !strings.Contains(msg, "999") {
		t.Fatalf("warning missing configured number: %q", msg)
	}
	if strings.HasSuffix(msg, " ") {
		t.Fatalf("trailing space with empty disclaimer: %q", msg)
	}
}
