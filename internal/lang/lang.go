package lang

import "strings"

// Language identifies one of the program languages. Stored values outside
// this set are treated as the configured default.
type Language string

const (
	English  Language = "en"
	Swahili  Language = "sw"
	Kalenjin Language = "kal"
)

func (l Language) String() string { return string(l) }

// Parse normalizes a language code. It accepts the short codes used on the
// wire plus a few spelled-out aliases seen in USSD registrations.
func Parse(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "eng", "english":
		return English, true
	case "sw", "swa", "kiswahili", "swahili":
		return Swahili, true
	case "kal", "kln", "kalenjin":
		return Kalenjin, true
	default:
		return "", false
	}
}

// ParseOrDefault parses s, falling back to def for anything unknown.
func ParseOrDefault(s string, def Language) Language {
	if l, ok := Parse(s); ok {
		return l
	}
	return def
}

// All lists the supported languages in menu order.
func All() []Language {
	return []Language{English, Swahili, Kalenjin}
}
