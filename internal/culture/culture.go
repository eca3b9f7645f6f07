// Package culture carries the Kalenjin/Bomet maternal nutrition knowledge
// used to ground model prompts and USSD nutrition answers. The table is
// baked into the binary so field deployments have no data files to ship.
package culture

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/mamashield/internal/lang"
)

//go:embed knowledge.yaml
var knowledgeYAML []byte

// blockHeader marks an already-enriched prompt; EnrichPrompt never stacks a
// second block behind it.
const blockHeader = "CULTURAL CONTEXT (Kalenjin/Bomet traditions):"

type foodGroup struct {
	Name      string   `yaml:"name"`
	Items     []string `yaml:"items"`
	Benefits  string   `yaml:"benefits"`
	LocalName string   `yaml:"local_name"`
	Reason    string   `yaml:"reason"`
	Advice    string   `yaml:"advice"`
}

type knowledge struct {
	PromptBlock       string            `yaml:"prompt_block"`
	SensitiveKeywords []string          `yaml:"sensitive_keywords"`
	Phrases           map[string]string `yaml:"phrases"`
	Recommended       []foodGroup       `yaml:"recommended"`
	AvoidedHigh       []foodGroup       `yaml:"avoided_high"`
	AvoidedModerate   []foodGroup       `yaml:"avoided_moderate"`
}

var kb = mustLoad()

func mustLoad() knowledge {
	var k knowledge
	if err := yaml.Unmarshal(knowledgeYAML, &k); err != nil {
		panic(fmt.Sprintf("culture: parse embedded knowledge: %v", err))
	}
	if k.PromptBlock == "" || len(k.SensitiveKeywords) == 0 {
		panic("culture: embedded knowledge incomplete")
	}
	return k
}

// SensitiveTopic reports whether the message touches food, nutrition, or
// tradition, the topics where cultural framing changes the answer.
func SensitiveTopic(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range kb.SensitiveKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// EnrichPrompt appends the cultural-context block to base when the user
// speaks Kalenjin or the message is a sensitive topic. Enriching an already
// enriched prompt is a no-op.
func EnrichPrompt(base string, language lang.Language, userMessage string) string {
	if language != lang.Kalenjin && !SensitiveTopic(userMessage) {
		return base
	}
	if strings.Contains(base, blockHeader) {
		return base
	}
	return base + "\n\n" + kb.PromptBlock
}

// Phrase returns the canned Kalenjin/English phrase for a context such as
// "milk" or "anc"; empty string when the context is unknown.
func Phrase(context string) string {
	return kb.Phrases[context]
}

// FoodAdvice renders the recommended/avoided food summary for the USSD
// nutrition menu.
func FoodAdvice() string {
	var b strings.Builder
	b.WriteString("RECOMMENDED (Kalenjin tradition): ")
	for i, g := range kb.Recommended {
		if i >= 4 {
			break
		}
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(g.LocalName)
		b.WriteString(" - ")
		b.WriteString(g.Benefits)
	}
	b.WriteString(". AVOIDED by tradition: ")
	names := make([]string, 0, len(kb.AvoidedHigh))
	for _, g := range kb.AvoidedHigh {
		names = append(names, strings.ReplaceAll(g.Name, "_", " "))
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(" (elders say: big baby, hard labor). Balance tradition with health - discuss with your CHW.")
	return b.String()
}
