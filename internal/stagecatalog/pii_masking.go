package stagecatalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// piiPatterns maps a catalogue name to the regexp it masks. "all" expands
// to every pattern below on each ProcessChunk call rather than being
// matched literally.
var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"phone":       regexp.MustCompile(`\b\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
}

// PIIMaskingStage implements the PII masking entry of the stage catalogue.
// It is explicitly Non-reversible: masking destroys the original bytes, so
// Reverse is rejected before any chunk is touched via NotReversibleError,
// matching the contract every other stage's IsReversible() advertises
// honestly.
//
// Built from stdlib regexp, kept deliberately plain and sparsely
// commented like this package's other smaller stage implementations.
type PIIMaskingStage struct{}

// NewPIIMaskingStage constructs the PII masking stage implementation.
func NewPIIMaskingStage() *PIIMaskingStage { return &PIIMaskingStage{} }

func (s *PIIMaskingStage) Position() stage.StagePosition { return stage.PreBinary }
func (s *PIIMaskingStage) IsReversible() bool             { return false }
func (s *PIIMaskingStage) StageType() stage.StageType     { return stage.StageTypeTransform }

func (s *PIIMaskingStage) ProcessChunk(chunk domain.FileChunk, cfg stage.Configuration, ctx *domain.ProcessingContext) (domain.FileChunk, error) {
	if cfg.Operation == stage.Reverse {
		return domain.FileChunk{}, &stage.NotReversibleError{StageName: "pii_masking"}
	}

	maskChar := cfg.ParamOrDefault("mask_char", "*")
	preserveFormat := cfg.ParamOrDefault("preserve_format", "false") == "true"
	patternNames := strings.Split(cfg.ParamOrDefault("patterns", "all"), ",")

	text := string(chunk.Data)
	matched := 0
	for _, name := range resolvePatternNames(patternNames) {
		re, ok := piiPatterns[strings.TrimSpace(name)]
		if !ok {
			return domain.FileChunk{}, fmt.Errorf("pii_masking: unknown pattern %q", name)
		}
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			matched++
			if preserveFormat {
				return maskPreservingFormat(match, maskChar)
			}
			return strings.Repeat(maskChar, len(match))
		})
	}

	if ctx != nil {
		ctx.SetMetadata("pii_matches_masked", fmt.Sprintf("%d", matched))
	}

	return chunk.WithPayload([]byte(text)), nil
}

func resolvePatternNames(requested []string) []string {
	for _, r := range requested {
		if strings.TrimSpace(r) == "all" {
			return []string{"email", "ssn", "phone", "credit_card"}
		}
	}
	return requested
}

// maskPreservingFormat replaces only alphanumeric runes so separators
// (dashes, dots, parentheses) remain visible in the masked output.
func maskPreservingFormat(match, maskChar string) string {
	var b strings.Builder
	for _, r := range match {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteString(maskChar)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
