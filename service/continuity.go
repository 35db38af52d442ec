package service

import (
	"fmt"
	"strings"

	"SpotFactory-server/models"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// descriptionSimilarityThreshold: below this token overlap two descriptions
// of the same element type are treated as drifted.
const descriptionSimilarityThreshold = 0.3

const continuityMarker = "[CONTINUITY:"

type ContinuityWarning struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Element  string `json:"element"`
}

// ContinuityReport is advisory only: it annotates production, it never
// gates it.
type ContinuityReport struct {
	IsValid     bool                `json:"is_valid"`
	Warnings    []ContinuityWarning `json:"warnings"`
	Suggestions []string            `json:"suggestions"`
}

// ValidateContinuity compares the tracked elements of two consecutive frame
// analyses. For every element type present in the previous scene: absence in
// the current scene is a high-severity warning, a drifted description is a
// medium one. IsValid is true iff no high-severity warning exists.
// Deterministic and side-effect free.
func ValidateContinuity(previous, current []models.TrackedElement) ContinuityReport {
	report := ContinuityReport{IsValid: true}

	for _, prev := range previous {
		match, found := findByType(current, prev.Type)
		if !found {
			report.Warnings = append(report.Warnings, ContinuityWarning{
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("element %q absent in current scene", prev.Type),
				Element:  prev.Type,
			})
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("reintroduce %s with consistent description: %s", prev.Type, prev.Description))
			continue
		}
		if tokenOverlap(prev.Description, match.Description) < descriptionSimilarityThreshold {
			report.Warnings = append(report.Warnings, ContinuityWarning{
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("element %q drifted: %q -> %q", prev.Type, prev.Description, match.Description),
				Element:  prev.Type,
			})
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("keep %s consistent with previous scene: %s", prev.Type, prev.Description))
		}
	}

	for _, w := range report.Warnings {
		if w.Severity == SeverityHigh {
			report.IsValid = false
			break
		}
	}
	return report
}

func findByType(elements []models.TrackedElement, typ string) (models.TrackedElement, bool) {
	for _, e := range elements {
		if strings.EqualFold(e.Type, typ) {
			return e, true
		}
	}
	return models.TrackedElement{}, false
}

// tokenOverlap is a Jaccard index over lowercase whitespace tokens.
func tokenOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[strings.Trim(tok, ".,;:!?()")] = struct{}{}
	}
	delete(set, "")
	return set
}

// WithContinuity prefixes a generation prompt with the previous scene's
// continuity suggestion. Idempotent: a prompt that already carries a
// continuity marker is returned unchanged.
func WithContinuity(prompt, suggestion string) string {
	if suggestion == "" {
		return prompt
	}
	if strings.HasPrefix(strings.TrimSpace(prompt), continuityMarker) {
		return prompt
	}
	return fmt.Sprintf("%s %s] %s", continuityMarker, suggestion, prompt)
}

// ComposeScenePrompt folds the optimized fields into the single instruction
// string handed to the clip generator.
func ComposeScenePrompt(opt *OptimizedPrompt, scene *models.Scene) string {
	var b strings.Builder
	b.WriteString(opt.Action)
	if opt.Dialogue != "" {
		fmt.Fprintf(&b, `. Dialogue: "%s"`, opt.Dialogue)
	}
	if opt.Emotion != "" {
		fmt.Fprintf(&b, ". Mood: %s", opt.Emotion)
	}
	if scene.CameraMovement != "" {
		fmt.Fprintf(&b, ". Camera: %s", scene.CameraMovement)
	}
	if scene.Lighting != "" {
		fmt.Fprintf(&b, ". Lighting: %s", scene.Lighting)
	}
	if len(opt.Keywords) > 0 {
		fmt.Fprintf(&b, ". %s", strings.Join(opt.Keywords, ", "))
	}
	return b.String()
}
