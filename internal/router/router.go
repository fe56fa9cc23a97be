// Package router decides which backend should answer an utterance.
//
// The decision is a five-phase cascade where earlier phases always win:
// privacy scan, operator override, intent classification, ASR-confidence
// fallback. The fifth phase, escalation, is a separate helper the gateway
// consults after a local answer arrives. Scoring uses fixed additive
// weights so identical input always yields an identical decision.
package router

import (
	"log/slog"
	"regexp"
	"strings"
)

// Intent is the routing outcome for one utterance.
type Intent int

const (
	// ForceLocal pins the query to the local backend with no cloud
	// fallback permitted. Produced by the privacy scan or a local_only
	// operator preference.
	ForceLocal Intent = iota

	// ForceCloud pins the query to the cloud backend (operator preference).
	ForceCloud

	// PreferLocal suggests the local backend; the gateway may still fall
	// back to cloud on failure.
	PreferLocal

	// PreferCloud suggests the cloud backend; the gateway may still fall
	// back to local on failure.
	PreferCloud

	// AskClarification means the transcript is too unreliable to act on;
	// the assistant should ask the user to repeat.
	AskClarification
)

// String returns the snake_case name used in logs.
func (i Intent) String() string {
	switch i {
	case ForceLocal:
		return "force_local"
	case ForceCloud:
		return "force_cloud"
	case PreferLocal:
		return "prefer_local"
	case PreferCloud:
		return "prefer_cloud"
	case AskClarification:
		return "ask_clarification"
	default:
		return "unknown"
	}
}

// Category is the intent-classification outcome from phase 3.
type Category int

const (
	// Uncertain means the heuristics tied or found nothing.
	Uncertain Category = iota

	// SimpleCommand covers short imperative device/lookup commands that a
	// small local model handles well.
	SimpleCommand

	// ComplexGenerative covers long descriptive or generative requests
	// that benefit from the cloud model.
	ComplexGenerative
)

// String returns the snake_case name used in logs.
func (c Category) String() string {
	switch c {
	case SimpleCommand:
		return "simple_command"
	case ComplexGenerative:
		return "complex_generative"
	default:
		return "uncertain"
	}
}

// Preference is the fixed operator routing override.
type Preference string

const (
	// PreferenceAuto lets the cascade decide.
	PreferenceAuto Preference = ""

	// PreferenceLocalOnly pins every query to the local backend.
	PreferenceLocalOnly Preference = "local_only"

	// PreferenceCloudOnly pins every non-private query to the cloud backend.
	PreferenceCloudOnly Preference = "cloud_only"
)

// Decision is the routing intent plus the metadata that produced it.
type Decision struct {
	Intent Intent

	// Phase is the cascade phase (1..4) that short-circuited.
	Phase int

	// Reason is a stable snake_case code, e.g. "pii_detected_credit_card".
	Reason string

	// PrivacyFlagged is true when phase 1 matched. Downstream code must
	// never send the utterance to the cloud backend nor log its text.
	PrivacyFlagged bool

	// Category and Confidence carry the phase 3 classification when it ran.
	Category   Category
	Confidence float64

	WordCount int
}

type piiPattern struct {
	name string
	re   *regexp.Regexp
}

// sensitiveWords force local handling even without a structured PII match.
var sensitiveWords = []string{"heslo", "pin", "kód", "číslo karty", "rodné číslo", "účet"}

// simpleKeywords mark short imperative commands (favor local).
var simpleKeywords = []string{
	"zapni", "vypni", "nastav", "spusť", "zastaviť",
	"čas", "počasí", "alarm", "kde je", "kolik je",
	"otevři", "zavři", "zhasni", "rozsvit",
}

// complexKeywords mark generative or analytical requests (favor cloud).
var complexKeywords = []string{
	"vysvětli", "napiš", "vymysli", "analyzuj", "porovnej",
	"sumarizuj", "shrň", "recept", "jak funguje", "co znamená",
	"proč", "jaký je rozdíl", "vytvoř", "doporuč",
}

// imperativePrefixes earn an extra simple-command weight when the
// utterance opens with them.
var imperativePrefixes = []string{"zapni", "vypni", "nastav", "spusť"}

// placeholderPhrases in a local answer signal a refusal or stub that the
// gateway should escalate to cloud.
var placeholderPhrases = []string{
	"nevím", "nenašel jsem", "nerozumím",
	"nedokážu", "nemohu", "pracuji na implementaci",
	"placeholder",
}

// Router maps an utterance to a routing intent. Construct once; Route is
// pure and safe for concurrent use.
type Router struct {
	preference  Preference
	piiPatterns []piiPattern
}

// New compiles the PII patterns and fixes the operator preference.
func New(preference Preference) *Router {
	return &Router{
		preference: preference,
		// Slice, not map: scan order is part of the deterministic contract.
		piiPatterns: []piiPattern{
			{"rodne_cislo", regexp.MustCompile(`\b\d{6}/\d{3,4}\b`)},
			{"credit_card", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
			{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{"phone", regexp.MustCompile(`\b(\+420)?\s?\d{3}\s?\d{3}\s?\d{3}\b`)},
		},
	}
}

// Route runs the cascade. asrConfidence is the speech-recognition score in
// [0, 1]; sessionContextLen is the conversation length in tokens, recorded
// for diagnostics.
func (r *Router) Route(text string, asrConfidence float64, sessionContextLen int) Decision {
	wordCount := len(strings.Fields(text))

	// Phase 1: privacy scan. A match overrides everything after it,
	// including the operator preference.
	if reason := r.privacyScan(text); reason != "" {
		d := Decision{
			Intent:         ForceLocal,
			Phase:          1,
			Reason:         reason,
			PrivacyFlagged: true,
			WordCount:      wordCount,
		}
		slog.Info("router decision",
			"decision", d.Intent.String(),
			"phase", d.Phase,
			"reason", d.Reason,
			"word_count", wordCount,
			"session_context_len", sessionContextLen)
		return d
	}

	// Phase 2: operator preference.
	switch r.preference {
	case PreferenceLocalOnly:
		return r.decided(Decision{Intent: ForceLocal, Phase: 2, Reason: "user_preference_local", WordCount: wordCount})
	case PreferenceCloudOnly:
		return r.decided(Decision{Intent: ForceCloud, Phase: 2, Reason: "user_preference_cloud", WordCount: wordCount})
	}

	// Phase 3: intent classification.
	category, confidence := classifyIntent(text)

	if category == SimpleCommand && confidence > 0.85 {
		return r.decided(Decision{
			Intent: PreferLocal, Phase: 3, Reason: "simple_command_high_confidence",
			Category: category, Confidence: confidence, WordCount: wordCount,
		})
	}
	if category == ComplexGenerative && confidence > 0.80 {
		return r.decided(Decision{
			Intent: PreferCloud, Phase: 3, Reason: "complex_task_high_confidence",
			Category: category, Confidence: confidence, WordCount: wordCount,
		})
	}

	// Phase 4: fall back to the transcription confidence.
	intent, reason := confidenceFallback(asrConfidence, category)
	return r.decided(Decision{
		Intent: intent, Phase: 4, Reason: reason,
		Category: category, Confidence: confidence, WordCount: wordCount,
	})
}

// ShouldEscalate is phase 5: given the original query and a local answer,
// it reports whether the answer looks like a placeholder/refusal or is
// implausibly short for the query, so the gateway can retry against cloud.
func (r *Router) ShouldEscalate(query, localResponse string) bool {
	responseLower := strings.ToLower(localResponse)
	for _, phrase := range placeholderPhrases {
		if strings.Contains(responseLower, phrase) {
			slog.Info("escalating to cloud", "reason", "placeholder_phrase")
			return true
		}
	}

	queryWords := len(strings.Fields(query))
	responseWords := len(strings.Fields(localResponse))
	if queryWords >= 8 && responseWords < 10 {
		slog.Info("escalating to cloud", "reason", "response_too_short",
			"query_words", queryWords, "response_words", responseWords)
		return true
	}

	return false
}

// privacyScan returns a reason code when the text contains structured PII
// or sensitive vocabulary, empty otherwise. Only the pattern name is ever
// logged.
func (r *Router) privacyScan(text string) string {
	for _, p := range r.piiPatterns {
		if p.re.MatchString(text) {
			slog.Warn("pii detected", "type", p.name)
			return "pii_detected_" + p.name
		}
	}

	textLower := strings.ToLower(text)
	for _, word := range sensitiveWords {
		if strings.Contains(textLower, word) {
			slog.Warn("sensitive keyword detected", "keyword", word)
			return "sensitive_keyword_" + word
		}
	}

	return ""
}

// classifyIntent scores the utterance toward simple-command or
// complex-generative with fixed additive weights.
func classifyIntent(text string) (Category, float64) {
	textLower := strings.ToLower(text)
	wordCount := len(strings.Fields(textLower))

	var simpleScore, complexScore float64

	// Length: short utterances are usually commands, long ones prose.
	if wordCount <= 4 {
		simpleScore += 0.3
	} else if wordCount >= 10 {
		complexScore += 0.3
	}

	// Keyword hit counts once per side.
	for _, kw := range simpleKeywords {
		if strings.Contains(textLower, kw) {
			simpleScore += 0.4
			break
		}
	}
	for _, kw := range complexKeywords {
		if strings.Contains(textLower, kw) {
			complexScore += 0.5
			break
		}
	}

	// A long question reads as generative.
	if strings.Contains(text, "?") && wordCount > 6 {
		complexScore += 0.2
	}

	// Verb-first imperative phrasing.
	for _, prefix := range imperativePrefixes {
		if strings.HasPrefix(text, prefix) {
			simpleScore += 0.3
			break
		}
	}

	// Multiple sentences lean complex.
	sentenceCount := strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!")
	if sentenceCount > 1 {
		complexScore += 0.2
	}

	switch {
	case simpleScore > complexScore:
		return SimpleCommand, min(0.95, 0.5+simpleScore)
	case complexScore > simpleScore:
		return ComplexGenerative, min(0.95, 0.5+complexScore)
	default:
		return Uncertain, 0.5
	}
}

// confidenceFallback resolves an inconclusive classification using the
// speech-recognition confidence. The 0.75 threshold marks a reliable
// transcript; below 0.5 the assistant asks the user to repeat; the band
// between routes to cloud, which tolerates noisy transcripts better.
func confidenceFallback(asrConfidence float64, category Category) (Intent, string) {
	if asrConfidence >= 0.75 {
		if category == SimpleCommand {
			return PreferLocal, "high_asr_confidence_simple"
		}
		return PreferCloud, "high_asr_confidence_complex"
	}
	if asrConfidence < 0.5 {
		return AskClarification, "low_asr_confidence"
	}
	return PreferCloud, "medium_asr_confidence_use_cloud"
}

// decided logs and returns the final decision.
func (r *Router) decided(d Decision) Decision {
	slog.Info("router decision",
		"decision", d.Intent.String(),
		"phase", d.Phase,
		"reason", d.Reason,
		"category", d.Category.String(),
		"confidence", d.Confidence)
	return d
}
