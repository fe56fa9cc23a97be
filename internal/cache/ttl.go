package cache

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// TTLForever marks an entry that never expires.
const TTLForever time.Duration = -1

// Classifier decides how long an answer to a given query stays valid.
// A zero TTL means the answer must not be cached at all.
type Classifier interface {
	TTL(query string) time.Duration
}

// arithmetic like "2+2" or "15 * 3" never goes stale
var mathPattern = regexp.MustCompile(`\d+\s*[\+\-\*\/]\s*\d+`)

// Keyword tables pair Czech and English vocabulary since the assistant
// answers in Czech but users mix languages freely.
var (
	timeKeywords    = []string{"čas", "hodin", "času", "hodina", "time", "clock", "teď", "nyní", "now", "aktuální", "current"}
	weatherKeywords = []string{"počasí", "weather", "teplota", "temperature", "prší", "rain", "sněží", "snow", "slunce", "sun"}
	dateKeywords    = []string{"dnes", "today", "zítra", "tomorrow", "včera", "yesterday", "kdy", "when", "datum", "date"}
	factualKeywords = []string{"kdo", "who", "co je", "what is", "jak se", "how", "proč", "why", "kde je", "where", "napsal", "wrote", "objevil", "discovered", "hlavní město", "capital"}
)

// QueryClassifier is the default content-aware TTL policy. Volatile topics
// (time of day) expire fast, stable facts live for an hour, arithmetic is
// kept forever, and anything conversational is not cached.
type QueryClassifier struct{}

// NewQueryClassifier returns the default classifier.
func NewQueryClassifier() *QueryClassifier {
	return &QueryClassifier{}
}

// TTL classifies the query. Weather runs before time-of-day because two
// time keywords hide inside weather vocabulary as substrings ("čas" in
// "počasí", "now" in "snow"); time-of-day runs before date so "kolik je
// hodin dnes" keeps the 30 second TTL.
func (c *QueryClassifier) TTL(query string) time.Duration {
	q := strings.ToLower(strings.TrimSpace(query))

	if mathPattern.MatchString(q) {
		return TTLForever
	}
	if containsAny(q, weatherKeywords) {
		return 30 * time.Minute
	}
	if containsAny(q, timeKeywords) {
		return 30 * time.Second
	}
	if containsAny(q, dateKeywords) {
		return 5 * time.Minute
	}
	if containsAny(q, factualKeywords) {
		return time.Hour
	}
	if strings.Contains(q, "?") && utf8.RuneCountInString(q) > 10 {
		return 30 * time.Minute
	}
	return 0
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
