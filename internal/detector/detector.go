package detector

import (
	"regexp"
	"strings"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

// Pattern classifier for the decoy portal. All functions are pure and
// side-effect free: they inspect user-supplied bytes and yield attack-signal
// tags, never touching storage and never failing on malformed input.

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`'|\\'|;|--|\||/\*|\*/|#`),
	regexp.MustCompile(`(?i)\b(union|select|insert|delete|update|drop|create|alter|exec|execute)\b`),
	regexp.MustCompile(`(?i)'.*\b(or|and)\b.*=.*`),
	regexp.MustCompile(`(?i)\b(or|and)\b\s+\d+\s*=\s*\d+`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script\b`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)<img[^>]*onerror`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<svg[^>]*onload`),
	regexp.MustCompile(`(?i)document\.cookie`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)alert\(`),
}

// maliciousExtensions are matched as substrings of the lowercased filename,
// not as suffixes, so "shell.php.pdf" is still flagged. Suffix matching
// would miss double-extension smuggling, which is exactly what the decoy
// wants to record.
var maliciousExtensions = []string{".exe", ".bat", ".cmd", ".scr", ".php", ".jsp", ".asp"}

// ClassifyText inspects a user-supplied string and returns the set of attack
// tags it matches. An input can carry several tags at once; an empty input
// carries none.
func ClassifyText(input string) []models.EventKind {
	if input == "" {
		return nil
	}

	var tags []models.EventKind
	if matchesAny(sqlPatterns, input) {
		tags = append(tags, models.EventSQLInjectionAttempt)
	}
	if matchesAny(xssPatterns, input) {
		tags = append(tags, models.EventXSSAttempt)
	}
	return tags
}

// ClassifyFilename inspects upload metadata. The declared MIME type and size
// are recorded by the caller but deliberately ignored here: attackers lie
// about both.
func ClassifyFilename(name, declaredMIME string, size int64) []models.EventKind {
	if name == "" {
		return nil
	}

	lower := strings.ToLower(name)
	for _, ext := range maliciousExtensions {
		if strings.Contains(lower, ext) {
			return []models.EventKind{models.EventMaliciousFileUpload}
		}
	}
	return nil
}

// HasQuote reports whether the input contains a quote character. The decoy
// login flow uses this cheaper check on credential fields, mirroring the
// portal's behavior of flagging quoted usernames and passwords separately
// from full classification.
func HasQuote(input string) bool {
	return strings.ContainsAny(input, `'"`)
}

func matchesAny(patterns []*regexp.Regexp, input string) bool {
	for _, p := range patterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}
