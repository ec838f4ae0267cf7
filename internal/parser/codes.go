package parser

import (
	"regexp"
	"strings"

	"github.com/mixelka/inboxsync/pkg/models"
)

type codeRule struct {
	kind string
	re   *regexp.Regexp
}

// Rules are tried in order; the first rule to claim a value decides its type.
var codeRules = []codeRule{
	{"otp", regexp.MustCompile(`(?i)\b(?:code|otp|pin|passcode|password)\b[\s:\-]*(?:is\s+)?(\d{4,8})\b`)},
	{"verification", regexp.MustCompile(`(?i)(?:verification|verify|confirm(?:ation)?|activation)[\s\w]{0,20}?[\s:\-]+(\d{4,8})\b`)},
	{"security", regexp.MustCompile(`(?i)(?:security|2fa|two[\s-]factor)[\s\w]{0,20}?[\s:\-]+(\d{4,8})\b`)},
	{"code", regexp.MustCompile(`(?m)^\s*(\d{4,8})\s*$`)},
	{"code", regexp.MustCompile(`(?i)\bcode\b[\s:\-]*(?:is\s+)?([A-Z0-9]{5,12})\b`)},
	{"token", regexp.MustCompile(`(?i)\b(?:token|key)\b[\s:\-]*([A-Za-z0-9\-_]{8,32})\b`)},
}

// DetectCodes finds one-time codes in text. Each value is reported once.
func DetectCodes(text string) []models.DetectedCode {
	var found []models.DetectedCode
	seen := make(map[string]struct{})

	for _, rule := range codeRules {
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			value := strings.TrimSpace(m[1])
			if _, dup := seen[value]; dup || !plausibleCode(value) {
				continue
			}
			seen[value] = struct{}{}
			found = append(found, models.DetectedCode{Type: rule.kind, Value: value})
		}
	}
	return found
}

// MessageCodes scans the subject and readable body of msg
func MessageCodes(msg models.Message) []models.DetectedCode {
	body, err := Body(msg)
	if err != nil {
		body = msg.BodyText
	}
	return DetectCodes(msg.Subject + "\n" + body)
}

// plausibleCode rejects values that are letters only, which the
// alphanumeric rules would otherwise pick up from ordinary words
func plausibleCode(v string) bool {
	if len(v) < 4 {
		return false
	}
	return strings.ContainsAny(v, "0123456789")
}
