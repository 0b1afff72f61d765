package services

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"

	minReportTextLength = 10
)

var BannedWords = []string{
	"fuck", "fucking", "fucker", "shit", "shitty", "bullshit",
	"ass", "asshole", "bastard", "bitch", "cunt",
	"nigger", "nigga", "chink", "spic", "kike", "faggot", "fag",
	"retard", "retarded", "tranny",
	"porn", "porno", "nude", "nudes",
}

var SpamPhrases = []string{
	"earn money", "buy now", "click here", "cheap", "discount", "winner", "prize",
	"scam", "phishing", "malware",
}

var ErrSigningKeyTooLong = errors.New("moderation signing key must be at most 64 bytes")

// Verdict is the outcome of screening a report description before it is
// submitted to the ledger.
type Verdict struct {
	Decision  string  `json:"decision"`
	Reason    string  `json:"reason"`
	Message   string  `json:"message,omitempty"`
	Score     float64 `json:"score"`
	Signature string  `json:"signature,omitempty"`
	OracleID  string  `json:"oracle_id,omitempty"`
}

func (v Verdict) Approved() bool { return v.Decision == DecisionApprove }

// ModerationService is a rule-based gate for report text. Approved text is
// signed with a keyed blake2b MAC so the relay can prove it was screened.
type ModerationService struct {
	signingKey          []byte
	oracleID            string
	bannedWordRegexps   []*regexp.Regexp
	urlPattern          *regexp.Regexp
	emailPattern        *regexp.Regexp
	phonePattern        *regexp.Regexp
	nationalIDPattern   *regexp.Regexp
	repeatedCharPattern *regexp.Regexp
	allCapsPattern      *regexp.Regexp
	compiled            bool
	mu                  sync.RWMutex
}

// NewModerationService returns a filter. signingKey may be empty, in which
// case approvals are unsigned; otherwise it must be at most 64 bytes.
func NewModerationService(signingKey []byte) (*ModerationService, error) {
	ms := &ModerationService{signingKey: signingKey}
	if len(signingKey) > 0 {
		if _, err := blake2b.New256(signingKey); err != nil {
			return nil, fmt.Errorf("%w: got %d", ErrSigningKeyTooLong, len(signingKey))
		}
		id := blake2b.Sum256(signingKey)
		ms.oracleID = hex.EncodeToString(id[:8])
	}
	ms.compilePatterns()
	return ms, nil
}

func (ms *ModerationService) compilePatterns() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.compiled {
		return
	}

	ms.bannedWordRegexps = make([]*regexp.Regexp, 0, len(BannedWords))
	for _, word := range BannedWords {
		pattern := `(?i)\b` + regexp.QuoteMeta(word) + `\b`
		re, err := regexp.Compile(pattern)
		if err == nil {
			ms.bannedWordRegexps = append(ms.bannedWordRegexps, re)
		}
	}

	ms.urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+\.\S+|\b[a-z0-9-]+\.com\b)`)
	ms.emailPattern = regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	ms.phonePattern = regexp.MustCompile(`\d{3}[-.\s]?\d{3}[-.\s]?\d{4}|\(\d{3}\)\s*\d{3}[-.\s]?\d{4}|(\+94|\b0)7\d[- ]?\d{7}`)
	ms.nationalIDPattern = regexp.MustCompile(`\b\d{9}[vVxX]\b|\b\d{12}\b`)
	ms.repeatedCharPattern = regexp.MustCompile(`(?i)(a{4,}|b{4,}|c{4,}|d{4,}|e{4,}|f{4,}|g{4,}|h{4,}|i{4,}|j{4,}|k{4,}|l{4,}|m{4,}|n{4,}|o{4,}|p{4,}|q{4,}|r{4,}|s{4,}|t{4,}|u{4,}|v{4,}|w{4,}|x{4,}|y{4,}|z{4,}|!{4,}|\?{4,}|\.{4,})`)
	ms.allCapsPattern = regexp.MustCompile(`[A-Z]{5,}`)
	ms.compiled = true
}

// FilterContent reports whether text passes and, if not, the reason code.
func (ms *ModerationService) FilterContent(text string) (bool, string) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if len(strings.TrimSpace(text)) < minReportTextLength {
		return false, "too_short"
	}
	if ms.emailPattern.MatchString(text) {
		return false, "contact_info_not_allowed"
	}
	if ms.phonePattern.MatchString(text) {
		return false, "contact_info_not_allowed"
	}
	if ms.nationalIDPattern.MatchString(text) {
		return false, "national_id_not_allowed"
	}
	if ms.urlPattern.MatchString(text) {
		return false, "url_not_allowed"
	}
	lower := strings.ToLower(text)
	for _, phrase := range SpamPhrases {
		if strings.Contains(lower, phrase) {
			return false, "spam_detected"
		}
	}
	if ms.repeatedCharPattern.MatchString(text) || hasRepeatedWord(lower, 3) {
		return false, "spam_detected"
	}
	for _, re := range ms.bannedWordRegexps {
		if re.MatchString(text) {
			return false, "inappropriate_language"
		}
	}
	capsMatches := ms.allCapsPattern.FindAllString(text, -1)
	if len(capsMatches) > 2 {
		return false, "excessive_caps"
	}
	return true, ""
}

// hasRepeatedWord reports whether a word of four or more letters occurs n
// times in a row.
func hasRepeatedWord(text string, n int) bool {
	words := strings.Fields(text)
	run := 1
	for i := 1; i < len(words); i++ {
		if len(words[i]) >= 4 && words[i] == words[i-1] {
			run++
			if run >= n {
				return true
			}
			continue
		}
		run = 1
	}
	return false
}

func (ms *ModerationService) ContainsProfanity(text string) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, re := range ms.bannedWordRegexps {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (ms *ModerationService) GetRejectionMessage(reason string) string {
	messages := map[string]string{
		"too_short":                "Please describe the issue in at least a few words.",
		"inappropriate_language":   "Your report contains inappropriate language.",
		"url_not_allowed":          "URLs and web links are not allowed.",
		"contact_info_not_allowed": "Contact information is not allowed. Please remove it for your privacy.",
		"national_id_not_allowed":  "Your report contains a national ID number. Please remove it.",
		"spam_detected":            "Your report appears to be spam.",
		"excessive_caps":           "Please avoid using excessive capital letters.",
	}
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return "Your report does not meet our content guidelines."
}

// Moderate screens text and, on approval, signs it. Score is the confidence
// of the decision: certain rule hits score 1, heuristic ones 0.
func (ms *ModerationService) Moderate(text string) Verdict {
	ok, reason := ms.FilterContent(text)
	if !ok {
		score := 1.0
		if reason == "too_short" || reason == "contact_info_not_allowed" || reason == "national_id_not_allowed" {
			score = 0
		}
		return Verdict{
			Decision: DecisionReject,
			Reason:   reason,
			Message:  ms.GetRejectionMessage(reason),
			Score:    score,
		}
	}

	v := Verdict{Decision: DecisionApprove, Reason: "content_safe", Score: 1}
	if len(ms.signingKey) > 0 {
		v.Signature, v.OracleID = ms.sign(text), ms.oracleID
	}
	return v
}

// sign requires a non-empty key; its length was checked by the constructor.
func (ms *ModerationService) sign(text string) string {
	mac, _ := blake2b.New256(ms.signingKey)
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Moderate for text.
func (ms *ModerationService) VerifySignature(text, signature string) bool {
	if len(ms.signingKey) == 0 {
		return false
	}
	want := ms.sign(text)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}
