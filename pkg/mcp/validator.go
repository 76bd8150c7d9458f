package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"llmrelay/pkg/llmerrors"
)

// ValidationConfig configures a Validator. Grounded on
// original_source/src/mcp/validation.rs's ValidationConfig.
type ValidationConfig struct {
	MaxInputSize        int
	MaxNestingDepth      int
	AllowJavaScript      bool
	AllowHTML            bool
	AllowSQL             bool
	ForbiddenPatterns    []string
	RateLimitPerMinute   int
}

// DefaultValidationConfig matches original_source/src/mcp/validation.rs's
// Default impl.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxInputSize:       1024 * 1024,
		MaxNestingDepth:     10,
		AllowJavaScript:     false,
		AllowHTML:           false,
		AllowSQL:            false,
		ForbiddenPatterns: []string{
			`<script.*?>.*?</script>`,
			`javascript:`,
			`data:text/html`,
			`eval\s*\(`,
			`exec\s*\(`,
		},
		RateLimitPerMinute: 100,
	}
}

var jsPatterns = compileAll([]string{
	`<script`, `javascript:`, `eval\s*\(`, `setTimeout\s*\(`, `setInterval\s*\(`,
	`Function\s*\(`, `alert\s*\(`, `document\.`, `window\.`,
})

var htmlPatterns = compileAll([]string{
	`<[^>]+>`, `&[a-zA-Z]+;`, `&#\d+;`, `&#x[0-9a-fA-F]+;`,
})

var sqlPatterns = compileAll([]string{
	`(?i)\bunion\s+select\b`, `(?i)\bselect\s+.*\bfrom\b`, `(?i)\binsert\s+into\b`,
	`(?i)\bdelete\s+from\b`, `(?i)\bdrop\s+table\b`, `(?i)--\s*`, `(?i)/\*.*\*/`,
	`(?i)\bor\s+1\s*=\s*1\b`, `(?i)\band\s+1\s*=\s*1\b`, `(?i)';.*--`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, content string) bool {
	for _, p := range patterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// Validator checks tool-call arguments for size, nesting depth, forbidden
// content, and per-client rate limits, per SPEC_FULL §4.H.1. Grounded on
// original_source/src/mcp/validation.rs's InputValidator.
type Validator struct {
	cfg      ValidationConfig
	patterns []*regexp.Regexp

	mu          sync.Mutex
	rateWindows map[string][]time.Time
}

// NewValidator compiles cfg's forbidden patterns and returns a ready
// Validator.
func NewValidator(cfg ValidationConfig) *Validator {
	if cfg.MaxInputSize <= 0 {
		cfg.MaxInputSize = 1024 * 1024
	}
	if cfg.MaxNestingDepth <= 0 {
		cfg.MaxNestingDepth = 10
	}
	return &Validator{
		cfg:         cfg,
		patterns:    compileAll(cfg.ForbiddenPatterns),
		rateWindows: make(map[string][]time.Time),
	}
}

// ValidateToolInput runs the full validation sequence for one tool call.
// An empty clientID skips the rate-limit check.
func (v *Validator) ValidateToolInput(toolName string, arguments map[string]any, clientID string) error {
	if clientID != "" {
		if err := v.checkRateLimit(clientID); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(arguments)
	if err != nil {
		return llmerrors.NewWithCause(llmerrors.KindValidation, err, "failed to serialize arguments for tool "+toolName)
	}
	if len(raw) > v.cfg.MaxInputSize {
		return llmerrors.New(llmerrors.KindValidation,
			fmt.Sprintf("input too large: %d bytes exceeds limit of %d bytes", len(raw), v.cfg.MaxInputSize))
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return llmerrors.NewWithCause(llmerrors.KindValidation, err, "invalid JSON arguments for tool "+toolName)
	}
	if err := v.validateNesting(decoded, 0); err != nil {
		return err
	}

	return v.validateContent(string(raw))
}

func (v *Validator) checkRateLimit(clientID string) error {
	now := time.Now()
	minuteAgo := now.Add(-60 * time.Second)

	v.mu.Lock()
	defer v.mu.Unlock()

	window := v.rateWindows[clientID]
	kept := window[:0]
	for _, t := range window {
		if t.After(minuteAgo) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= v.cfg.RateLimitPerMinute {
		v.rateWindows[clientID] = kept
		return llmerrors.New(llmerrors.KindValidation, "rate limit exceeded for client "+clientID)
	}

	v.rateWindows[clientID] = append(kept, now)
	return nil
}

func (v *Validator) validateNesting(value any, depth int) error {
	if depth > v.cfg.MaxNestingDepth {
		return llmerrors.New(llmerrors.KindValidation,
			fmt.Sprintf("JSON nesting depth %d exceeds maximum of %d", depth, v.cfg.MaxNestingDepth))
	}
	switch t := value.(type) {
	case map[string]any:
		for _, v2 := range t {
			if err := v.validateNesting(v2, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, v2 := range t {
			if err := v.validateNesting(v2, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) validateContent(content string) error {
	for i, p := range v.patterns {
		if p.MatchString(content) {
			return llmerrors.New(llmerrors.KindValidation, "forbidden content detected: "+v.cfg.ForbiddenPatterns[i])
		}
	}

	if !v.cfg.AllowJavaScript && anyMatch(jsPatterns, strings.ToLower(content)) {
		return llmerrors.New(llmerrors.KindValidation, "javascript content not allowed")
	}
	if !v.cfg.AllowHTML && anyMatch(htmlPatterns, content) {
		return llmerrors.New(llmerrors.KindValidation, "html content not allowed")
	}
	if !v.cfg.AllowSQL && anyMatch(sqlPatterns, content) {
		return llmerrors.New(llmerrors.KindValidation, "potential SQL injection detected")
	}
	return nil
}

// Sanitize applies HTML tag removal, entity escaping, whitespace
// normalization, and truncation, for callers that opt into sanitization
// before validation per §4.H.1.
func Sanitize(input string, maxLen int) string {
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;",
	).Replace(input)
	input = whitespacePattern.ReplaceAllString(input, " ")
	input = strings.TrimSpace(input)
	if maxLen > 0 && len(input) > maxLen {
		input = input[:maxLen]
	}
	return input
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)
