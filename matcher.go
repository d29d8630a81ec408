package main

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	wildcardKeyword = "*"

	// keywordMatchTimeout bounds a single regex evaluation; user-written
	// patterns run on a backtracking engine.
	keywordMatchTimeout = 100 * time.Millisecond

	// maxCompiledKeywords caps the compile memo; edits through the rule
	// editor leave old keywords behind.
	maxCompiledKeywords = 1024
)

type compiledKeyword struct {
	re  *regexp2.Regexp
	err error
}

// keywords memoizes compiled rule keywords, failures included. A compiled
// regexp2.Regexp is safe for concurrent matching.
var keywords = struct {
	sync.RWMutex
	byText map[string]compiledKeyword
}{byText: make(map[string]compiledKeyword)}

// MatchRule returns the first enabled rule whose keyword matches message.
// Rule order decides; there is no scoring. ok is false when nothing matched
// and the caller should use its own fallback text.
func MatchRule(rules []Rule, message string) (Rule, bool) {
	content := normalizeMessage(message)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if keywordMatches(rule.Keyword, content) {
			return rule, true
		}
	}

	return Rule{}, false
}

// keywordMatches tests one keyword against already-normalized content.
// A keyword that fails to compile or times out is a non-match.
func keywordMatches(keyword, content string) bool {
	if strings.TrimSpace(keyword) == wildcardKeyword {
		return true
	}

	re, err := cachedKeyword(keyword)
	if err != nil {
		return false
	}

	matched, err := re.MatchString(content)
	if err != nil {
		log.Printf("[rules] Keyword %q failed to evaluate: %v", keyword, err)
		return false
	}
	return matched
}

// compileKeyword compiles a rule keyword with JavaScript regex semantics,
// case-insensitive, which is what rule authors write in the editor.
func compileKeyword(keyword string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(keyword, regexp2.ECMAScript|regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = keywordMatchTimeout
	return re, nil
}

// cachedKeyword returns the memoized compile result for keyword, compiling
// it on first use. An invalid keyword is logged once, when first compiled.
func cachedKeyword(keyword string) (*regexp2.Regexp, error) {
	keywords.RLock()
	entry, exists := keywords.byText[keyword]
	keywords.RUnlock()
	if exists {
		return entry.re, entry.err
	}

	keywords.Lock()
	defer keywords.Unlock()

	// Double-check after acquiring write lock
	if entry, exists := keywords.byText[keyword]; exists {
		return entry.re, entry.err
	}

	re, err := compileKeyword(keyword)
	if err != nil {
		log.Printf("[rules] Skipping invalid keyword %q: %v", keyword, err)
	}
	if len(keywords.byText) >= maxCompiledKeywords {
		keywords.byText = make(map[string]compiledKeyword)
	}
	keywords.byText[keyword] = compiledKeyword{re: re, err: err}
	return re, err
}

// ValidateKeyword reports whether keyword can be used by the matcher.
// The editor uses it to flag rules that will never fire.
func ValidateKeyword(keyword string) error {
	if strings.TrimSpace(keyword) == wildcardKeyword {
		return nil
	}
	_, err := cachedKeyword(keyword)
	return err
}

// normalizeMessage prepares inbound text for matching
// - Unicode NFC composition, so "é" typed either way compares equal
// - Unicode-aware lowercase conversion
//
// A Caser keeps state, so each call gets its own.
func normalizeMessage(text string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(text))
}
