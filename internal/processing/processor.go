package processing

import (
	"crypto/md5"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	articleIDLen     = 12
	embeddingBodyLen = 500
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "of": {},
	"and": {}, "on": {}, "at": {}, "by": {}, "with": {}, "from": {}, "its": {},
	"this": {}, "that": {}, "said": {}, "will": {}, "has": {}, "have": {},
	"was": {}, "were": {}, "are": {}, "also": {}, "after": {}, "over": {},
}

// BuildArticleID derives the stable article id from title and source.
func BuildArticleID(title, source string) string {
	sum := md5.Sum([]byte(title + "_" + source))
	return hex.EncodeToString(sum[:])[:articleIDLen]
}

// EmbeddingText weights the title by repeating it ahead of the opening of
// the body.
func EmbeddingText(title, content string) string {
	// Cut on runes so multi-byte text stays valid UTF-8
	runes := []rune(content)
	if len(runes) > embeddingBodyLen {
		content = string(runes[:embeddingBodyLen])
	}
	return title + " " + title + " " + content
}

// ExtractURLs extracts all HTTP(S) URLs from the input text.
func ExtractURLs(input string) []string {
	if input == "" {
		return nil
	}
	matches := urlRegex.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	// Drop repeats, keep first-seen order
	seen := make(map[string]struct{})
	var urls []string
	for _, url := range matches {
		if _, ok := seen[url]; !ok {
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}
	return urls
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// ExtractKeywords returns the most frequent words that are not stop-words.
// Ties are broken alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	// Count tokens long enough to matter, skipping stop-words
	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}
	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	// Non-positive limit returns every keyword
	n := limit
	if n <= 0 || n > len(pairs) {
		n = len(pairs)
	}
	keywords := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keywords = append(keywords, pairs[i].word)
	}
	return keywords
}

// GenerateTitleFromText creates a title from the first sentence or the first
// maxWords words of text.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	// URLs contain dots that would end the sentence early
	withoutURLs := RemoveURLs(text)

	// First sentence ends at . ! or ?
	var firstSentence string
	if end := strings.IndexAny(withoutURLs, ".!?"); end > 0 {
		firstSentence = strings.TrimSpace(withoutURLs[:end])
	} else {
		firstSentence = withoutURLs
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}
	if maxWords > 0 && len(words) > maxWords {
		// Ellipsis marks the cut
		return strings.Join(words[:maxWords], " ") + "..."
	}
	return strings.Join(words, " ")
}
