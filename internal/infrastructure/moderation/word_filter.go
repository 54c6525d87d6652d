package moderation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"pairline/internal/core/domain"

	"go.uber.org/zap"
)

const DefaultReplacement = "***"

// WordFilter masks blocked words in chat text. Matching is whole-word and
// case-insensitive.
type WordFilter struct {
	mu          sync.RWMutex
	words       map[string]struct{}
	replacement string
	logger      *zap.SugaredLogger
}

func NewWordFilter(words []string, replacement string, logger *zap.SugaredLogger) *WordFilter {
	if replacement == "" {
		replacement = DefaultReplacement
	}
	f := &WordFilter{replacement: replacement, logger: logger}
	f.SetWords(words)
	return f
}

func (f *WordFilter) SetWords(words []string) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	f.mu.Lock()
	f.words = set
	f.mu.Unlock()
}

func (f *WordFilter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.words)
}

// LoadFile replaces the word list with the contents of path. Blank lines
// and lines starting with '#' are ignored.
func (f *WordFilter) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open word list: %w", err)
	}
	defer file.Close()

	words, err := parseWordList(file)
	if err != nil {
		return fmt.Errorf("read word list %s: %w", path, err)
	}
	f.SetWords(words)
	f.logger.Infow("word list loaded", "path", path, "words", len(words))
	return nil
}

func parseWordList(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

// ModerateText implements ports.TextModerator.
func (f *WordFilter) ModerateText(ctx context.Context, text string) domain.ModerationResult {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.words) == 0 {
		return domain.ModerationResult{Text: text}
	}

	var out strings.Builder
	out.Grow(len(text))
	flagged := false

	runes := []rune(text)
	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			out.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		if _, blocked := f.words[strings.ToLower(word)]; blocked {
			out.WriteString(f.replacement)
			flagged = true
		} else {
			out.WriteString(word)
		}
		i = j
	}

	return domain.ModerationResult{Text: out.String(), Flagged: flagged}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
