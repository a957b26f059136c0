package migrate

import (
	"fmt"
	"strings"
)

// Token is a key/value pair substituted for ${key} markers in SQL scripts.
type Token struct {
	Key   string
	Value string
}

func (t Token) String() string {
	return fmt.Sprintf("%s=%s", t.Key, t.Value)
}

// ParseToken parses key=value. The key must not be empty, the value may.
func ParseToken(raw string) (Token, error) {
	k, v, ok := strings.Cut(raw, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return Token{}, fmt.Errorf("invalid token %q, expected key=value", raw)
	}
	return Token{Key: k, Value: v}, nil
}

const (
	tokenOpen  = "${"
	tokenClose = "}"
)

// ReplaceTokens replaces every ${key} marker in body with the value of the
// first token carrying that key. Keys are case sensitive and markers
// without a matching token are left as they are. Replaced values are
// copied to the output and never scanned again.
func ReplaceTokens(body string, tokens []Token) string {
	if len(tokens) == 0 || !strings.Contains(body, tokenOpen) {
		return body
	}

	values := make(map[string]string, len(tokens))
	for _, t := range tokens {
		if _, seen := values[t.Key]; !seen {
			values[t.Key] = t.Value
		}
	}

	var b strings.Builder
	b.Grow(len(body))
	rest := body
	for {
		i := strings.Index(rest, tokenOpen)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i:]

		j := strings.Index(rest[len(tokenOpen):], tokenClose)
		if j < 0 {
			b.WriteString(rest)
			break
		}
		key := rest[len(tokenOpen) : len(tokenOpen)+j]
		end := len(tokenOpen) + j + len(tokenClose)

		if v, ok := values[key]; ok {
			b.WriteString(v)
			rest = rest[end:]
			continue
		}
		// unknown marker, keep "${" and resume right after it so a marker
		// nested in the unknown key is still found
		b.WriteString(tokenOpen)
		rest = rest[len(tokenOpen):]
	}
	return b.String()
}
