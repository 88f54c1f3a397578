package filter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// pattern is a compiled name glob.
//
// Patterns support:
//   - Basename globs: *.pdf, report-??.csv
//   - Path globs (contain a slash): docs/*.pdf, **/draft/*
//   - Directory patterns: build/ (everything under build)
//   - Character classes and alternation: [abc], [!a], {jpg,png}
type pattern struct {
	source   string
	pathMode bool
	re       *regexp.Regexp
}

func compilePattern(glob string) (*pattern, error) {
	normalized := strings.ReplaceAll(glob, "\\", "/")
	if strings.HasSuffix(normalized, "/") {
		normalized += "**"
	}
	pathMode := strings.Contains(normalized, "/")
	normalized = strings.TrimPrefix(normalized, "/")

	expr, err := globToRegexp(normalized)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", glob, err)
	}
	return &pattern{source: glob, pathMode: pathMode, re: re}, nil
}

// match tests a slash-separated relative path
func (p *pattern) match(relativePath string) bool {
	if p.pathMode {
		return p.re.MatchString(relativePath)
	}
	return p.re.MatchString(path.Base(relativePath))
}

// globToRegexp converts a glob into an anchored regexp.
// A single star stops at a slash, a double star spans directories.
func globToRegexp(glob string) (string, error) {
	var re strings.Builder
	re.WriteByte('^')

	inBrackets := false
	inBraces := false
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if inBrackets {
			switch c {
			case ']':
				inBrackets = false
				re.WriteByte(']')
			case '\\':
				re.WriteString(`\\`)
			default:
				re.WriteRune(c)
			}
			continue
		}
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				if i+1 < len(runes) && runes[i+1] == '*' {
					return "", fmt.Errorf("too many stars in %q", glob)
				}
				if i+1 < len(runes) && runes[i+1] == '/' {
					// "**/" also matches zero directories
					i++
					re.WriteString(`(.*/)?`)
				} else {
					re.WriteString(`.*`)
				}
			} else {
				re.WriteString(`[^/]*`)
			}
		case '?':
			re.WriteString(`[^/]`)
		case '[':
			inBrackets = true
			re.WriteByte('[')
			if i+1 < len(runes) && (runes[i+1] == '!' || runes[i+1] == '^') {
				i++
				re.WriteByte('^')
			}
		case '{':
			if inBraces {
				return "", fmt.Errorf("nested braces in %q", glob)
			}
			inBraces = true
			re.WriteString(`(?:`)
		case '}':
			if !inBraces {
				return "", fmt.Errorf("mismatched '}' in %q", glob)
			}
			inBraces = false
			re.WriteByte(')')
		case ',':
			if inBraces {
				re.WriteByte('|')
			} else {
				re.WriteByte(',')
			}
		default:
			re.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if inBrackets {
		return "", fmt.Errorf("mismatched '[' in %q", glob)
	}
	if inBraces {
		return "", fmt.Errorf("mismatched '{' in %q", glob)
	}

	re.WriteByte('$')
	return re.String(), nil
}
