package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseArgv splits a command line into argv form. Single and double quotes
// group words, a backslash escapes the next rune (inside quotes too), and a
// line starting with # is treated as commented out.
func parseArgv(input string) ([]string, error) {
	line := strings.TrimSpace(input)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	var (
		args []string
		word []rune
	)
	emit := func() {
		if len(word) > 0 {
			args = append(args, string(word))
			word = word[:0]
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; {
		case r == '\\':
			i++
			if i == len(runes) {
				return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
			}
			word = append(word, runes[i])
		case r == '\'' || r == '"':
			closed := false
			for i++; i < len(runes); i++ {
				c := runes[i]
				if c == '\\' {
					i++
					if i == len(runes) {
						return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
					}
					word = append(word, runes[i])
					continue
				}
				if c == r {
					closed = true
					break
				}
				word = append(word, c)
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quote in command: %q", input)
			}
		case unicode.IsSpace(r):
			emit()
		default:
			word = append(word, r)
		}
	}

	emit()
	return args, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
