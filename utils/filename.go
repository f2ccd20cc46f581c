package utils

import (
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeFileName reduces an uploaded name to a safe base name.
// Path components are dropped and control or separator characters replaced with '_'.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r), r == '/', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			return '_'
		default:
			return r
		}
	}, name)
	return strings.TrimLeft(cleaned, ".")
}
