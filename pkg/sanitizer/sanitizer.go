package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func lower(s string) string {
	return strings.ToLower(s)
}

// SanitizeText is used for booking purposes and room names.
func SanitizeText(input string) string {
	return Pipeline{dropControl, TrimAndNormalize}.Apply(input)
}

func SanitizeUsername(input string) string {
	return Pipeline{dropControl, strings.TrimSpace, lower}.Apply(input)
}

func SanitizeEmail(input string) string {
	return Pipeline{dropControl, strings.TrimSpace, lower}.Apply(input)
}

func SanitizeFeature(input string) string {
	return Pipeline{dropControl, NormalizeLabel}.Apply(input)
}
