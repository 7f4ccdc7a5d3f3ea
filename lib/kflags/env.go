package kflags

import (
	"regexp"
	"strings"
)

// VarMangler turns the components of a name (a prefix, the name of a flag)
// into the name of an environment variable.
type VarMangler func(components ...string) string

// VarRewriter rewrites a single component.
type VarRewriter func(string) string

// JoinRemap returns a VarMangler that joins each element after passing it through
// the specified rewriters. A nil rewriter is accepted, and performs no operation.
func JoinRemap(separator string, rewriter ...VarRewriter) VarMangler {
	return func(elements ...string) string {
		result := make([]string, 0, len(elements))
		for _, el := range elements {
			if el == "" {
				continue
			}
			for _, r := range rewriter {
				if r != nil {
					el = r(el)
				}
			}
			result = append(result, el)
		}
		return strings.Join(result, separator)
	}
}

var toUnderscore = regexp.MustCompile(`[^a-zA-Z0-9]`)

// UnderscoreRewrite replaces every character not valid in an environment variable with _.
func UnderscoreRewrite(el string) string {
	return toUnderscore.ReplaceAllString(el, "_")
}

// The set of remappers used to turn flags into environment variable names:
// "http-address" with prefix "nucleus" becomes NUCLEUS_HTTP_ADDRESS.
var DefaultEnvRemap = JoinRemap("_", UnderscoreRewrite, strings.ToUpper)
