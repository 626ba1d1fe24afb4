package backend

import (
	"strings"

	"github.com/vc-go/vcompiler/option"
)

// quoteIfNeeded double-quotes a value containing whitespace, unless it is
// already quoted. Mirrors the original library's
// SystemCompiler::getOptionString/genCompileCommand behaviour.
func quoteIfNeeded(s string) string {
	if s == "" {
		return s
	}
	if strings.ContainsAny(s, " \t") {
		if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
			return s
		}
		return `"` + s + `"`
	}
	return s
}

// unquote strips a single layer of matching single or double quotes, used
// by the in-process variants which pass argv directly rather than via a
// shell.
func unquote(s string) string {
	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		return s[1 : len(s)-1]
	}
	return s
}

// renderExternal renders an Option for the External family: the rendered
// form, quoted if it contains whitespace.
func renderExternal(o option.Option) string {
	return quoteIfNeeded(o.Rendered())
}

// renderInProcess renders an Option for the in-process variants: the
// rendered form, with any wrapping quotes stripped, since argv is passed
// directly rather than through a shell.
func renderInProcess(o option.Option) string {
	return unquote(o.Rendered())
}

// renderOptions renders every option in opts using render, in order.
func renderOptions(opts option.List, render func(option.Option) string) []string {
	if len(opts) == 0 {
		return nil
	}
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = render(o)
	}
	return out
}

// joinCommand concatenates parts with single spaces: a fixed prefix, the
// rendered option sequence, and the source paths.
func joinCommand(parts ...[]string) string {
	var all []string
	for _, p := range parts {
		all = append(all, p...)
	}
	return strings.Join(all, " ")
}
