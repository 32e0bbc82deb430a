// Package subst implements the $name / ${name} placeholder substitution used
// by tool commands, recipe options and recipe parameters.
//
// Substitution is best-effort: a placeholder whose name has no value in the
// context is kept verbatim and never reported as an error. "$$" renders a
// single "$". A "$" that does not start a valid placeholder is copied as is.
package subst

import (
	"fmt"
	"strings"
)

// Substitute replaces every $name and ${name} found in ctx.
func Substitute(tpl string, ctx map[string]string) string {
	if strings.IndexByte(tpl, '$') < 0 {
		return tpl
	}
	var b strings.Builder
	b.Grow(len(tpl))
	i := 0
	for i < len(tpl) {
		c := tpl[i]
		if c != '$' || i+1 >= len(tpl) {
			b.WriteByte(c)
			i++
			continue
		}
		next := tpl[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i += 2
		case next == '{':
			end := strings.IndexByte(tpl[i+2:], '}')
			name := ""
			if end >= 0 {
				name = tpl[i+2 : i+2+end]
			}
			if end < 0 || !isName(name) {
				b.WriteByte(c)
				i++
				continue
			}
			raw := tpl[i : i+3+end]
			if v, ok := ctx[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(raw)
			}
			i += len(raw)
		case isNameStart(next):
			j := i + 2
			for j < len(tpl) && isNameChar(tpl[j]) {
				j++
			}
			name := tpl[i+1 : j]
			if v, ok := ctx[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(tpl[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// Check reports a malformed braced placeholder such as "${" without a closing
// brace or "${1x}". Unknown names are not an error.
func Check(tpl string) error {
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '$' || i+1 >= len(tpl) {
			continue
		}
		switch tpl[i+1] {
		case '$':
			i++
		case '{':
			end := strings.IndexByte(tpl[i+2:], '}')
			if end < 0 {
				return fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			if name := tpl[i+2 : i+2+end]; !isName(name) {
				return fmt.Errorf("invalid placeholder ${%s}", name)
			}
			i += 2 + end
		}
	}
	return nil
}

// Names returns the distinct placeholder names referenced by tpl, in order of
// first appearance.
func Names(tpl string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '$' || i+1 >= len(tpl) {
			continue
		}
		next := tpl[i+1]
		switch {
		case next == '$':
			i++
		case next == '{':
			end := strings.IndexByte(tpl[i+2:], '}')
			if end < 0 {
				continue
			}
			if name := tpl[i+2 : i+2+end]; isName(name) {
				add(name)
				i += 2 + end
			}
		case isNameStart(next):
			j := i + 2
			for j < len(tpl) && isNameChar(tpl[j]) {
				j++
			}
			add(tpl[i+1 : j])
			i = j - 1
		}
	}
	return out
}

func isName(s string) bool {
	if s == "" || !isNameStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return true
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
