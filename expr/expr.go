// Package expr implements the template mini-language used for bulk
// rename operations. A template mixes literal text with {…} expressions
// and C-style %-specifiers applied to the current index. The evaluator
// never fails: anything it cannot interpret is emitted unchanged.
package expr

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// randIntn is swapped out by tests for determinism.
var randIntn = rand.Intn

// Process renders template for index i.
//
// Tokens: "{{" is a literal "{", "%%" a literal "%", "{…}" an expression
// and "%<spec><conv>" a format specifier applied to i.
func Process(template string, i int) string {
	var b strings.Builder
	for pos := 0; pos < len(template); {
		rest := template[pos:]
		switch {
		case strings.HasPrefix(rest, "{{"):
			b.WriteByte('{')
			pos += 2
		case strings.HasPrefix(rest, "%%"):
			b.WriteByte('%')
			pos += 2
		case rest[0] == '{':
			end := matchBrace(template, pos)
			if end < 0 {
				// Unbalanced brace: emit the remainder verbatim.
				b.WriteString(rest)
				pos = len(template)
				break
			}
			b.WriteString(eval(template[pos+1:end], i))
			pos = end + 1
		case rest[0] == '%':
			spec, n := scanFormat(rest)
			if n == 0 {
				b.WriteByte('%')
				pos++
				break
			}
			out := fmt.Sprintf(spec, i)
			if strings.Contains(out, "%!") {
				b.WriteString(rest[:n])
			} else {
				b.WriteString(out)
			}
			pos += n
		default:
			b.WriteByte(rest[0])
			pos++
		}
	}
	return b.String()
}

// matchBrace returns the index of the brace closing the one at open, or
// -1 when unbalanced.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// scanFormat reads "%<spec><conv>" and returns the specifier and its
// byte length, or 0 when the tail is not a specifier.
func scanFormat(s string) (string, int) {
	i := 1
	for i < len(s) && strings.IndexByte("0123456789.+- #", s[i]) >= 0 {
		i++
	}
	if i >= len(s) {
		return "", 0
	}
	c := s[i]
	if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
		return "", 0
	}
	return s[:i+1], i + 1
}

// eval interprets the inside of a {…} expression.
func eval(s string, i int) string {
	s = strings.TrimSpace(s)

	body, fmtSpec := cutDirective(s, ";fmt=")
	body, idxExpr := cutDirective(body, ";i=")
	body = strings.TrimSpace(body)

	var result string
	if parts := splitTop(body, '|'); len(parts) > 1 {
		// Only the chosen branch is evaluated, so rand calls in the
		// other branches never consume generator state.
		n := len(parts)
		choice := i
		if idxExpr != "" {
			if v, err := strconv.Atoi(strings.TrimSpace(evalArg(idxExpr, i))); err == nil {
				choice = v
			}
		}
		choice = ((choice % n) + n) % n
		result = evalArg(parts[choice], i)
	} else {
		result = evalAtom(body, i)
	}

	if fmtSpec != "" {
		result = applyFormat(fmtSpec, result)
	}
	return result
}

// cutDirective splits off a trailing ";name=value" directive found at
// brace depth zero.
func cutDirective(s, marker string) (string, string) {
	depth := 0
	for i := 0; i+len(marker) <= len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ';':
			if depth == 0 && s[i:i+len(marker)] == marker {
				return s[:i], s[i+len(marker):]
			}
		}
	}
	return s, ""
}

// splitTop splits on sep, ignoring separators inside nested braces.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// fieldsTop splits on runs of spaces at brace depth zero.
func fieldsTop(s string) []string {
	var fields []string
	depth, start := 0, -1
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '{':
			depth++
		case s[i] == '}':
			depth--
		case s[i] == ' ' && depth == 0:
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

// evalArg evaluates a sub-expression, stripping one level of braces.
func evalArg(s string, i int) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '{' && matchBrace(s, 0) == len(s)-1 {
		return eval(s[1:len(s)-1], i)
	}
	return eval(s, i)
}

// evalAtom interprets a single expression: the index, a rand form, an
// arithmetic form, or a literal.
func evalAtom(s string, i int) string {
	if s == "i" || s == "I" {
		return strconv.Itoa(i)
	}
	fields := fieldsTop(s)
	if len(fields) == 0 {
		return s
	}
	switch fields[0] {
	case "rand":
		return evalRand(s, fields[1:], i)
	case "add", "sub", "mul", "div":
		if len(fields) != 3 {
			return s
		}
		a, errA := strconv.ParseInt(strings.TrimSpace(evalArg(fields[1], i)), 10, 64)
		b, errB := strconv.ParseInt(strings.TrimSpace(evalArg(fields[2], i)), 10, 64)
		if errA != nil || errB != nil {
			return s
		}
		switch fields[0] {
		case "add":
			return strconv.FormatInt(a+b, 10)
		case "sub":
			return strconv.FormatInt(a-b, 10)
		case "mul":
			return strconv.FormatInt(a*b, 10)
		case "div":
			if b == 0 {
				return s
			}
			return strconv.FormatInt(a/b, 10)
		}
	}
	return s
}

// evalRand draws from [0,100), [0,N) or [MIN,MAX).
func evalRand(raw string, args []string, i int) string {
	switch len(args) {
	case 0:
		return strconv.Itoa(randIntn(100))
	case 1:
		n, err := strconv.ParseInt(strings.TrimSpace(evalArg(args[0], i)), 10, 64)
		if err != nil {
			return raw
		}
		if n <= 0 {
			return "0"
		}
		return strconv.Itoa(randIntn(int(n)))
	case 2:
		min, errA := strconv.ParseInt(strings.TrimSpace(evalArg(args[0], i)), 10, 64)
		max, errB := strconv.ParseInt(strings.TrimSpace(evalArg(args[1], i)), 10, 64)
		if errA != nil || errB != nil {
			return raw
		}
		if max < min {
			return strconv.FormatInt(min, 10)
		}
		if max == min {
			return strconv.FormatInt(min, 10)
		}
		return strconv.FormatInt(min+int64(randIntn(int(max-min))), 10)
	default:
		return raw
	}
}

// applyFormat applies a %-specifier to the computed value: first as an
// integer, then as a string, then raw.
func applyFormat(spec, val string) string {
	if !strings.HasPrefix(spec, "%") {
		return val
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		if out := fmt.Sprintf(spec, n); !strings.Contains(out, "%!") {
			return out
		}
	}
	if out := fmt.Sprintf(spec, val); !strings.Contains(out, "%!") {
		return out
	}
	return val
}
