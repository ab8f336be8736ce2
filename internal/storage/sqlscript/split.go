// Package sqlscript splits migration files into single statements for
// drivers that reject multi-statement Exec.
package sqlscript

import "strings"

// Split returns the statements of script with comments removed. Semicolons
// inside quoted strings, quoted identifiers and comments do not terminate a
// statement. A doubled quote inside a literal is an escaped quote.
func Split(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
			}
			cur.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`':
			i = copyQuoted(&cur, script, i)
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// copyQuoted writes the quoted run starting at script[start] and returns the
// index of its closing quote. An unterminated run extends to the end.
func copyQuoted(b *strings.Builder, script string, start int) int {
	q := script[start]
	b.WriteByte(q)
	for i := start + 1; i < len(script); i++ {
		c := script[i]
		b.WriteByte(c)
		if c == '\\' && q == '\'' && i+1 < len(script) {
			i++
			b.WriteByte(script[i])
			continue
		}
		if c != q {
			continue
		}
		if i+1 < len(script) && script[i+1] == q {
			i++
			b.WriteByte(q)
			continue
		}
		return i
	}
	return len(script) - 1
}
