// Package diff renders line diffs of resource files for dry runs.
package diff

import (
	"fmt"
	"strings"
)

const (
	redColor   = "\033[31m"
	greenColor = "\033[32m"
	cyanColor  = "\033[36m"
	resetColor = "\033[0m"
)

// Line is a single line of diff output.
type Line struct {
	Kind    string // "context", "add" or "del"
	Text    string
	OldLine int
	NewLine int
}

// Generate computes a line diff between two documents. context controls how
// many unchanged lines surround each change; a negative value keeps all of
// them. Binary content yields no diff.
func Generate(before, after []byte, context int) []Line {
	if looksBinary(before) || looksBinary(after) {
		return nil
	}
	full := fullLines(before, after)
	if context < 0 {
		return full
	}
	return trimContext(full, context)
}

// Format renders diff lines for one file in unified style. Colors are
// emitted only when colored is true.
func Format(path string, lines []Line, colored bool) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	header := fmt.Sprintf("--- %s", path)
	if colored {
		header = cyanColor + header + resetColor
	}
	b.WriteString(header)
	b.WriteString("\n")
	for _, line := range lines {
		var prefix, color string
		switch line.Kind {
		case "del":
			prefix, color = "-", redColor
		case "add":
			prefix, color = "+", greenColor
		default:
			prefix = " "
		}
		text := prefix + line.Text
		if colored && color != "" {
			text = color + text + resetColor
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

func fullLines(before, after []byte) []Line {
	oldLines := splitLines(before)
	newLines := splitLines(after)

	m, n := len(oldLines), len(newLines)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case oldLines[i] == newLines[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []Line
	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && oldLines[i] == newLines[j]:
			out = append(out, Line{Kind: "context", Text: oldLines[i], OldLine: i + 1, NewLine: j + 1})
			i++
			j++
		case j < n && (i == m || lcs[i][j+1] >= lcs[i+1][j]):
			out = append(out, Line{Kind: "add", Text: newLines[j], NewLine: j + 1})
			j++
		case i < m:
			out = append(out, Line{Kind: "del", Text: oldLines[i], OldLine: i + 1})
			i++
		default:
			j++
		}
	}
	return out
}

func trimContext(lines []Line, context int) []Line {
	if len(lines) == 0 {
		return lines
	}
	keep := make([]bool, len(lines))
	hasChange := false
	for idx, line := range lines {
		if line.Kind == "context" {
			continue
		}
		hasChange = true
		start := idx - context
		if start < 0 {
			start = 0
		}
		end := idx + context + 1
		if end > len(lines) {
			end = len(lines)
		}
		for k := start; k < end; k++ {
			keep[k] = true
		}
	}
	if !hasChange {
		return nil
	}
	result := make([]Line, 0, len(lines))
	for idx, line := range lines {
		if keep[idx] {
			result = append(result, line)
		}
	}
	return result
}

func splitLines(content []byte) []string {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func looksBinary(data []byte) bool {
	const sample = 200
	for i, b := range data {
		if i >= sample {
			break
		}
		if b == 0 {
			return true
		}
	}
	return false
}
