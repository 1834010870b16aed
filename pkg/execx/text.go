package execx

import "strings"

// FirstLine returns the first non-empty trimmed line of s
// FirstLine 返回第一行非空内容
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// TailLines returns at most n trailing non-empty lines of s
// TailLines 返回末尾最多 n 行非空内容
func TailLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(lines[i], "\r"))
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

// MessageOr returns the first stderr line, or fallback when stderr is empty.
// MessageOr 返回 stderr 第一行，为空时返回 fallback
func MessageOr(stderr, fallback string) string {
	if line := FirstLine(stderr); line != "" {
		return line
	}
	return fallback
}
