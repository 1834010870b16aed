// Package quickshare maps human-shareable codes to remote library names and
// encodes the scope note published with each version.
// Package quickshare 快速分享码与远端资料库名称的映射及分享备注编解码
package quickshare

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"
	"strings"
)

const (
	// Alphabet excludes I, O, 0 and 1
	Alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 8

	libraryPrefix = "peer-"
)

// GenerateCode returns a new code from crypto/rand. When the secure source fails
// it falls back to math/rand and reports degraded=true.
// GenerateCode 生成分享码，安全随机源不可用时降级并返回 degraded=true
func GenerateCode() (code string, degraded bool) {
	if c, err := generate(rand.Reader); err == nil {
		return c, false
	}
	return generateWeak(), true
}

func generate(src io.Reader) (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", err
	}
	out := make([]byte, CodeLength)
	for i, b := range buf {
		// 32 symbols: the low five bits are uniform
		out[i] = Alphabet[int(b)&(len(Alphabet)-1)]
	}
	return string(out), nil
}

func generateWeak() string {
	out := make([]byte, CodeLength)
	for i := range out {
		out[i] = Alphabet[mrand.IntN(len(Alphabet))]
	}
	return string(out)
}

// NormalizeCode trims and upper-cases s and checks it is 8 ASCII letters or digits.
// Codes typed by a user may contain glyphs the generator never emits.
// NormalizeCode 规范化分享码（大小写不敏感）
func NormalizeCode(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != CodeLength {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "", false
		}
	}
	return s, true
}

// LibraryName is the remote library both peers derive from the same code
func LibraryName(code string) string {
	return libraryPrefix + strings.ToLower(strings.TrimSpace(code))
}
