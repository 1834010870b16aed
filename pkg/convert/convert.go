// Package convert parses request strings into numbers
package convert

import (
	"strconv"
	"strings"
)

// StrTo wraps a raw path or query value
type StrTo string

func (s StrTo) String() string {
	return strings.TrimSpace(string(s))
}

func (s StrTo) Int() (int, error) {
	return strconv.Atoi(s.String())
}

// IntOr returns def when the value is empty or not a number
func (s StrTo) IntOr(def int) int {
	v, err := s.Int()
	if err != nil {
		return def
	}
	return v
}

func (s StrTo) Int64() (int64, error) {
	return strconv.ParseInt(s.String(), 10, 64)
}

// PositiveInt64 reports whether the value is an integer greater than zero
// PositiveInt64 解析正整数
func (s StrTo) PositiveInt64() (int64, bool) {
	v, err := s.Int64()
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
