package code

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailsDoesNotMutateShared(t *testing.T) {
	c := ErrorBackupFailed.WithDetails("exit status 1")

	assert.True(t, c.HaveDetails())
	assert.False(t, ErrorBackupFailed.HaveDetails())
	assert.Equal(t, []string{"exit status 1"}, c.Details())
}

func TestErrorsIsMatchesCopies(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", ErrorAlreadyRunning.WithDetails("config 3"))

	assert.True(t, errors.Is(wrapped, ErrorAlreadyRunning))
	assert.False(t, errors.Is(wrapped, ErrorJobAlreadyRunning))
}

func TestStatusCodes(t *testing.T) {
	cases := map[*Code]int{
		Success:                http.StatusOK,
		ErrorInvalidConfig:     http.StatusBadRequest,
		ErrorAlreadyRunning:    http.StatusConflict,
		ErrorToolUnavailable:   http.StatusServiceUnavailable,
		ErrorRemoteUnreachable: http.StatusBadGateway,
		ErrorTimeout:           http.StatusGatewayTimeout,
	}
	for c, want := range cases {
		if got := c.StatusCode(); got != want {
			t.Errorf("%s: status = %d, want %d", c.Msg(), got, want)
		}
	}
}

func TestLangFallback(t *testing.T) {
	defer SetGlobalDefaultLang(LangEN)

	assert.NoError(t, SetGlobalDefaultLang(LangZH))
	assert.Equal(t, "备份失败", ErrorBackupFailed.Msg())

	assert.Error(t, SetGlobalDefaultLang("fr"))
	assert.Equal(t, "Backup failed", ErrorBackupFailed.Msg())

	l := lang{zh_cn: "仅中文"}
	assert.Equal(t, "仅中文", l.In(LangEN))
}
