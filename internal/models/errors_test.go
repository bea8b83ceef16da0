package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessingError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := NotifyError(cause, "decoding %s streams", "live")

	assert.Equal(t, "decoding live streams: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsNotify(err))
	assert.True(t, IsNotify(fmt.Errorf("input a: %w", err)))

	info := InfoErrorf("target %q has no xtream input", "family")
	assert.False(t, IsNotify(info))
	assert.Equal(t, ErrorKindInfo, info.Kind)
	assert.Equal(t, "info", info.Kind.String())
	assert.Equal(t, "notify", err.Kind.String())
}

func TestNotifyMessages(t *testing.T) {
	errs := []error{
		NotifyError(errors.New("bad json"), "input a"),
		InfoErrorf("skipped"),
		errors.New("plain"),
		NotifyError(nil, "input b"),
	}
	assert.Equal(t, "input a: bad json\ninput b", NotifyMessages(errs))
	assert.Empty(t, NotifyMessages(nil))
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", TruncateMessage("short", 10))
	assert.Equal(t, "anything", TruncateMessage("anything", 0))
	assert.Equal(t, "abcd...", TruncateMessage("abcdefghij", 7))

	// Multi-byte runes are never split.
	msg := strings.Repeat("é", 10)
	got := TruncateMessage(msg, 8)
	assert.LessOrEqual(t, len(got), 8)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "éé...", got)
}
