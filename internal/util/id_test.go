package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID("run")
	assert.True(t, strings.HasPrefix(id, "run_"))
	assert.Len(t, strings.TrimPrefix(id, "run_"), 32)
	assert.NotContains(t, id[4:], "-")

	assert.NotEqual(t, NewID("run"), NewID("run"))
	assert.Len(t, NewID(""), 32)
}
