package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyTime(t *testing.T) {
	assert.Equal(t, "0:00", PrettyTime(0))
	assert.Equal(t, "0:59", PrettyTime(59))
	assert.Equal(t, "1:05", PrettyTime(65))
	assert.Equal(t, "1:00:00", PrettyTime(3600))
	assert.Equal(t, "2:03:04", PrettyTime(7384))
}

func TestPrettyTimeMS(t *testing.T) {
	assert.Equal(t, "1:05", PrettyTimeMS(65999))
}

func TestEscapeMd(t *testing.T) {
	assert.Equal(t, "plain title", EscapeMd("plain title"))
	assert.Equal(t, "\\*bold\\* \\_and\\_ \\`code\\` \\~strike\\~", EscapeMd("*bold* _and_ `code` ~strike~"))
}
