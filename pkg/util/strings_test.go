package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueTickers(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "TSLA"}, UniqueTickers(" aapl", "", "TSLA", "AAPL", "tsla"))
	assert.Empty(t, UniqueTickers())
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "BRK.B", NormalizeTicker("  brk.b "))
}
