package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandString(t *testing.T) {
	a := RandString(64)
	b := RandString(64)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	for _, c := range a {
		assert.Contains(t, letterBytes, string(c))
	}
}
