package upbit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFlaggedWarning(t *testing.T) {
	cases := map[string]bool{
		"CAUTION": true,
		"WARNING": true,
		"true":    true,
		"Y":       true,
		"1":       true,
		"NONE":    false,
		"":        false,
		"0":       false,
	}
	for input, want := range cases {
		assert.Equal(t, want, IsFlaggedWarning(input), "input=%q", input)
	}
}
