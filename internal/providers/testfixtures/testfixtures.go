// Package testfixtures loads canned provider request/response pairs
// from YAML files under each adapter's testdata/ directory, so adapter
// tests assert against a checked-in fixture instead of an inline JSON
// literal buried in the test body.
package testfixtures

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Fixture is one canned provider exchange: the resource/params the
// adapter is called with, the raw body the fake upstream returns, and
// a substring the outgoing request's query string must contain.
type Fixture struct {
	Resource  string            `yaml:"resource"`
	Params    map[string]string `yaml:"params"`
	Response  string            `yaml:"response"`
	QueryMust string            `yaml:"query_must_contain"`
}

// Load reads and decodes a fixture file, failing the test immediately
// on any I/O or decode error.
func Load(t *testing.T, path string) Fixture {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err, "reading fixture %s", path)

	var f Fixture
	require.NoError(t, yaml.Unmarshal(raw, &f), "decoding fixture %s", path)
	return f
}
