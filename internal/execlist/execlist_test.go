package execlist

import (
	"testing"

	"github.com/dolysis/recordbroker/internal/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseExec(t *testing.T, doc string) *ExecList {
	t.Helper()
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	el, err := New(cfg.Exec)
	require.NoError(t, err)
	return el
}

func TestOrderingAndRangeSplit(t *testing.T) {
	el := parseExec(t, `
exec:
  - load: "127.0.0.1:9001"
  - filter: drop-noise
  - join
  - load: "127.0.0.1:9002"
`)

	ops := el.Ops()
	require.Len(t, ops, 2)
	assert.True(t, ops[0].Join)
	assert.Equal(t, "drop-noise", ops[1].FilterName)

	loads := el.Loads()
	require.Len(t, loads, 2)
	assert.Equal(t, "127.0.0.1:9001", loads[0].Addr)
	assert.Equal(t, "127.0.0.1:9002", loads[1].Addr)
}

func TestDuplicateJoinCollapses(t *testing.T) {
	el := parseExec(t, `
exec:
  - join
  - join
  - load: "x:1"
`)
	ops := el.Ops()
	require.Len(t, ops, 1)
	assert.True(t, ops[0].Join)
}

func TestFiltersKeepDocumentOrder(t *testing.T) {
	el := parseExec(t, `
exec:
  - filter: a
  - filter: b
  - load: "x:1"
`)
	ops := el.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, "a", ops[0].FilterName)
	assert.Equal(t, "b", ops[1].FilterName)
}

func TestValidateRejectsUndefinedFilter(t *testing.T) {
	el := parseExec(t, `
exec:
  - filter: missing
  - load: "x:1"
`)
	fs, _, err := filter.Compile(map[string][]filter.Seed{})
	require.NoError(t, err)

	err = el.Validate(fs)
	assert.Error(t, err)
}

func TestValidateAcceptsDefinedFilter(t *testing.T) {
	var fcfg filter.Config
	require.NoError(t, yaml.Unmarshal([]byte(`
filter:
  known:
    - re: "x"
`), &fcfg))
	fs, _, err := filter.CompileConfig(fcfg)
	require.NoError(t, err)

	el := parseExec(t, `
exec:
  - filter: known
  - load: "x:1"
`)
	assert.NoError(t, el.Validate(fs))
}

func TestBareScalarMustBeJoin(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte(`
exec:
  - filter
`), &cfg)
	assert.Error(t, err)
}
