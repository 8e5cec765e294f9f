package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func compileJoinYAML(t *testing.T, doc string) *Handle {
	t.Helper()
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	h, _, err := NewHandle(cfg.Join)
	require.NoError(t, err)
	return h
}

func identity(s string) string { return s }

func TestStartEndJoinsInclusiveOfEnd(t *testing.T) {
	h := compileJoinYAML(t, `
join:
  start:
    - re: "^BEGIN"
  end:
    - re: "^END"
`)
	m := NewMachine(h, identity, 0)

	var groups [][]string
	for _, line := range []string{"before", "BEGIN trace", "mid 1", "mid 2", "END trace", "after"} {
		groups = append(groups, m.Push(line)...)
	}

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"before"}, groups[0])
	assert.Equal(t, []string{"BEGIN trace", "mid 1", "mid 2", "END trace"}, groups[1])
	assert.Equal(t, []string{"after"}, groups[2])
}

func TestStartWhileExcludesTerminator(t *testing.T) {
	h := compileJoinYAML(t, `
join:
  start:
    - re: "^BEGIN"
  while:
    - re: "^  "
`)
	m := NewMachine(h, identity, 0)

	var groups [][]string
	for _, line := range []string{"BEGIN x", "  cont 1", "  cont 2", "not indented"} {
		groups = append(groups, m.Push(line)...)
	}

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"BEGIN x", "  cont 1", "  cont 2"}, groups[0])
	assert.Equal(t, []string{"not indented"}, groups[1])
}

func TestWhileOnlyJoinsMatchingRuns(t *testing.T) {
	h := compileJoinYAML(t, `
join:
  while:
    - re: "^cont"
`)
	m := NewMachine(h, identity, 0)

	var groups [][]string
	for _, line := range []string{"solo 1", "cont a", "cont b", "solo 2", "cont c"} {
		groups = append(groups, m.Push(line)...)
	}

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"solo 1"}, groups[0])
	assert.Equal(t, []string{"cont a", "cont b"}, groups[1])
	assert.Equal(t, []string{"solo 2"}, groups[2])
}

func TestFlushDrainsPendingAccumulator(t *testing.T) {
	h := compileJoinYAML(t, `
join:
  start:
    - re: "^BEGIN"
  end:
    - re: "^END"
`)
	m := NewMachine(h, identity, 0)
	_ = m.Push("BEGIN unterminated")
	out := m.Flush()
	assert.Equal(t, []string{"BEGIN unterminated"}, out)
	assert.Nil(t, m.Flush())
}

func TestMaxSizeForcesEarlyFlush(t *testing.T) {
	h := compileJoinYAML(t, `
join:
  while:
    - re: "."
`)
	m := NewMachine(h, identity, 2)

	groups := m.Push("a")
	assert.Nil(t, groups)
	groups = m.Push("b")
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0])
}

func TestInvalidInputKindIsRejected(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
join:
  start:
    - re: "x"
`), &cfg))
	_, _, err := NewHandle(cfg.Join)
	assert.Error(t, err)
}

func TestAllThreeRootsIsRejected(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
join:
  start:
    - re: "x"
  while:
    - re: "y"
  end:
    - re: "z"
`), &cfg))
	_, _, err := NewHandle(cfg.Join)
	assert.Error(t, err)
}

func TestStartMultipleExpressionsAreImplicitlyAnded(t *testing.T) {
	h := compileJoinYAML(t, `
join:
  start:
    - re: "^BEGIN"
    - re: "trace"
  end:
    - re: "^END"
`)
	m := NewMachine(h, identity, 0)

	var groups [][]string
	for _, line := range []string{"BEGIN no match here", "BEGIN trace", "END trace"} {
		groups = append(groups, m.Push(line)...)
	}

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"BEGIN no match here"}, groups[0])
	assert.Equal(t, []string{"BEGIN trace", "END trace"}, groups[1])
}
