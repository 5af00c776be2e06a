package resolve

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/resolver"
)

func writeFixture(t *testing.T) string {
	t.Helper()

	fixture := `
collections:
  - code: users
    primaryKey: id
    properties:
      - code: name
        type: text
  - code: line_items
    primaryKey: id
    properties:
      - code: order_id
        type: reference
        reference:
          targetCollection: orders
      - code: amount
        type: number
  - code: orders
    primaryKey: id
    properties: []
records:
  users:
    - id: u1
      name: Ada
  line_items:
    - id: li1
      order_id: o1
      amount: 10
    - id: li2
      order_id: o1
      amount: 20
    - id: li3
      order_id: o1
      amount: 30
`

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))
	return path
}

func TestLookupCommand(t *testing.T) {
	cmd := NewLookupCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--fixture", writeFixture(t),
		"--collection", "users",
		"--reference-property", "assignee_id",
		"--source-property", "name",
		"--values", "u1",
	})
	require.NoError(t, cmd.Execute())

	var res resolver.LookupResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, "Ada", res.Value)
}

func TestRollupCommand(t *testing.T) {
	cmd := NewRollupCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--fixture", writeFixture(t),
		"--collection", "line_items",
		"--reference-property", "order_id",
		"--source-property", "amount",
		"--aggregation", "SUM",
		"--record", "o1",
	})
	require.NoError(t, cmd.Execute())

	var res resolver.RollupResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, 60.0, res.Value)
	require.Equal(t, 3, res.Count)
}

func TestLookupCommandRequiresFixture(t *testing.T) {
	cmd := NewLookupCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{
		"--collection", "users",
		"--reference-property", "assignee_id",
		"--source-property", "name",
	})
	require.ErrorContains(t, cmd.Execute(), "fixture file is required")
}
