package hcl_adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// evalFuncExpr parses and evaluates an expression with the pipeline function
// table and no variables.
func evalFuncExpr(t *testing.T, src string) (cty.Value, hcl.Diagnostics) {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "failed to parse %q: %s", src, diags.Error())
	return expr.Value(&hcl.EvalContext{Functions: EvalFunctions()})
}

func TestEvalFunctions(t *testing.T) {
	t.Run("startswith and endswith", func(t *testing.T) {
		val, diags := evalFuncExpr(t, `startswith("refs/tags/v1.2.3", "refs/tags/v")`)
		require.False(t, diags.HasErrors())
		assert.True(t, val.True())

		val, diags = evalFuncExpr(t, `startswith("refs/heads/main", "refs/tags/v")`)
		require.False(t, diags.HasErrors())
		assert.False(t, val.True())

		val, diags = evalFuncExpr(t, `endswith("pkg-1.0.0-py3-none-any.whl", ".whl")`)
		require.False(t, diags.HasErrors())
		assert.True(t, val.True())
	})

	t.Run("env reads the environment", func(t *testing.T) {
		t.Setenv("PIPELINE_FUNCS_TEST_TOKEN", "sekret")

		val, diags := evalFuncExpr(t, `env("PIPELINE_FUNCS_TEST_TOKEN")`)
		require.False(t, diags.HasErrors())
		assert.Equal(t, "sekret", val.AsString())
	})

	t.Run("env yields empty string for unset variable", func(t *testing.T) {
		val, diags := evalFuncExpr(t, `env("PIPELINE_FUNCS_TEST_UNSET")`)
		require.False(t, diags.HasErrors())
		assert.Equal(t, "", val.AsString())
	})

	t.Run("filesha256 hashes file contents", func(t *testing.T) {
		lockfile := filepath.Join(t.TempDir(), "poetry.lock")
		content := []byte("[[package]]\nname = \"example\"\n")
		require.NoError(t, os.WriteFile(lockfile, content, 0o644))
		sum := sha256.Sum256(content)

		val, diags := evalFuncExpr(t, `filesha256("`+lockfile+`")`)
		require.False(t, diags.HasErrors())
		assert.Equal(t, hex.EncodeToString(sum[:]), val.AsString())
	})

	t.Run("filesha256 reports missing file", func(t *testing.T) {
		_, diags := evalFuncExpr(t, `filesha256("/nonexistent/lockfile")`)
		assert.True(t, diags.HasErrors())
	})

	t.Run("stdlib functions are wired", func(t *testing.T) {
		val, diags := evalFuncExpr(t, `format("%s-%d", lower("RC"), 2)`)
		require.False(t, diags.HasErrors())
		assert.Equal(t, "rc-2", val.AsString())

		val, diags = evalFuncExpr(t, `length(split(",", "a,b,c"))`)
		require.False(t, diags.HasErrors())
		three := cty.NumberIntVal(3)
		assert.True(t, three.RawEquals(val))

		val, diags = evalFuncExpr(t, `trimprefix("refs/heads/release/2.1", "refs/heads/")`)
		require.False(t, diags.HasErrors())
		assert.Equal(t, "release/2.1", val.AsString())

		val, diags = evalFuncExpr(t, `tostring(42)`)
		require.False(t, diags.HasErrors())
		assert.Equal(t, "42", val.AsString())
	})
}
