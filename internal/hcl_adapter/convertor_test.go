package hcl_adapter

import (
	"context"
	"testing"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type commandInput struct {
	Command string            `gofecto:"command"`
	Args    []string          `gofecto:"args"`
	Env     map[string]string `gofecto:"env"`
	Timeout float64           `gofecto:"timeout"`
	Extra   map[string]any    `gofecto:"extra"`
	Raw     cty.Value         `gofecto:"raw"`
}

func commandDefs() map[string]*config.InputDefinition {
	sixty := cty.NumberIntVal(60)
	return map[string]*config.InputDefinition{
		"command": {Name: "command", Type: cty.String},
		"args":    {Name: "args", Type: cty.List(cty.String), Optional: true},
		"env":     {Name: "env", Type: cty.Map(cty.String), Optional: true},
		"timeout": {Name: "timeout", Type: cty.Number, Default: &sixty, Optional: true},
		"extra":   {Name: "extra", Type: cty.DynamicPseudoType, Optional: true},
		"raw":     {Name: "raw", Type: cty.DynamicPseudoType, Optional: true},
	}
}

// parseArgs builds an arguments map from attribute = expression lines.
func parseArgs(t *testing.T, src string) map[string]hcl.Expression {
	t.Helper()
	file, diags := hclsyntax.ParseConfig([]byte(src), "args.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	attrs, diags := file.Body.JustAttributes()
	require.False(t, diags.HasErrors(), diags.Error())

	out := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		out[name] = attr.Expr
	}
	return out
}

func TestDecodeBody(t *testing.T) {
	ctx := context.Background()
	conv := NewConverter()
	evalCtx := &hcl.EvalContext{Functions: EvalFunctions()}

	t.Run("decodes provided arguments into tagged fields", func(t *testing.T) {
		args := parseArgs(t, `
command = "make build"
args    = ["-j", tostring(4)]
env     = { PY_COLORS = "1", CI = "true" }
extra   = { nested = { level = 2 }, flag = true }
raw     = "keep"
`)

		var input commandInput
		require.NoError(t, conv.DecodeBody(ctx, &input, args, commandDefs(), evalCtx))

		assert.Equal(t, "make build", input.Command)
		assert.Equal(t, []string{"-j", "4"}, input.Args)
		assert.Equal(t, map[string]string{"PY_COLORS": "1", "CI": "true"}, input.Env)
		assert.InDelta(t, 60.0, input.Timeout, 0.001) // default applied
		assert.Equal(t, map[string]any{
			"nested": map[string]any{"level": float64(2)},
			"flag":   true,
		}, input.Extra)
		assert.Equal(t, cty.StringVal("keep"), input.Raw)
	})

	t.Run("optional argument without default stays zero", func(t *testing.T) {
		args := parseArgs(t, `command = "make test"`)

		var input commandInput
		require.NoError(t, conv.DecodeBody(ctx, &input, args, commandDefs(), evalCtx))

		assert.Nil(t, input.Args)
		assert.Nil(t, input.Env)
	})

	t.Run("missing required argument fails", func(t *testing.T) {
		args := parseArgs(t, `env = { CI = "true" }`)

		var input commandInput
		err := conv.DecodeBody(ctx, &input, args, commandDefs(), evalCtx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing required argument "command"`)
	})

	t.Run("type mismatch is reported with the argument name", func(t *testing.T) {
		args := parseArgs(t, `
command = "make build"
args    = "not-a-list"
`)

		var input commandInput
		err := conv.DecodeBody(ctx, &input, args, commandDefs(), evalCtx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode argument 'args'")
	})

	t.Run("string coerces into number field", func(t *testing.T) {
		args := parseArgs(t, `
command = "make build"
timeout = "90"
`)

		var input commandInput
		require.NoError(t, conv.DecodeBody(ctx, &input, args, commandDefs(), evalCtx))
		assert.InDelta(t, 90.0, input.Timeout, 0.001)
	})

	t.Run("rejects non-pointer target", func(t *testing.T) {
		err := conv.DecodeBody(ctx, commandInput{}, nil, commandDefs(), evalCtx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-nil pointer")
	})
}

type nestedMatrix struct {
	Python string `cty:"python"`
	OS     string `cty:"os"`
}

type matrixInput struct {
	Matrix []nestedMatrix `gofecto:"matrix"`
}

func TestDecodeBodyNestedStructs(t *testing.T) {
	ctx := context.Background()
	conv := NewConverter()

	defs := map[string]*config.InputDefinition{
		"matrix": {
			Name: "matrix",
			Type: cty.List(cty.Object(map[string]cty.Type{
				"python": cty.String,
				"os":     cty.String,
			})),
		},
	}
	args := parseArgs(t, `
matrix = [
  { python = "3.11", os = "linux" },
  { python = "3.12", os = "darwin" },
]
`)

	var input matrixInput
	require.NoError(t, conv.DecodeBody(ctx, &input, args, defs, &hcl.EvalContext{}))
	assert.Equal(t, []nestedMatrix{
		{Python: "3.11", OS: "linux"},
		{Python: "3.12", OS: "darwin"},
	}, input.Matrix)
}

type uploadResult struct {
	Target   string   `cty:"target"`
	Uploaded []string `cty:"uploaded"`
	Count    int      `cty:"count"`
}

func TestToCtyValue(t *testing.T) {
	conv := NewConverter()

	t.Run("tagged struct becomes an object", func(t *testing.T) {
		val, err := conv.ToCtyValue(&uploadResult{
			Target:   "pypi",
			Uploaded: []string{"a.whl", "b.tar.gz"},
			Count:    2,
		})
		require.NoError(t, err)

		require.True(t, val.Type().IsObjectType())
		assert.Equal(t, "pypi", val.GetAttr("target").AsString())
		assert.Equal(t, int64(2), mustInt(t, val.GetAttr("count")))
		assert.Equal(t, 2, val.GetAttr("uploaded").LengthInt())
	})

	t.Run("nil maps to NilVal", func(t *testing.T) {
		val, err := conv.ToCtyValue(nil)
		require.NoError(t, err)
		assert.Equal(t, cty.NilVal, val)
	})
}

func mustInt(t *testing.T, v cty.Value) int64 {
	t.Helper()
	i, _ := v.AsBigFloat().Int64()
	return i
}
