package dag

import (
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/gofecto/gofecto/internal/version"
)

// RunInfo carries the run-scoped facts every expression can see.
type RunInfo struct {
	Event   trigger.Event
	Version version.Version
}

// baseVariables builds the constant part of the evaluation context: the
// triggering event, the derived version and the process environment.
func baseVariables(info RunInfo) map[string]cty.Value {
	refKind, refName := trigger.ParseRef(info.Event.Ref)
	event := cty.ObjectVal(map[string]cty.Value{
		"kind":     cty.StringVal(string(info.Event.Kind)),
		"ref":      cty.StringVal(info.Event.Ref),
		"ref_kind": cty.StringVal(string(refKind)),
		"ref_name": cty.StringVal(refName),
		"base":     cty.StringVal(info.Event.Base),
	})

	ver := cty.ObjectVal(map[string]cty.Value{
		"value":   cty.StringVal(info.Version.Value),
		"channel": cty.StringVal(string(info.Version.Channel)),
	})

	env := cty.MapValEmpty(cty.String)
	envVals := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			envVals[kv[:i]] = cty.StringVal(kv[i+1:])
		}
	}
	if len(envVals) > 0 {
		env = cty.MapVal(envVals)
	}

	return map[string]cty.Value{
		"event":   event,
		"version": ver,
		"env":     env,
	}
}

// buildEvalContext assembles the evaluation context visible to one node: the
// run variables, the outputs of every completed step, and for instanced
// nodes the count.index value.
//
// A singular step's output appears as step.<type>.<name>.output; an
// instanced step's instances form a tuple, so step.<type>.<name>[i].output
// addresses one instance. A skipped step contributes a null output, keeping
// downstream expressions evaluable and tuple indexes stable.
func (e *Executor) buildEvalContext(n *Node) *hcl.EvalContext {
	variables := make(map[string]cty.Value, len(e.baseVars)+2)
	for k, v := range e.baseVars {
		variables[k] = v
	}

	type instanceOutput struct {
		index int
		value cty.Value
	}
	singular := make(map[string]map[string]cty.Value)
	instanced := make(map[string]map[string][]instanceOutput)

	for _, node := range e.Graph.Nodes {
		if node.Type != StepNode {
			continue
		}
		state := node.GetState()
		if state != Done && state != Skipped {
			continue
		}
		out := cty.NullVal(cty.EmptyObject)
		if state == Done {
			if v, ok := node.Output.(cty.Value); ok && v != cty.NilVal {
				out = v
			}
		}
		wrapped := cty.ObjectVal(map[string]cty.Value{"output": out})

		runnerType := node.StepConfig.RunnerType
		if node.Index < 0 {
			if singular[runnerType] == nil {
				singular[runnerType] = make(map[string]cty.Value)
			}
			singular[runnerType][node.Name] = wrapped
		} else {
			if instanced[runnerType] == nil {
				instanced[runnerType] = make(map[string][]instanceOutput)
			}
			instanced[runnerType][node.Name] = append(instanced[runnerType][node.Name],
				instanceOutput{index: node.Index, value: wrapped})
		}
	}

	typeVals := make(map[string]cty.Value)
	for runnerType, names := range singular {
		nameVals := make(map[string]cty.Value, len(names))
		for name, val := range names {
			nameVals[name] = val
		}
		typeVals[runnerType] = cty.ObjectVal(nameVals)
	}
	for runnerType, names := range instanced {
		nameVals := make(map[string]cty.Value, len(names))
		if existing, ok := typeVals[runnerType]; ok {
			for name, val := range existing.AsValueMap() {
				nameVals[name] = val
			}
		}
		for name, outputs := range names {
			sort.Slice(outputs, func(i, j int) bool { return outputs[i].index < outputs[j].index })
			vals := make([]cty.Value, 0, len(outputs))
			for _, o := range outputs {
				vals = append(vals, o.value)
			}
			if len(vals) == 0 {
				nameVals[name] = cty.EmptyTupleVal
			} else {
				nameVals[name] = cty.TupleVal(vals)
			}
		}
		typeVals[runnerType] = cty.ObjectVal(nameVals)
	}
	if len(typeVals) > 0 {
		variables["step"] = cty.ObjectVal(typeVals)
	}

	if n != nil && n.Index >= 0 {
		variables["count"] = cty.ObjectVal(map[string]cty.Value{
			"index": cty.NumberIntVal(int64(n.Index)),
		})
	}

	return &hcl.EvalContext{
		Variables: variables,
		Functions: e.funcs,
	}
}
