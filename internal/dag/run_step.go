package dag

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/gofecto/gofecto/effect"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// runStepNode evaluates a step's when clause and, when it holds, runs the
// handler through the effect system so declared retry policies apply. A
// non-empty skipReason means the clause vetoed the step.
func (e *Executor) runStepNode(ctx context.Context, n *Node) (string, error) {
	evalCtx := e.buildEvalContext(n)

	if n.StepConfig.When != nil {
		proceed, err := evalWhen(n.StepConfig.When, evalCtx)
		if err != nil {
			return "", fmt.Errorf("evaluating when clause for %s: %w", n.ID, err)
		}
		if !proceed {
			return "when clause is false", nil
		}
	}

	op := effect.FromFunc(func(ctx context.Context) (cty.Value, error) {
		return e.executeStepLogic(ctx, n, evalCtx)
	})
	if rc := n.StepConfig.Retry; rc != nil {
		op = op.Retry(effect.RetryPolicy{
			Attempts:   rc.Attempts,
			Backoff:    rc.Backoff,
			MaxBackoff: rc.MaxBackoff,
		})
	}

	output, err := effect.LogSpan(n.ID, "running step", op).Run(ctx)
	if err != nil {
		return "", err
	}
	n.Output = output
	return "", nil
}

// evalWhen reduces a when expression to a decision. Null counts as false.
func evalWhen(expr hcl.Expression, evalCtx *hcl.EvalContext) (bool, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, diags
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("when clause is not a boolean: %w", err)
	}
	if val.IsNull() {
		return false, nil
	}
	return val.True(), nil
}

// executeStepLogic decodes the step's arguments, injects its resource
// dependencies and invokes the registered handler.
func (e *Executor) executeStepLogic(ctx context.Context, n *Node, evalCtx *hcl.EvalContext) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("step", n.ID)
	logger.Info("▶️ Starting step")

	runnerDef, ok := e.registry.DefinitionRegistry[n.StepConfig.RunnerType]
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown runner type '%s'", n.StepConfig.RunnerType)
	}
	handlerName := runnerDef.Lifecycle.OnRun
	handler, ok := e.registry.HandlerRegistry[handlerName]
	if !ok {
		return cty.NilVal, fmt.Errorf("handler '%s' not registered", handlerName)
	}

	inputStruct := handler.NewInput()
	if inputStruct != nil {
		if err := e.converter.DecodeBody(ctx, inputStruct, n.StepConfig.Arguments, runnerDef.Inputs, evalCtx); err != nil {
			return cty.NilVal, fmt.Errorf("decoding arguments for %s: %w", n.ID, err)
		}
	}
	logger.Debug("step input", "data", formatValueForLogs(inputStruct))

	depsStruct, err := e.buildDepsStruct(ctx, n, handler)
	if err != nil {
		return cty.NilVal, err
	}

	logger.Debug("calling step handler", "handler", handlerName)
	handlerFunc := reflect.ValueOf(handler.Fn)
	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(depsStruct)}
	if inputStruct == nil {
		callArgs = append(callArgs, reflect.Zero(handlerFunc.Type().In(2)))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(inputStruct))
	}

	results := handlerFunc.Call(callArgs)
	nativeOutput, errResult := results[0].Interface(), results[1].Interface()
	if errResult != nil {
		return cty.NilVal, errResult.(error)
	}

	ctyOutput, err := e.converter.ToCtyValue(nativeOutput)
	if err != nil {
		return cty.NilVal, fmt.Errorf("converting output of %s: %w", n.ID, err)
	}
	logger.Debug("step output", "data", formatValueForLogs(ctyOutput))

	logger.Info("✅ Finished step")
	return ctyOutput, nil
}

// buildDepsStruct populates the handler's deps struct by resolving each
// gofecto-tagged field against the resources bound in the step's uses block.
func (e *Executor) buildDepsStruct(ctx context.Context, n *Node, handler *registry.RegisteredRunner) (any, error) {
	logger := ctxlog.FromContext(ctx)
	depsStruct := handler.NewDeps()

	if n.StepConfig.Uses == nil {
		return depsStruct, nil
	}

	usesMap := n.StepConfig.Uses
	depsValue := reflect.ValueOf(depsStruct).Elem()
	depsType := depsValue.Type()

	for i := 0; i < depsValue.NumField(); i++ {
		field := depsType.Field(i)

		tag := field.Tag.Get("gofecto")
		if tag == "" || tag == "-" {
			continue
		}
		lookupKey := strings.Split(tag, ",")[0]

		resourceExpr, ok := usesMap[lookupKey]
		if !ok {
			continue
		}

		vars := resourceExpr.Variables()
		if len(vars) != 1 {
			return nil, fmt.Errorf("uses.%s must be a direct reference to one resource", lookupKey)
		}
		resourceID, err := traversableToID(vars[0])
		if err != nil {
			return nil, err
		}

		instance, found := e.resourceInstances.Load(resourceID)
		if !found {
			return nil, fmt.Errorf("step '%s' requires resource '%s', which has not been created", n.ID, resourceID)
		}

		instanceType := reflect.TypeOf(instance)
		fieldType := field.Type
		if fieldType.Kind() == reflect.Interface {
			if !instanceType.Implements(fieldType) {
				return nil, fmt.Errorf("type mismatch for '%s': resource of type %v does not implement %v",
					lookupKey, instanceType, fieldType)
			}
		} else if !instanceType.AssignableTo(fieldType) {
			return nil, fmt.Errorf("type mismatch for '%s': resource of type %v is not assignable to %v",
				lookupKey, instanceType, fieldType)
		}

		logger.Debug("injecting resource dependency", "step", n.ID, "slot", lookupKey, "resource", resourceID)
		depsValue.Field(i).Set(reflect.ValueOf(instance))
	}

	return depsStruct, nil
}

// traversableToID converts an HCL traversal for a resource into its canonical string ID.
func traversableToID(v hcl.Traversal) (string, error) {
	parts, err := traversalParts(v)
	if err != nil {
		return "", err
	}
	if len(parts) > 0 && parts[0] == "resource" {
		parts = parts[1:]
	}
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid resource reference '%s'", formatTraversal(v))
	}
	return fmt.Sprintf("resource.%s.%s", parts[0], parts[1]), nil
}

// formatValueForLogs converts a value to its loggable representation.
func formatValueForLogs(v any) any {
	if ctyVal, ok := v.(cty.Value); ok {
		converted, err := ctyValueToInterface(ctyVal)
		if err != nil {
			return fmt.Sprintf("[unloggable cty.Value: %v]", err)
		}
		return converted
	}
	return v
}

// ctyValueToInterface converts a cty.Value to a plain Go value for logging.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() || val.Type().IsSetType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}
