package dag

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gofecto/gofecto/internal/ctxlog"
)

// runResourceNode creates a stateful resource and registers its destruction,
// both on the eager path (last consumer finished) and on the final cleanup
// stack. The destroy handler runs exactly once whichever path fires first.
func (e *Executor) runResourceNode(ctx context.Context, n *Node) error {
	logger := ctxlog.FromContext(ctx).With("resource", n.ID)
	logger.Info("▶️ Creating resource")

	assetType := n.ResourceConfig.AssetType
	assetDef, ok := e.registry.AssetDefinitionRegistry[assetType]
	if !ok {
		return fmt.Errorf("unknown asset type '%s'", assetType)
	}
	createHandlerName := assetDef.Lifecycle.Create
	destroyHandlerName := assetDef.Lifecycle.Destroy

	assetHandler, ok := e.registry.AssetHandlerRegistry[createHandlerName]
	if !ok || assetHandler.CreateFn == nil {
		return fmt.Errorf("create handler '%s' not registered", createHandlerName)
	}
	destroyHandler, ok := e.registry.AssetHandlerRegistry[destroyHandlerName]
	if !ok || destroyHandler.DestroyFn == nil {
		return fmt.Errorf("destroy handler '%s' not registered", destroyHandlerName)
	}

	inputStruct := assetHandler.NewInput()
	if inputStruct != nil {
		evalCtx := e.buildEvalContext(n)
		if err := e.converter.DecodeBody(ctx, inputStruct, n.ResourceConfig.Arguments, assetDef.Inputs, evalCtx); err != nil {
			return fmt.Errorf("decoding arguments for %s: %w", n.ID, err)
		}
	}

	logger.Debug("calling resource create handler", "handler", createHandlerName)
	handlerFunc := reflect.ValueOf(assetHandler.CreateFn)
	callArgs := []reflect.Value{reflect.ValueOf(ctx)}
	if inputStruct == nil {
		callArgs = append(callArgs, reflect.Zero(handlerFunc.Type().In(1)))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(inputStruct))
	}
	results := handlerFunc.Call(callArgs)
	resourceObj, errResult := results[0].Interface(), results[1].Interface()
	if errResult != nil {
		return errResult.(error)
	}

	n.Output = resourceObj
	e.resourceInstances.Store(n.ID, resourceObj)
	e.pushCleanup(n, func() {
		logger.Info("🔥 Destroying resource")
		reflect.ValueOf(destroyHandler.DestroyFn).Call([]reflect.Value{reflect.ValueOf(resourceObj)})
		e.resourceInstances.Delete(n.ID)
	})

	logger.Info("✅ Resource created")
	return nil
}

// destroyResource tears a resource down as soon as its last consuming step
// has finished, instead of holding it until the end of the run.
func (e *Executor) destroyResource(ctx context.Context, n *Node) {
	logger := ctxlog.FromContext(ctx).With("resource", n.ID)

	instance, ok := e.resourceInstances.Load(n.ID)
	if !ok {
		return
	}
	assetDef, ok := e.registry.AssetDefinitionRegistry[n.ResourceConfig.AssetType]
	if !ok {
		return
	}
	destroyHandler, ok := e.registry.AssetHandlerRegistry[assetDef.Lifecycle.Destroy]
	if !ok || destroyHandler.DestroyFn == nil {
		return
	}

	n.Destroy(func() {
		logger.Info("🔥 Destroying resource", "trigger", "last consumer finished")
		reflect.ValueOf(destroyHandler.DestroyFn).Call([]reflect.Value{reflect.ValueOf(instance)})
		e.resourceInstances.Delete(n.ID)
	})
}

// pushCleanup records a destroy closure for the end-of-run cleanup stack.
func (e *Executor) pushCleanup(n *Node, f func()) {
	e.cleanupMutex.Lock()
	defer e.cleanupMutex.Unlock()
	e.cleanupStack = append(e.cleanupStack, func() { n.Destroy(f) })
}

// executeCleanupStack destroys any resources still alive, in reverse creation
// order.
func (e *Executor) executeCleanupStack(ctx context.Context) {
	e.cleanupMutex.Lock()
	stack := e.cleanupStack
	e.cleanupStack = nil
	e.cleanupMutex.Unlock()

	if len(stack) > 0 {
		ctxlog.FromContext(ctx).Debug("running cleanup stack", "size", len(stack))
	}
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i]()
	}
}
