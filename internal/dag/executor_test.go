package dag

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/goleak"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/hcl_adapter"
	"github.com/gofecto/gofecto/internal/registry"
	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/gofecto/gofecto/internal/version"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type probeInput struct {
	Message string `gofecto:"message"`
}

type probeDeps struct{}

type probeOutput struct {
	Value string `cty:"value"`
}

type probeFn func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error)

// probeRegistry returns a registry with a single "probe" runner whose
// behavior is supplied by the test. A nil fn echoes the message back.
func probeRegistry(t *testing.T, fn probeFn) *registry.Registry {
	t.Helper()
	if fn == nil {
		fn = func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
			return &probeOutput{Value: input.Message}, nil
		}
	}
	r := registry.New()
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:      "probe",
		Lifecycle: &config.Lifecycle{OnRun: "OnRunProbe"},
		Inputs: map[string]*config.InputDefinition{
			"message": {Name: "message", Type: cty.String, Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"value": {Name: "value", Type: cty.String},
		},
	})
	r.RegisterRunner("OnRunProbe", &registry.RegisteredRunner{
		NewInput:  func() any { return new(probeInput) },
		InputType: reflect.TypeOf(probeInput{}),
		NewDeps:   func() any { return new(probeDeps) },
		Fn:        fn,
	})
	return r
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func testRunInfo() RunInfo {
	return RunInfo{
		Event:   trigger.Event{Kind: trigger.KindPush, Ref: "refs/heads/main"},
		Version: version.Version{Value: "1.2.3", Channel: version.ChannelRelease},
	}
}

func buildAndRun(t *testing.T, model *config.Model, reg *registry.Registry) (*Graph, *Summary, error) {
	t.Helper()
	ctx := context.Background()
	graph, err := Build(ctx, model, reg)
	require.NoError(t, err)
	summary, runErr := NewExecutor(graph, reg, hcl_adapter.NewConverter(), testRunInfo(), 4).Run(ctx)
	return graph, summary, runErr
}

func stepOutput(t *testing.T, g *Graph, id string) string {
	t.Helper()
	n, ok := g.Nodes[id]
	require.True(t, ok, "node %s not in graph", id)
	val, ok := n.Output.(cty.Value)
	require.True(t, ok, "node %s has no cty output", id)
	return val.GetAttr("value").AsString()
}

func TestExecutorRunsChainInOrder(t *testing.T) {
	rec := &recorder{}
	reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
		rec.add(input.Message)
		return &probeOutput{Value: input.Message}, nil
	})

	model := testModel([]*config.Step{
		{RunnerType: "probe", Name: "a", Instancing: config.ModeSingular,
			Arguments: map[string]hcl.Expression{"message": expr(t, `"a"`)}},
		{RunnerType: "probe", Name: "b", Instancing: config.ModeSingular,
			Arguments: map[string]hcl.Expression{"message": expr(t, `"${step.probe.a.output.value}-b"`)}},
		{RunnerType: "probe", Name: "c", Instancing: config.ModeSingular,
			Arguments: map[string]hcl.Expression{"message": expr(t, `"${step.probe.b.output.value}-c"`)}},
	}, nil)

	graph, summary, err := buildAndRun(t, model, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a-b", "a-b-c"}, rec.list())
	assert.Equal(t, "a-b-c", stepOutput(t, graph, "step.probe.c"))

	assert.True(t, summary.OK())
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
}

func TestExecutorArgumentsSeeRunVariables(t *testing.T) {
	model := testModel([]*config.Step{
		{RunnerType: "probe", Name: "solo", Instancing: config.ModeSingular,
			Arguments: map[string]hcl.Expression{
				"message": expr(t, `"${version.value}+${event.ref_name}+${version.channel}"`),
			}},
	}, nil)

	graph, _, err := buildAndRun(t, model, probeRegistry(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3+main+release", stepOutput(t, graph, "step.probe.solo"))
}

func TestExecutorWhenClause(t *testing.T) {
	t.Run("false clause skips the step without failing the run", func(t *testing.T) {
		rec := &recorder{}
		reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
			rec.add(input.Message)
			return &probeOutput{Value: input.Message}, nil
		})

		model := testModel([]*config.Step{
			{RunnerType: "probe", Name: "gated", Instancing: config.ModeSingular,
				When:      expr(t, "1 == 2"),
				Arguments: map[string]hcl.Expression{"message": expr(t, `"never"`)}},
			{RunnerType: "probe", Name: "after", Instancing: config.ModeSingular,
				Arguments: map[string]hcl.Expression{
					"message": expr(t, `step.probe.gated.output == null ? "absent" : "present"`),
				}},
		}, nil)

		graph, summary, err := buildAndRun(t, model, reg)
		require.NoError(t, err)

		assert.Equal(t, []string{"absent"}, rec.list())
		assert.Equal(t, Skipped, graph.Nodes["step.probe.gated"].GetState())
		assert.Equal(t, "when clause is false", graph.Nodes["step.probe.gated"].SkipReason)
		assert.Equal(t, Done, graph.Nodes["step.probe.after"].GetState())

		assert.True(t, summary.OK())
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 1, summary.Skipped)

		gated := summary.Result("step.probe.gated")
		require.NotNil(t, gated)
		assert.Equal(t, Skipped, gated.Status)
		assert.Equal(t, "when clause is false", gated.Reason)
	})

	t.Run("clause can gate on run variables", func(t *testing.T) {
		rec := &recorder{}
		reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
			rec.add(input.Message)
			return &probeOutput{Value: input.Message}, nil
		})

		model := testModel([]*config.Step{
			{RunnerType: "probe", Name: "on_main", Instancing: config.ModeSingular,
				When:      expr(t, `event.ref == "refs/heads/main"`),
				Arguments: map[string]hcl.Expression{"message": expr(t, `"ran"`)}},
			{RunnerType: "probe", Name: "on_tag", Instancing: config.ModeSingular,
				When:      expr(t, `startswith(event.ref, "refs/tags/v")`),
				Arguments: map[string]hcl.Expression{"message": expr(t, `"tagged"`)}},
		}, nil)

		graph, summary, err := buildAndRun(t, model, reg)
		require.NoError(t, err)

		assert.Equal(t, []string{"ran"}, rec.list())
		assert.Equal(t, Done, graph.Nodes["step.probe.on_main"].GetState())
		assert.Equal(t, Skipped, graph.Nodes["step.probe.on_tag"].GetState())
		assert.True(t, summary.OK())
	})

	t.Run("non-boolean clause fails the step", func(t *testing.T) {
		model := testModel([]*config.Step{
			{RunnerType: "probe", Name: "bad", Instancing: config.ModeSingular,
				When: expr(t, `"not a bool"`)},
		}, nil)

		graph, summary, err := buildAndRun(t, model, probeRegistry(t, nil))
		require.Error(t, err)
		assert.ErrorContains(t, err, "when clause")
		assert.Equal(t, Failed, graph.Nodes["step.probe.bad"].GetState())
		assert.False(t, summary.OK())
	})
}

func TestExecutorFailurePropagation(t *testing.T) {
	boom := errors.New("handler exploded")
	reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
		if input.Message == "boom" {
			return nil, boom
		}
		return &probeOutput{Value: input.Message}, nil
	})

	model := testModel([]*config.Step{
		{RunnerType: "probe", Name: "a", Instancing: config.ModeSingular,
			Arguments: map[string]hcl.Expression{"message": expr(t, `"boom"`)}},
		{RunnerType: "probe", Name: "b", Instancing: config.ModeSingular, DependsOn: []string{"probe.a"}},
		{RunnerType: "probe", Name: "c", Instancing: config.ModeSingular, DependsOn: []string{"probe.b"}},
	}, nil)

	graph, summary, err := buildAndRun(t, model, reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "execution failed for step.probe.a")

	assert.Equal(t, Failed, graph.Nodes["step.probe.a"].GetState())
	assert.Equal(t, Skipped, graph.Nodes["step.probe.b"].GetState())
	assert.Equal(t, Skipped, graph.Nodes["step.probe.c"].GetState())
	assert.Contains(t, graph.Nodes["step.probe.b"].SkipReason, "step.probe.a")
	assert.Contains(t, graph.Nodes["step.probe.c"].SkipReason, "step.probe.b")

	// Skips are not failures; only the exploding node carries an error.
	assert.False(t, summary.OK())
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.NoError(t, graph.Nodes["step.probe.b"].Error)
}

func TestExecutorRetry(t *testing.T) {
	t.Run("flaky step recovers within its attempts", func(t *testing.T) {
		var mu sync.Mutex
		calls := 0
		reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n < 3 {
				return nil, errors.New("transient failure")
			}
			return &probeOutput{Value: "recovered"}, nil
		})

		model := testModel([]*config.Step{
			{RunnerType: "probe", Name: "flaky", Instancing: config.ModeSingular,
				Retry: &config.Retry{Attempts: 3, Backoff: time.Millisecond}},
		}, nil)

		graph, summary, err := buildAndRun(t, model, reg)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, "recovered", stepOutput(t, graph, "step.probe.flaky"))
		assert.True(t, summary.OK())
	})

	t.Run("exhausted attempts fail with the last error", func(t *testing.T) {
		var mu sync.Mutex
		calls := 0
		reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil, errors.New("persistent failure")
		})

		model := testModel([]*config.Step{
			{RunnerType: "probe", Name: "doomed", Instancing: config.ModeSingular,
				Retry: &config.Retry{Attempts: 2, Backoff: time.Millisecond}},
		}, nil)

		_, summary, err := buildAndRun(t, model, reg)
		require.Error(t, err)
		assert.ErrorContains(t, err, "persistent failure")
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, summary.Failed)
	})
}

func TestExecutorInstancedSteps(t *testing.T) {
	rec := &recorder{}
	reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
		rec.add(input.Message)
		return &probeOutput{Value: input.Message}, nil
	})

	model := testModel([]*config.Step{
		{RunnerType: "probe", Name: "shard", Instancing: config.ModeInstanced, Count: expr(t, "3"),
			Arguments: map[string]hcl.Expression{"message": expr(t, `"shard-${count.index}"`)}},
		{RunnerType: "probe", Name: "merge", Instancing: config.ModeSingular,
			Arguments: map[string]hcl.Expression{
				"message": expr(t, `"${length(step.probe.shard)}:${step.probe.shard[1].output.value}"`),
			}},
	}, nil)

	graph, summary, err := buildAndRun(t, model, reg)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"shard-0", "shard-1", "shard-2", "3:shard-1"}, rec.list())
	assert.Equal(t, "3:shard-1", stepOutput(t, graph, "step.probe.merge"))
	assert.Equal(t, 4, summary.Succeeded)
}

type workspaceInput struct {
	Root string `gofecto:"root"`
}

type testWorkspace struct {
	root string
}

type consumeDeps struct {
	WS *testWorkspace `gofecto:"ws"`
}

// workspaceRegistry extends the probe registry with a "workspace" asset and a
// "consume" runner bound to it.
func workspaceRegistry(t *testing.T, created, destroyed *recorder, consumed *recorder) *registry.Registry {
	t.Helper()
	reg := probeRegistry(t, nil)

	reg.RegisterAssetDefinition(&config.AssetDefinition{
		Type:      "workspace",
		Lifecycle: &config.AssetLifecycle{Create: "CreateWorkspace", Destroy: "DestroyWorkspace"},
		Inputs: map[string]*config.InputDefinition{
			"root": {Name: "root", Type: cty.String, Optional: true},
		},
	})
	reg.RegisterAssetHandler("CreateWorkspace", &registry.RegisteredAsset{
		NewInput: func() any { return new(workspaceInput) },
		CreateFn: func(ctx context.Context, input *workspaceInput) (*testWorkspace, error) {
			created.add(input.Root)
			return &testWorkspace{root: input.Root}, nil
		},
	})
	reg.RegisterAssetHandler("DestroyWorkspace", &registry.RegisteredAsset{
		DestroyFn: func(ws *testWorkspace) {
			destroyed.add(ws.root)
		},
	})

	reg.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:      "consume",
		Lifecycle: &config.Lifecycle{OnRun: "OnRunConsume"},
		Uses: map[string]*config.UsesDefinition{
			"ws": {LocalName: "ws", AssetType: "workspace"},
		},
	})
	reg.RegisterRunner("OnRunConsume", &registry.RegisteredRunner{
		NewInput: func() any { return nil },
		NewDeps:  func() any { return new(consumeDeps) },
		Fn: func(ctx context.Context, deps *consumeDeps, input *struct{}) (*probeOutput, error) {
			if deps.WS == nil {
				return nil, errors.New("workspace was not injected")
			}
			consumed.add(deps.WS.root)
			return &probeOutput{Value: deps.WS.root}, nil
		},
	})
	return reg
}

func TestExecutorResourceLifecycle(t *testing.T) {
	t.Run("resource is created, injected and destroyed once", func(t *testing.T) {
		created, destroyed, consumed := &recorder{}, &recorder{}, &recorder{}
		reg := workspaceRegistry(t, created, destroyed, consumed)

		model := testModel([]*config.Step{
			{RunnerType: "consume", Name: "first", Instancing: config.ModeSingular,
				Uses: map[string]hcl.Expression{"ws": expr(t, "workspace.main")}},
			{RunnerType: "consume", Name: "second", Instancing: config.ModeSingular,
				Uses:      map[string]hcl.Expression{"ws": expr(t, "workspace.main")},
				DependsOn: []string{"consume.first"}},
		}, []*config.Resource{
			{AssetType: "workspace", Name: "main",
				Arguments: map[string]hcl.Expression{"root": expr(t, `"/tmp/w"`)}},
		})

		_, summary, err := buildAndRun(t, model, reg)
		require.NoError(t, err)

		assert.Equal(t, []string{"/tmp/w"}, created.list())
		assert.Equal(t, []string{"/tmp/w", "/tmp/w"}, consumed.list())
		assert.Equal(t, []string{"/tmp/w"}, destroyed.list(), "destroy must run exactly once")
		assert.True(t, summary.OK())
		assert.Equal(t, 3, summary.Succeeded, "two steps plus the resource")
	})

	t.Run("unconsumed resource is destroyed by the cleanup stack", func(t *testing.T) {
		created, destroyed, consumed := &recorder{}, &recorder{}, &recorder{}
		reg := workspaceRegistry(t, created, destroyed, consumed)

		model := testModel(nil, []*config.Resource{
			{AssetType: "workspace", Name: "idle",
				Arguments: map[string]hcl.Expression{"root": expr(t, `"/tmp/idle"`)}},
		})

		_, summary, err := buildAndRun(t, model, reg)
		require.NoError(t, err)
		assert.Equal(t, []string{"/tmp/idle"}, created.list())
		assert.Equal(t, []string{"/tmp/idle"}, destroyed.list())
		assert.True(t, summary.OK())
	})
}

func TestExecutorExternalCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	reg := probeRegistry(t, func(ctx context.Context, deps *probeDeps, input *probeInput) (*probeOutput, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	model := testModel([]*config.Step{
		{RunnerType: "probe", Name: "block", Instancing: config.ModeSingular},
		{RunnerType: "probe", Name: "after", Instancing: config.ModeSingular, DependsOn: []string{"probe.block"}},
	}, nil)

	graph, err := Build(ctx, model, reg)
	require.NoError(t, err)

	go func() {
		<-started
		cancel()
	}()

	summary, err := NewExecutor(graph, reg, hcl_adapter.NewConverter(), testRunInfo(), 2).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Skipped, graph.Nodes["step.probe.after"].GetState())
	assert.False(t, summary.OK())
}
