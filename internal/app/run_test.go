package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofecto/gofecto/internal/dag"
	"github.com/gofecto/gofecto/internal/history"
	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/gofecto/gofecto/internal/version"
)

var (
	tagPush  = trigger.Event{Kind: trigger.KindPush, Ref: "refs/tags/v1.2.0"}
	mainPush = trigger.Event{Kind: trigger.KindPush, Ref: "refs/heads/main"}
	relTag   = version.Version{Value: "1.2.0", Channel: version.ChannelRelease}
)

func TestRunGating(t *testing.T) {
	ctx := context.Background()

	t.Run("tag push runs publish after build", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)

		res, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag, EvaluateTriggers: true})
		require.NoError(t, err)
		assert.True(t, res.Triggered)
		require.NotNil(t, res.Summary)
		assert.Equal(t, 3, res.Summary.Succeeded)
		assert.Zero(t, res.Summary.Failed)
		assert.Equal(t, []string{"install", "build", "publish"}, probe.ran())
	})

	t.Run("build failure skips publish instead of failing it", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)
		probe.fail["build"] = true

		res, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag, EvaluateTriggers: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step.probe.build")
		require.NotNil(t, res)
		require.NotNil(t, res.Summary)

		build := res.Summary.Result("step.probe.build")
		require.NotNil(t, build)
		assert.Equal(t, dag.Failed, build.Status)

		publish := res.Summary.Result("step.probe.publish")
		require.NotNil(t, publish)
		assert.Equal(t, dag.Skipped, publish.Status)
		assert.Contains(t, publish.Reason, "did not complete")

		assert.NotContains(t, probe.ran(), "publish")
	})

	t.Run("branch push leaves publish skipped", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)

		placeholder := version.Version{Value: "0.0.0", Channel: version.ChannelPlaceholder}
		res, err := a.Run(ctx, RunOptions{Event: mainPush, Version: placeholder, EvaluateTriggers: true})
		require.NoError(t, err, "a skipped publish is not a failure")
		assert.True(t, res.Triggered)

		publish := res.Summary.Result("step.probe.publish")
		require.NotNil(t, publish)
		assert.Equal(t, dag.Skipped, publish.Status)
		assert.Equal(t, "when clause is false", publish.Reason)
		assert.Equal(t, 2, res.Summary.Succeeded)
		assert.Equal(t, 1, res.Summary.Skipped)
		assert.Equal(t, []string{"install", "build"}, probe.ran())
	})

	t.Run("unmatched branch does not trigger", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)

		ev := trigger.Event{Kind: trigger.KindPush, Ref: "refs/heads/feature/x"}
		res, err := a.Run(ctx, RunOptions{Event: ev, Version: relTag, EvaluateTriggers: true})
		require.NoError(t, err)
		assert.False(t, res.Triggered)
		assert.Contains(t, res.Reason, "matches no push pattern")
		assert.Nil(t, res.Summary)
		assert.Empty(t, probe.ran())
	})

	t.Run("pull request targeting main triggers", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)

		ev := trigger.Event{Kind: trigger.KindPullRequest, Ref: "refs/heads/feature/x", Base: "main"}
		res, err := a.Run(ctx, RunOptions{Event: ev, Version: relTag, EvaluateTriggers: true})
		require.NoError(t, err)
		assert.True(t, res.Triggered)
		assert.Equal(t, []string{"install", "build"}, probe.ran())
		assert.Equal(t, dag.Skipped, res.Summary.Result("step.probe.publish").Status)
	})
}

func TestRunTargets(t *testing.T) {
	ctx := context.Background()

	t.Run("a target runs its dependency closure only", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)

		res, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag, Targets: []string{"build"}})
		require.NoError(t, err)
		assert.True(t, res.Triggered, "target runs bypass trigger evaluation")
		require.NotNil(t, res.Summary)
		assert.Len(t, res.Summary.Results, 2)
		assert.Nil(t, res.Summary.Result("step.probe.publish"))
		assert.Equal(t, []string{"install", "build"}, probe.ran())
	})

	t.Run("unknown target is an error", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)

		_, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag, Targets: []string{"deploy"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no step named 'deploy'")
	})
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("a run lands in the ledger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.db")
		a, _ := setupDelivery(t, deliveryManifest, &Config{HistoryPath: path})

		res, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag, EvaluateTriggers: true, RecordHistory: true})
		require.NoError(t, err)
		require.NotEmpty(t, res.RunID)

		store, err := history.Open(path)
		require.NoError(t, err)
		defer store.Close()

		rec, err := store.Run(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, "demo", rec.Project)
		assert.Equal(t, history.StatusSucceeded, rec.Status)
		assert.Equal(t, "1.2.0", rec.Version)
		assert.Equal(t, "refs/tags/v1.2.0", rec.EventRef)
		assert.Len(t, rec.Steps, 3)
	})

	t.Run("a failed run is recorded as failed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.db")
		a, probe := setupDelivery(t, deliveryManifest, &Config{HistoryPath: path})
		probe.fail["build"] = true

		res, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag, EvaluateTriggers: true, RecordHistory: true})
		require.Error(t, err)
		require.NotEmpty(t, res.RunID)

		store, err := history.Open(path)
		require.NoError(t, err)
		defer store.Close()

		rec, err := store.Run(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, history.StatusFailed, rec.Status)
	})
}

func TestRunFactsFromGit(t *testing.T) {
	ctx := context.Background()

	t.Run("release branch derives its version", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)
		withFakeRepo(t, fakeGit(t, "release/2.5.0", "abc1234", "", ""))

		res, err := a.Run(ctx, RunOptions{EvaluateTriggers: true})
		require.NoError(t, err)
		assert.True(t, res.Triggered)
		assert.Equal(t, "refs/heads/release/2.5.0", res.Event.Ref)
		assert.Equal(t, "2.5.0", res.Version.Value)
		assert.Equal(t, version.ChannelRelease, res.Version.Channel)
	})

	t.Run("main branch takes the environment override", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)
		withFakeRepo(t, fakeGit(t, "main", "abc1234", "", ""))
		t.Setenv("GOFECTO_VERSION", "9.9.9")

		res, err := a.Run(ctx, RunOptions{EvaluateTriggers: true})
		require.NoError(t, err)
		assert.Equal(t, "9.9.9", res.Version.Value)
		assert.Equal(t, version.ChannelPlaceholder, res.Version.Channel)
	})

	t.Run("a tag at head becomes a tag push", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)
		withFakeRepo(t, fakeGit(t, "main", "abc1234", "v3.0.0", ""))

		res, err := a.Run(ctx, RunOptions{EvaluateTriggers: true})
		require.NoError(t, err)
		assert.Equal(t, "refs/tags/v3.0.0", res.Event.Ref)
		assert.Equal(t, "3.0.0", res.Version.Value)
		assert.Contains(t, probe.ran(), "publish")
	})

	t.Run("any other branch derives a dev version", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)
		withFakeRepo(t, fakeGit(t, "feature/login", "abc1234", "", ""))

		res, err := a.Run(ctx, RunOptions{EvaluateTriggers: true})
		require.NoError(t, err)
		assert.False(t, res.Triggered, "feature branches do not match the delivery rules")
		assert.Equal(t, "0.0.0-dev.login", res.Version.Value)
		assert.Equal(t, version.ChannelDev, res.Version.Channel)
	})

	t.Run("detached head without a tag is an error", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)
		withFakeRepo(t, fakeGit(t, "HEAD", "abc1234", "", ""))

		_, err := a.Run(ctx, RunOptions{EvaluateTriggers: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "detached HEAD")
	})

	t.Run("explicit facts never consult the repository", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)
		withBrokenRepo(t)

		_, err := a.Run(ctx, RunOptions{Event: tagPush, Version: relTag})
		require.NoError(t, err)
	})
}

func TestAppPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("previews the gate and per-step actions", func(t *testing.T) {
		a, probe := setupDelivery(t, deliveryManifest, nil)

		placeholder := version.Version{Value: "0.0.0", Channel: version.ChannelPlaceholder}
		res, err := a.Plan(ctx, RunOptions{Event: mainPush, Version: placeholder})
		require.NoError(t, err)
		assert.True(t, res.Triggered)
		assert.Empty(t, probe.ran(), "plan must not execute anything")

		byID := make(map[string]dag.PlanEntry)
		for _, e := range res.Entries {
			byID[e.ID] = e
		}
		assert.Equal(t, dag.PlanRun, byID["step.probe.install"].Action)
		assert.Equal(t, dag.PlanRun, byID["step.probe.build"].Action)
		assert.Equal(t, dag.PlanSkip, byID["step.probe.publish"].Action)
		assert.Equal(t, "when clause is false", byID["step.probe.publish"].Reason)
	})

	t.Run("a vetoed trigger still yields the preview", func(t *testing.T) {
		a, _ := setupDelivery(t, deliveryManifest, nil)

		ev := trigger.Event{Kind: trigger.KindPush, Ref: "refs/heads/feature/x"}
		res, err := a.Plan(ctx, RunOptions{Event: ev, Version: relTag})
		require.NoError(t, err)
		assert.False(t, res.Triggered)
		assert.NotEmpty(t, res.Reason)
		assert.Len(t, res.Entries, 3)
	})
}
