package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/store"
	"github.com/roach88/spaghetti/internal/testutil"
)

func TestNew_NilSpec(t *testing.T) {
	e, err := New(nil, quietEnv())
	assert.Nil(t, e)
	assert.Error(t, err)
}

func TestStep_RunsChainInOrder(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	a, b, c := processorID(t, e, "A"), processorID(t, e, "B"), processorID(t, e, "C")

	report, err := e.Step(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Complete())
	assert.Equal(t, []graph.ProcessorID{a, b, c}, report.Ran)
	assert.Equal(t, data.Floats{{50}}, outputFloats(t, e, "C", "out"))
	assert.Equal(t, int64(1), e.Frame())
}

func TestStep_CleanGraphSkips(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	ctx := context.Background()

	_, err := e.Step(ctx)
	require.NoError(t, err)
	report, err := e.Step(ctx)
	require.NoError(t, err)

	assert.Empty(t, report.Ran, "nothing changed, nothing recomputes")
	assert.Len(t, report.Skipped, 3)
	assert.True(t, report.Complete())
}

func TestStep_SetDirtiesDownstreamOnly(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	ctx := context.Background()
	a, b, c := processorID(t, e, "A"), processorID(t, e, "B"), processorID(t, e, "C")

	_, err := e.Step(ctx)
	require.NoError(t, err)

	require.True(t, e.Enqueue(Set("B.b", 4)))
	report, err := e.Step(ctx)
	require.NoError(t, err)

	assert.Equal(t, []graph.ProcessorID{b, c}, report.Ran)
	assert.Equal(t, []graph.ProcessorID{a}, report.Skipped)
	assert.Equal(t, data.Floats{{60}}, outputFloats(t, e, "C", "out"))
}

func TestStep_SetOutputOfConstant(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	ctx := context.Background()

	_, err := e.Step(ctx)
	require.NoError(t, err)

	e.Enqueue(Set("A.out", 7))
	report, err := e.Step(ctx)
	require.NoError(t, err)

	assert.Len(t, report.Ran, 3)
	assert.Equal(t, data.Floats{{100}}, outputFloats(t, e, "C", "out"))
}

func TestStep_DirtyReruns(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	ctx := context.Background()

	_, err := e.Step(ctx)
	require.NoError(t, err)

	e.Enqueue(Dirty("A"))
	report, err := e.Step(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Ran, 3)
	assert.Equal(t, data.Floats{{50}}, outputFloats(t, e, "C", "out"), "same inputs, same result")
}

func TestStep_UnlinkFallsBackToDefault(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	ctx := context.Background()

	_, err := e.Step(ctx)
	require.NoError(t, err)

	e.Enqueue(Unlink("B.a"))
	_, err = e.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, data.Floats{{30}}, outputFloats(t, e, "C", "out"), "B.a falls back to its zero default")

	e.Enqueue(Link("A.out", "B.a"))
	_, err = e.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, data.Floats{{50}}, outputFloats(t, e, "C", "out"))
}

// A -> B -> C where the B -> C link is rejected by type: A and B run in
// order, C stays pending for the type, not for a cycle.
func TestStep_TypeMismatchScenario(t *testing.T) {
	e, err := New(mismatchSpec(), quietEnv())
	require.Error(t, err)
	require.NotNil(t, e)
	assert.True(t, graph.IsTypeMismatch(err))

	a, b, c := processorID(t, e, "A"), processorID(t, e, "B"), processorID(t, e, "C")

	report, err := e.Step(context.Background())
	require.NoError(t, err, "an incomplete pass is not an engine error")

	assert.Equal(t, []graph.ProcessorID{a, b}, report.Ran)
	assert.False(t, report.Complete())
	reason, ok := report.PendingReason(c)
	require.True(t, ok)
	assert.Equal(t, graph.ReasonTypeMismatch, reason)
	assert.NotEqual(t, graph.ReasonCycle, reason)
	assert.True(t, graph.IsStuck(report.Err()))
}

func TestFlush_LogAndContinue(t *testing.T) {
	e := newTestEngine(t, chainSpec())

	e.Enqueue(Link("Z.out", "B.a"))
	e.Enqueue(Set("B.b", 4))
	e.Enqueue(Link("A.out", "C.x"))

	results, err := e.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, int64(1), results[0].Seq)
	assert.False(t, results[0].Applied())
	assert.True(t, IsUnknownName(results[0].Err))

	assert.True(t, results[1].Applied())
	assert.Equal(t, graph.LinkID(0), results[1].LinkID)

	assert.True(t, results[2].Applied())
	assert.NotZero(t, results[2].LinkID, "link edits report the new link")
	assert.Equal(t, int64(3), results[2].Seq)
}

func TestFlush_TypeMismatchEditIsRejected(t *testing.T) {
	e, _ := New(mismatchSpec(), quietEnv())

	e.Enqueue(Link("A.out", "C.x"))
	results, err := e.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, graph.IsTypeMismatch(results[0].Err))
}

func TestStep_Group(t *testing.T) {
	e := newTestEngine(t, groupSpec())
	a, g := processorID(t, e, "A"), processorID(t, e, "G")

	report, err := e.Step(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Complete())
	assert.Equal(t, []graph.ProcessorID{a, g}, report.Ran)
	assert.Equal(t, data.Floats{{8}}, outputFloats(t, e, "G", "out"))

	e.Enqueue(Set("A.out", 5))
	_, err = e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data.Floats{{10}}, outputFloats(t, e, "G", "out"))
}

func TestWithBuiltins(t *testing.T) {
	negate := func(in, out []*data.Data) error {
		rows, err := floats(in[0], out[0].Signature)
		if err != nil {
			return err
		}
		for i := range rows {
			for j := range rows[i] {
				rows[i][j] = -rows[i][j]
			}
		}
		return writeFloats(out, rows)
	}
	spec := chainSpec()
	spec.Processors[2].Builtin = "negate"

	e := newTestEngine(t, spec, WithBuiltins(Library{"negate": negate}))
	_, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data.Floats{{-5}}, outputFloats(t, e, "C", "out"))
}

func TestStep_PersistsSessionEditsAndPasses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, chainSpec(),
		WithStore(s),
		WithSessionGenerator(NewFixedGenerator("session-1")),
		WithClock(testutil.NewDeterministicClock()),
	)

	_, err := e.Step(ctx)
	require.NoError(t, err)
	e.Enqueue(Set("B.b", 4))
	e.Enqueue(Dirty("Z"))
	_, err = e.Step(ctx)
	require.NoError(t, err)

	sess, err := s.ReadSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "chain", sess.Graph)
	assert.Equal(t, ir.MustSpecHash(chainSpec()), sess.SpecHash)
	assert.Equal(t, ir.EngineVersion, sess.EngineVersion)
	assert.Equal(t, ir.IRVersion, sess.IRVersion)

	edits, err := s.ReadEdits(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, int64(2), edits[0].Seq)
	assert.Equal(t, store.EditApplied, edits[0].Status)
	assert.Equal(t, int64(3), edits[1].Seq)
	assert.Equal(t, store.EditRejected, edits[1].Status)
	assert.Contains(t, edits[1].Error, "UNKNOWN_NAME")

	passes, err := s.ReadPasses(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, passes, 2)

	first, second := passes[0], passes[1]
	assert.Equal(t, int64(1), first.Frame)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Frame)
	assert.Equal(t, int64(4), second.Seq)
	assert.True(t, first.Complete)

	outcomes := func(p store.Pass) map[string]string {
		m := make(map[string]string)
		for _, o := range p.Processors {
			m[o.Name] = o.Outcome
		}
		return m
	}
	assert.Equal(t, map[string]string{"A": "ran", "B": "ran", "C": "ran"}, outcomes(first))
	assert.Equal(t, map[string]string{"A": "skipped", "B": "ran", "C": "ran"}, outcomes(second))

	assert.Equal(t, first.Processors[0].Digest, second.Processors[0].Digest, "A did not change")
	assert.NotEqual(t, first.Processors[2].Digest, second.Processors[2].Digest, "C did")
}

func TestStep_PersistsPendingDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, _ := New(mismatchSpec(), quietEnv(), WithStore(s), WithSessionGenerator(NewFixedGenerator("s")))

	_, err := e.Step(ctx)
	require.NoError(t, err)

	pass, err := s.ReadPass(ctx, "s", 1)
	require.NoError(t, err)
	assert.False(t, pass.Complete)
	require.Len(t, pass.Processors, 3)
	c := pass.Processors[2]
	assert.Equal(t, "C", c.Name)
	assert.Equal(t, string(graph.ReasonTypeMismatch), c.Outcome)
	assert.Contains(t, c.Detail, `input "x"`)
}

func TestStep_GroupMembersAreInner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, groupSpec(), WithStore(s), WithSessionGenerator(NewFixedGenerator("s")))

	_, err := e.Step(ctx)
	require.NoError(t, err)

	pass, err := s.ReadPass(ctx, "s", 1)
	require.NoError(t, err)
	require.Len(t, pass.Processors, 3)
	assert.Equal(t, "G/X", pass.Processors[1].Name)
	assert.Equal(t, "inner", pass.Processors[1].Outcome)
	assert.Equal(t, "ran", pass.Processors[2].Outcome)
}

func TestStep_CancelledContext(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), e.Frame())
}

func TestRun_MaxFrames(t *testing.T) {
	e := newTestEngine(t, chainSpec(), WithMaxFrames(3), WithFrameInterval(time.Millisecond))

	err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Frame())
}

func TestRun_EditDriven(t *testing.T) {
	e := newTestEngine(t, chainSpec())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool { return e.Frame() == 1 }, time.Second, time.Millisecond)

	e.Enqueue(Set("B.b", 4))
	require.Eventually(t, func() bool { return e.Frame() == 2 }, time.Second, time.Millisecond)

	e.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Equal(t, data.Floats{{60}}, outputFloats(t, e, "C", "out"))
	assert.False(t, e.Enqueue(Dirty("A")), "stopped engine refuses edits")
}

func TestRun_ContextCancel(t *testing.T) {
	e := newTestEngine(t, chainSpec(), WithFrameInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.Frame() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStop_Idempotent(t *testing.T) {
	e := newTestEngine(t, chainSpec())
	e.Stop()
	e.Stop()
	assert.False(t, e.Enqueue(Dirty("A")))
}
