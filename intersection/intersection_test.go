package intersection

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossroads/config"
	"crossroads/lane"
	"crossroads/logging"
	"crossroads/schedule"
	"crossroads/traffic"
)

func newConfig(t *testing.T, opts ...config.Option) *config.Config {
	t.Helper()
	cfg, err := config.New(opts...)
	require.NoError(t, err)
	return cfg
}

func newSchedule(t *testing.T, cars ...traffic.Car) *schedule.Schedule {
	t.Helper()
	s := schedule.New()
	for _, c := range cars {
		require.NoError(t, s.Add(c))
	}
	return s
}

func randomSchedule(t *testing.T, n int, seed uint64) *schedule.Schedule {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	s := schedule.New()
	for id := 1; id <= n; id++ {
		entry := traffic.Direction(rng.IntN(traffic.NumDirections))
		exit := traffic.Direction((int(entry) + 1 + rng.IntN(traffic.NumDirections-1)) % traffic.NumDirections)
		require.NoError(t, s.Add(traffic.Car{ID: id, Entry: entry, Exit: exit}))
	}
	return s
}

// recordingObserver collects contention and drain events.
type recordingObserver struct {
	BaseObserver

	mu        sync.Mutex
	contended []traffic.Quadrant
	drained   []lane.Stats
}

func (o *recordingObserver) OnQuadrantContended(q traffic.Quadrant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.contended = append(o.contended, q)
}

func (o *recordingObserver) OnLaneDrained(stats lane.Stats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drained = append(o.drained, stats)
}

func TestNew_ResourceInitFailure(t *testing.T) {
	t.Parallel()

	_, err := New(nil, [traffic.NumDirections]int{})
	require.ErrorIs(t, err, ErrResourceInit)

	_, err = New(&config.Config{LaneCapacity: 0}, [traffic.NumDirections]int{1, 0, 0, 0})
	require.ErrorIs(t, err, ErrResourceInit)
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "lane North", initErr.Component)

	_, err = New(newConfig(t), [traffic.NumDirections]int{0, 0, -1, 0})
	require.ErrorIs(t, err, ErrResourceInit)
}

func TestNewSimulation_Validation(t *testing.T) {
	t.Parallel()

	uTurn := traffic.Car{ID: 9, Entry: traffic.South, Exit: traffic.South}

	_, err := NewSimulation(newConfig(t), newSchedule(t, uTurn))
	require.ErrorIs(t, err, traffic.ErrInvalidPath)
	assert.ErrorContains(t, err, "car 9")

	_, err = NewSimulation(newConfig(t), nil)
	require.ErrorIs(t, err, ErrResourceInit)

	sim, err := NewSimulation(newConfig(t, config.WithAllowUTurns(true)), newSchedule(t, uTurn))
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []traffic.Car{uTurn}, res.Outputs[traffic.South])
}

func TestSimulation_Scenario(t *testing.T) {
	t.Parallel()

	sched := newSchedule(t,
		traffic.Car{ID: 1, Entry: traffic.North, Exit: traffic.South},
		traffic.Car{ID: 2, Entry: traffic.North, Exit: traffic.South},
		traffic.Car{ID: 3, Entry: traffic.North, Exit: traffic.South},
		traffic.Car{ID: 4, Entry: traffic.East, Exit: traffic.North},
	)
	var out bytes.Buffer
	records := NewRecordWriter(&out)
	recorder := &recordingObserver{}

	sim, err := NewSimulation(newConfig(t, config.WithLaneCapacity(2)), sched, WithObserver(records), WithObserver(recorder))
	require.NoError(t, err)

	ctx := logr.NewContext(context.Background(), logging.NewTestLogger())
	res, err := sim.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, records.Err())
	require.NoError(t, res.Verify(sched))
	assert.NotEmpty(t, res.RunID)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.ElementsMatch(t, []string{"0 2 1", "0 2 2", "0 2 3", "1 0 4"}, lines)

	var north []string
	for _, l := range lines {
		if strings.HasPrefix(l, "0 ") {
			north = append(north, l)
		}
	}
	assert.Equal(t, []string{"0 2 1", "0 2 2", "0 2 3"}, north)

	var fromCrossings []string
	for _, c := range res.Crossings {
		fromCrossings = append(fromCrossings, FormatRecord(c))
	}
	assert.Equal(t, lines, fromCrossings, "record stream must follow crossing order")

	assert.Equal(t, []int{1, 2, 3}, ids(res.Outputs[traffic.South]))
	assert.Equal(t, []int{4}, ids(res.Outputs[traffic.North]))
	assert.Empty(t, res.Outputs[traffic.East])
	assert.Empty(t, res.Outputs[traffic.West])

	assert.Equal(t, 3, res.Lanes[traffic.North].Passed)
	assert.LessOrEqual(t, res.Lanes[traffic.North].MaxOccupancy, 2)
	assert.True(t, res.Lanes[traffic.North].Released)
	assert.Len(t, recorder.drained, traffic.NumDirections)
}

func TestSimulation_SameScheduleSameMembership(t *testing.T) {
	t.Parallel()

	sched := randomSchedule(t, 120, 3)
	cfg := newConfig(t, config.WithLaneCapacity(3), config.WithCrossingJitter(20*time.Microsecond), config.WithSeed(5))

	var outputs [2][traffic.NumDirections][]traffic.Car
	for i := range outputs {
		sim, err := NewSimulation(cfg, sched)
		require.NoError(t, err)
		res, err := sim.Run(context.Background())
		require.NoError(t, err)
		require.NoError(t, res.Verify(sched))
		outputs[i] = res.Outputs
	}

	byID := cmpopts.SortSlices(func(a, b traffic.Car) bool { return a.ID < b.ID })
	if diff := cmp.Diff(outputs[0], outputs[1], byID); diff != "" {
		t.Errorf("Output membership differs between runs (-first +second): %s", diff)
	}
}

func TestStress_NoDeadlock(t *testing.T) {
	t.Parallel()

	sched := randomSchedule(t, 200, 42)
	cfg := newConfig(t, config.WithLaneCapacity(2), config.WithCrossingJitter(30*time.Microsecond), config.WithSeed(1))

	report, err := Stress(context.Background(), cfg, sched, StressOptions{Runs: 16, Parallel: 4, Timeout: 20 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 16, report.Runs)
	assert.Equal(t, 16*200, report.Crossings)
}

func TestStress_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := Stress(context.Background(), newConfig(t), schedule.New(), StressOptions{})
	assert.Error(t, err)
}

func TestCross_ConflictingPathsWait(t *testing.T) {
	t.Parallel()

	recorder := &recordingObserver{}
	x, err := New(newConfig(t), [traffic.NumDirections]int{}, recorder)
	require.NoError(t, err)

	// North -> South holds quadrants 1 and 2.
	held, err := x.planner.ComputePath(traffic.North, traffic.South)
	require.NoError(t, err)
	require.NoError(t, x.acquire(context.Background(), held))

	// East -> West needs quadrants 0 and 1 and must wait for quadrant 1.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = x.Cross(ctx, traffic.Car{ID: 1, Entry: traffic.East, Exit: traffic.West}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []traffic.Quadrant{1}, recorder.contended)
	assert.True(t, x.quadrants[0].TryAcquire(1), "quadrant 0 must be released after a failed acquisition")
	x.quadrants[0].Release(1)

	// East -> North only needs quadrant 0 and crosses right away.
	require.NoError(t, x.Cross(context.Background(), traffic.Car{ID: 2, Entry: traffic.East, Exit: traffic.North}, nil))

	x.release(held)
	require.NoError(t, x.Cross(context.Background(), traffic.Car{ID: 1, Entry: traffic.East, Exit: traffic.West}, nil))
	assert.Equal(t, []int{2, 1}, ids(x.Crossings()))
}

func TestCrossLane_AbortWakesWorkers(t *testing.T) {
	t.Parallel()

	x, err := New(newConfig(t), [traffic.NumDirections]int{2, 0, 0, 0})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- x.CrossLane(context.Background(), traffic.North, nil) }()

	time.Sleep(20 * time.Millisecond)
	x.Abort()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, lane.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("crossing worker stayed blocked after abort")
	}
}

func TestArrive_PendingMismatch(t *testing.T) {
	t.Parallel()

	x, err := New(newConfig(t), [traffic.NumDirections]int{1, 0, 0, 0})
	require.NoError(t, err)
	err = x.Arrive(context.Background(), traffic.North, nil, nil)
	assert.ErrorContains(t, err, "expecting 1")
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	sim, err := NewSimulation(newConfig(t), randomSchedule(t, 50, 9))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := sim.Run(ctx)
	if err != nil {
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
		assert.Nil(t, res)
	}
}

func TestResult_Verify(t *testing.T) {
	t.Parallel()

	a := traffic.Car{ID: 1, Entry: traffic.North, Exit: traffic.South}
	b := traffic.Car{ID: 2, Entry: traffic.North, Exit: traffic.East}
	sched := newSchedule(t, a, b)

	good := &Result{Crossings: []traffic.Car{a, b}}
	good.Outputs[traffic.South] = []traffic.Car{a}
	good.Outputs[traffic.East] = []traffic.Car{b}
	good.Lanes[traffic.North] = lane.Stats{Passed: 2}
	require.NoError(t, good.Verify(sched))

	reordered := &Result{Crossings: []traffic.Car{b, a}, Outputs: good.Outputs, Lanes: good.Lanes}
	assert.ErrorContains(t, reordered.Verify(sched), "out of schedule order")

	misplaced := &Result{Crossings: good.Crossings, Lanes: good.Lanes}
	misplaced.Outputs[traffic.West] = []traffic.Car{a, b}
	assert.ErrorContains(t, misplaced.Verify(sched), "output list of West")

	missing := &Result{Crossings: []traffic.Car{a}}
	missing.Outputs[traffic.South] = []traffic.Car{a}
	missing.Lanes[traffic.North] = lane.Stats{Passed: 1}
	err := missing.Verify(sched)
	assert.ErrorContains(t, err, "never crossed")
	assert.ErrorContains(t, err, "passed 1 of 2")
}

func TestFormatRecord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3 1 17", FormatRecord(traffic.Car{ID: 17, Entry: traffic.West, Exit: traffic.East}))
}

func ids(cars []traffic.Car) []int {
	out := make([]int, 0, len(cars))
	for _, c := range cars {
		out = append(out, c.ID)
	}
	return out
}
