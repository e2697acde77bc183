package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ctxload/resource"
	"github.com/randalmurphal/ctxload/tokens"
)

// text returns content worth exactly n tokens to the estimating counter.
func text(n int) string {
	return strings.Repeat("x", n*4)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoader(t *testing.T, budget int, files map[string]string, opts ...Option) *Loader {
	t.Helper()
	base := []Option{
		WithCounter(tokens.NewEstimatingCounter()),
		WithReader(resource.MapReader(files)),
		WithLogger(discardLogger()),
	}
	l := New(budget, append(base, opts...)...)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func mandatory(locations ...string) []resource.Spec {
	specs := make([]resource.Spec, len(locations))
	for i, loc := range locations {
		specs[i] = resource.Spec{Location: loc, Reason: "required " + loc}
	}
	return specs
}

func bestEffort(locations ...string) []resource.Spec {
	specs := make([]resource.Spec, len(locations))
	for i, loc := range locations {
		specs[i] = resource.Spec{Location: loc, Reason: "helpful " + loc, Tier: resource.BestEffort}
	}
	return specs
}

func locations(r *Report) []string {
	locs := make([]string, len(r.LoadedResources))
	for i, lr := range r.LoadedResources {
		locs[i] = lr.Location
	}
	return locs
}

func assertInvariants(t *testing.T, r *Report) {
	t.Helper()
	sum := 0
	for _, lr := range r.LoadedResources {
		sum += lr.Tokens
		assert.Equal(t, tokens.EstimateTokens(lr.Content), lr.Tokens, "tokens of %s", lr.Location)
	}
	assert.Equal(t, sum, r.TotalTokens)
	assert.LessOrEqual(t, r.TotalTokens, r.Budget)
	assert.True(t, r.WithinBudget)
}

func TestNew_ClampsToCeiling(t *testing.T) {
	l := newTestLoader(t, 200000, nil)
	assert.Equal(t, 150000, l.Budget())

	l = newTestLoader(t, 20000, nil)
	assert.Equal(t, 20000, l.Budget())
}

func TestLoadWithBudget_ScenarioA_AllFit(t *testing.T) {
	l := newTestLoader(t, 20000, map[string]string{"A": text(100), "B": text(500)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("A"),
		BestEffort: bestEffort("B"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, locations(r))
	assert.Equal(t, 600, r.TotalTokens)
	assert.Equal(t, 20000, r.Budget)
	assert.Equal(t, "3.0%", r.UtilizationPercentage)
	assert.True(t, r.WithinBudget)
	assert.Empty(t, r.SkippedLocations)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, resource.Mandatory, r.LoadedResources[0].Tier)
	assert.Equal(t, resource.BestEffort, r.LoadedResources[1].Tier)
	assert.Equal(t, "required A", r.LoadedResources[0].Reason)
	assertInvariants(t, r)
}

func TestLoadWithBudget_ScenarioB_BestEffortSkipped(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(100), "Large": text(5000)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("A"),
		BestEffort: bestEffort("Large"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, locations(r))
	assert.Equal(t, 100, r.TotalTokens)
	assert.Equal(t, []string{"Large"}, r.SkippedLocations)
	assert.True(t, r.Skipped("Large"))
	assert.Contains(t, r.Warnings, "Skipped 1 best-effort resource(s)")
	assertInvariants(t, r)
}

func TestLoadWithBudget_ScenarioC_BudgetExceeded(t *testing.T) {
	l := newTestLoader(t, 100, map[string]string{"Huge": text(5000)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory: mandatory("Huge"),
	}, Options{AllowTruncation: false})

	require.Error(t, err)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	var budgetErr *BudgetError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "Huge", budgetErr.Location)
	assert.Equal(t, 5000, budgetErr.Tokens)
	assert.Equal(t, 100, budgetErr.Remaining)
	assert.Equal(t, 100, budgetErr.Budget)
}

func TestLoadWithBudget_ScenarioD_Truncated(t *testing.T) {
	l := newTestLoader(t, 100, map[string]string{"Huge": text(5000)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory: mandatory("Huge"),
	}, Options{AllowTruncation: true})
	require.NoError(t, err)

	require.Len(t, r.LoadedResources, 1)
	huge := r.LoadedResources[0]
	assert.Equal(t, "Huge", huge.Location)
	assert.True(t, huge.Truncated)
	assert.LessOrEqual(t, huge.Tokens, 100)
	assert.Greater(t, huge.Tokens, 0)
	assert.Equal(t, []string{"Huge"}, r.Truncated())
	assertInvariants(t, r)
}

func TestLoadWithBudget_ScenarioE_EmptyResource(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"Empty": ""})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory: mandatory("Empty"),
	}, Options{})
	require.NoError(t, err)

	require.Len(t, r.LoadedResources, 1)
	assert.Equal(t, "Empty", r.LoadedResources[0].Location)
	assert.Equal(t, 0, r.LoadedResources[0].Tokens)
	assert.Equal(t, "", r.LoadedResources[0].Content)
	assert.False(t, r.LoadedResources[0].Truncated)
}

func TestLoadWithBudget_MandatoryReadFailure(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(10)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("A", "missing"),
		BestEffort: bestEffort("A"),
	}, Options{AllowTruncation: true})

	require.Error(t, err)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	var resErr *ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "missing", resErr.Location)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadWithBudget_ReaderErrorWithoutSentinel(t *testing.T) {
	boom := errors.New("disk on fire")
	reader := resource.ReaderFunc(func(context.Context, string) (string, error) {
		return "", boom
	})
	l := newTestLoader(t, 1000, nil, WithReader(reader))

	_, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})

	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestLoadWithBudget_TruncatesAgainstRemaining(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{
		"A": text(600),
		"B": strings.Repeat("line of mandatory text\n", 200), // 1150 tokens
	})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory: mandatory("A", "B"),
	}, Options{AllowTruncation: true})
	require.NoError(t, err)

	require.Len(t, r.LoadedResources, 2)
	assert.False(t, r.LoadedResources[0].Truncated)
	assert.True(t, r.LoadedResources[1].Truncated)
	assert.LessOrEqual(t, r.LoadedResources[1].Tokens, 400)
	assert.True(t, strings.HasPrefix(r.LoadedResources[1].Content, "line of mandatory text"))
	assertInvariants(t, r)
}

func TestLoadWithBudget_NoBudgetLeftForMandatory(t *testing.T) {
	l := newTestLoader(t, 100, map[string]string{"A": text(100), "B": text(50)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory: mandatory("A", "B"),
	}, Options{AllowTruncation: true})
	require.NoError(t, err)

	require.Len(t, r.LoadedResources, 2, "mandatory resources always appear")
	assert.True(t, r.LoadedResources[1].Truncated)
	assert.Equal(t, "", r.LoadedResources[1].Content)
	assert.Equal(t, 0, r.LoadedResources[1].Tokens)
	assert.Equal(t, "100.0%", r.UtilizationPercentage)
	assertInvariants(t, r)
}

func TestLoadWithBudget_BestEffortReadFailureIsRecovered(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(10), "C": text(10)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("A"),
		BestEffort: bestEffort("gone", "C"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, locations(r))
	assert.Equal(t, []string{"gone"}, r.SkippedLocations)
	require.Len(t, r.Warnings, 2)
	assert.Contains(t, r.Warnings[0], "gone")
	assert.Equal(t, "Skipped 1 best-effort resource(s)", r.Warnings[1])
}

func TestLoadWithBudget_LaterBestEffortStillTried(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{
		"A":     text(100),
		"Large": text(5000),
		"Small": text(50),
		"Mid":   text(900),
	})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("A"),
		BestEffort: bestEffort("Large", "Small", "Mid"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "Small"}, locations(r))
	assert.Equal(t, []string{"Large", "Mid"}, r.SkippedLocations)
	assert.Equal(t, 150, r.TotalTokens)
	assert.Equal(t, 850, r.Remaining())
}

func TestLoadWithBudget_BestEffortNeverTruncated(t *testing.T) {
	l := newTestLoader(t, 100, map[string]string{"A": text(50), "B": text(60)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("A"),
		BestEffort: bestEffort("B"),
	}, Options{AllowTruncation: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, locations(r))
	assert.Equal(t, []string{"B"}, r.SkippedLocations)
	assert.Empty(t, r.Truncated())
}

func TestLoadWithBudget_DuplicateSkipsRecordedOnce(t *testing.T) {
	l := newTestLoader(t, 10, map[string]string{"Big": text(100)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{
		BestEffort: bestEffort("Big", "Big"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Big"}, r.SkippedLocations)
}

func TestLoadWithBudget_HighUtilizationWarning(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(900)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "90.0%", r.UtilizationPercentage)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "High budget utilization: 90.0%")
}

func TestLoadWithBudget_ExactlyEightyPercentDoesNotWarn(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(800)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	require.NoError(t, err)
	assert.Empty(t, r.Warnings)
}

func TestLoadWithBudget_UtilizationRoundsHalfUp(t *testing.T) {
	l := newTestLoader(t, 400, map[string]string{"A": text(49)})

	r, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "12.3%", r.UtilizationPercentage)
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		pct      float64
		expected string
	}{
		{0, "0.0%"},
		{3, "3.0%"},
		{3.75, "3.8%"},
		{12.25, "12.3%"},
		{43.75, "43.8%"},
		{200.0 / 3, "66.7%"},
		{12.24, "12.2%"},
		{100, "100.0%"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatPercent(tt.pct), "formatPercent(%v)", tt.pct)
	}
}

func TestLoadWithBudget_ReadsInOrderOneAtATime(t *testing.T) {
	var (
		mu       sync.Mutex
		order    []string
		inFlight int
	)
	files := resource.MapReader{"m1": text(1), "m2": text(1), "b1": text(1), "b2": text(1)}
	reader := resource.ReaderFunc(func(ctx context.Context, loc string) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			t.Errorf("concurrent read of %s", loc)
		}
		order = append(order, loc)
		mu.Unlock()

		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
		return files.Read(ctx, loc)
	})
	l := newTestLoader(t, 1000, nil, WithReader(reader))

	_, err := l.LoadWithBudget(context.Background(), resource.List{
		Mandatory:  mandatory("m1", "m2"),
		BestEffort: bestEffort("b1", "b2"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2", "b1", "b2"}, order)
}

func TestLoadWithBudget_Deterministic(t *testing.T) {
	files := map[string]string{
		"A":     text(300),
		"B":     strings.Repeat("some line\n", 400),
		"C":     text(20),
		"Large": text(5000),
	}
	list := resource.List{
		Mandatory:  mandatory("A", "B"),
		BestEffort: bestEffort("Large", "C", "missing"),
	}

	load := func() []byte {
		l := newTestLoader(t, 800, files)
		r, err := l.LoadWithBudget(context.Background(), list, Options{AllowTruncation: true})
		require.NoError(t, err)
		data, err := r.JSON()
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, string(load()), string(load()))
}

func TestLoadWithBudget_EncodingFailureFallsBack(t *testing.T) {
	failing := tokens.EncodingFunc(func(string) ([]int, error) {
		return nil, errors.New("tokenizer crashed")
	})
	l := newTestLoader(t, 1000, map[string]string{"A": text(100)},
		WithCounter(tokens.NewEncodingCounter(failing, tokens.WithCounterLogger(discardLogger()))))

	r, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 100, r.TotalTokens)
}

func TestLoadWithBudget_ConcurrentCallsAreIndependent(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(100), "B": text(200)})
	list := resource.List{Mandatory: mandatory("A"), BestEffort: bestEffort("B")}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.LoadWithBudget(context.Background(), list, Options{})
			if assert.NoError(t, err) {
				assert.Equal(t, 300, r.TotalTokens)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 300, l.GenerateLoadReport().TotalTokens)
}

func TestGenerateLoadReport(t *testing.T) {
	l := newTestLoader(t, 1000, map[string]string{"A": text(100), "Huge": text(5000)})

	empty := l.GenerateLoadReport()
	assert.Empty(t, empty.LoadedResources)
	assert.Equal(t, 1000, empty.Budget)
	assert.Equal(t, "0.0%", empty.UtilizationPercentage)
	assert.True(t, empty.WithinBudget)

	r, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, r, l.GenerateLoadReport())

	// A failed load leaves the retained report alone
	_, err = l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("Huge")}, Options{})
	require.Error(t, err)
	assert.Equal(t, r, l.GenerateLoadReport())

	// Callers cannot mutate the retained report
	got := l.GenerateLoadReport()
	got.LoadedResources[0].Location = "changed"
	got.Warnings = append(got.Warnings, "extra")
	assert.Equal(t, "A", l.GenerateLoadReport().LoadedResources[0].Location)
	assert.Empty(t, l.GenerateLoadReport().Warnings)
}

type countingCloser struct {
	tokens.Counter
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestClose(t *testing.T) {
	counter := &countingCloser{Counter: tokens.NewEstimatingCounter()}
	l := New(1000,
		WithCounter(counter),
		WithReader(resource.MapReader{"A": "a"}),
		WithLogger(discardLogger()))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, 1, counter.closes)

	_, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_AfterFailedLoad(t *testing.T) {
	counter := &countingCloser{Counter: tokens.NewEstimatingCounter()}
	l := New(10,
		WithCounter(counter),
		WithReader(resource.MapReader{}),
		WithLogger(discardLogger()))

	_, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("missing")}, Options{})
	require.Error(t, err)

	require.NoError(t, l.Close())
	assert.Equal(t, 1, counter.closes)
}

func TestClose_WaitsForInFlightLoad(t *testing.T) {
	words := tokens.EncodingFunc(func(text string) ([]int, error) {
		return make([]int, len(strings.Fields(text))), nil
	})
	counter := tokens.NewEncodingCounter(words, tokens.WithCounterLogger(discardLogger()))

	entered := make(chan struct{})
	release := make(chan struct{})
	files := resource.MapReader{"A": "one two three four", "B": "five six seven eight nine"}
	reader := resource.ReaderFunc(func(ctx context.Context, loc string) (string, error) {
		if loc == "B" {
			close(entered)
			<-release
		}
		return files.Read(ctx, loc)
	})

	l := New(1000, WithCounter(counter), WithReader(reader), WithLogger(discardLogger()))

	type result struct {
		report *Report
		err    error
	}
	loaded := make(chan result, 1)
	go func() {
		r, err := l.LoadWithBudget(context.Background(), resource.List{
			Mandatory:  mandatory("A"),
			BestEffort: bestEffort("B"),
		}, Options{})
		loaded <- result{r, err}
	}()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- l.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a load was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	res := <-loaded
	require.NoError(t, res.err)
	// Word counts, not the character estimate: the encoding was never released mid-load.
	assert.Equal(t, 9, res.report.TotalTokens)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the load finished")
	}

	_, path := counter.CountWithPath("after close")
	assert.Equal(t, tokens.PathFallback, path)

	_, err := l.LoadWithBudget(context.Background(), resource.List{Mandatory: mandatory("A")}, Options{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecommendations(t *testing.T) {
	l := newTestLoader(t, 1000, nil)

	r := l.Recommendations()
	assert.Equal(t, Recommendations{Simple: 10000, Medium: 20000, Complex: 40000, Architecture: 60000}, r)

	tests := []struct {
		name     string
		expected int
		ok       bool
	}{
		{"simple", 10000, true},
		{"medium", 20000, true},
		{"complex", 40000, true},
		{"architecture", 60000, true},
		{"galactic", 0, false},
	}
	for _, tt := range tests {
		got, ok := RecommendedBudget(tt.name)
		assert.Equal(t, tt.expected, got, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", stateIdle.String())
	assert.Equal(t, "loading_mandatory", stateLoadingMandatory.String())
	assert.Equal(t, "loading_best_effort", stateLoadingBestEffort.String())
	assert.Equal(t, "reporting", stateReporting.String())
	assert.Equal(t, "done", stateDone.String())
	assert.Equal(t, "failed", stateFailed.String())
}

func BenchmarkLoadWithBudget(b *testing.B) {
	files := resource.MapReader{
		"A": strings.Repeat("mandatory line\n", 2000),
		"B": strings.Repeat("reference line\n", 500),
	}
	l := New(5000,
		WithCounter(tokens.NewEstimatingCounter()),
		WithReader(files),
		WithLogger(discardLogger()))
	defer l.Close()
	list := resource.List{Mandatory: mandatory("A"), BestEffort: bestEffort("B")}

	b.ResetTimer()
	for range b.N {
		_, _ = l.LoadWithBudget(context.Background(), list, Options{AllowTruncation: true})
	}
}
