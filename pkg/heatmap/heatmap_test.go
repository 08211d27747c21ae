package heatmap

import (
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/stretchr/testify/require"
)

func sum(a *Accumulator) float32 {
	total := float32(0)
	w, h := a.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			total += a.Value(x, y)
		}
	}
	return total
}

func TestDepositDisc(t *testing.T) {
	a := NewAccumulator(100, 100)
	require.NoError(t, a.Deposit(nn.Point{X: 50, Y: 50}, 2))
	// Cells with dx²+dy² <= 4: 1 + 4 + 4 + 4 = 13
	require.EqualValues(t, 13, sum(a))
	require.EqualValues(t, 1, a.Value(50, 50))
	require.EqualValues(t, 1, a.Value(52, 50))
	require.EqualValues(t, 1, a.Value(51, 51))
	require.EqualValues(t, 0, a.Value(52, 52))

	require.NoError(t, a.Deposit(nn.Point{X: 50, Y: 50}, 2))
	require.EqualValues(t, 2, a.Value(50, 50))
}

func TestDepositZeroRadius(t *testing.T) {
	a := NewAccumulator(10, 10)
	require.NoError(t, a.Deposit(nn.Point{X: 3, Y: 4}, 0))
	require.EqualValues(t, 1, sum(a))
	require.EqualValues(t, 1, a.Value(3, 4))
}

func TestDepositNegativeRadius(t *testing.T) {
	a := NewAccumulator(10, 10)
	require.ErrorIs(t, a.Deposit(nn.Point{X: 3, Y: 4}, -1), ErrNegativeRadius)
	require.EqualValues(t, 0, sum(a))
}

func TestDepositClipsToBounds(t *testing.T) {
	a := NewAccumulator(10, 10)
	// Disc at the corner: only the quarter inside the surface is deposited
	require.NoError(t, a.Deposit(nn.Point{X: 0, Y: 0}, 1))
	require.EqualValues(t, 3, sum(a))

	// Entirely outside
	require.NoError(t, a.Deposit(nn.Point{X: -50, Y: 500}, 5))
	require.EqualValues(t, 3, sum(a))

	// Center outside, but disc overlaps
	require.NoError(t, a.Deposit(nn.Point{X: 10, Y: 5}, 1))
	require.EqualValues(t, 4, sum(a))
	require.EqualValues(t, 1, a.Value(9, 5))
}

func TestNormalizeUniformIsCold(t *testing.T) {
	a := NewAccumulator(8, 8)
	for _, v := range a.Normalized() {
		require.EqualValues(t, 0, v)
	}
	img := a.RenderNormalized()
	require.Equal(t, 8, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())
	cold := Color(0)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			require.Equal(t, cold, img.RGBAAt(x, y))
		}
	}
}

func TestNormalizeRange(t *testing.T) {
	a := NewAccumulator(20, 20)
	a.Deposit(nn.Point{X: 10, Y: 10}, 0)
	a.Deposit(nn.Point{X: 10, Y: 10}, 0)
	a.Deposit(nn.Point{X: 5, Y: 5}, 0)
	norm := a.Normalized()
	require.EqualValues(t, 255, norm[10*20+10])
	require.EqualValues(t, 128, norm[5*20+5])
	require.EqualValues(t, 0, norm[0])

	img := a.RenderNormalized()
	require.Equal(t, Color(255), img.RGBAAt(10, 10))
	require.NotEqual(t, Color(0), Color(255))
}

func rawCells(a *Accumulator) []float32 {
	w, h := a.Size()
	cells := make([]float32, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cells = append(cells, a.Value(x, y))
		}
	}
	return cells
}

// For every cell touched by a deposit, and every cell that was not touched, the
// order of their rendered values is preserved, and the gap between them does not
// shrink by more than the error of rounding to 8 bits. This must hold even when
// the deposit raises the global max and rescales the whole surface.
func TestNormalizeMonotonic(t *testing.T) {
	const w, h = 24, 16
	for seed := int64(1); seed <= 8; seed++ {
		rng := rand.New(rand.NewSource(seed))
		a := NewAccumulator(w, h)
		raisedMax := false
		for step := 0; step < 40; step++ {
			beforeRaw := rawCells(a)
			before := a.Normalized()

			var center nn.Point
			if step%5 == 4 {
				// Deposit on the hottest cell
				hot := 0
				for i, v := range beforeRaw {
					if v > beforeRaw[hot] {
						hot = i
					}
				}
				center = nn.Point{X: hot % w, Y: hot / w}
			} else {
				center = nn.Point{X: rng.Intn(w+4) - 2, Y: rng.Intn(h+4) - 2}
			}
			require.NoError(t, a.Deposit(center, rng.Intn(4)))

			afterRaw := rawCells(a)
			after := a.Normalized()
			if slices.Max(afterRaw) > slices.Max(beforeRaw) && slices.Max(beforeRaw) > 0 {
				raisedMax = true
			}
			for d := range afterRaw {
				if afterRaw[d] == beforeRaw[d] {
					continue
				}
				for u := range afterRaw {
					if afterRaw[u] != beforeRaw[u] || beforeRaw[d] < beforeRaw[u] {
						continue
					}
					if after[d] < after[u] {
						t.Fatalf("seed %v step %v: deposited cell %v rendered %v, below untouched cell %v at %v", seed, step, d, after[d], u, after[u])
					}
					gapBefore := int(before[d]) - int(before[u])
					gapAfter := int(after[d]) - int(after[u])
					if gapAfter < gapBefore-2 {
						t.Fatalf("seed %v step %v: gap between cells %v and %v shrank from %v to %v", seed, step, d, u, gapBefore, gapAfter)
					}
				}
			}
		}
		require.True(t, raisedMax, "seed %v never raised the global max", seed)
	}
}

func TestDecayAndReset(t *testing.T) {
	a := NewAccumulator(4, 4)
	a.Deposit(nn.Point{X: 1, Y: 1}, 0)
	a.Decay(0.5)
	require.EqualValues(t, 0.5, a.Value(1, 1))
	a.Decay(1.5) // ignored
	require.EqualValues(t, 0.5, a.Value(1, 1))
	a.Reset()
	require.EqualValues(t, 0, sum(a))
}

func TestRadiusForBox(t *testing.T) {
	s := DefaultSettings()
	require.Equal(t, 5, s.RadiusForBox(nn.Box{X1: 0, Y1: 0, X2: 10, Y2: 30}))
	require.Equal(t, 0, s.RadiusForBox(nn.Box{X1: 0, Y1: 0, X2: 0, Y2: 30}))
	require.False(t, s.DecayEnabled())
	s.DecayFactor = 0.99
	require.True(t, s.DecayEnabled())
}

func TestConcurrentDeposit(t *testing.T) {
	a := NewAccumulator(50, 50)
	wg := sync.WaitGroup{}
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				a.Deposit(nn.Point{X: 25, Y: 25}, 0)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 800, a.Value(25, 25))
}
