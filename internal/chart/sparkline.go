// Package chart generates synthetic trend data for the markets screen.
// There is no price history behind it; every call draws a fresh random walk.
package chart

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultPoints is the sparkline resolution.
	DefaultPoints = 20

	floor = 10.0
	ceil  = 100.0
)

// Generator draws synthetic series from its random source. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator. A nil rng uses a randomly seeded one.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rng: rng}
}

// Series is a random walk of n values clamped to [10, 100].
func (g *Generator) Series(n int) []float64 {
	if n <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]float64, n)
	v := 50 + g.rng.Float64()*50
	for i := range out {
		v += (g.rng.Float64() - 0.5) * 10
		v = max(floor, min(ceil, v))
		out[i] = v
	}
	return out
}

// Change is a synthetic percentage move in [-5, 5).
func (g *Generator) Change() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (g.rng.Float64() - 0.5) * 10
}

// Polyline maps values onto a 100x100 viewBox as SVG polyline points.
// The lowest value sits at y=100; a flat series is drawn through the middle.
func Polyline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo

	var b strings.Builder
	for i, v := range values {
		x := 0.0
		if len(values) > 1 {
			x = float64(i) / float64(len(values)-1) * 100
		}
		y := 50.0
		if span > 0 {
			y = 100 - (v-lo)/span*100
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(format(x))
		b.WriteByte(',')
		b.WriteString(format(y))
	}
	return b.String()
}

// Area closes a polyline along the bottom edge for a filled shape.
func Area(points string) string {
	if points == "" {
		return ""
	}
	return "0,100 " + points + " 100,100"
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
