// Package profile loads file-backed time series and resamples them onto the
// simulation grid.
package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"storagesim/internal/simerr"
)

// Interpolation selects how values between samples are derived.
type Interpolation string

const (
	// Linear interpolates between neighbouring samples.
	Linear Interpolation = "linear"
	// Hold keeps a sample's value until the next sample.
	Hold Interpolation = "hold"
)

// Point is one sample of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is an immutable, time-ordered set of samples.
type Series struct {
	name   string
	points []Point
}

// Load reads a CSV profile from disk.
func Load(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	return Read(filepath.Base(path), f)
}

// Read parses "timestamp,value" records. Lines starting with '#' are comments
// and a non-numeric first record is treated as a header. Timestamps are
// RFC 3339 or Unix seconds.
func Read(name string, r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := &Series{name: name}
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("profile %s: line needs timestamp and value, got %q", name, strings.Join(rec, ","))
		}
		ts, tErr := parseTimestamp(rec[0])
		v, vErr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if tErr != nil || vErr != nil {
			if first {
				first = false
				continue
			}
			return nil, fmt.Errorf("profile %s: bad record %q", name, strings.Join(rec, ","))
		}
		first = false
		s.points = append(s.points, Point{Time: ts, Value: v})
	}
	if len(s.points) == 0 {
		return nil, fmt.Errorf("profile %s: no samples: %w", name, simerr.ErrProfileExhausted)
	}
	sort.SliceStable(s.points, func(i, j int) bool { return s.points[i].Time.Before(s.points[j].Time) })
	for i := 1; i < len(s.points); i++ {
		if !s.points[i].Time.After(s.points[i-1].Time) {
			return nil, fmt.Errorf("profile %s: duplicate timestamp %s", name, s.points[i].Time.Format(time.RFC3339))
		}
	}
	return s, nil
}

// FromPoints builds a series from in-memory samples.
func FromPoints(name string, points []Point) (*Series, error) {
	var b strings.Builder
	for _, p := range points {
		fmt.Fprintf(&b, "%d,%s\n", p.Time.Unix(), strconv.FormatFloat(p.Value, 'g', -1, 64))
	}
	return Read(name, strings.NewReader(b.String()))
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// Name returns the profile name (the file's base name when loaded from disk).
func (s *Series) Name() string { return s.name }

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.points) }

// Start returns the first timestamp.
func (s *Series) Start() time.Time { return s.points[0].Time }

// End returns the last timestamp.
func (s *Series) End() time.Time { return s.points[len(s.points)-1].Time }

// Covers reports whether the series spans n steps of length step from start.
func (s *Series) Covers(start time.Time, step time.Duration, n int) error {
	if n <= 0 {
		return nil
	}
	last := start.Add(time.Duration(n-1) * step)
	if start.Before(s.Start()) {
		return fmt.Errorf("profile %s starts at %s, after simulation start %s: %w",
			s.name, s.Start().Format(time.RFC3339), start.Format(time.RFC3339), simerr.ErrProfileExhausted)
	}
	if last.After(s.End()) {
		return fmt.Errorf("profile %s ends at %s, before simulation end %s: %w",
			s.name, s.End().Format(time.RFC3339), last.Format(time.RFC3339), simerr.ErrProfileExhausted)
	}
	return nil
}

// Resample returns n values on the grid start, start+step, ... scaled by scale.
// The series must cover the whole grid.
func (s *Series) Resample(start time.Time, step time.Duration, n int, mode Interpolation, scale float64) ([]float64, error) {
	if n < 0 {
		return nil, simerr.Config("profile", "steps", fmt.Sprintf("must be non-negative, got %d", n))
	}
	if n == 0 {
		return []float64{}, nil
	}
	if err := s.Covers(start, step, n); err != nil {
		return nil, err
	}
	xs := make([]float64, len(s.points))
	ys := make([]float64, len(s.points))
	for i, p := range s.points {
		xs[i] = float64(p.Time.Sub(s.Start())) / float64(time.Second)
		ys[i] = p.Value
	}
	at := func(x float64) float64 { return ys[0] }
	if len(xs) > 1 {
		switch mode {
		case Hold:
			at = func(x float64) float64 {
				i := sort.SearchFloat64s(xs, x)
				if i < len(xs) && xs[i] == x {
					return ys[i]
				}
				return ys[i-1]
			}
		default:
			var pl interp.PiecewiseLinear
			if err := pl.Fit(xs, ys); err != nil {
				return nil, fmt.Errorf("profile %s: %w", s.name, err)
			}
			at = pl.Predict
		}
	}
	out := make([]float64, n)
	offset := float64(start.Sub(s.Start())) / float64(time.Second)
	for i := range out {
		out[i] = at(offset + float64(i)*step.Seconds())
	}
	if scale != 1 {
		floats.Scale(scale, out)
	}
	return out, nil
}

// Cursor iterates a resampled series one step at a time. It can not be
// rewound; build a new one to restart.
type Cursor struct {
	name   string
	values []float64
	pos    int
}

// NewCursor wraps resampled values.
func NewCursor(name string, values []float64) *Cursor {
	return &Cursor{name: name, values: values}
}

// Next returns the value for the current step and advances.
func (c *Cursor) Next() (float64, error) {
	if c.pos >= len(c.values) {
		return 0, fmt.Errorf("profile %s queried at step %d of %d: %w", c.name, c.pos, len(c.values), simerr.ErrProfileExhausted)
	}
	v := c.values[c.pos]
	c.pos++
	return v, nil
}

// Len returns the total number of values.
func (c *Cursor) Len() int { return len(c.values) }

// Remaining returns how many values are still available.
func (c *Cursor) Remaining() int { return len(c.values) - c.pos }

// Validate fails fast when fewer than steps values remain.
func (c *Cursor) Validate(steps int) error {
	if c.Remaining() < steps {
		return fmt.Errorf("profile %s has %d entries for a %d step horizon: %w", c.name, c.Remaining(), steps, simerr.ErrProfileExhausted)
	}
	return nil
}

// Cache shares loaded series between consumers of the same file. It is
// passed explicitly to whoever needs it.
type Cache struct {
	mu     sync.Mutex
	series map[string]*Series
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{series: make(map[string]*Series)}
}

// Load returns the cached series for path, reading it on first use.
func (c *Cache) Load(path string) (*Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.series[path]; ok {
		return s, nil
	}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.series[path] = s
	return s, nil
}

// Len returns the number of cached series.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.series)
}
