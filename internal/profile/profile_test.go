package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagesim/internal/simerr"
)

const sample = `# load profile
timestamp,power
0,0
60,60
120,120
`

func TestReadSkipsHeaderAndComments(t *testing.T) {
	s, err := Read("load.csv", strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, time.Unix(0, 0).UTC(), s.Start())
	assert.Equal(t, time.Unix(120, 0).UTC(), s.End())
}

func TestReadRFC3339(t *testing.T) {
	in := "2024-01-01T00:00:00Z,1\n2024-01-01T01:00:00Z,2\n"
	s, err := Read("t.csv", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestReadRejectsBadRecord(t *testing.T) {
	_, err := Read("bad.csv", strings.NewReader("0,1\nfoo,bar\n"))
	require.Error(t, err)
}

func TestReadEmptyIsExhausted(t *testing.T) {
	_, err := Read("empty.csv", strings.NewReader("# nothing\n"))
	require.ErrorIs(t, err, simerr.ErrProfileExhausted)
}

func TestResampleLinearAndHold(t *testing.T) {
	s, err := Read("load.csv", strings.NewReader(sample))
	require.NoError(t, err)
	start := time.Unix(0, 0).UTC()

	lin, err := s.Resample(start, 30*time.Second, 5, Linear, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 30, 60, 90, 120}, lin, 1e-9)

	hold, err := s.Resample(start, 30*time.Second, 5, Hold, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 120, 120, 240}, hold, 1e-9)
}

func TestResampleShortProfileFailsFast(t *testing.T) {
	s, err := Read("load.csv", strings.NewReader(sample))
	require.NoError(t, err)
	_, err = s.Resample(time.Unix(0, 0).UTC(), time.Minute, 4, Linear, 1)
	require.ErrorIs(t, err, simerr.ErrProfileExhausted)

	_, err = s.Resample(time.Unix(-60, 0).UTC(), time.Minute, 2, Linear, 1)
	require.ErrorIs(t, err, simerr.ErrProfileExhausted)
}

func TestResampleEmptyAndNegativeGrid(t *testing.T) {
	s, err := Read("load.csv", strings.NewReader(sample))
	require.NoError(t, err)
	vals, err := s.Resample(time.Unix(0, 0).UTC(), time.Minute, 0, Linear, 1)
	require.NoError(t, err)
	assert.Empty(t, vals)

	_, err = s.Resample(time.Unix(0, 0).UTC(), time.Minute, -3, Hold, 1)
	require.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestCursor(t *testing.T) {
	c := NewCursor("p", []float64{1, 2})
	require.NoError(t, c.Validate(2))
	require.ErrorIs(t, c.Validate(3), simerr.ErrProfileExhausted)

	v, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	v, err = c.Next()
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	_, err = c.Next()
	require.ErrorIs(t, err, simerr.ErrProfileExhausted)
	assert.Equal(t, 0, c.Remaining())
}

func TestCacheLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "load.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c := NewCache()
	a, err := c.Load(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	b, err := c.Load(path)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())

	_, err = c.Load(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}

func TestFromPoints(t *testing.T) {
	s, err := FromPoints("mem", []Point{{Time: time.Unix(10, 0), Value: 1}, {Time: time.Unix(20, 0), Value: 3}})
	require.NoError(t, err)
	vals, err := s.Resample(time.Unix(10, 0).UTC(), 5*time.Second, 3, Linear, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, vals, 1e-9)
	assert.False(t, errors.Is(err, simerr.ErrProfileExhausted))
}
