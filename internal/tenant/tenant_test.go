package tenant

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geo-fence/internal/geomath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `# realm radius type locations
acme.com 100 G 40.7128 -74.0060,34.0522 -118.2437
globex.com 0 C Boston, Cambridge
	initech.com   25.5   G   12.9716 77.5946
`

func TestHashDeterministic(t *testing.T) {
	assert.Equal(t, uint32(261), Hash(""))
	assert.Equal(t, uint32(6), Hash("a"))
	assert.Equal(t, uint32(168), Hash("acme.com"))
	assert.Equal(t, Hash("acme.com"), Hash("acme.com"))
	for _, r := range []string{"", "x", strings.Repeat("z", 1000)} {
		assert.Less(t, Hash(r), uint32(Capacity))
	}
}

func TestTrimCopy(t *testing.T) {
	for in, want := range map[string]string{" boston ": "boston", "boston": "boston", "\tNew Delhi\t ": "New Delhi"} {
		got, err := TrimCopy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := TrimCopy("   ")
	assert.ErrorIs(t, err, ErrEmptyLocation)

	_, err = TrimCopy(" " + strings.Repeat("a", MaxLocationLen) + " ")
	assert.NoError(t, err)
	_, err = TrimCopy(strings.Repeat("a", MaxLocationLen+1))
	assert.ErrorIs(t, err, ErrLocationTooLong)
}

func TestParseLocations(t *testing.T) {
	got, err := ParseLocations(" Boston ,Cambridge,  New York")
	require.NoError(t, err)
	assert.Equal(t, []string{"Boston", "Cambridge", "New York"}, got)

	got, err = ParseLocations("40.7128 -74.0060, 34.0522 -118.2437")
	require.NoError(t, err)
	assert.Equal(t, []string{"40.7128 -74.0060", "34.0522 -118.2437"}, got)

	_, err = ParseLocations("a,b,c,d,e")
	assert.NoError(t, err)
	_, err = ParseLocations("a,b,c,d,e,f")
	assert.ErrorIs(t, err, ErrTooManyLocations)
	_, err = ParseLocations("a,,b")
	assert.ErrorIs(t, err, ErrEmptyLocation)
}

func TestLoadReader(t *testing.T) {
	d, err := LoadReader(strings.NewReader(sampleTable), "sample")
	require.NoError(t, err)
	require.True(t, d.Enabled())
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []string{"acme.com", "globex.com", "initech.com"}, d.Realms())

	acme, ok := d.Lookup("acme.com")
	require.True(t, ok)
	assert.Equal(t, Radial, acme.Fence)
	assert.Equal(t, byte('G'), acme.Code)
	assert.Equal(t, 100.0, acme.RadiusKm)
	assert.Equal(t, []geomath.Coordinate{{Lat: 40.7128, Lon: -74.0060}, {Lat: 34.0522, Lon: -118.2437}}, acme.Points)
	assert.Equal(t, Hash("acme.com"), acme.Slot)

	globex, ok := d.Lookup("globex.com")
	require.True(t, ok)
	assert.Equal(t, CityList, globex.Fence)
	assert.Equal(t, []string{"Boston", "Cambridge"}, globex.Locations)
	assert.Nil(t, globex.Points)

	initech, ok := d.Lookup("initech.com")
	require.True(t, ok)
	assert.Equal(t, 25.5, initech.RadiusKm)

	_, ok = d.Lookup("unknown.com")
	assert.False(t, ok)
}

func TestLoadReaderMalformed(t *testing.T) {
	longLoc := "acme.com 10 C " + strings.Repeat("x", 200) + "\n"
	cases := map[string]error{
		"acme.com 100\n":                     ErrMalformedLine,
		"acme.com 100 G\n":                   ErrMalformedLine,
		"acme.com abc G 1 2\n":               ErrMalformedLine,
		"acme.com 100 GG 1 2\n":              ErrMalformedLine,
		"acme.com 0 G 1 2\n":                 ErrMalformedLine,
		"acme.com 10 G 40.7\n":               ErrMalformedLine,
		"acme.com 10 C a,b,c,d,e,f\n":        ErrTooManyLocations,
		"acme.com 10 C a\nacme.com 10 C b\n": ErrDuplicateRealm,
		longLoc:                              ErrLocationTooLong,
	}
	for in, want := range cases {
		_, err := LoadReader(strings.NewReader(in), "t")
		require.Error(t, err, in)
		assert.ErrorIs(t, err, want, in)
		var ce *ConfigError
		require.True(t, errors.As(err, &ce))
		assert.Greater(t, ce.Line, 0)
		assert.Equal(t, "t", ce.Path)
	}
}

func TestLoadReaderReportsLineNumber(t *testing.T) {
	in := "# header\n\nacme.com 100 G 1 2\nbroken\n"
	_, err := LoadReader(strings.NewReader(in), "tbl")
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4, ce.Line)
	assert.Contains(t, err.Error(), "tbl:4")
}

func TestLoadReaderLineTooLong(t *testing.T) {
	in := "acme.com 10 C " + strings.Repeat("x", MaxLineLen) + "\n"
	_, err := LoadReader(strings.NewReader(in), "t")
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestLoadDisabledAndUnreadable(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)
	assert.False(t, d.Enabled())
	_, ok := d.Lookup("acme.com")
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestLoadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tenants.txt")
	require.NoError(t, os.WriteFile(p, []byte(sampleTable), 0o644))
	d, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, p, d.Source())
	assert.Equal(t, 3, d.Len())
}

func TestCollidingRealmsBothKept(t *testing.T) {
	// t120.example 与 t201.example 的 DJB2 槽位均为 390
	require.Equal(t, Hash("t120.example"), Hash("t201.example"))
	in := "t120.example 10 C Pune\nt201.example 10 C Delhi\n"
	d, err := LoadReader(strings.NewReader(in), "t")
	require.NoError(t, err)

	a, ok := d.Lookup("t120.example")
	require.True(t, ok)
	assert.Equal(t, []string{"Pune"}, a.Locations)
	b, ok := d.Lookup("t201.example")
	require.True(t, ok)
	assert.Equal(t, []string{"Delhi"}, b.Locations)

	assert.Equal(t, map[uint32][]string{390: {"t120.example", "t201.example"}}, d.Collisions())
}

func TestHolderSwapAndReload(t *testing.T) {
	h := NewHolder(nil)
	d, gen := h.Load()
	assert.False(t, d.Enabled())
	assert.Equal(t, uint64(1), gen)

	p := filepath.Join(t.TempDir(), "tenants.txt")
	require.NoError(t, os.WriteFile(p, []byte(sampleTable), 0o644))
	_, err := h.Reload(p)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.Generation())
	assert.Equal(t, 3, h.Directory().Len())

	// 失败的重载保留旧目录
	require.NoError(t, os.WriteFile(p, []byte("broken\n"), 0o644))
	_, err = h.Reload(p)
	require.Error(t, err)
	assert.Equal(t, uint64(2), h.Generation())
	assert.Equal(t, 3, h.Directory().Len())

	old := h.Swap(Disabled())
	assert.Equal(t, 3, old.Len())
	assert.False(t, h.Directory().Enabled())
}
