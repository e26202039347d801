package geodb

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	cases := map[string]string{
		"1.2.3.4":         "1.2.3.4",
		" 1.2.3.4 ":       "1.2.3.4",
		"1.2.3.4:5060":    "1.2.3.4",
		"[2001:db8::1]":   "2001:db8::1",
		"[2001:db8::1]:5": "2001:db8::1",
		"2001:db8::1":     "2001:db8::1",
	}
	for in, want := range cases {
		ip := ParseAddr(in)
		require.NotNil(t, ip, in)
		assert.Equal(t, want, ip.String(), in)
	}
	assert.Nil(t, ParseAddr("sip.example.com"))
	assert.Nil(t, ParseAddr(""))
}

func TestChainFirstHitWins(t *testing.T) {
	ctx := context.Background()
	ov := NewOverrides(map[string]Result{"10.0.0.1": {Country: "IN", City: "Pune"}})
	fallback := LocatorFunc(func(_ context.Context, addr string) (Result, bool) {
		if addr == "10.0.0.1" || addr == "10.0.0.2" {
			return Result{Country: "US", City: "Boston"}, true
		}
		return Result{}, false
	})
	c := NewChain(nil, ov, fallback)

	r, ok := c.Locate(ctx, "10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, "Pune", r.City)

	r, ok = c.Locate(ctx, "10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, "Boston", r.City)

	_, ok = c.Locate(ctx, "10.0.0.3")
	assert.False(t, ok)

	_, ok = c.Match(ctx, "10.0.0.1")
	assert.False(t, ok)
}

func TestOverridesCanonicalKeys(t *testing.T) {
	o := NewOverrides(map[string]Result{
		"2001:0db8:0000::0001": {Country: "DE"},
		"not-an-ip":            {Country: "XX"},
	})
	assert.Equal(t, 1, o.Len())
	r, ok := o.Locate(context.Background(), "[2001:db8::1]:5060")
	require.True(t, ok)
	assert.Equal(t, "DE", r.Country)

	var nilOv *Overrides
	_, ok = nilOv.Locate(context.Background(), "1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, 0, nilOv.Len())
}

type fakeMatcher struct {
	LocatorFunc
	m Match
}

func (f fakeMatcher) Match(context.Context, string) (Match, bool) { return f.m, true }

func TestDynamicSwap(t *testing.T) {
	ctx := context.Background()
	d := &Dynamic{}
	_, ok := d.Locate(ctx, "1.1.1.1")
	assert.False(t, ok)
	_, ok = d.Match(ctx, "1.1.1.1")
	assert.False(t, ok)

	a := LocatorFunc(func(context.Context, string) (Result, bool) { return Result{Country: "IN"}, true })
	assert.Nil(t, d.Set(a))
	r, ok := d.Locate(ctx, "1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, "IN", r.Country)

	b := fakeMatcher{
		LocatorFunc: func(context.Context, string) (Result, bool) { return Result{Country: "US"}, true },
		m:           Match{CountryCode: "US"},
	}
	old := d.Set(b)
	assert.NotNil(t, old)
	r, _ = d.Locate(ctx, "1.1.1.1")
	assert.Equal(t, "US", r.Country)
	m, ok := d.Match(ctx, "1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, "US", m.CountryCode)
}

func TestMatchFromCity(t *testing.T) {
	var rec geoip2.City
	rec.Country.IsoCode = "US"
	rec.Country.Names = map[string]string{"en": "United States"}
	rec.City.Names = map[string]string{"en": "Boston"}
	rec.Continent.Code = "NA"
	rec.Postal.Code = "02108"
	rec.Location.Latitude = 42.3601
	rec.Location.Longitude = -71.0589
	rec.Location.TimeZone = "America/New_York"
	rec.Location.MetroCode = 506
	rec.Location.AccuracyRadius = 10

	_, network, err := net.ParseCIDR("1.2.3.0/24")
	require.NoError(t, err)
	m := matchFromCity(net.ParseIP("1.2.3.4"), network, &rec)
	assert.Equal(t, Match{
		IP:          "1.2.3.4",
		CountryCode: "US",
		Country:     "United States",
		City:        "Boston",
		Zip:         "02108",
		TimeZone:    "America/New_York",
		Lat:         "42.3601",
		Lon:         "-71.0589",
		Metro:       "506",
		Continent:   "NA",
		Netmask:     "24",
	}, m)
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
	_, err = Open("")
	assert.Error(t, err)
}
