package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"geo-fence/internal/cache"
	"geo-fence/internal/fence"
	"geo-fence/internal/geodb"
	"geo-fence/internal/logger"
	"geo-fence/internal/middleware"
	"geo-fence/internal/store"
	"geo-fence/internal/tenant"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = `acme.com 100 G 40.7128 -74.0060
pune.example 0 C Pune
`

type fakeGeo struct{}

func (fakeGeo) Locate(_ context.Context, addr string) (geodb.Result, bool) {
	switch geodb.ParseAddr(addr).String() {
	case "103.1.1.1":
		return geodb.Result{Country: "IN", City: "Pune"}, true
	case "8.8.8.8":
		return geodb.Result{Country: "US", City: "Mountain View"}, true
	}
	return geodb.Result{}, false
}

func (fakeGeo) Match(_ context.Context, addr string) (geodb.Match, bool) {
	if addr == "103.1.1.1" {
		return geodb.Match{IP: addr, CountryCode: "IN", City: "Pune", Netmask: "24"}, true
	}
	return geodb.Match{}, false
}

type fixture struct {
	h       http.Handler
	holder  *tenant.Holder
	reloads int
}

func newFixture(t *testing.T, reloadErr error) *fixture {
	t.Helper()
	return newFixtureWith(t, reloadErr, nil)
}

func newFixtureWith(t *testing.T, reloadErr error, with func(*Deps)) *fixture {
	t.Helper()
	logger.Set(logger.New(&bytes.Buffer{}, "error", "text"))
	dir, err := tenant.LoadReader(strings.NewReader(table), "test")
	require.NoError(t, err)
	f := &fixture{holder: tenant.NewHolder(dir)}
	eng := fence.New(f.holder, fakeGeo{}, fence.Options{})
	d := Deps{
		Engine:           eng,
		Holder:           f.holder,
		Matcher:          fakeGeo{},
		AdminToken:       "s3cret",
		GeohashPrecision: 12,
		Reload: func(context.Context) error {
			f.reloads++
			if reloadErr != nil {
				return reloadErr
			}
			f.holder.Swap(dir)
			return nil
		},
	}
	if with != nil {
		with(&d)
	}
	mux := BuildRoutes(d)
	f.h = middleware.Wrap(mux, middleware.Options{})
	return f
}

func (f *fixture) do(t *testing.T, method, url string, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(method, url, nil)
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, r)
	var m map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	}
	return rec, m
}

func TestTenantFilterEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec, m := f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com&target=103.1.1.1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, m["result"])
	assert.Equal(t, "allow", m["verdict"])
	assert.Equal(t, "country_ok", m["reason"])
	assert.Equal(t, false, m["cached"])

	_, m = f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.0.0.1"})
	assert.Equal(t, -1.0, m["result"])
	assert.Equal(t, "country", m["reason"])
	assert.Equal(t, "8.8.8.8", m["target"])

	rec, m = f.do(t, http.MethodGet, "/geoip2_filter?target=103.1.1.1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, -2.0, m["result"])
	assert.Contains(t, m["error"], "realm")
}

func TestLocFilterGeoSources(t *testing.T) {
	f := newFixture(t, nil)

	_, m := f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1&geo=40.73+-73.99", nil)
	assert.Equal(t, "allow", m["verdict"])
	assert.Equal(t, "40.7128 -74.0060", m["matched"])

	_, m = f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1", map[string]string{"X-Geo": "51.5074 -0.1278"})
	assert.Equal(t, "block", m["verdict"])
	assert.Equal(t, "no_match", m["reason"])

	_, m = f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1", map[string]string{
		"X-EO-Geo-Latitude":  "40.72",
		"X-EO-Geo-Longitude": "-74.0",
	})
	assert.Equal(t, "allow", m["verdict"])

	rec, m := f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, -2.0, m["result"])

	_, m = f.do(t, http.MethodGet, "/geo_fence_allow?realm=pune.example&target=103.1.1.1", nil)
	assert.Equal(t, "allow", m["verdict"])
	assert.Equal(t, "Pune", m["matched"])
}

func TestMatchEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, m := f.do(t, http.MethodGet, "/match?target=103.1.1.1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IN", m["cc"])
	assert.Equal(t, "24", m["nmask"])

	rec, _ = f.do(t, http.MethodGet, "/match?target=10.0.0.1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/tenants", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/tenants", map[string]string{"x-admin-token": "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, m := f.do(t, http.MethodGet, "/tenants", map[string]string{"x-admin-token": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, m["enabled"])
	assert.Equal(t, 2.0, m["count"])
	tenants := m["tenants"].([]any)
	require.Len(t, tenants, 2)
	assert.Equal(t, "acme.com", tenants[0].(map[string]any)["realm"])
	assert.Equal(t, "radial", tenants[0].(map[string]any)["fence"])

	rec, _ = f.do(t, http.MethodGet, "/reload", map[string]string{"x-admin-token": "s3cret"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, m = f.do(t, http.MethodPost, "/reload", map[string]string{"x-admin-token": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, m["generation"])
	assert.Equal(t, 1, f.reloads)
}

func TestReloadFailureKeepsGeneration(t *testing.T) {
	f := newFixture(t, errors.New("tbl:3: malformed tenant line"))
	rec, m := f.do(t, http.MethodPost, "/reload", map[string]string{"x-admin-token": "s3cret"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1.0, m["generation"])
}

func TestStatsAndHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, m := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", m["status"])
	assert.Equal(t, "IN", m["allowed_country"])
	assert.Equal(t, 2.0, m["tenants"])
}

type statsRow struct {
	realm, filter, reason string
	verdict               int
}

type memStats struct {
	mu   sync.Mutex
	rows []statsRow
}

func (m *memStats) RecordDecision(_ context.Context, realm, filter string, verdict int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, statsRow{realm: realm, filter: filter, verdict: verdict, reason: reason})
	return nil
}

func newCachedFixture(t *testing.T) (*fixture, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	f := newFixtureWith(t, nil, func(d *Deps) {
		d.Verdicts = cache.NewVerdicts(rc, time.Minute)
		d.Seen = cache.NewSeen(rc, time.Hour)
	})
	return f, mr
}

func verdictKeys(mr *miniredis.Miniredis) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "fence:geo") {
			out = append(out, k)
		}
	}
	return out
}

func TestVerdictCacheHitAndMiss(t *testing.T) {
	f, mr := newCachedFixture(t)

	_, m := f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com&target=103.1.1.1", nil)
	assert.Equal(t, "allow", m["verdict"])
	assert.Equal(t, false, m["cached"])
	assert.Len(t, verdictKeys(mr), 1)

	_, m = f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com&target=103.1.1.1", nil)
	assert.Equal(t, "allow", m["verdict"])
	assert.Equal(t, true, m["cached"])

	_, m = f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com&target=8.8.8.8", nil)
	assert.Equal(t, "block", m["verdict"])
	assert.Equal(t, false, m["cached"])

	_, m = f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1&geo=40.73+-73.99", nil)
	assert.Equal(t, false, m["cached"])
	_, m = f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1&geo=40.73+-73.99", nil)
	assert.Equal(t, true, m["cached"])
	assert.Equal(t, "allow", m["verdict"])

	_, m = f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1&geo=51.5074+-0.1278", nil)
	assert.Equal(t, false, m["cached"])
	assert.Equal(t, "block", m["verdict"])
	assert.Len(t, verdictKeys(mr), 4)
}

func TestVerdictCacheSkipsInputErrors(t *testing.T) {
	f, mr := newCachedFixture(t)
	for i := 0; i < 2; i++ {
		rec, m := f.do(t, http.MethodGet, "/geo_fence_allow?realm=acme.com&target=103.1.1.1&geo=north", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, -2.0, m["result"])
	}
	rec, _ := f.do(t, http.MethodGet, "/geoip2_filter?target=103.1.1.1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, verdictKeys(mr))
}

func TestVerdictCacheInvalidatedByReload(t *testing.T) {
	f, _ := newCachedFixture(t)
	url := "/geoip2_filter?realm=acme.com&target=103.1.1.1"
	f.do(t, http.MethodGet, url, nil)
	_, m := f.do(t, http.MethodGet, url, nil)
	require.Equal(t, true, m["cached"])

	rec, _ := f.do(t, http.MethodPost, "/reload", map[string]string{"x-admin-token": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, m = f.do(t, http.MethodGet, url, nil)
	assert.Equal(t, false, m["cached"])
	_, m = f.do(t, http.MethodGet, url, nil)
	assert.Equal(t, true, m["cached"])
}

func TestVerdictCacheRealmTargetBoundary(t *testing.T) {
	f, _ := newCachedFixture(t)

	// 带端口的 target 解析为 103.1.1.1；拼接后与第二个请求的 realm:target 文本相同
	_, m := f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com&target=103.1.1.1:5.6.7.8", nil)
	require.Equal(t, "allow", m["verdict"])

	_, m = f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com:103.1.1.1&target=5.6.7.8", nil)
	assert.Equal(t, "block", m["verdict"])
	assert.Equal(t, "unknown_tenant", m["reason"])
	assert.Equal(t, false, m["cached"])
}

func TestStatsRecordedWithUnknownRealmBucket(t *testing.T) {
	w := &memStats{}
	rec := store.NewRecorder(w, 16, 1)
	f := newFixtureWith(t, nil, func(d *Deps) { d.Stats = rec })

	f.do(t, http.MethodGet, "/geoip2_filter?realm=acme.com&target=103.1.1.1", nil)
	f.do(t, http.MethodGet, "/geoip2_filter?realm=ghost-1.example&target=103.1.1.1", nil)
	f.do(t, http.MethodGet, "/geoip2_filter?realm=ghost-2.example&target=103.1.1.1", nil)
	f.do(t, http.MethodGet, "/geoip2_filter?target=103.1.1.1", nil)
	rec.Close()

	require.Len(t, w.rows, 3)
	assert.Contains(t, w.rows, statsRow{realm: "acme.com", filter: fence.FilterTenant, verdict: 1, reason: "country_ok"})
	unknown := 0
	for _, r := range w.rows {
		if r.realm == store.UnknownRealm {
			unknown++
			assert.Equal(t, "unknown_tenant", r.reason)
		}
	}
	assert.Equal(t, 2, unknown)
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		url  string
		hdr  map[string]string
		want string
	}{
		{"/?target=1.1.1.1", map[string]string{"X-Forwarded-For": "2.2.2.2"}, "1.1.1.1"},
		{"/", map[string]string{"X-Forwarded-For": " 2.2.2.2 , 3.3.3.3"}, "2.2.2.2"},
		{"/", map[string]string{"X-Real-IP": "4.4.4.4"}, "4.4.4.4"},
		{"/", map[string]string{"Forwarded": `for="5.5.5.5";proto=https`}, "5.5.5.5"},
		{"/", nil, "192.0.2.1"},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, c.url, nil)
		for k, v := range c.hdr {
			r.Header.Set(k, v)
		}
		assert.Equal(t, c.want, getClientIP(r), c.url)
	}
}
