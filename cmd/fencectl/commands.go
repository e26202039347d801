package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"geo-fence/internal/fence"
	"geo-fence/internal/geodb"
	"geo-fence/internal/geomath"
	"geo-fence/internal/logger"
	"geo-fence/internal/migrate"
	"geo-fence/internal/store"
	"geo-fence/internal/tenant"
	"geo-fence/internal/utils"

	"github.com/golang/geo/s2"
	"github.com/spf13/cobra"
)

// s2 距离对照使用的地球平均半径（公里）
const earthRadiusKm = 6371.0

type options struct {
	out     io.Writer
	verbose bool

	unit    string
	table   string
	dbPaths []string
	realm   string
	target  string
	geo     string
	country string

	ovCountry string
	ovCity    string
	ovLat     string
	ovLon     string
	limit     int
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{out: out}
	root := &cobra.Command{
		Use:           "fencectl",
		Short:         "Operator tool for the tenant geofencing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if o.verbose {
				level = "debug"
			}
			logger.Set(logger.New(cmd.ErrOrStderr(), level, "text"))
		},
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Verbose output")

	validateCmd := &cobra.Command{
		Use:   "validate <table>",
		Short: "Parse a tenant table and report tenants and slot collisions",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return o.runValidate(args[0]) },
	}

	distanceCmd := &cobra.Command{
		Use:   "distance <lat1> <lon1> <lat2> <lon2>",
		Short: "Great-circle distance between two points",
		Args:  cobra.ExactArgs(4),
		RunE:  func(cmd *cobra.Command, args []string) error { return o.runDistance(args) },
	}
	distanceCmd.Flags().StringVarP(&o.unit, "unit", "u", "K", "Unit: M (miles), K (kilometres), N (nautical miles)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a request offline against a tenant table and geo database",
		RunE:  func(cmd *cobra.Command, args []string) error { return o.runCheck(cmd.Context()) },
	}
	checkCmd.Flags().StringVarP(&o.table, "table", "t", "", "Tenant table path")
	checkCmd.Flags().StringSliceVarP(&o.dbPaths, "db", "d", nil, "Geo database path (repeatable, checked in order)")
	checkCmd.Flags().StringVarP(&o.realm, "realm", "r", "", "Tenant realm")
	checkCmd.Flags().StringVar(&o.target, "target", "", "Source address")
	checkCmd.Flags().StringVarP(&o.geo, "geo", "g", "", "Inbound \"lat long\"; runs geo_fence_allow instead of geoip2_filter")
	checkCmd.Flags().StringVar(&o.country, "country", fence.DefaultAllowedCountry, "Allowed country code")
	_ = checkCmd.MarkFlagRequired("db")
	_ = checkCmd.MarkFlagRequired("realm")
	_ = checkCmd.MarkFlagRequired("target")

	matchCmd := &cobra.Command{
		Use:   "match <target>",
		Short: "Print the full geo record for an address",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return o.runMatch(cmd.Context(), args[0]) },
	}
	matchCmd.Flags().StringSliceVarP(&o.dbPaths, "db", "d", nil, "Geo database path (repeatable)")
	_ = matchCmd.MarkFlagRequired("db")

	root.AddCommand(validateCmd, distanceCmd, checkCmd, matchCmd, o.overrideCmd())
	return root
}

func (o *options) runValidate(path string) error {
	d, err := tenant.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(o.out, "%s: %d tenants\n", path, d.Len())
	for _, realm := range d.Realms() {
		r, ok := d.Lookup(realm)
		if !ok {
			continue
		}
		fmt.Fprintf(o.out, "  %-32s %-9s slot=%-3d radius=%g locations=%s\n",
			realm, r.Fence, r.Slot, r.RadiusKm, strings.Join(r.Locations, "; "))
	}
	coll := d.Collisions()
	slots := make([]int, 0, len(coll))
	for s := range coll {
		slots = append(slots, int(s))
	}
	sort.Ints(slots)
	for _, s := range slots {
		fmt.Fprintf(o.out, "  slot %d shared by %s\n", s, strings.Join(coll[uint32(s)], ", "))
	}
	return nil
}

func (o *options) runDistance(args []string) error {
	v := make([]float64, 4)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		v[i] = f
	}
	u, ok := geomath.ParseUnit(o.unit)
	if !ok {
		return fmt.Errorf("unknown unit %q", o.unit)
	}
	d := geomath.Distance(v[0], v[1], v[2], v[3], u)
	fmt.Fprintf(o.out, "%.6f %c\n", d, byte(u))
	if o.verbose {
		a := s2.LatLngFromDegrees(v[0], v[1])
		b := s2.LatLngFromDegrees(v[2], v[3])
		fmt.Fprintf(o.out, "s2 haversine: %.6f km\n", a.Distance(b).Radians()*earthRadiusKm)
	}
	return nil
}

func (o *options) openChain() (*geodb.Chain, func(), error) {
	list := make([]geodb.Locator, 0, len(o.dbPaths))
	var opened []*geodb.MMDB
	closeAll := func() {
		for _, m := range opened {
			_ = m.Close()
		}
	}
	for _, p := range o.dbPaths {
		m, err := geodb.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, m)
		list = append(list, m)
	}
	return geodb.NewChain(list...), closeAll, nil
}

func (o *options) runCheck(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dir, err := tenant.Load(o.table)
	if err != nil {
		return err
	}
	chain, closeAll, err := o.openChain()
	if err != nil {
		return err
	}
	defer closeAll()
	e := fence.New(tenant.NewHolder(dir), chain, fence.Options{AllowedCountry: o.country, Logger: logger.L()})
	var d fence.Decision
	if o.geo != "" {
		d, err = e.LocFilter(ctx, o.target, o.geo, o.realm)
	} else {
		d, err = e.TenantFilter(ctx, o.target, o.realm)
	}
	if err != nil {
		return err
	}
	return o.printJSON(d)
}

func (o *options) runMatch(ctx context.Context, target string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	chain, closeAll, err := o.openChain()
	if err != nil {
		return err
	}
	defer closeAll()
	m, ok := chain.Match(ctx, target)
	if !ok {
		return fmt.Errorf("no record for %s", target)
	}
	return o.printJSON(m)
}

// 文档注释：地理覆盖表维护
// 背景：人工纠正个别地址的国家/城市/坐标，写入 Postgres；服务在启动与重载时读取。连接参数取 PG_* 环境变量。
func (o *options) overrideCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "override", Short: "Manage manual geo overrides in Postgres"}

	setCmd := &cobra.Command{
		Use:   "set <ip>",
		Short: "Insert or update an override",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			st, err := openStore(c.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			ov := store.Override{IP: args[0], Country: strings.ToUpper(o.ovCountry), City: o.ovCity}
			if o.ovLat != "" || o.ovLon != "" {
				coord, err := geomath.ParseCoordinate(o.ovLat + " " + o.ovLon)
				if err != nil {
					return err
				}
				ov.Lat = sql.NullFloat64{Float64: coord.Lat, Valid: true}
				ov.Lon = sql.NullFloat64{Float64: coord.Lon, Valid: true}
			}
			if err := st.UpsertOverride(ctxOrBackground(c.Context()), ov); err != nil {
				return err
			}
			fmt.Fprintln(o.out, "ok")
			return nil
		},
	}
	setCmd.Flags().StringVar(&o.ovCountry, "country", "", "ISO country code")
	setCmd.Flags().StringVar(&o.ovCity, "city", "", "City name")
	setCmd.Flags().StringVar(&o.ovLat, "lat", "", "Latitude")
	setCmd.Flags().StringVar(&o.ovLon, "lon", "", "Longitude")
	_ = setCmd.MarkFlagRequired("country")

	delCmd := &cobra.Command{
		Use:   "del <ip>",
		Short: "Delete an override",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			st, err := openStore(c.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			removed, err := st.DeleteOverride(ctxOrBackground(c.Context()), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no override for %s", args[0])
			}
			fmt.Fprintln(o.out, "deleted")
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recently updated overrides",
		RunE: func(c *cobra.Command, args []string) error {
			st, err := openStore(c.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			rows, err := st.ListOverrides(ctxOrBackground(c.Context()), o.limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				coord := "-"
				if r.Lat.Valid && r.Lon.Valid {
					coord = geomath.Coordinate{Lat: r.Lat.Float64, Lon: r.Lon.Float64}.String()
				}
				fmt.Fprintf(o.out, "%s | %s | %s | %s\n", r.IP, r.Country, r.City, coord)
			}
			return nil
		},
	}
	listCmd.Flags().IntVarP(&o.limit, "limit", "n", 50, "Maximum rows")

	cmd.AddCommand(setCmd, delCmd, listCmd)
	return cmd
}

func openStore(ctx context.Context) (*store.Store, error) {
	ctx = ctxOrBackground(ctx)
	db, err := utils.OpenPostgres(utils.PGOptionsFromEnv())
	if err != nil {
		return nil, err
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store.AttachDB(db), nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (o *options) printJSON(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
