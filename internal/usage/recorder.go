package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	triflestats "github.com/trifle-io/trifle_stats_go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MetricKey is the trifle_stats key every tool call is tracked under.
const MetricKey = "tool_calls"

const defaultStore = "yaoephemeris_usage"

// Options selects and configures the storage driver. Empty fields fall back
// to the driver defaults.
type Options struct {
	Driver          string
	DBPath          string
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	Table           string
	Collection      string
	Prefix          string
	Joined          string
	Separator       string
	TimeZone        string
	BeginningOfWeek string
	Granularities   string
	BufferMode      string
	BufferDrivers   string
	BufferDuration  time.Duration
	BufferSize      int
	BufferAggregate bool
	BufferAsync     bool
}

// Recorder tracks tool calls into a trifle_stats driver. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	Config     *triflestats.Config
	DriverName string
	TableName  string

	mu      sync.Mutex
	setupFn func() error
	closeFn func() error
	now     func() time.Time
}

// Enabled reports whether driver names a storage backend.
func Enabled(driver string) bool {
	switch normalizeDriverName(driver) {
	case "", "none", "off", "disabled":
		return false
	default:
		return true
	}
}

// KnownDriver reports whether name is a supported storage backend.
func KnownDriver(name string) bool {
	switch normalizeDriverName(name) {
	case "sqlite", "postgres", "mysql", "redis", "mongo":
		return true
	default:
		return false
	}
}

func normalizeDriverName(name string) string {
	value := strings.ToLower(strings.TrimSpace(name))
	switch value {
	case "mongodb":
		return "mongo"
	case "postgresql", "pg":
		return "postgres"
	}
	return value
}

// Open builds a recorder for opts. It returns (nil, nil) when the driver is
// disabled. A sqlite database file that did not exist yet is set up
// immediately.
func Open(opts Options) (*Recorder, error) {
	if !Enabled(opts.Driver) {
		return nil, nil
	}

	driverName := normalizeDriverName(opts.Driver)
	if !KnownDriver(driverName) {
		return nil, fmt.Errorf("unsupported usage driver: %s", opts.Driver)
	}

	joined, err := parseJoinedIdentifier(opts.Joined)
	if err != nil {
		return nil, err
	}
	weekStart, err := parseWeekday(opts.BeginningOfWeek)
	if err != nil {
		return nil, err
	}

	cfg := triflestats.DefaultConfig()
	if tz := strings.TrimSpace(opts.TimeZone); tz != "" {
		cfg.TimeZone = tz
	}
	if sep := strings.TrimSpace(opts.Separator); sep != "" {
		cfg.Separator = sep
	}
	cfg.JoinedIdentifier = joined
	cfg.BeginningOfWeek = weekStart
	if granularities := parseList(opts.Granularities); len(granularities) > 0 {
		cfg.Granularities = granularities
	}
	applyBufferOptions(cfg, &opts, driverName)

	rec := &Recorder{
		Config:     cfg,
		DriverName: driverName,
		now:        time.Now,
	}

	switch driverName {
	case "sqlite":
		path := strings.TrimSpace(opts.DBPath)
		if path == "" {
			return nil, errors.New("usage database path is required for sqlite driver")
		}
		fresh := false
		if path != ":memory:" {
			if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
				fresh = true
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create usage directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		driver := triflestats.NewSQLiteDriver(db, tableName(opts), joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		rec.setupFn = driver.Setup
		rec.closeFn = db.Close
		rec.TableName = driver.TableName
		if fresh {
			if err := rec.Setup(); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("setup usage database: %w", err)
			}
		}
		return rec, nil

	case "postgres":
		db, err := sql.Open("pgx", buildPostgresDSN(opts))
		if err != nil {
			return nil, err
		}
		driver := triflestats.NewPostgresDriver(db, tableName(opts), joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		rec.setupFn = driver.Setup
		rec.closeFn = db.Close
		rec.TableName = driver.TableName
		return rec, nil

	case "mysql":
		db, err := sql.Open("mysql", buildMySQLDSN(opts))
		if err != nil {
			return nil, err
		}
		driver := triflestats.NewMySQLDriver(db, tableName(opts), joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		rec.setupFn = driver.Setup
		rec.closeFn = db.Close
		rec.TableName = driver.TableName
		return rec, nil

	case "redis":
		client, err := buildRedisClient(opts)
		if err != nil {
			return nil, err
		}
		prefix := firstNonEmpty(opts.Prefix, defaultStore)
		driver := triflestats.NewRedisDriver(client, prefix)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		rec.closeFn = client.Close
		rec.TableName = prefix
		return rec, nil

	case "mongo":
		client, databaseName, collectionName, err := buildMongoCollection(opts)
		if err != nil {
			return nil, err
		}
		collection := client.Database(databaseName).Collection(collectionName)
		driver := triflestats.NewMongoDriver(collection, joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		rec.setupFn = func() error {
			return driver.Setup(context.Background())
		}
		rec.closeFn = func() error {
			return client.Disconnect(context.Background())
		}
		rec.TableName = collectionName
		return rec, nil

	default:
		return nil, fmt.Errorf("unsupported usage driver: %s", driverName)
	}
}

// Setup creates the tables, indexes or collections the driver needs.
func (r *Recorder) Setup() error {
	if r == nil || r.setupFn == nil {
		return nil
	}
	return r.setupFn()
}

func (r *Recorder) Close() error {
	if r == nil || r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}

// Record tracks one tool call.
func (r *Recorder) Record(tool string, ok bool, duration time.Duration) error {
	if r == nil {
		return nil
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	values := map[string]any{
		"count":       1,
		outcome:       1,
		"duration_ms": duration.Milliseconds(),
		"tools":       map[string]any{tool: 1},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return triflestats.Track(r.Config, MetricKey, r.now(), values)
}

func applyBufferOptions(cfg *triflestats.Config, opts *Options, driverName string) {
	if cfg == nil || opts == nil {
		return
	}
	cfg.BufferDuration = opts.BufferDuration
	cfg.BufferSize = opts.BufferSize
	cfg.BufferAggregate = opts.BufferAggregate
	cfg.BufferAsync = opts.BufferAsync

	sqlDriver := driverName == "sqlite" || driverName == "postgres" || driverName == "mysql"
	switch strings.ToLower(strings.TrimSpace(opts.BufferMode)) {
	case "always", "on", "enabled", "true", "yes":
		cfg.BufferEnabled = true
	case "", "never", "off", "disabled", "false", "no":
		cfg.BufferEnabled = false
	default:
		cfg.BufferEnabled = sqlDriver
	}

	allowed := parseList(opts.BufferDrivers)
	if len(allowed) > 0 {
		matched := false
		for _, value := range allowed {
			if normalizeDriverName(value) == driverName {
				matched = true
				break
			}
		}
		cfg.BufferEnabled = cfg.BufferEnabled && matched
	}
}

func tableName(opts Options) string {
	return firstNonEmpty(opts.Table, defaultStore)
}

func buildPostgresDSN(opts Options) string {
	if dsn := strings.TrimSpace(opts.DSN); dsn != "" {
		return dsn
	}

	host := firstNonEmpty(opts.Host, "127.0.0.1")
	port := firstNonEmpty(opts.Port, "5432")
	user := firstNonEmpty(opts.User, "postgres")
	password := firstNonEmpty(opts.Password, "password")
	database := resolveDatabaseName(opts, defaultStore)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(user),
		url.QueryEscape(password),
		host,
		port,
		url.PathEscape(database),
	)
}

func buildMySQLDSN(opts Options) string {
	if dsn := strings.TrimSpace(opts.DSN); dsn != "" {
		return dsn
	}

	host := firstNonEmpty(opts.Host, "127.0.0.1")
	port := firstNonEmpty(opts.Port, "3306")
	user := firstNonEmpty(opts.User, "root")
	password := firstNonEmpty(opts.Password, "password")
	database := resolveDatabaseName(opts, defaultStore)

	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC",
		user,
		password,
		net.JoinHostPort(host, port),
		database,
	)
}

func buildRedisClient(opts Options) (*redis.Client, error) {
	if dsn := strings.TrimSpace(opts.DSN); dsn != "" {
		if strings.Contains(dsn, "://") {
			parsed, err := redis.ParseURL(dsn)
			if err != nil {
				return nil, err
			}
			return redis.NewClient(parsed), nil
		}
		return redis.NewClient(&redis.Options{Addr: dsn}), nil
	}

	addr := net.JoinHostPort(firstNonEmpty(opts.Host, "127.0.0.1"), firstNonEmpty(opts.Port, "6379"))
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: strings.TrimSpace(opts.User),
		Password: strings.TrimSpace(opts.Password),
		DB:       parseIntOrDefault(opts.Database, 0),
	}), nil
}

func mongoURI(opts Options) string {
	if dsn := strings.TrimSpace(opts.DSN); dsn != "" {
		return dsn
	}
	uri := firstNonEmpty(opts.Host, "mongodb://127.0.0.1:27017")
	if !strings.Contains(uri, "://") {
		uri = "mongodb://" + uri
		if port := strings.TrimSpace(opts.Port); port != "" && !strings.Contains(opts.Host, ":") {
			uri += ":" + port
		}
	}
	return uri
}

func buildMongoCollection(opts Options) (*mongo.Client, string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI(opts)))
	if err != nil {
		return nil, "", "", err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, "", "", err
	}

	databaseName := resolveDatabaseName(opts, defaultStore)
	collectionName := firstNonEmpty(opts.Collection, opts.Table, defaultStore)
	return client, databaseName, collectionName, nil
}

func resolveDatabaseName(opts Options, fallback string) string {
	if database := strings.TrimSpace(opts.Database); database != "" {
		return database
	}
	if path := strings.TrimSpace(opts.DBPath); path != "" && normalizeDriverName(opts.Driver) != "sqlite" {
		return path
	}
	return fallback
}

func parseJoinedIdentifier(input string) (triflestats.JoinedIdentifier, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "full", "":
		return triflestats.JoinedFull, nil
	case "partial":
		return triflestats.JoinedPartial, nil
	case "separated", "none", "null":
		return triflestats.JoinedSeparated, nil
	default:
		return triflestats.JoinedFull, fmt.Errorf("invalid joined mode: %s", input)
	}
}

func parseWeekday(input string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "monday", "mon", "":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return time.Monday, fmt.Errorf("invalid week-start: %s", input)
	}
}

func parseList(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseIntOrDefault(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
