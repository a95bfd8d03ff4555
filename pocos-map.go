package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Fortaleza time must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"pocos-map/pkg/api"
	"pocos-map/pkg/applog"
	"pocos-map/pkg/database"
	"pocos-map/pkg/geojson"
	"pocos-map/pkg/notify"
	"pocos-map/pkg/refresh"
	"pocos-map/pkg/sheet"
	"pocos-map/pkg/wells"
)

//go:embed public_html/*
var content embed.FS

// envPrefix names the environment variables that back every flag:
// -db-type is read from POCOS_DB_TYPE. Flags on the command line win.
const envPrefix = "POCOS_"

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")

var sheetID = flag.String("sheet-id", "12mU_58X2Ezlr_tG7pcinh1kGMY1xgXXXKfyOlXj75rc", "Google Sheets document id")
var sheetGID = flag.String("gid", "1870024591", "Google Sheets tab id")
var sheetSep = flag.String("sep", ",", "Field separator of the sheet export")
var sourceFile = flag.String("source-file", "", "Read the sheet from a local CSV file instead of Google Sheets (watched for changes)")
var refreshInterval = flag.Duration("refresh-interval", 5*time.Minute, "How often the sheet is fetched")
var keepSnapshots = flag.Int("keep-snapshots", 500, "Snapshots kept in the history, 0 keeps everything")
var vocabularyPath = flag.String("vocabulary", "", "YAML file overriding the status and yes/no vocabulary")

var dbType = flag.String("db-type", "sqlite", "Type of the database driver: sqlite, chai, genji, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for sqlite, chai, genji, duckdb)")
var dbConn = flag.String("db-conn", "", "PostgreSQL connection string, overrides the discrete -db-* flags")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "pocos", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")

var bairrosGeoJSON = flag.String("bairros-geojson", "bairros_pb.geojson", "Neighborhood boundaries shown as a map layer")
var defaultLat = flag.Float64("default-lat", -5.45, "Default map latitude")
var defaultLon = flag.Float64("default-lon", -39.7, "Default map longitude")
var defaultZoom = flag.Int("default-zoom", 11, "Default map zoom")
var timezone = flag.String("timezone", "America/Fortaleza", "Time zone of the update timestamps")

var cacheTTL = flag.Duration("cache-ttl", 2*time.Minute, "Lifetime of cached API responses, 0 disables the cache")
var cooldown = flag.Duration("cooldown", 10*time.Second, "Minimum time between refresh or export requests from one client")
var heatPrecision = flag.Uint("heat-precision", 0, "Default geohash precision of /api/heatmap buckets, 0 sends raw points")

var amqpURL = flag.String("amqp-url", "", "RabbitMQ URL; refresh events are published when set")
var amqpExchange = flag.String("amqp-exchange", "pocos.events", "RabbitMQ fanout exchange for refresh events")

var logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
var fluentHost = flag.String("fluent-host", "", "Forward logs to Fluent Bit at this host")
var fluentPort = flag.Int("fluent-port", 24224, "Fluent Bit forward port")

var CompileVersion = "dev"

// applyEnv fills every flag not given on the command line from its
// POCOS_* variable.
func applyEnv(fset *flag.FlagSet, lookup func(string) (string, bool)) error {
	explicit := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var errs []error
	fset.VisitAll(func(f *flag.Flag) {
		if explicit[f.Name] {
			return
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := lookup(key)
		if !ok {
			return
		}
		if err := f.Value.Set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	})
	return errors.Join(errs...)
}

func sheetSource() sheet.Source {
	src := sheet.Source{URL: sheet.ExportURL(*sheetID, *sheetGID), Path: *sourceFile}
	if r := []rune(*sheetSep); len(r) > 0 {
		src.Sep = r[0]
	}
	return src
}

func main() {
	// 1. Flags, .env and version
	envErr := godotenv.Load()
	flag.Parse()
	if err := applyEnv(flag.CommandLine, os.LookupEnv); err != nil {
		log.Fatalf("environment: %v", err)
	}

	if *version {
		fmt.Printf("pocos-map version %s\n", CompileVersion)
		return
	}

	// 2. Logging
	logger, closeLog, err := applog.New(applog.Config{
		Level:      *logLevel,
		FluentHost: *fluentHost,
		FluentPort: *fluentPort,
		FluentTag:  "pocos",
	})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog()
	applog.Install(logger)
	logf := applog.Logf(logger)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("could not read .env", "err", envErr)
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		logger.Warn("binding to :80 / :443 requires super-user rights; run with sudo or as root")
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatalf("timezone %q: %v", *timezone, err)
	}

	vocab := wells.DefaultVocabulary()
	if *vocabularyPath != "" {
		if vocab, err = wells.LoadVocabulary(*vocabularyPath); err != nil {
			log.Fatalf("vocabulary: %v", err)
		}
	}

	loadTranslations(content, "public_html/translations.json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database
	dbCfg := database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
	db, err := database.NewDatabase(dbCfg)
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	defer db.Close()
	if err = db.InitSchema(dbCfg); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	// 4. Refresh pipeline
	holder := refresh.NewHolder()
	defer holder.Close()
	bus := refresh.NewBus(16)
	defer bus.Close()

	var notifier refresh.Notifier
	if *amqpURL != "" {
		pub, err := notify.Dial(notify.Config{URL: *amqpURL, Exchange: *amqpExchange, RoutingKeyPrefix: "pocos", Logf: logf})
		if err != nil {
			logger.Warn("refresh events will not be published", "err", err)
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	src := sheetSource()
	poller := refresh.NewPoller(refresh.Config{
		Source:        src,
		Store:         db,
		Vocabulary:    vocab,
		Interval:      *refreshInterval,
		KeepSnapshots: *keepSnapshots,
		Bus:           bus,
		Notifier:      notifier,
		Logf:          logf,
	}, holder)

	if ev, err := poller.Restore(ctx); err == nil {
		logger.Info("serving stored snapshot until the sheet answers", "snapshot", ev.SnapshotID, "rows", ev.Rows)
	} else if !database.IsNoSnapshot(err) {
		logger.Warn("could not restore the last snapshot", "err", err)
	}
	pollerDone := poller.Start(ctx)

	if src.IsFile() {
		onChange := func() {
			tctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if _, err := poller.Trigger(tctx); err != nil {
				logf("warn: refresh after file change: %v", err)
			}
		}
		if err := sheet.Watch(ctx, src.Path, 0, func() { go onChange() }, logf); err != nil {
			logger.Warn("source file changes will only be seen on the next poll", "err", err)
		}
	}

	// 5. Neighborhood layer
	var bairros *geojson.Layer
	if *bairrosGeoJSON != "" {
		if bairros, err = geojson.Load(*bairrosGeoJSON); err != nil {
			logger.Warn("neighborhood layer unavailable", "path", *bairrosGeoJSON, "err", err)
		} else {
			logger.Info("neighborhood layer loaded", "features", bairros.Features)
		}
	}

	// 6. Routes and static files
	cache := api.NewResponseCache(*cacheTTL)
	defer cache.Close()
	limiter := api.NewCooldown(*cooldown)
	defer limiter.Close()

	apiHandler := &api.Handler{
		Holder:        holder,
		Refresher:     poller,
		Bus:           bus,
		History:       db,
		Vocabulary:    vocab,
		Cache:         cache,
		Cooldown:      limiter,
		Location:      loc,
		HeatPrecision: *heatPrecision,
		Logf:          logf,
	}

	staticFS, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Fatalf("static fs: %v", err)
	}
	page := &pageHandler{
		Version:     CompileVersion,
		DefaultLat:  *defaultLat,
		DefaultLon:  *defaultLon,
		DefaultZoom: *defaultZoom,
		Bairros:     bairros,
	}
	if page.Version == "dev" {
		page.Version = "latest"
	}

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.Handle("/api/", http.StripPrefix("/api", apiHandler.Routes()))
	mux.HandleFunc("/geojson/bairros.json", bairrosHandler(bairros))
	mux.HandleFunc("/qrpng", qrPngHandler)
	mux.Handle("/", page)

	rootHandler := withServerHeader(mux)

	// 7. HTTP/HTTPS servers
	if *domain != "" {
		go serveWithDomain(*domain, rootHandler)
	} else {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", *port),
			Handler:           rootHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server ➜ http://localhost" + srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
				stop()
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// Indexes are built in the background so the listeners come up first.
	logger.Info("background index build scheduled", "engine", dbCfg.DBType)
	db.EnsureIndexesAsync(ctx, dbCfg, logf)

	// 8. Wait for a signal, then let the poller finish its run.
	<-ctx.Done()
	logger.Info("shutting down")
	select {
	case <-pollerDone:
	case <-time.After(10 * time.Second):
		slog.Warn("refresh still running at shutdown")
	}
}
