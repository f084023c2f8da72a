package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bkrepo/registry/configuration"
	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/registry/api/errcode"
	"github.com/bkrepo/registry/registry/auth"
	"github.com/bkrepo/registry/registry/datastore"
	"github.com/bkrepo/registry/registry/handlers"
	"github.com/bkrepo/registry/registry/storage"
	"github.com/bkrepo/registry/registry/storage/cache"
	memorycache "github.com/bkrepo/registry/registry/storage/cache/memory"
	rediscache "github.com/bkrepo/registry/registry/storage/cache/redis"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/factory"
	"github.com/bkrepo/registry/registry/storage/purge"
	"github.com/bkrepo/registry/version"
	"github.com/cenkalti/backoff/v4"
	gometrics "github.com/docker/go-metrics"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	gorillahandlers "github.com/gorilla/handlers"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

const defaultLocationCacheSize = 10000

// A Registry represents a complete instance of the registry.
type Registry struct {
	config *configuration.Configuration
	server *http.Server
	purger *purge.Worker
	closer func() error
}

// NewRegistry creates a new registry from a context and configuration struct.
func NewRegistry(ctx context.Context, config *configuration.Configuration) (*Registry, error) {
	ctx, err := configureLogging(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error configuring logger: %w", err)
	}

	if config.Reporting.Sentry.Enabled {
		if err := configureReporting(config); err != nil {
			return nil, err
		}
	}

	nodes, err := newNodeDriver(config)
	if err != nil {
		return nil, err
	}
	blobs, err := factory.CreateBlobDriver(config.Storage.Blobs.Type(), config.Storage.Blobs.Parameters())
	if err != nil {
		return nil, fmt.Errorf("creating blob driver: %w", err)
	}

	var ac auth.AccessController
	if name := config.Auth.Type(); name != "" {
		ac, err = auth.GetAccessController(name, config.Auth.Parameters())
		if err != nil {
			return nil, fmt.Errorf("configuring access controller: %w", err)
		}
		log.GetLogger(log.WithContext(ctx)).WithField("auth", name).Info("using access controller")
	}

	locationCache, err := newLocationCache(ctx, config)
	if err != nil {
		return nil, err
	}

	policy, err := storage.ParseSyncPolicy(config.Storage.Sync.Policy)
	if err != nil {
		return nil, err
	}
	opts := []storage.RegistryOption{
		storage.WithSyncPolicy(policy),
		storage.WithBlobLocationCache(locationCache),
		storage.WithPermissionChecker(auth.PermissionsOf(ac)),
		storage.WithCatalogMaxEntries(config.Catalog.MaxEntries),
	}
	if c := config.Storage.Sync.Concurrency; c > 0 {
		opts = append(opts, storage.WithValidationConcurrency(c))
	}

	reg, err := storage.NewRegistry(ctx, nodes, blobs, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating registry storage: %w", err)
	}

	app, err := handlers.NewApp(config, reg, ac)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		config: config,
		server: &http.Server{Handler: buildHandler(ctx, config, app)},
		closer: closerFor(nodes),
	}

	if pc := config.Storage.Maintenance.UploadPurging; pc.Enabled {
		purger, ok := blobs.(storagedriver.UploadPurger)
		if !ok {
			return nil, fmt.Errorf("blob driver %q does not support upload purging", blobs.Name())
		}
		r.purger = purge.NewWorker(purger,
			purge.WithLogger(log.GetLogger(log.WithContext(ctx))),
			purge.WithAge(pc.Age),
			purge.WithInterval(pc.Interval),
			purge.WithDryRun(pc.DryRun),
		)
	}

	return r, nil
}

// buildHandler wraps app with the middleware chain, outermost last.
func buildHandler(ctx context.Context, config *configuration.Configuration, app http.Handler) http.Handler {
	h := panicHandler(app)
	h = handlers.RateLimitHandler(config.HTTP.RateLimit, h)
	if !config.Log.AccessLog.Disabled {
		h = gorillahandlers.CombinedLoggingHandler(log.GetLogger(log.WithContext(ctx)).Writer(), h)
	}
	return correlation.InjectCorrelationID(h, correlation.WithPropagation())
}

// panicHandler recovers panics raised while serving a request, reports them
// and answers with UNKNOWN.
func panicHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				sentry.CurrentHub().Recover(v)
				sentry.Flush(5 * time.Second)

				log.GetLogger(log.WithContext(r.Context())).WithField("panic", v).Error("recovered from panic")
				if err := errcode.ServeJSON(w, errcode.ErrorCodeUnknown.WithDetail(fmt.Sprint(v))); err != nil {
					log.GetLogger(log.WithContext(r.Context())).WithError(err).Error("error serving error json")
				}
			}
		}()
		h.ServeHTTP(w, r)
	})
}

func newNodeDriver(config *configuration.Configuration) (storagedriver.NodeDriver, error) {
	name, params := config.Storage.Nodes.Type(), config.Storage.Nodes.Parameters()
	if name == datastore.DriverName && len(params) == 0 {
		params = config.Database.Parameters()
	}

	nodes, err := factory.CreateNodeDriver(name, params)
	if err != nil {
		return nil, fmt.Errorf("creating node driver: %w", err)
	}
	return nodes, nil
}

func closerFor(nodes storagedriver.NodeDriver) func() error {
	if d, ok := nodes.(*datastore.Nodes); ok {
		return d.DB().Close
	}
	return func() error { return nil }
}

func newLocationCache(ctx context.Context, config *configuration.Configuration) (cache.BlobLocationCache, error) {
	if config.Redis.Addr == "" {
		return memorycache.NewBlobLocationCache(defaultLocationCacheSize, config.Redis.TTL), nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{config.Redis.Addr},
		Password:     config.Redis.Password,
		DB:           config.Redis.DB,
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
	})

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	ping := func() error {
		err := client.Ping(ctx).Err()
		if err != nil {
			log.GetLogger(log.WithContext(ctx)).WithError(err).Warn("redis not reachable")
		}
		return err
	}
	if err := backoff.Retry(ping, b); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	log.GetLogger(log.WithContext(ctx)).WithField("addr", config.Redis.Addr).Info("using redis blob location cache")
	return rediscache.NewBlobLocationCache(client, config.Redis.TTL), nil
}

// ListenAndServe runs the registry's HTTP server until it fails or a
// termination signal drains it.
func (registry *Registry) ListenAndServe() error {
	config := registry.config
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", config.HTTP.Addr)
	if err != nil {
		return err
	}

	if registry.purger != nil {
		go registry.purger.Start(ctx)
	}

	if config.HTTP.Debug.Addr != "" {
		go debugServer(config.HTTP.Debug.Addr)
	}

	log.GetLogger().WithField("addr", ln.Addr().String()).Info("listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- registry.server.Serve(ln)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		registry.closer()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case s := <-quit:
		log.GetLogger().WithFields(log.Fields{
			"signal":        s.String(),
			"drain_timeout": config.HTTP.DrainTimeout,
		}).Info("draining connections")
		return registry.Shutdown(config.HTTP.DrainTimeout)
	}
}

// Shutdown stops accepting requests and waits up to timeout for in-flight
// ones to finish.
func (registry *Registry) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := registry.server.Shutdown(ctx)
	if cerr := registry.closer(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func debugServer(addr string) {
	// net/http/pprof handlers are registered on the default mux by the binary
	http.Handle("/metrics", gometrics.Handler())

	log.GetLogger().WithField("addr", addr).Info("debug server listening")
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.GetLogger().WithError(err).Fatal("error listening on debug interface")
	}
}

func configureReporting(config *configuration.Configuration) error {
	err := errortracking.Initialize(
		errortracking.WithSentryDSN(config.Reporting.Sentry.DSN),
		errortracking.WithSentryEnvironment(config.Reporting.Sentry.Environment),
		errortracking.WithVersion(version.Version),
	)
	if err != nil {
		return fmt.Errorf("configuring error reporting: %w", err)
	}
	return nil
}

func configureLogging(ctx context.Context, config *configuration.Configuration) (context.Context, error) {
	fields := map[string]interface{}{"version": version.Version}
	for k, v := range config.Log.Fields {
		fields[k] = v
	}

	l, err := log.Configure(log.Config{
		Level:     config.Log.Level,
		Formatter: config.Log.Formatter,
		Fields:    fields,
	})
	if err != nil {
		return nil, err
	}
	return log.WithLogger(ctx, l), nil
}
