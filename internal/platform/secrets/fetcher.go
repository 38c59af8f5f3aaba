package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	refScheme           = "secret"
	defaultVersion      = "latest"
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/renewtech/api/internal/platform/secrets"
)

// newManagerClient is swapped out in tests that exercise the no-credentials
// path.
var newManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type managerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references such as the Stripe API key or the
// OIDC client secret. Values come from Google Secret Manager, are cached for
// the process lifetime, and fall back to a local dotfile when the manager is
// unreachable, which is how local development runs without cloud credentials.
type Fetcher struct {
	client     managerClient
	ownsClient bool
	logger     *zap.Logger
	env        string
	projectID  string

	mu    sync.RWMutex
	cache map[string]string

	local *localSecrets

	fetchLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	projectID    string
	fallbackPath string
	meter        metric.Meter
	client       managerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment labels the deployment environment for telemetry.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the Google Cloud project that hosts the secrets
// unless a reference names one explicitly.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path of the local secrets dotfile.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithManagerClient injects a preconfigured Secret Manager client, primarily
// for tests.
func WithManagerClient(client managerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options, for example a credentials
// file path.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal;
// the fetcher then serves only the local fallback file, so a checkout against
// the Stripe test key still works on a laptop.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		logger:    cfg.logger,
		env:       cfg.env,
		projectID: cfg.projectID,
		cache:     make(map[string]string),
		local:     &localSecrets{path: cfg.fallbackPath},
	}

	var err error
	f.fetchLatency, err = meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	f.cacheHits, err = meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from the in-process cache"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, dialErr := newManagerClient(ctx, cfg.clientOpts...)
	if dialErr != nil {
		cfg.logger.Warn("secrets: secret manager unavailable, serving local fallback only", zap.Error(dialErr))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher dialed it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for a secret:// reference. Resolution order is
// the in-process cache, then Secret Manager, then the local fallback file.
// Auth and availability errors from the manager fall through to the file;
// anything else, a missing secret included, is returned to the caller.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := parseRef(raw)
	if err != nil {
		return "", err
	}

	started := time.Now()
	resource := ref.resourceName(f.projectFor(ref))

	if value, ok := f.cached(resource); ok {
		f.countCacheHit(ctx, ref.name)
		return value, nil
	}

	if f.client != nil && f.projectFor(ref) != "" {
		value, fetchErr := f.access(ctx, resource)
		f.observeFetch(ctx, started, "manager", fetchErr)
		if fetchErr == nil {
			f.remember(resource, value)
			return value, nil
		}
		if !shouldFallBack(fetchErr) {
			return "", fmt.Errorf("secrets: resolving %s: %w", ref.name, fetchErr)
		}
		f.logger.Debug("secrets: manager unreachable, trying local file",
			zap.String("secret", ref.name), zap.Error(fetchErr))
	}

	value, ok := f.local.get(ref.name, ref.version)
	if !ok {
		missErr := fmt.Errorf("secrets: no value for %s", ref.name)
		f.observeFetch(ctx, started, "local", missErr)
		return "", missErr
	}
	f.remember(resource, value)
	f.observeFetch(ctx, started, "local", nil)
	return value, nil
}

func (f *Fetcher) cached(resource string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[resource]
	return value, ok
}

func (f *Fetcher) remember(resource, value string) {
	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, resource string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload at %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) projectFor(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	return f.projectID
}

func (f *Fetcher) observeFetch(ctx context.Context, started time.Time, source string, err error) {
	if f.fetchLatency == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	f.fetchLatency.Record(ctx, float64(time.Since(started))/float64(time.Millisecond),
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
			attribute.String("environment", f.env),
		))
}

func (f *Fetcher) countCacheHit(ctx context.Context, name string) {
	if f.cacheHits == nil {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", name)))
}

// shouldFallBack reports whether a manager error means the local file should
// be consulted. A NotFound stays an error so a typo in a secret name is not
// papered over by a stale local value.
func shouldFallBack(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// reference is a parsed secret:// URL. The host and path form the secret
// name; version and project may be pinned via query parameters, for example
// secret://stripe_api_key?version=5.
type reference struct {
	name    string
	version string
	project string
}

func parseRef(raw string) (reference, error) {
	if strings.TrimSpace(raw) == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != refScheme {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = defaultVersion
	}
	return reference{
		name:    name,
		version: version,
		project: strings.TrimSpace(query.Get("project")),
	}, nil
}

func (r reference) resourceName(projectID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, r.name, r.version)
}

// localSecrets reads the fallback dotfile once. Lines are name=value pairs;
// name@version=value pins a value to one version. Blank lines and # comments
// are skipped.
type localSecrets struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func (l *localSecrets) get(name, version string) (string, bool) {
	l.load()
	if l.err != nil {
		return "", false
	}
	if value, ok := l.values[name+"@"+version]; ok {
		return value, true
	}
	value, ok := l.values[name]
	return value, ok
}

func (l *localSecrets) load() {
	l.once.Do(func() {
		l.values = map[string]string{}
		path := strings.TrimSpace(l.path)
		if path == "" {
			return
		}

		file, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.err = fmt.Errorf("secrets: open fallback file %s: %w", path, err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			l.values[name] = strings.TrimSpace(value)
		}
		if err := scanner.Err(); err != nil {
			l.err = fmt.Errorf("secrets: read fallback file %s: %w", path, err)
		}
	})
}
