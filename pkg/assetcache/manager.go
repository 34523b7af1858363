// Package assetcache pre-caches the application's assets and serves them
// cache-first.
//
// A Manager moves through three lifecycle phases. Install populates the
// current cache version from a fixed manifest, best effort. Activate removes
// every other version and takes control. Once activated, the Manager's
// RoundTrip intercepts same-origin GET requests: hits are answered from the
// cache without touching the network; misses go to the network and successful
// same-origin responses are stored for next time. Everything else passes
// through to the base transport untouched.
package assetcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vaigai-ai/vaigai/pkg/models"
)

// CacheHeader is set on intercepted responses to "hit" or "miss".
const CacheHeader = "X-Vaigai-Cache"

// ErrNotInstalled is returned by Activate when the current version has never
// been installed.
var ErrNotInstalled = errors.New("asset cache not installed")

// Storage is the named-cache store the Manager writes to.
type Storage interface {
	Open(ctx context.Context, name string) error
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, name string, entry models.CacheEntry) error
	Match(ctx context.Context, name, url string) (models.CacheEntry, bool, error)
}

// State is a lifecycle phase.
type State int32

const (
	StateNew State = iota
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a Manager.
type Options struct {
	// Version names the current cache generation.
	Version string
	// Origin is the scheme://host[:port] the assets are served from.
	Origin string
	// Manifest lists root-relative asset paths to pre-cache.
	Manifest []string
	// Concurrency bounds parallel fetches during Install. Defaults to 4.
	Concurrency int
	// Transport performs network fetches. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Manager owns one cache version and its lifecycle.
type Manager struct {
	storage     Storage
	version     string
	origin      *url.URL
	manifest    []string
	concurrency int
	base        http.RoundTripper
	logger      *zap.Logger
	state       atomic.Int32
}

// New creates a Manager in StateNew.
func New(storage Storage, opts Options) (*Manager, error) {
	if storage == nil {
		return nil, errors.New("asset cache: nil storage")
	}
	if strings.TrimSpace(opts.Version) == "" {
		return nil, errors.New("asset cache: empty version")
	}

	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("asset cache: invalid origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("asset cache: origin %q must be absolute", opts.Origin)
	}
	if origin.Path != "" && origin.Path != "/" {
		return nil, fmt.Errorf("asset cache: origin %q must not carry a path", opts.Origin)
	}
	origin = &url.URL{Scheme: origin.Scheme, Host: origin.Host}

	manifest := make([]string, 0, len(opts.Manifest))
	for _, p := range opts.Manifest {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("asset cache: manifest entry %q: %w", p, err)
		}
		if ref.IsAbs() || ref.Host != "" || !strings.HasPrefix(ref.Path, "/") {
			return nil, fmt.Errorf("asset cache: manifest entry %q must be root-relative", p)
		}
		manifest = append(manifest, cacheKey(origin.ResolveReference(ref)))
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		storage:     storage,
		version:     opts.Version,
		origin:      origin,
		manifest:    manifest,
		concurrency: concurrency,
		base:        base,
		logger:      logger.Named("assetcache").With(zap.String("version", opts.Version)),
	}, nil
}

// Version returns the current cache version tag.
func (m *Manager) Version() string { return m.version }

// State returns the current lifecycle phase.
func (m *Manager) State() State { return State(m.state.Load()) }

// Manifest returns the absolute URLs pre-cached by Install.
func (m *Manager) Manifest() []string { return append([]string(nil), m.manifest...) }

// InstallReport describes the outcome of Install.
type InstallReport struct {
	Cached  []string
	Skipped map[string]error
}

// Install opens the current cache version and stores every manifest asset
// that can be fetched. Failing assets are skipped and listed in the report;
// Install itself only fails when the cache cannot be opened.
func (m *Manager) Install(ctx context.Context) (InstallReport, error) {
	if err := m.storage.Open(ctx, m.version); err != nil {
		return InstallReport{}, fmt.Errorf("install: %w", err)
	}
	m.logger.Info("opened cache", zap.Int("assets", len(m.manifest)))

	results := make([]error, len(m.manifest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, assetURL := range m.manifest {
		g.Go(func() error {
			results[i] = m.precache(gctx, assetURL)
			return nil
		})
	}
	_ = g.Wait()

	report := InstallReport{Skipped: make(map[string]error)}
	for i, assetURL := range m.manifest {
		if err := results[i]; err != nil {
			m.logger.Info("skipped caching", zap.String("url", assetURL), zap.Error(err))
			report.Skipped[assetURL] = err
			continue
		}
		report.Cached = append(report.Cached, assetURL)
	}

	m.state.CompareAndSwap(int32(StateNew), int32(StateInstalled))
	m.logger.Info("install complete",
		zap.Int("cached", len(report.Cached)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

func (m *Manager) precache(ctx context.Context, assetURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := m.base.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return m.storage.Put(ctx, m.version, newEntry(assetURL, resp, body))
}

// Activate deletes every cache version other than the current one and
// claims control, after which RoundTrip starts intercepting. The current
// version must have been installed, by this Manager or an earlier one.
// Control is claimed even when a stale version could not be deleted.
func (m *Manager) Activate(ctx context.Context) (removed []string, err error) {
	names, err := m.storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	if m.State() == StateNew && !slices.Contains(names, m.version) {
		return nil, ErrNotInstalled
	}
	defer func() {
		m.state.Store(int32(StateActivated))
		m.logger.Info("activated", zap.Strings("removed", removed))
	}()

	var errs []error
	for _, name := range names {
		if name == m.version {
			continue
		}
		if _, err := m.storage.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %q: %w", name, err))
			continue
		}
		removed = append(removed, name)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("activate: %w", errors.Join(errs...))
	}
	return removed, nil
}

// SameOrigin reports whether u shares scheme, host and port with the origin.
func (m *Manager) SameOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, m.origin.Scheme) &&
		strings.EqualFold(hostPort(u), hostPort(m.origin))
}

// RoundTrip implements http.RoundTripper.
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	if m.State() != StateActivated || req.Method != http.MethodGet || !m.SameOrigin(req.URL) {
		return m.base.RoundTrip(req)
	}

	key := cacheKey(req.URL)
	entry, ok, err := m.storage.Match(req.Context(), m.version, key)
	if err != nil {
		m.logger.Debug("cache lookup failed", zap.String("url", key), zap.Error(err))
	}
	if ok {
		return cachedEntry(entry).response(req), nil
	}

	resp, err := m.base.RoundTrip(withoutEncoding(req))
	if err != nil {
		return nil, err
	}
	if !m.storable(resp) {
		setCacheHeader(resp, "miss")
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	// A failed store only means the next request goes to the network again.
	_ = m.populate(req.Context(), key, resp, body)

	setCacheHeader(resp, "miss")
	return resp, nil
}

// withoutEncoding drops the client's Accept-Encoding so the base transport
// negotiates compression itself and hands back a decoded body. Stored entries
// are keyed by URL alone and must be readable by every client.
func withoutEncoding(req *http.Request) *http.Request {
	if req.Header.Get("Accept-Encoding") == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Del("Accept-Encoding")
	return out
}

// storable reports whether resp is a plain, decoded 200 from the origin
// itself. Responses that ended up elsewhere are opaque to us and never stored.
func (m *Manager) storable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if resp.Header.Get("Content-Encoding") != "" || resp.Header.Get("Vary") == "*" {
		return false
	}
	return resp.Request == nil || m.SameOrigin(resp.Request.URL)
}

func (m *Manager) populate(ctx context.Context, key string, resp *http.Response, body []byte) error {
	if err := m.storage.Put(ctx, m.version, newEntry(key, resp, body)); err != nil {
		m.logger.Debug("cache store failed", zap.String("url", key), zap.Error(err))
		return err
	}
	return nil
}

func newEntry(key string, resp *http.Response, body []byte) models.CacheEntry {
	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Del(CacheHeader)
	return models.CacheEntry{
		URL:        key,
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
		StoredAt:   time.Now(),
	}
}

type cachedEntry models.CacheEntry

func (e cachedEntry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(CacheHeader, "hit")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func setCacheHeader(resp *http.Response, value string) {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(CacheHeader, value)
}

// cacheKey is the absolute URL without its fragment.
func cacheKey(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	return k.String()
}

func hostPort(u *url.URL) string {
	host, port := u.Hostname(), u.Port()
	if port == "" || (port == "80" && strings.EqualFold(u.Scheme, "http")) || (port == "443" && strings.EqualFold(u.Scheme, "https")) {
		return host
	}
	return net.JoinHostPort(host, port)
}
