// Package media resolves image references from import files into stored
// catalog images.
//
// A reference is either an http(s) URL or a path relative to the import
// directory. Images are stored under a dispersion path built from the first
// two letters of the file name ("/s/h/shirt.jpg"). When a different image
// already uses that name a numeric suffix is added; identical content is
// detected by its xxh3 checksum and reuses the stored file.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// DefaultMaxSize bounds the size of one image.
const DefaultMaxSize = 20 << 20

// maxNameAttempts bounds the numeric suffixes tried for one name.
const maxNameAttempts = 100

var (
	// ErrNotAllowed is returned for remote hosts outside the allow list.
	ErrNotAllowed = errors.New("image host not allowed")

	// ErrNotImage is returned when the content is not a supported image.
	ErrNotImage = errors.New("unsupported image type")

	// ErrTooLarge is returned when an image exceeds the size limit.
	ErrTooLarge = errors.New("image too large")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Backend stores image files by key.
type Backend interface {
	// Checksum returns the xxh3 checksum of the file stored at key. ok is
	// false when nothing is stored there.
	Checksum(ctx context.Context, key string) (sum uint64, ok bool, err error)
	Put(ctx context.Context, key string, data []byte, contentType string, sum uint64) error
}

// Options configures an Uploader.
type Options struct {
	// ImportDir is the directory relative references are read from.
	ImportDir string

	// AllowedHosts lists the hosts remote images may be downloaded from.
	// Empty denies every remote reference; "*" allows any host.
	AllowedHosts []string

	// FetchTimeout bounds one download when HTTPClient is nil.
	FetchTimeout time.Duration

	// MaxSize bounds one image. Zero uses DefaultMaxSize.
	MaxSize int64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Uploader implements core.RunUploader. References are uploaded once per
// instance; ForRun hands out an instance with an empty cache.
type Uploader struct {
	backend   Backend
	importDir string
	allowed   map[string]bool
	allowAll  bool
	client    *http.Client
	maxSize   int64
	logger    *slog.Logger

	// names serializes picking a free key across every instance sharing
	// the backend.
	names *sync.Mutex

	flight singleflight.Group
	mu     sync.Mutex
	cache  map[string]string
}

// NewUploader returns an uploader storing into backend.
func NewUploader(backend Backend, opts Options) *Uploader {
	u := &Uploader{
		backend:   backend,
		importDir: opts.ImportDir,
		client:    opts.HTTPClient,
		maxSize:   opts.MaxSize,
		logger:    opts.Logger,
		names:     &sync.Mutex{},
		cache:     make(map[string]string),
	}
	if u.client == nil {
		timeout := opts.FetchTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		u.client = &http.Client{Timeout: timeout}
	}
	if u.maxSize <= 0 {
		u.maxSize = DefaultMaxSize
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	u.allowed = make(map[string]bool, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "*" {
			u.allowAll = true
		}
		u.allowed[h] = true
	}
	return u
}

// ForRun returns an uploader with the same settings and backend and an
// empty reference cache.
func (u *Uploader) ForRun() core.Uploader {
	return &Uploader{
		backend:   u.backend,
		importDir: u.importDir,
		allowed:   u.allowed,
		allowAll:  u.allowAll,
		client:    u.client,
		maxSize:   u.maxSize,
		logger:    u.logger,
		names:     u.names,
		cache:     make(map[string]string),
	}
}

// Upload stores the image behind rawRef and returns its stored path. The
// same reference is uploaded once per Uploader; concurrent calls for it
// share one download.
func (u *Uploader) Upload(ctx context.Context, rawRef string) (string, error) {
	ref := strings.TrimSpace(rawRef)
	if ref == "" {
		return "", errors.New("empty image reference")
	}

	u.mu.Lock()
	stored, ok := u.cache[ref]
	u.mu.Unlock()
	if ok {
		return stored, nil
	}

	v, err, _ := u.flight.Do(ref, func() (any, error) {
		stored, err := u.upload(ctx, ref)
		if err != nil {
			return "", err
		}
		u.mu.Lock()
		u.cache[ref] = stored
		u.mu.Unlock()
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (u *Uploader) upload(ctx context.Context, ref string) (string, error) {
	data, name, err := u.read(ctx, ref)
	if err != nil {
		return "", err
	}

	mime := mimetype.Detect(data)
	if !mimetype.EqualsAny(mime.String(), allowedTypes...) {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mime.String())
	}

	u.names.Lock()
	stored, err := u.store(ctx, correctFileName(name, mime.Extension()), data, mime.String())
	u.names.Unlock()
	if err != nil {
		return "", err
	}
	u.logger.Debug("image stored", "ref", ref, "path", stored)
	return stored, nil
}

// read loads the referenced bytes and the file name to store them under.
func (u *Uploader) read(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return u.fetch(ctx, ref)
	}

	p := filepath.Join(u.importDir, filepath.Clean("/"+ref))
	f, err := os.Open(p)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	data, err := u.readLimited(f)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(p), nil
}

func (u *Uploader) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, "", fmt.Errorf("parse image url: %w", err)
	}
	if !u.allowAll && !u.allowed[strings.ToLower(parsed.Hostname())] {
		return nil, "", fmt.Errorf("%w: %s", ErrNotAllowed, parsed.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	data, err := u.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, path.Base(parsed.Path), nil
}

func (u *Uploader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > u.maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// store writes data under the first key for name that is free or already
// holds the same content.
func (u *Uploader) store(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	sum := xxh3.Hash(data)
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = base + "_" + strconv.Itoa(attempt) + ext
		}
		key := dispersionPath(candidate)

		existing, ok, err := u.backend.Checksum(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", key, err)
		}
		if ok && existing == sum {
			return key, nil
		}
		if ok {
			continue
		}
		if err := u.backend.Put(ctx, key, data, contentType, sum); err != nil {
			return "", fmt.Errorf("store %s: %w", key, err)
		}
		return key, nil
	}
	return "", fmt.Errorf("no free name for %s", name)
}

// correctFileName lowercases name and replaces characters outside
// [a-z0-9_.-]. A missing extension is taken from the detected type.
func correctFileName(name, detectedExt string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "image"
	}
	if path.Ext(out) == "" {
		out += detectedExt
	}
	return out
}

// dispersionPath returns "/a/b/name" from the first two characters of
// name, using "_" when the name is a single character.
func dispersionPath(name string) string {
	first, second := name[:1], "_"
	if len(name) > 1 && name[1] != '.' {
		second = name[1:2]
	}
	return "/" + first + "/" + second + "/" + name
}
