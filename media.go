package gosampler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/cenkalti/backoff/v4"
)

var mediaDebug = debuggo.Debug("gosampler:media")

var (
	ErrMediaUnavailable = errors.New("storage media unavailable")
	ErrMissingMedia     = errors.New("required media files missing")
)

// Media is the storage collaborator: a directory of sample and
// instrument files that may take a while to become readable.
type Media struct {
	root         string
	retries      uint64
	initialDelay time.Duration
	maxDelay     time.Duration
}

// MediaOption configures a Media
type MediaOption func(*Media)

// WithRetries sets how many times a failed access is retried
func WithRetries(n int) MediaOption {
	return func(m *Media) {
		if n >= 0 {
			m.retries = uint64(n)
		}
	}
}

// WithRetryDelay sets the first and largest delay between retries
func WithRetryDelay(initial, max time.Duration) MediaOption {
	return func(m *Media) {
		m.initialDelay = initial
		m.maxDelay = max
	}
}

// NewMedia creates a Media rooted at dir
func NewMedia(dir string, opts ...MediaOption) *Media {
	m := &Media{
		root:         dir,
		retries:      5,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the media directory
func (m *Media) Root() string {
	return m.root
}

// Path resolves name against the media root. Absolute names are kept.
func (m *Media) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.root, filepath.FromSlash(name))
}

func (m *Media) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialDelay
	b.MaxInterval = m.maxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, m.retries), ctx)
}

func (m *Media) retry(ctx context.Context, what string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(op, m.newBackOff(ctx), func(err error, wait time.Duration) {
		attempt++
		mediaDebug("%s failed (attempt %d): %v, retrying in %v", what, attempt, err, wait)
	})
}

// WakeUp waits for the media root to become a readable directory
func (m *Media) WakeUp(ctx context.Context) error {
	err := m.retry(ctx, "media wake-up", func() error {
		info, err := os.Stat(m.root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return backoff.Permanent(fmt.Errorf("%s is not a directory", m.root))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMediaUnavailable, m.root, err)
	}
	mediaDebug("Media ready at %s", m.root)
	return nil
}

// Open opens a file on the media. Transient failures are retried with
// backoff; a file that does not exist fails immediately.
func (m *Media) Open(ctx context.Context, name string) (*os.File, error) {
	path := m.Path(name)
	var file *os.File
	err := m.retry(ctx, "open "+name, func() error {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return backoff.Permanent(err)
			}
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return file, nil
}

// ReadFile reads a whole file from the media
func (m *Media) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := m.retry(ctx, "read "+name, func() error {
		b, err := os.ReadFile(m.Path(name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is a regular file on the media
func (m *Media) Exists(name string) bool {
	info, err := os.Stat(m.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// VerifyRequired checks that every named file is present. The returned
// error wraps ErrMissingMedia and lists the missing names.
func (m *Media) VerifyRequired(names ...string) ([]string, error) {
	var missing []string
	for _, name := range names {
		if !m.Exists(name) {
			mediaDebug("Missing required file: %s", name)
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return missing, fmt.Errorf("%w: %v", ErrMissingMedia, missing)
	}
	return nil, nil
}
