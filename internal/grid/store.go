package grid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Compression names how the blob is stored on disk.
type Compression string

const (
	CompressionAuto Compression = "auto"
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a configured compression name. Empty means auto.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionAuto, nil
	case CompressionAuto, CompressionNone, CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unknown grid compression %q (supported: auto, none, gzip, zstd)", s)
	}
}

// Config describes where the grid lives and its out-of-band dimensions.
type Config struct {
	Path        string
	Width       int
	Height      int
	Compression Compression
}

// Store lazily loads the grid and keeps it for the process lifetime.
// Concurrent first loads are coalesced; failed loads are not memoized.
type Store struct {
	cfg    Config
	logger *zap.Logger

	grid  atomic.Pointer[Grid]
	group singleflight.Group
	reads atomic.Int64
}

// NewStore creates a store. Nothing is read until Load.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	if cfg.Compression == "" {
		cfg.Compression = CompressionAuto
	}
	return &Store{cfg: cfg, logger: logger}
}

// Load returns the grid, reading it on first use. ctx only bounds the
// caller's wait; an in-progress read finishes for other callers.
func (s *Store) Load(ctx context.Context) (*Grid, error) {
	if g := s.grid.Load(); g != nil {
		return g, nil
	}

	ch := s.group.DoChan("grid", func() (interface{}, error) {
		if g := s.grid.Load(); g != nil {
			return g, nil
		}
		g, err := s.read()
		if err != nil {
			return nil, err
		}
		s.grid.Store(g)
		return g, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Grid), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded reports whether the grid is resident.
func (s *Store) Loaded() bool {
	return s.grid.Load() != nil
}

// Dimensions returns the configured grid size.
func (s *Store) Dimensions() (width, height int) {
	return s.cfg.Width, s.cfg.Height
}

func (s *Store) read() (*Grid, error) {
	s.reads.Add(1)
	start := time.Now()

	want := int64(s.cfg.Width) * int64(s.cfg.Height)
	if want <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", s.cfg.Width, s.cfg.Height)
	}

	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, s.cfg.Path, err)
	}
	defer f.Close()

	compression := s.compression()

	var r io.Reader = f
	switch compression {
	case CompressionNone:
		// Uncompressed blobs can be size-checked before reading anything.
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, s.cfg.Path, err)
		}
		if info.Size() != want {
			return nil, &MalformedGridError{Path: s.cfg.Path, Want: want, Got: info.Size()}
		}
	case CompressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip %s: %w", ErrIO, s.cfg.Path, err)
		}
		defer zr.Close()
		r = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd %s: %w", ErrIO, s.cfg.Path, err)
		}
		defer zr.Close()
		r = zr
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return nil, &MalformedGridError{Path: s.cfg.Path, Want: want, Got: int64(n)}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, s.cfg.Path, err)
	}
	if compression != CompressionNone {
		var extra [1]byte
		if m, _ := io.ReadFull(r, extra[:]); m > 0 {
			return nil, &MalformedGridError{Path: s.cfg.Path, Want: want, Got: -1}
		}
	}

	// Reinterpret the bytes as signed samples without copying 648M cells.
	samples := unsafe.Slice((*int8)(unsafe.Pointer(unsafe.SliceData(buf))), len(buf))

	g := &Grid{width: s.cfg.Width, height: s.cfg.Height, samples: samples}

	s.logger.Info("grid loaded",
		zap.String("path", s.cfg.Path),
		zap.String("compression", string(compression)),
		zap.Int("width", g.width),
		zap.Int("height", g.height),
		zap.String("size", humanize.Bytes(uint64(want))),
		zap.Duration("elapsed", time.Since(start)),
	)
	return g, nil
}

func (s *Store) compression() Compression {
	if s.cfg.Compression != CompressionAuto {
		return s.cfg.Compression
	}
	switch strings.ToLower(filepath.Ext(s.cfg.Path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}
