package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"tssv/internal/config"
	"tssv/internal/imaging"
	"tssv/internal/logging"
	"tssv/internal/services"
	"tssv/internal/tilt"
)

// FrameSource looks up a frame of a loaded series.
type FrameSource interface {
	Frame(seriesID string, frameID int) (tilt.Frame, error)
}

// RasterReader loads a raw image as a 2D intensity array.
type RasterReader interface {
	Read(path string) (*imaging.Raster, error)
}

// Source reports which tier answered a request.
type Source string

const (
	SourceMemory    Source = "memory"
	SourceDisk      Source = "disk"
	SourceGenerated Source = "generated"
)

// Request names one preview. Zero Bin or Quality select the defaults.
type Request struct {
	SeriesID string
	FrameID  int
	Bin      int
	Quality  int
}

// Result is an encoded preview.
type Result struct {
	Data        []byte
	ContentType string
	Source      Source
}

// Options configures a Pipeline.
type Options struct {
	MemoryBudget   int64
	CacheDir       string
	Format         string
	Workers        int
	DefaultBin     int
	DefaultQuality int
	MinFreeRatio   float64
	Contrast       imaging.ContrastOptions
}

// OptionsFromConfig maps the [preview] section onto pipeline options.
func OptionsFromConfig(cfg config.Preview, memoryBudget int64) Options {
	contrast := imaging.DefaultContrast()
	contrast.BackgroundSubtract = cfg.BackgroundSubtract
	return Options{
		MemoryBudget:   memoryBudget,
		CacheDir:       cfg.CacheDir,
		Format:         cfg.Format,
		Workers:        cfg.Workers,
		DefaultBin:     cfg.DefaultBin,
		DefaultQuality: cfg.DefaultQuality,
		MinFreeRatio:   cfg.MinFreeRatio,
		Contrast:       contrast,
	}
}

// Capabilities advertises what the pipeline accepts.
type Capabilities struct {
	SupportedBins  []int  `json:"supportedBins"`
	DefaultBin     int    `json:"defaultBin"`
	QualityRange   [2]int `json:"qualityRange"`
	DefaultQuality int    `json:"defaultQuality"`
	Format         string `json:"format"`
	ContentType    string `json:"contentType"`
}

// Pipeline serves previews from memory, then disk, then by generating them.
type Pipeline struct {
	frames   FrameSource
	reader   RasterReader
	encoder  imaging.Encoder
	format   string
	contrast imaging.ContrastOptions
	lru      *LRU
	disk     *DiskCache
	sem      *semaphore.Weighted
	flight   singleflight.Group
	logger   *slog.Logger

	cacheDir       string
	defaultBin     int
	defaultQuality int

	mu          sync.Mutex
	fingerprint string
	generation  uint64
}

// New builds a Pipeline. The disk cache starts at opts.CacheDir until Rescan
// points it elsewhere.
func New(frames FrameSource, reader RasterReader, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if frames == nil || reader == nil {
		return nil, errors.New("preview: frame source and reader are required")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "png"
	}
	encoder, err := imaging.NewEncoder(format)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "preview", "new", "unsupported format", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	defaultBin := opts.DefaultBin
	if !config.ValidBin(defaultBin) {
		defaultBin = config.DefaultPreviewBin
	}
	defaultQuality := opts.DefaultQuality
	if defaultQuality < config.MinQuality || defaultQuality > config.MaxQuality {
		defaultQuality = config.DefaultPreviewQuality
	}
	contrast := opts.Contrast
	if contrast == (imaging.ContrastOptions{}) {
		contrast = imaging.DefaultContrast()
	}

	log := logging.NewComponentLogger(logger, "preview")
	return &Pipeline{
		frames:         frames,
		reader:         reader,
		encoder:        encoder,
		format:         format,
		contrast:       contrast,
		lru:            NewLRU(opts.MemoryBudget),
		disk:           NewDiskCache(opts.CacheDir, encoder.Ext(), opts.MinFreeRatio, logger),
		sem:            semaphore.NewWeighted(int64(workers)),
		logger:         log,
		cacheDir:       opts.CacheDir,
		defaultBin:     defaultBin,
		defaultQuality: defaultQuality,
	}, nil
}

// Capabilities reports supported bins, quality bounds, defaults, and format.
func (p *Pipeline) Capabilities() Capabilities {
	return Capabilities{
		SupportedBins:  append([]int(nil), config.SupportedBins...),
		DefaultBin:     p.defaultBin,
		QualityRange:   [2]int{config.MinQuality, config.MaxQuality},
		DefaultQuality: p.defaultQuality,
		Format:         p.format,
		ContentType:    p.encoder.ContentType(),
	}
}

// Memory exposes the in-process cache.
func (p *Pipeline) Memory() *LRU { return p.lru }

// Disk exposes the on-disk cache.
func (p *Pipeline) Disk() *DiskCache { return p.disk }

// Rescan points the disk cache at root (the configured cache dir when empty)
// and records the scan fingerprint. A changed fingerprint purges the memory
// cache and detaches in-flight generations from it.
func (p *Pipeline) Rescan(root, fingerprint string) {
	if strings.TrimSpace(root) == "" {
		root = p.cacheDir
	}
	p.mu.Lock()
	changed := fingerprint != p.fingerprint
	if changed {
		p.generation++
		p.fingerprint = fingerprint
		p.lru.Purge()
	}
	p.disk.SetRoot(root, fingerprint)
	p.mu.Unlock()
	if changed {
		p.logger.Info("preview caches reset for new scan",
			logging.String("cache_dir", root),
			logging.String("scan_fingerprint", fingerprint),
		)
	}
}

// snapshot returns the current generation and the fingerprint it belongs to.
func (p *Pipeline) snapshot() (uint64, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation, p.fingerprint
}

// Get returns the preview for req. Invalid parameters fail with
// ErrValidation before any I/O. A cancelled ctx returns ctx.Err() while the
// shared generation continues and populates the caches.
func (p *Pipeline) Get(ctx context.Context, req Request) (Result, error) {
	key, err := p.key(req)
	if err != nil {
		return Result{}, err
	}
	if data, ok := p.lru.Get(key); ok {
		return p.result(data, SourceMemory), nil
	}

	gen, fingerprint := p.snapshot()
	flightKey := fmt.Sprintf("%d/%s/%d/%d/%d", gen, key.SeriesID, key.FrameID, key.Bin, key.Quality)
	ch := p.flight.DoChan(flightKey, func() (any, error) {
		return p.load(key, gen, fingerprint)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

func (p *Pipeline) key(req Request) (Key, error) {
	bin := req.Bin
	if bin == 0 {
		bin = p.defaultBin
	}
	quality := req.Quality
	if quality == 0 {
		quality = p.defaultQuality
	}
	if !config.ValidBin(bin) {
		return Key{}, services.Wrap(services.ErrValidation, "preview", "get",
			fmt.Sprintf("bin %d not in %v", bin, config.SupportedBins), nil)
	}
	if quality < config.MinQuality || quality > config.MaxQuality {
		return Key{}, services.Wrap(services.ErrValidation, "preview", "get",
			fmt.Sprintf("quality %d outside [%d, %d]", quality, config.MinQuality, config.MaxQuality), nil)
	}
	if !validSegment(req.SeriesID) {
		return Key{}, services.Wrap(services.ErrValidation, "preview", "get",
			fmt.Sprintf("invalid series id %q", req.SeriesID), nil)
	}
	return Key{SeriesID: req.SeriesID, FrameID: req.FrameID, Bin: bin, Quality: quality}, nil
}

func (p *Pipeline) result(data []byte, source Source) Result {
	return Result{Data: data, ContentType: p.encoder.ContentType(), Source: source}
}

// load runs once per in-flight key. Results outliving a rescan reach neither
// cache.
func (p *Pipeline) load(key Key, gen uint64, fingerprint string) (Result, error) {
	if data, ok := p.lru.Get(key); ok {
		return p.result(data, SourceMemory), nil
	}
	ctx := context.Background()
	if data, ok := p.disk.Get(ctx, key); ok {
		p.remember(key, data, gen)
		return p.result(data, SourceDisk), nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, services.Wrap(services.ErrInternal, "preview", "acquire worker", "", err)
	}
	defer p.sem.Release(1)

	started := time.Now()
	data, err := p.generate(key)
	if err != nil {
		return Result{}, err
	}
	if err := p.disk.PutFor(ctx, key, data, fingerprint); err != nil {
		logging.WarnWithContext(p.logger, "preview not persisted to disk", "preview_persist_failed",
			logging.String(logging.FieldSeriesID, key.SeriesID),
			logging.Int(logging.FieldFrameID, key.FrameID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check preview cache directory permissions"),
			logging.String(logging.FieldImpact, "preview served from memory only"),
		)
	}
	p.remember(key, data, gen)
	p.logger.Debug("preview generated",
		logging.String(logging.FieldSeriesID, key.SeriesID),
		logging.Int(logging.FieldFrameID, key.FrameID),
		logging.Int("bin", key.Bin),
		logging.Int("quality", key.Quality),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return p.result(data, SourceGenerated), nil
}

func (p *Pipeline) generate(key Key) ([]byte, error) {
	frame, err := p.frames.Frame(key.SeriesID, key.FrameID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrNotFound, "preview", "lookup frame",
			fmt.Sprintf("%s/%d", key.SeriesID, key.FrameID), err)
	}
	if strings.TrimSpace(frame.RawPath) == "" {
		return nil, services.Wrap(services.ErrNotFound, "preview", "read",
			fmt.Sprintf("frame %d has no raw image", key.FrameID), nil)
	}
	raster, err := p.reader.Read(frame.RawPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "preview", "read", frame.RawPath, err)
	}
	binned, err := imaging.Bin(raster, key.Bin)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "preview", "bin", frame.RawPath, err)
	}
	img := imaging.AutoContrast(binned, p.contrast)
	data, err := p.encoder.Encode(img, key.Quality)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "preview", "encode", frame.RawPath, err)
	}
	return data, nil
}

// remember inserts into memory unless a rescan happened meanwhile.
func (p *Pipeline) remember(key Key, data []byte, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen {
		return
	}
	p.lru.Put(key, data)
}

func validSegment(id string) bool {
	if strings.TrimSpace(id) == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
