package imaging

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
)

// PageCache provides thread-safe caching of decoded pages and of their run
// tables, so that repeated tool calls on the same file skip decoding.
//
// Decoded images are keyed by file path; run tables by file path and
// binarization level. A file whose modification time or size changed since
// it was decoded is decoded again, and its run tables rebuilt.
//
// # Example Usage
//
//	cache := imaging.NewPageCache()
//	table, err := cache.Runs("/scans/page-001.png", imaging.DefaultLevel)
//	if err != nil {
//	    return err
//	}
//	cache.Evict("/scans/page-001.png") // Optional: free memory
type PageCache struct {
	mu     sync.RWMutex
	images map[string]cachedPage
	tables map[tableKey]*runs.Table
}

// cachedPage is a decoded page and the file state it was decoded from.
type cachedPage struct {
	img   image.Image
	stamp fileStamp
}

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func (s fileStamp) equal(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

func statStamp(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, fmt.Errorf("failed to open page image: %w", err)
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, nil
}

type tableKey struct {
	path  string
	level uint8
}

// NewPageCache creates an empty page cache.
func NewPageCache() *PageCache {
	return &PageCache{
		images: make(map[string]cachedPage),
		tables: make(map[tableKey]*runs.Table),
	}
}

// Load retrieves a page image from the cache or decodes it from disk.
//
// Supported formats are those of github.com/disintegration/imaging: PNG, JPEG,
// GIF, TIFF and BMP. The EXIF orientation of JPEG scans is applied, so that
// staff lines come out horizontal.
func (c *PageCache) Load(path string) (image.Image, error) {
	img, _, err := c.load(path)
	return img, err
}

// load returns the current image of path and the stamp it was decoded at.
func (c *PageCache) load(path string) (image.Image, fileStamp, error) {
	stamp, err := statStamp(path)
	if err != nil {
		return nil, fileStamp{}, err
	}

	c.mu.RLock()
	if p, ok := c.images[path]; ok && p.stamp.equal(stamp) {
		c.mu.RUnlock()
		return p.img, stamp, nil
	}
	c.mu.RUnlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("failed to open page image: %w", err)
	}

	c.mu.Lock()
	if p, ok := c.images[path]; !ok || !p.stamp.equal(stamp) {
		c.evictLocked(path)
		c.images[path] = cachedPage{img: img, stamp: stamp}
	}
	c.mu.Unlock()

	return img, stamp, nil
}

// Runs returns the vertical run table of a page binarized at level.
func (c *PageCache) Runs(path string, level uint8) (*runs.Table, error) {
	key := tableKey{path: path, level: level}

	img, stamp, err := c.load(path)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	t, ok := c.tables[key]
	fresh := ok && c.images[path].stamp.equal(stamp)
	c.mu.RUnlock()
	if fresh {
		return t, nil
	}

	t = RunTable(img, level)

	c.mu.Lock()
	// Another caller may have stored a newer version meanwhile.
	if p, ok := c.images[path]; ok && p.stamp.equal(stamp) {
		c.tables[key] = t
	}
	c.mu.Unlock()

	return t, nil
}

// DecodeRuns decodes a page and returns its run table at level, bypassing
// any cache.
func DecodeRuns(path string, level uint8) (*runs.Table, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open page image: %w", err)
	}
	return RunTable(img, level), nil
}

// Clear removes every page from the cache.
func (c *PageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]cachedPage)
	c.tables = make(map[tableKey]*runs.Table)
	c.mu.Unlock()
}

// Evict removes a page, and all its run tables, from the cache.
func (c *PageCache) Evict(path string) {
	c.mu.Lock()
	c.evictLocked(path)
	c.mu.Unlock()
}

func (c *PageCache) evictLocked(path string) {
	delete(c.images, path)
	for k := range c.tables {
		if k.path == path {
			delete(c.tables, k)
		}
	}
}

// PageInfo contains metadata about a page image file.
type PageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the format guessed from the file extension, or "unknown".
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// Binary is set when the decoded image already holds only two levels.
	Binary bool `json:"binary"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadPageInfo loads a page into the cache and reports its metadata.
func LoadPageInfo(cache *PageCache, path string) (*PageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	if f, err := imaging.FormatFromFilename(path); err == nil {
		format = strings.ToLower(f.String())
	}

	colorDepth := "8-bit"
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		colorDepth = "16-bit"
	}

	bounds := img.Bounds()
	return &PageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		ColorDepth:    colorDepth,
		Binary:        isBinary(img),
		FileSizeBytes: stat.Size(),
	}, nil
}

// isBinary reports whether img is black and white only.
func isBinary(img image.Image) bool {
	if p, ok := img.(*image.Paletted); ok && len(p.Palette) <= 2 {
		return true
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return false
	}
	for _, v := range g.Pix {
		if v != 0 && v != 255 {
			return false
		}
	}
	return true
}
