package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
)

// ErrAssetNotFound is returned when no .glb or .gltf file exists for a geometry name.
var ErrAssetNotFound = errors.New("loader: asset not found")

// GLTFAssets is a content.AssetSource that resolves each geometry name of a
// bundle to <dir>/<name>.glb or <dir>/<name>.gltf. Parsed assets are cached
// by name, so bundles sharing a geometry parse it once.
type GLTFAssets struct {
	mu *sync.RWMutex

	dir    string
	logger *slog.Logger

	defaultFrames int
	frames        map[string]int

	cache map[string]content.GeometryAsset
}

var _ content.AssetSource = &GLTFAssets{}

// NewGLTFAssets creates an asset source reading from dir.
//
// Parameters:
//   - dir: the directory holding the model files
//   - options: functional options for the source
//
// Returns:
//   - *GLTFAssets: the asset source
func NewGLTFAssets(dir string, options ...GLTFAssetsBuilderOption) *GLTFAssets {
	a := &GLTFAssets{
		mu:            &sync.RWMutex{},
		dir:           dir,
		logger:        slog.Default(),
		defaultFrames: 8,
		frames:        make(map[string]int),
		cache:         make(map[string]content.GeometryAsset),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Load resolves every geometry in bundle, in order. It checks ctx between files.
//
// Parameters:
//   - ctx: aborts the load between files
//   - bundle: the geometries to load
//
// Returns:
//   - *content.Package: the package, one GeometryAsset per bundle entry
//   - error: the abort error, ErrAssetNotFound, or a parse failure
func (a *GLTFAssets) Load(ctx context.Context, bundle content.Bundle) (*content.Package, error) {
	pkg := &content.Package{Name: bundle.Name, Geometries: make([]content.GeometryAsset, 0, len(bundle.Geometries))}
	for _, name := range bundle.Geometries {
		if err := task.CheckAbort(ctx); err != nil {
			return nil, err
		}
		g, err := a.Geometry(name)
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", bundle.Name, err)
		}
		pkg.Geometries = append(pkg.Geometries, g)
	}
	return pkg, nil
}

// Geometry returns the named asset, parsing it on first use.
//
// Parameters:
//   - name: the geometry name
//
// Returns:
//   - content.GeometryAsset: the asset
//   - error: ErrAssetNotFound or a parse failure
func (a *GLTFAssets) Geometry(name string) (content.GeometryAsset, error) {
	a.mu.RLock()
	g, ok := a.cache[name]
	a.mu.RUnlock()
	if ok {
		return g, nil
	}

	path, err := a.resolve(name)
	if err != nil {
		return content.GeometryAsset{}, err
	}
	p, err := parseGLTFFile(path)
	if err != nil {
		return content.GeometryAsset{}, err
	}
	g, err = a.asset(name, p)
	if err != nil {
		return content.GeometryAsset{}, fmt.Errorf("%s: %w", path, err)
	}

	a.mu.Lock()
	a.cache[name] = g
	a.mu.Unlock()
	a.logger.Debug("geometry loaded", "name", name, "path", path, "lods", len(g.LODs))
	return g, nil
}

// Register parses a model from r and caches it under name, replacing any
// earlier entry. Relative buffer URIs resolve against the source's directory.
//
// Parameters:
//   - name: the geometry name bundles refer to
//   - r: the model data
//   - isGLB: true for binary GLB data, false for glTF JSON
//
// Returns:
//   - error: error if the data cannot be parsed
func (a *GLTFAssets) Register(name string, r io.Reader, isGLB bool) error {
	p, err := parseGLTFReader(r, isGLB, a.dir)
	if err != nil {
		return fmt.Errorf("loader: %s: %w", name, err)
	}
	g, err := a.asset(name, p)
	if err != nil {
		return fmt.Errorf("loader: %s: %w", name, err)
	}
	a.mu.Lock()
	a.cache[name] = g
	a.mu.Unlock()
	return nil
}

// Cached returns the number of parsed geometries held.
func (a *GLTFAssets) Cached() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

func (a *GLTFAssets) asset(name string, p *gltfParser) (content.GeometryAsset, error) {
	lods, err := p.extractLODs()
	if err != nil {
		return content.GeometryAsset{}, err
	}
	frames := a.defaultFrames
	if f, ok := a.frames[name]; ok {
		frames = f
	}
	return content.GeometryAsset{Name: name, LODs: lods, BillboardFrames: max(frames, 1)}, nil
}

func (a *GLTFAssets) resolve(name string) (string, error) {
	for _, ext := range []string{".glb", ".gltf"} {
		path := filepath.Join(a.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q in %s", ErrAssetNotFound, name, a.dir)
}
