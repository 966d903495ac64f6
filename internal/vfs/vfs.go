// Package vfs resolves logical resource paths against a game directory
// overlaid with archives attached at runtime.
package vfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Faultbox/srcdecomp/pkg/encoding"
	"github.com/Faultbox/srcdecomp/pkg/pak"
	"github.com/Faultbox/srcdecomp/pkg/vpk"
)

// ErrResourceNotFound is returned when no indexed or attached entry has the
// requested normalized path.
var ErrResourceNotFound = errors.New("resource not found")

// Origin tells where a resource's bytes come from.
type Origin uint8

const (
	OriginDisk Origin = iota
	OriginArchive
)

func (o Origin) String() string {
	if o == OriginArchive {
		return "archive"
	}
	return "disk"
}

// Resource is a handle to the bytes of one file.
type Resource interface {
	// Key is the normalized lookup path.
	Key() string
	Origin() Origin
	Bytes() ([]byte, error)
}

// Archive is an attachable set of entries. Both *pak.Archive and
// *vpk.Package satisfy it.
type Archive interface {
	List() []string
	Read(name string) ([]byte, error)
}

type fileResource struct {
	key  string
	path string
}

func (r *fileResource) Key() string    { return r.key }
func (r *fileResource) Origin() Origin { return OriginDisk }

func (r *fileResource) Bytes() ([]byte, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", r.key)
	}
	return data, nil
}

type archiveResource struct {
	key     string
	name    string
	archive Archive
}

func (r *archiveResource) Key() string    { return r.key }
func (r *archiveResource) Origin() Origin { return OriginArchive }

func (r *archiveResource) Bytes() ([]byte, error) {
	data, err := r.archive.Read(r.name)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting %s", r.key)
	}
	return data, nil
}

// Option configures a Locator.
type Option func(*Locator)

// WithLogger sets the diagnostic logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Locator) { l.log = log }
}

// WithResourceLog sets the logger that receives one line per indexed or
// attached key (see logger.NewResourceLog).
func WithResourceLog(log *zap.Logger) Option {
	return func(l *Locator) { l.resources = log }
}

// Locator maps normalized paths to resources. The directory tree under root
// is indexed once, on first lookup. Attached archive entries take precedence
// over disk files with the same key.
type Locator struct {
	root string

	mu      sync.RWMutex
	indexed bool
	entries map[string]Resource

	log       *zap.Logger
	resources *zap.Logger
}

// New creates a locator for a game directory. An empty root disables disk
// indexing.
func New(root string, opts ...Option) *Locator {
	l := &Locator{
		root:      root,
		entries:   make(map[string]Resource),
		log:       zap.NewNop(),
		resources: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the indexed directory.
func (l *Locator) Root() string {
	return l.root
}

// Get resolves a path. Lookup normalizes separators and case and requires
// an exact key match.
func (l *Locator) Get(path string) (Resource, error) {
	if err := l.ensureIndexed(); err != nil {
		return nil, err
	}

	key := encoding.NormalizePath(path)
	l.mu.RLock()
	r, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrResourceNotFound, "%s", key)
	}
	return r, nil
}

// Read resolves a path and returns its bytes.
func (l *Locator) Read(path string) ([]byte, error) {
	r, err := l.Get(path)
	if err != nil {
		return nil, err
	}
	return r.Bytes()
}

// Contains reports whether a path resolves.
func (l *Locator) Contains(path string) bool {
	_, err := l.Get(path)
	return err == nil
}

// Keys returns every known key, sorted.
func (l *Locator) Keys() []string {
	l.mu.RLock()
	keys := lo.Keys(l.entries)
	l.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of known keys.
func (l *Locator) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// AttachArchive decodes an in-memory ZIP archive, such as a map's embedded
// pakfile, and attaches its entries. It returns the number of entries.
func (l *Locator) AttachArchive(data []byte) (int, error) {
	archive, err := pak.Open(data)
	if err != nil {
		return 0, errors.Wrap(err, "attaching archive")
	}
	return l.Attach(archive), nil
}

// AttachVPK opens a package directory file and attaches its entries.
func (l *Locator) AttachVPK(dirPath string) (int, error) {
	p, err := vpk.Open(dirPath)
	if err != nil {
		return 0, errors.Wrapf(err, "attaching package %s", dirPath)
	}
	return l.Attach(p), nil
}

// Attach registers every entry of an archive. Entries replace existing
// resources with the same key and add to the rest.
func (l *Locator) Attach(archive Archive) int {
	names := archive.List()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range names {
		key := encoding.NormalizePath(name)
		if key == "" {
			continue
		}
		l.entries[key] = &archiveResource{key: key, name: name, archive: archive}
		l.resources.Info(key)
	}
	l.log.Debug("attached archive", zap.Int("entries", len(names)), zap.Int("total", len(l.entries)))
	return len(names)
}

// ensureIndexed walks root once. Keys already attached are kept, so
// archives attached before the first lookup still win.
func (l *Locator) ensureIndexed() error {
	l.mu.RLock()
	done := l.indexed
	l.mu.RUnlock()
	if done {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexed {
		return nil
	}
	if l.root == "" {
		l.indexed = true
		return nil
	}

	count := 0
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := encoding.NormalizePath(filepath.ToSlash(rel))
		l.resources.Info(key)
		if _, exists := l.entries[key]; !exists {
			l.entries[key] = &fileResource{key: key, path: path}
			count++
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "indexing %s", l.root)
	}

	l.indexed = true
	l.log.Debug("indexed resource root", zap.String("root", l.root), zap.Int("files", count))
	return nil
}
