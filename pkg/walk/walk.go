// Package walk implements the rootfs walker described in spec §4.1: a
// depth-first, canonically-ordered, non-restartable enumeration of a
// directory tree, with hardlink detection, xattr collection, and
// sha256 content digesting dispatched to a bounded worker pool.
package walk

import (
	"context"
	"os"
	"path"
	"runtime"
	"sort"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
	"github.com/kaito-project/chunkah/pkg/entry"
)

// Options configures one walk.
type Options struct {
	// Root is the directory on the host filesystem that is mounted as
	// the container rootfs and enumerated as "/".
	Root string

	// PruneTmp empties /run, /tmp and /var/tmp while keeping the three
	// directories themselves.
	PruneTmp bool

	// Prune lists additional exact-match paths (and their subtrees) to
	// omit entirely.
	Prune []string

	// HashWorkers bounds the content-hashing worker pool. Defaults to
	// runtime.NumCPU() when zero.
	HashWorkers int
}

var tmpPruneDirs = []string{"/run", "/tmp", "/var/tmp"}

// EmitFunc receives each entry in canonical order.
type EmitFunc func(entry.Entry) error

// Walk enumerates opts.Root and invokes emit once per entry in canonical
// order (parent directories before children, siblings sorted
// byte-lexicographically by name). It fails fatally — wrapping the
// offending path in a chunkerr.Error of kind IO — on any stat/read
// error; it never proceeds with a partial tree and it never follows
// symlinks.
func Walk(ctx context.Context, opts Options, emit EmitFunc) error {
	if opts.HashWorkers <= 0 {
		opts.HashWorkers = runtime.NumCPU()
	}

	w := &walker{
		opts:     opts,
		pruneSet: normalizeSet(opts.Prune),
		dev2ino:  map[uint64]map[uint64]string{},
	}

	entries, err := w.collect(ctx)
	if err != nil {
		return err
	}

	if err := w.hashRegulars(ctx, entries); err != nil {
		return err
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return chunkerr.Wrap(chunkerr.Internal, "walk cancelled", ctx.Err())
		}
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

type walker struct {
	opts     Options
	pruneSet map[string]struct{}
	dev2ino  map[uint64]map[uint64]string
}

func normalizeSet(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[path.Clean(p)] = struct{}{}
	}
	return out
}

func (w *walker) isPruned(virtualPath string) bool {
	if _, ok := w.pruneSet[virtualPath]; ok {
		return true
	}
	for prefix := range w.pruneSet {
		if strings.HasPrefix(virtualPath, prefix+"/") {
			return true
		}
	}
	return false
}

func (w *walker) isEmptiedTmp(virtualPath string) bool {
	if !w.opts.PruneTmp {
		return false
	}
	for _, d := range tmpPruneDirs {
		if virtualPath == d {
			return false // the directory itself is kept
		}
		if strings.HasPrefix(virtualPath, d+"/") {
			return true
		}
	}
	return false
}

// collect performs the synchronous metadata-only DFS, returning entries
// in canonical order. Regular file content is not yet hashed.
func (w *walker) collect(ctx context.Context) ([]entry.Entry, error) {
	var out []entry.Entry

	rootHostPath := w.opts.Root
	rootEntry, err := w.stat(rootHostPath, "/")
	if err != nil {
		return nil, err
	}
	out = append(out, rootEntry)

	if err := w.walkDir(ctx, rootHostPath, "/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *walker) walkDir(ctx context.Context, hostDir, virtualDir string, out *[]entry.Entry) error {
	if ctx.Err() != nil {
		return chunkerr.Wrap(chunkerr.Internal, "walk cancelled", ctx.Err())
	}

	names, err := readDirNames(hostDir)
	if err != nil {
		return chunkerr.Wrap(chunkerr.IO, hostDir, err)
	}
	sort.Strings(names)

	for _, name := range names {
		childHost := path.Join(hostDir, name)
		childVirtual := path.Join(virtualDir, name)

		if w.isPruned(childVirtual) {
			continue
		}

		e, err := w.stat(childHost, childVirtual)
		if err != nil {
			return err
		}

		if w.isEmptiedTmp(childVirtual) {
			// The path itself is inside a pruned-content directory: skip
			// entirely (its parent, one of tmpPruneDirs, was already
			// emitted and stays empty).
			continue
		}

		switch e.Kind {
		case entry.Directory:
			*out = append(*out, e)
			if err := w.walkDir(ctx, childHost, childVirtual, out); err != nil {
				return err
			}
		case entry.Regular:
			key, isHardlink := w.hardlinkKey(e)
			if isHardlink {
				e.Kind = entry.Hardlink
				e.LinkTarget = key
				e.Size = 0
			} else {
				w.rememberInode(e, childVirtual)
			}
			*out = append(*out, e)
		default:
			*out = append(*out, e)
		}
	}
	return nil
}

func (w *walker) hardlinkKey(e entry.Entry) (firstPath string, isHardlink bool) {
	dev, ino := e.InodeKey()
	byIno := w.dev2ino[dev]
	if byIno == nil {
		return "", false
	}
	first, ok := byIno[ino]
	return first, ok
}

func (w *walker) rememberInode(e entry.Entry, virtualPath string) {
	dev, ino := e.InodeKey()
	byIno := w.dev2ino[dev]
	if byIno == nil {
		byIno = map[uint64]string{}
		w.dev2ino[dev] = byIno
	}
	byIno[ino] = virtualPath
}

// hashRegulars dispatches sha256 digesting of every canonical Regular
// entry to a bounded worker pool, writing results back by index so
// emission order is unaffected by completion order.
func (w *walker) hashRegulars(ctx context.Context, entries []entry.Entry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.HashWorkers)

	for i := range entries {
		if entries[i].Kind != entry.Regular {
			continue
		}
		i := i
		hostPath := path.Join(w.opts.Root, entries[i].Path)
		g.Go(func() error {
			if gctx.Err() != nil {
				return chunkerr.Wrap(chunkerr.Internal, "walk cancelled", gctx.Err())
			}
			d, err := hashFile(hostPath)
			if err != nil {
				return chunkerr.Wrap(chunkerr.IO, hostPath, err)
			}
			entries[i].ContentDigest = d
			return nil
		})
	}
	return g.Wait()
}

func hashFile(p string) (digest.Digest, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.Canonical.FromReader(f)
}
