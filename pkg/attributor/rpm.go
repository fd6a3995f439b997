package attributor

import (
	"path"
	"strings"

	"github.com/kaito-project/chunkah/pkg/component"
)

// PackageIndex maps an RPM package name to the absolute paths it owns,
// as read from /var/lib/rpm inside the rootfs. Building this index
// requires parsing the RPM database's on-disk format (BerkeleyDB, NDB or
// SQLite depending on distro/version), which spec §1 explicitly treats
// as an external collaborator. A real deployment supplies a
// PackageIndexReader that does that parsing; attributor.RPM itself only
// implements the path->component claim/union logic of spec §4.2.
type PackageIndex map[string][]string

// PackageIndexReader parses a rootfs's RPM database into a PackageIndex.
// Not implemented by this package; plug in the format-specific reader at
// the call site.
type PackageIndexReader interface {
	Read(rootfs string) (PackageIndex, error)
}

// RPM is the reference Attributor: every path owned by exactly one
// package resolves to {"rpm/<name>"}; a path owned by several packages
// (legal for directories and, rarely, shared files) resolves to the
// union of all of them. Directories additionally claim the union of
// their strict descendants' components, per spec §4.2.
type RPM struct {
	// byPath is the fully-expanded path -> owning packages map, built
	// once in NewRPM from the supplied PackageIndex.
	byPath map[string]component.Set
}

// NewRPM builds an RPM attributor from an already-parsed PackageIndex.
// It precomputes directory attribution (the union of each directory's
// strict descendants) so Resolve is O(1) per call.
func NewRPM(idx PackageIndex) *RPM {
	byPath := map[string]component.Set{}

	for pkg, paths := range idx {
		id := "rpm/" + pkg
		for _, p := range paths {
			p = normalize(p)
			if byPath[p] == nil {
				byPath[p] = component.Set{}
			}
			byPath[p].Add(id)

			for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
				if byPath[dir] == nil {
					byPath[dir] = component.Set{}
				}
				byPath[dir].Add(id)
				if dir == path.Dir(dir) {
					break
				}
			}
		}
	}

	return &RPM{byPath: byPath}
}

func (r *RPM) Resolve(p string) (component.Set, error) {
	return r.byPath[normalize(p)], nil
}

func normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
