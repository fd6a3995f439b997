// Package attributor maps rootfs paths to the components that claim
// them. The package database format used by any particular attributor
// (RPM, dpkg, a manifest file) is explicitly out of scope per spec §1 —
// this package only specifies the Attributor capability and the
// directory-union rule described in spec §4.2.
package attributor

import "github.com/kaito-project/chunkah/pkg/component"

// Attributor resolves an absolute, normalized path to the set of
// component ids that claim it. An empty (or nil) Set means the path is
// unclaimed; callers fall it back to component.Unattributed.
type Attributor interface {
	Resolve(path string) (component.Set, error)
}

// Func adapts a plain function to the Attributor interface.
type Func func(path string) (component.Set, error)

func (f Func) Resolve(path string) (component.Set, error) { return f(path) }

// Chain composes several attributors, unioning their claims for a path.
// A rootfs carrying more than one package manager's metadata (e.g. a
// base RPM layer with an overlaid manifest-tracked application) uses
// this to combine them without either attributor knowing about the
// other.
type Chain []Attributor

func (c Chain) Resolve(path string) (component.Set, error) {
	out := component.Set{}
	for _, a := range c {
		claims, err := a.Resolve(path)
		if err != nil {
			return nil, err
		}
		out = out.Union(claims)
	}
	return out, nil
}

// Static wraps a precomputed path -> component.Set map. It is the hook
// non-RPM attributors (dpkg, a filesystem-label convention, a plain
// manifest file) plug into, per spec §9: compute the map however is
// appropriate for the source format, then hand it to Static.
type Static map[string]component.Set

func (s Static) Resolve(path string) (component.Set, error) {
	return s[path], nil
}
