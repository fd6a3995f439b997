//go:build linux

package walk

import (
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
	"github.com/kaito-project/chunkah/pkg/entry"
)

func readDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

// stat gathers full metadata for hostPath in a single Lstat call plus an
// xattr read, mapping it onto an entry.Entry at virtualPath. It never
// follows symlinks.
func (w *walker) stat(hostPath, virtualPath string) (entry.Entry, error) {
	var st unix.Stat_t
	if err := unix.Lstat(hostPath, &st); err != nil {
		return entry.Entry{}, chunkerr.Wrap(chunkerr.IO, hostPath, err)
	}

	e := entry.Entry{
		Path: virtualPath,
		Mode: uint32(st.Mode) & 0o7777,
		UID:  st.Uid,
		GID:  st.Gid,
	}
	e = e.WithInode(uint64(st.Dev), st.Ino)

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		e.Kind = entry.Directory
	case unix.S_IFREG:
		e.Kind = entry.Regular
		e.Size = st.Size
	case unix.S_IFLNK:
		e.Kind = entry.Symlink
		target, err := os.Readlink(hostPath)
		if err != nil {
			return entry.Entry{}, chunkerr.Wrap(chunkerr.IO, hostPath, err)
		}
		e.LinkTarget = target
	case unix.S_IFIFO:
		e.Kind = entry.FIFO
	case unix.S_IFCHR:
		e.Kind = entry.CharDevice
		e.DevMajor = uint32(unix.Major(uint64(st.Rdev)))
		e.DevMinor = uint32(unix.Minor(uint64(st.Rdev)))
	case unix.S_IFBLK:
		e.Kind = entry.BlockDevice
		e.DevMajor = uint32(unix.Major(uint64(st.Rdev)))
		e.DevMinor = uint32(unix.Minor(uint64(st.Rdev)))
	default:
		return entry.Entry{}, chunkerr.Wrap(chunkerr.IO, hostPath, os.ErrInvalid)
	}

	xattrs, err := readXattrs(hostPath)
	if err != nil {
		return entry.Entry{}, chunkerr.Wrap(chunkerr.IO, hostPath, err)
	}
	e.Xattrs = xattrs

	return e, nil
}

// readXattrs lists and reads every xattr on path, dropping the
// "trusted.*" namespace and returning the rest sorted lexicographically
// by name, per spec §3.
func readXattrs(path string) ([]entry.Xattr, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if isNotSupported(err) {
			return nil, nil
		}
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		if isNotSupported(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, raw := range strings.Split(string(buf[:n]), "\x00") {
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "trusted.") {
			continue
		}
		names = append(names, raw)
	}
	sort.Strings(names)

	out := make([]entry.Xattr, 0, len(names))
	for _, name := range names {
		vsize, err := unix.Lgetxattr(path, name, nil)
		if err != nil {
			return nil, err
		}
		val := make([]byte, vsize)
		if vsize > 0 {
			n, err := unix.Lgetxattr(path, name, val)
			if err != nil {
				return nil, err
			}
			val = val[:n]
		}
		out = append(out, entry.Xattr{Name: name, Value: val})
	}
	return out, nil
}

func isNotSupported(err error) bool {
	return err == unix.ENOTSUP || err == unix.EOPNOTSUPP
}
