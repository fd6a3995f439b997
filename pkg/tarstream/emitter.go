// Package tarstream implements the tar emitter: it serializes a set of
// ledger entries as a deterministic POSIX-ustar + PAX-extended tar
// stream per spec §4.5. The wire format itself is handled entirely by
// the standard library's archive/tar; this package only pins down the
// deterministic fields (epoch timestamps, empty uname/gname, sorted
// xattr PAX records, hardlink/device/directory framing).
package tarstream

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kaito-project/chunkah/pkg/entry"
)

// Emit writes entries (already resolved to include any synthesized
// parent directories) to w as a single deterministic tar stream. root is
// the host directory the rootfs is mounted at, used to read regular
// file content; it may be empty if entries carries no Regular kind
// (tests building synthetic directory/symlink-only buckets). The
// synthetic rootfs entry "/" itself is never written — OCI layer tars
// conventionally start at the top-level directories, and extraction
// targets a root that already exists. Entries are re-sorted
// byte-lexicographically by path before writing regardless of input
// order, so callers never need to pre-sort.
func Emit(w io.Writer, root string, entries []entry.Entry, epoch time.Time) error {
	sorted := make([]entry.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Path == "/" {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	tw := tar.NewWriter(w)
	for _, e := range sorted {
		if err := writeEntry(tw, root, e, epoch); err != nil {
			return err
		}
	}
	return tw.Close()
}

func tarName(e entry.Entry) string {
	name := strings.TrimPrefix(e.Path, "/")
	if e.Kind == entry.Directory && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

func writeEntry(tw *tar.Writer, root string, e entry.Entry, epoch time.Time) error {
	hdr := &tar.Header{
		Name:       tarName(e),
		Mode:       int64(e.Mode),
		Uid:        int(e.UID),
		Gid:        int(e.GID),
		Uname:      "",
		Gname:      "",
		ModTime:    epoch,
		AccessTime: epoch,
		ChangeTime: epoch,
		Format:     tar.FormatPAX,
	}

	if len(e.Xattrs) > 0 {
		records := make(map[string]string, len(e.Xattrs))
		for _, x := range e.Xattrs {
			records["SCHILY.xattr."+x.Name] = string(x.Value)
		}
		hdr.PAXRecords = records
	}

	switch e.Kind {
	case entry.Directory:
		hdr.Typeflag = tar.TypeDir
		hdr.Size = 0
	case entry.Regular:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = e.Size
	case entry.Hardlink:
		hdr.Typeflag = tar.TypeLink
		hdr.Linkname = strings.TrimPrefix(e.LinkTarget, "/")
		hdr.Size = 0
	case entry.Symlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = e.LinkTarget
		hdr.Size = 0
	case entry.FIFO:
		hdr.Typeflag = tar.TypeFifo
		hdr.Size = 0
	case entry.CharDevice:
		hdr.Typeflag = tar.TypeChar
		hdr.Devmajor = int64(e.DevMajor)
		hdr.Devminor = int64(e.DevMinor)
		hdr.Size = 0
	case entry.BlockDevice:
		hdr.Typeflag = tar.TypeBlock
		hdr.Devmajor = int64(e.DevMajor)
		hdr.Devminor = int64(e.DevMinor)
		hdr.Size = 0
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if e.Kind == entry.Regular && e.Size > 0 {
		f, err := os.Open(filepath.Join(root, e.Path))
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}
	return nil
}
