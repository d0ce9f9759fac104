// Package gate decides how a folder's files travel: as-is, or as one
// compressed bundle when their combined size exceeds the attachment ceiling.
package gate

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// DefaultCeilingMB matches the Gmail attachment limit.
const DefaultCeilingMB = 25.0

// BundleExt is the extension of compressed bundles.
const BundleExt = ".zip"

const bytesPerMB = 1024 * 1024

// ErrSizeExceeded means the compressed bundle is still above the ceiling.
var ErrSizeExceeded = errors.New("attachments exceed size ceiling after compression")

// Plan is the outcome of Decide.
type Plan struct {
	// Files are the paths to attach: the originals or a single bundle.
	Files []string

	// SizeMB is the total size of Files in binary megabytes.
	SizeMB float64

	// OriginalSizeMB is the size before any compression.
	OriginalSizeMB float64

	// Compressed is true when Files holds a bundle.
	Compressed bool

	// ExceedsCeiling is true when even the bundle is above the ceiling.
	ExceedsCeiling bool
}

// Gate applies a size ceiling to attachment sets.
type Gate struct {
	ceilingMB float64
}

// New returns a Gate with the given ceiling. Non-positive values use DefaultCeilingMB.
func New(ceilingMB float64) *Gate {
	if ceilingMB <= 0 {
		ceilingMB = DefaultCeilingMB
	}
	return &Gate{ceilingMB: ceilingMB}
}

// CeilingMB returns the configured ceiling.
func (g *Gate) CeilingMB() float64 {
	return g.ceilingMB
}

// TotalSizeMB sums the sizes of paths in binary megabytes (1024*1024 bytes).
func TotalSizeMB(paths []string) (float64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("failed to stat attachment: %w", err)
		}
		total += info.Size()
	}
	return float64(total) / bytesPerMB, nil
}

// Decide returns paths unchanged when their total size is at or below the
// ceiling. Otherwise it writes <bundleName>.zip into baseDir and returns that
// single file with its recomputed size. An existing file of that name is never
// overwritten; the bundle gets a " (bundle)" suffix instead.
func (g *Gate) Decide(paths []string, baseDir, bundleName string) (Plan, error) {
	size, err := TotalSizeMB(paths)
	if err != nil {
		return Plan{}, err
	}
	if size <= g.ceilingMB {
		return Plan{Files: paths, SizeMB: size, OriginalSizeMB: size}, nil
	}

	bundle, err := bundlePath(baseDir, bundleName)
	if err != nil {
		return Plan{}, err
	}
	if err := writeBundle(bundle, paths); err != nil {
		return Plan{}, err
	}

	bundleSize, err := TotalSizeMB([]string{bundle})
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Files:          []string{bundle},
		SizeMB:         bundleSize,
		OriginalSizeMB: size,
		Compressed:     true,
		ExceedsCeiling: bundleSize > g.ceilingMB,
	}, nil
}

// Err returns ErrSizeExceeded wrapped with sizes when the plan cannot be attached.
func (p Plan) Err(ceilingMB float64) error {
	if !p.ExceedsCeiling {
		return nil
	}
	return fmt.Errorf("%w: %.2f MB > %.2f MB", ErrSizeExceeded, p.SizeMB, ceilingMB)
}

// bundlePath returns the first free name among <name>.zip,
// <name> (bundle).zip, <name> (bundle 2).zip and so on.
func bundlePath(dir, name string) (string, error) {
	for i := 1; i <= 100; i++ {
		candidate := name
		switch {
		case i == 2:
			candidate += " (bundle)"
		case i > 2:
			candidate += fmt.Sprintf(" (bundle %d)", i-1)
		}
		p := filepath.Join(dir, candidate+BundleExt)
		if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
			return p, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to check bundle path: %w", err)
		}
	}
	return "", fmt.Errorf("failed to create bundle: no free name for %s in %s", name, dir)
}

// writeBundle compresses paths into a temporary file next to dest and renames
// it into place once complete.
func writeBundle(dest string, paths []string) (err error) {
	out, err := os.CreateTemp(filepath.Dir(dest), ".bundle-*"+BundleExt)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	tmp := out.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(out)
	for _, p := range paths {
		if err := addFile(zw, p); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat attachment: %w", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header: %w", err)
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to bundle: %w", header.Name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to compress %s: %w", header.Name, err)
	}
	return nil
}
