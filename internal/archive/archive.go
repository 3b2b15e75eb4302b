// Package archive expands downloaded source archives into an engine's
// working directory. It supports zip, tar, and gzip-compressed tar archives,
// member selection, and optional flattening of the archive's directory
// layout.
package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Options control extraction behavior.
type Options struct {
	// Type is the archive format tag: "zip", "tar", "tar.gz", "tgz", "gz".
	Type string

	// Files lists the members to extract, matched against both the full
	// member path and its basename. Nil means extract all members.
	Files []string

	// KeepDirs preserves the archive's directory layout under the
	// destination. When false, members are flattened to their basenames.
	KeepDirs bool
}

// Extract expands the archive at src into destDir per opts. Members selected
// by opts.Files that are absent from the archive are an error, since the
// pipeline relies on the extracted file existing afterwards.
func Extract(src, destDir string, opts Options) error {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case "zip", "":
		return extractZip(src, destDir, opts)
	case "tar":
		return extractTar(src, destDir, opts, false)
	case "tar.gz", "tgz":
		return extractTar(src, destDir, opts, true)
	case "gz":
		return extractGzip(src, destDir, opts)
	default:
		return fmt.Errorf("archive: unsupported archive type %q", opts.Type)
	}
}

// want reports whether a member with the given path should be extracted, and
// which selector it matched (its basename match key) for bookkeeping.
func want(member string, opts Options) (string, bool) {
	if len(opts.Files) == 0 {
		return member, true
	}
	base := filepath.Base(member)
	for _, f := range opts.Files {
		if member == f || base == filepath.Base(f) {
			return f, true
		}
	}
	return "", false
}

// destPath maps a member path to its extraction destination, guarding
// against path traversal outside destDir.
func destPath(destDir, member string, opts Options) (string, error) {
	name := member
	if !opts.KeepDirs {
		name = filepath.Base(member)
	}
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	clean := filepath.Clean(dest)
	if clean != destDir && !strings.HasPrefix(clean, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive: member %q escapes destination directory", member)
	}
	return clean, nil
}

func extractZip(src, destDir string, opts Options) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("archive: open zip %s: %w", src, err)
	}
	defer zr.Close()

	seen := map[string]bool{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		sel, ok := want(f.Name, opts)
		if !ok {
			continue
		}
		seen[sel] = true

		dest, err := destPath(destDir, f.Name, opts)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("archive: open member %s: %w", f.Name, err)
		}
		err = writeFile(dest, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return checkSeen(opts, seen, src)
}

func extractTar(src, destDir string, opts Options, gzipped bool) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("archive: gzip %s: %w", src, err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	seen := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("archive: read tar %s: %w", src, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		sel, ok := want(hdr.Name, opts)
		if !ok {
			continue
		}
		seen[sel] = true

		dest, err := destPath(destDir, hdr.Name, opts)
		if err != nil {
			return err
		}
		if err := writeFile(dest, tr); err != nil {
			return err
		}
	}
	return checkSeen(opts, seen, src)
}

// extractGzip decompresses a single gzipped file (not a tarball). The output
// name is the first requested member when one is given, else the source name
// without its .gz suffix.
func extractGzip(src, destDir string, opts Options) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("archive: gzip %s: %w", src, err)
	}
	defer gz.Close()

	name := strings.TrimSuffix(filepath.Base(src), ".gz")
	if len(opts.Files) > 0 {
		name = opts.Files[0]
	}
	dest, err := destPath(destDir, name, opts)
	if err != nil {
		return err
	}
	return writeFile(dest, gz)
}

// writeFile writes r to dest, creating parent directories as needed.
func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir for %s: %w", dest, err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("archive: write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", dest, err)
	}
	return nil
}

// checkSeen verifies that every requested member was found.
func checkSeen(opts Options, seen map[string]bool, src string) error {
	for _, f := range opts.Files {
		if !seen[f] {
			return fmt.Errorf("archive: member %q not found in %s", f, src)
		}
	}
	return nil
}
