// Package packager writes product archives.
//
// Archives use zip.Store: complex SAR rasters are close to random data, so
// deflate saves almost nothing and costs CPU.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one file in an archive.
type Entry struct {
	// Path is the local file.
	Path string
	// Name is the name inside the archive. Defaults to the base name of Path.
	Name string
}

// Manifest is the generated text record shipped in every product.
type Manifest struct {
	Process  string
	Granules []string
}

// String renders the manifest text.
func (m Manifest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Process: %s\n", m.Process)
	fmt.Fprintf(&b, "Input Granules: %s\n", strings.Join(m.Granules, ", "))
	return b.String()
}

// Files builds entries for names relative to dir.
func Files(dir string, names ...string) []Entry {
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Entry{Path: filepath.Join(dir, name), Name: name}
	}
	return entries
}

// Package writes <outDir>/<productName>.txt from manifest and then
// <outDir>/<productName>.zip holding entries followed by the manifest.
// It returns the archive path.
func Package(entries []Entry, manifest Manifest, productName, outDir string) (string, error) {
	manifestPath := filepath.Join(outDir, productName+".txt")
	if err := os.WriteFile(manifestPath, []byte(manifest.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	all := append(append([]Entry{}, entries...), Entry{Path: manifestPath})
	zipPath := filepath.Join(outDir, productName+".zip")
	if err := writeArchive(zipPath, all); err != nil {
		return "", err
	}
	return zipPath, nil
}

func writeArchive(zipPath string, entries []Entry) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(zipPath), filepath.Base(zipPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, e := range entries {
		if err = addFile(zw, e); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err = os.Rename(tmp.Name(), zipPath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, e Entry) error {
	name := e.Name
	if name == "" {
		name = filepath.Base(e.Path)
	}

	f, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", e.Path, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", name, err)
	}
	header.Name = filepath.ToSlash(name)
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}

// CopyFiles copies names from srcDir into dstDir, creating dstDir.
func CopyFiles(srcDir, dstDir string, names ...string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dstDir, err)
	}
	for _, name := range names {
		if err := copyFile(filepath.Join(srcDir, name), filepath.Join(dstDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
