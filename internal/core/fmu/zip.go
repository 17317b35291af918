package fmu

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
)

func extractZip(path, dir string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%q: %w", path, ErrInvalidArchive)
	}
	defer func() { _ = reader.Close() }()

	for _, file := range reader.File {
		if err := extractEntry(file, dir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(file *zip.File, dir string) error {
	name := filepath.FromSlash(file.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("entry %q escapes archive: %w", file.Name, ErrInvalidArchive)
	}
	target := filepath.Join(dir, name)

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("entry %q: %w", file.Name, ErrInvalidArchive)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Pack builds a model archive at outPath from the contents of dir,
// which must contain a valid modelDescription.xml at its root.
func Pack(dir, outPath string) error {
	descPath := filepath.Join(dir, DescriptionFileName)
	if _, err := modeldesc.ParseFile(descPath); err != nil {
		return fmt.Errorf("pack %q: %w", dir, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	writer := zip.NewWriter(out)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := writer.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		_ = writer.Close()
		_ = out.Close()
		return err
	}

	if err := writer.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
