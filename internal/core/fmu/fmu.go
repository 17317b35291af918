// Package fmu unpacks and packs model archives: zip files carrying a
// modelDescription.xml at the root plus optional resources. An
// unpacked archive binds to the in-process model registry for
// instantiation.
package fmu

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// DescriptionFileName is the archive entry every model archive must
// carry at its root.
const DescriptionFileName = "modelDescription.xml"

const tempDirPrefix = "fmukit-"

// Archive is an unpacked model archive. Archives unpacked into a
// temporary directory own it and remove it on Close.
type Archive struct {
	path    string
	dir     string
	ownsDir bool
	desc    *modeldesc.Description
	digest  uint64

	closeOnce sync.Once
	closeErr  error
}

// Unpack extracts the archive at path into a fresh temporary
// directory. The returned archive owns the directory.
func Unpack(path string) (*Archive, error) {
	dir, err := os.MkdirTemp("", tempDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	a, err := unpackInto(path, dir, true)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return a, nil
}

// UnpackTo extracts the archive at path into dir, which must already
// exist. The caller keeps ownership of dir.
func UnpackTo(path, dir string) (*Archive, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%q: %w", dir, ErrInvalidOutputDir)
	}
	return unpackInto(path, dir, false)
}

func unpackInto(path, dir string, ownsDir bool) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%q: %w", path, ErrInvalidFile)
	}

	if err := extractZip(path, dir); err != nil {
		return nil, err
	}

	digest, err := digestFile(path)
	if err != nil {
		return nil, fmt.Errorf("digest %q: %w", path, err)
	}

	descPath := filepath.Join(dir, DescriptionFileName)
	if _, err := os.Stat(descPath); err != nil {
		return nil, fmt.Errorf("%q: %w", path, ErrMissingDescription)
	}
	desc, err := modeldesc.ParseFile(descPath)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}

	log.Provide().Debug("archive unpacked",
		log.String("path", path),
		log.String("dir", dir),
		log.String("model", desc.ModelName),
		log.Uint64("digest", digest))

	return &Archive{
		path:    path,
		dir:     dir,
		ownsDir: ownsDir,
		desc:    desc,
		digest:  digest,
	}, nil
}

// Description returns the parsed model description.
func (a *Archive) Description() *modeldesc.Description { return a.desc }

// Path returns the archive file the instance was unpacked from.
func (a *Archive) Path() string { return a.path }

// Dir returns the directory holding the extracted entries.
func (a *Archive) Dir() string { return a.dir }

// ResourcesDir returns the extracted resources directory, or "" when
// the archive ships none.
func (a *Archive) ResourcesDir() string {
	dir := filepath.Join(a.dir, "resources")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

// Digest returns the xxhash of the archive file, computed at unpack.
func (a *Archive) Digest() uint64 { return a.digest }

// Load binds the archive's model for the given simulation kind against
// the driver registry.
func (a *Archive) Load(kind slave.Kind) (*slave.Library, error) {
	lib, err := slave.OpenDescription(a.desc, kind)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", a.path, err)
	}
	return lib, nil
}

// Close removes the extracted tree when the archive owns it. Safe to
// call more than once.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() {
		if a.ownsDir {
			a.closeErr = os.RemoveAll(a.dir)
		}
	})
	return a.closeErr
}

func digestFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
