/*
io.go - Backup-first, rename-atomic JSON file handling

PURPOSE:
  Pipeline artifacts are the system of record between runs, so writes are
  deliberately conservative:
  1. If the target exists, its current content is copied to <path>.backup
     BEFORE anything is written.
  2. The new document is written to a temp file in the same directory and
     renamed over the target, so a crash mid-write never leaves a
     half-written artifact.

SEE ALSO:
  - artifact.go: The document shapes these helpers move around
*/
package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// ErrArtifactMissing wraps os.ErrNotExist so callers can treat an absent
// input artifact as a skippable condition rather than a failure.
var ErrArtifactMissing = errors.New("artifact file missing")

// WriteJSON persists v at path, backing up any existing file first.
func WriteJSON(path string, v any) error {
	if prior, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".backup", prior, 0o644); err != nil {
			return errors.Wrapf(err, "backing up %s", path)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "reading prior %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "staging %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "closing %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "replacing %s", path)
	}
	return nil
}

// ReadJSON decodes the artifact at path into v. A missing file reports
// ErrArtifactMissing.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(ErrArtifactMissing, "%s", path)
		}
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}
