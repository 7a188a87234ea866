// Package checkpoint implements the directory-tree checkpoint codec used
// to persist and restore simulation state: one file per agent,
// marketplace, or the Simulation Manager, gob-encoded and zstd-compressed
// behind a versioned header.
//
// Grounded on the teacher's internal/persistence/snapshot/snapshot.go
// (Header{Version, ...} + gob.Encoder over a zstd.Encoder pipeline), here
// generalized from one big world snapshot into one small file per entity
// so a checkpoint can be written incrementally as each agent's
// SAVE_CHECKPOINT handler runs, instead of requiring a single coordinated
// giant write.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// FormatVersion is bumped whenever the on-disk encoding changes in a way
// existing checkpoint directories can't be read back under.
const FormatVersion = 1

// Header precedes every entity file in a checkpoint directory.
type Header struct {
	Version int
	Kind    string // "agent", "marketplace", "manager"
	ID      string
}

// Dir returns the checkpoint directory for simName at stepNum, matching
// the teacher's convention of organizing persisted state by run and by
// point in time.
func Dir(root, simName string, stepNum int) string {
	return filepath.Join(root, simName, fmt.Sprintf("step_%08d", stepNum))
}

// Save gob-encodes payload, zstd-compresses it, and writes it atomically
// (write-to-temp then rename) to dir/<kind>_<id>.ckpt.
func Save(dir, kind, id string, payload any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Header{Version: FormatVersion, Kind: kind, ID: id}); err != nil {
		return fmt.Errorf("checkpoint: encode header for %s/%s: %w", kind, id, err)
	}
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("checkpoint: encode payload for %s/%s: %w", kind, id, err)
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("checkpoint: new zstd writer: %w", err)
	}
	defer zw.Close()
	compressed := zw.EncodeAll(buf.Bytes(), nil)

	path := entityPath(dir, kind, id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("checkpoint: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// Load decompresses and gob-decodes the entity file for kind/id in dir
// into payload (a pointer), returning its Header.
func Load(dir, kind, id string, payload any) (Header, error) {
	path := entityPath(dir, kind, id)
	compressed, err := os.ReadFile(path)
	if err != nil {
		return Header{}, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		return Header{}, fmt.Errorf("checkpoint: new zstd reader: %w", err)
	}
	defer zr.Close()
	raw, err := zr.DecodeAll(compressed, nil)
	if err != nil {
		return Header{}, fmt.Errorf("checkpoint: decompress %s: %w", path, err)
	}

	dec := gob.NewDecoder(bytes.NewReader(raw))
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return Header{}, fmt.Errorf("checkpoint: decode header from %s: %w", path, err)
	}
	if hdr.Version != FormatVersion {
		return hdr, fmt.Errorf("checkpoint: %s has format version %d, runtime expects %d", path, hdr.Version, FormatVersion)
	}
	if err := dec.Decode(payload); err != nil {
		return hdr, fmt.Errorf("checkpoint: decode payload from %s: %w", path, err)
	}
	return hdr, nil
}

// Entities lists the (kind, id) pairs present in a checkpoint directory,
// used by the Simulation Manager to know what to tell every process to
// load.
func Entities(dir string) ([]Header, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read dir %s: %w", dir, err)
	}
	var headers []Header
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".ckpt" {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		hdr, err := readHeaderOnly(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		headers = append(headers, hdr)
	}
	return headers, nil
}

func readHeaderOnly(r io.Reader) (Header, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return Header{}, err
	}
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return Header{}, err
	}
	defer zr.Close()
	raw, err := zr.DecodeAll(compressed, nil)
	if err != nil {
		return Header{}, err
	}
	var hdr Header
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&hdr); err != nil {
		return Header{}, err
	}
	return hdr, nil
}

func entityPath(dir, kind, id string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.ckpt", kind, sanitize(id)))
}

func sanitize(id string) string {
	b := []byte(id)
	for i, c := range b {
		if c == filepath.Separator || c == ':' || c == '/' {
			b[i] = '_'
		}
	}
	return string(b)
}
