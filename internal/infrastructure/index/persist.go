package index

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

const snapshotFormatVersion = 1

// Manifest versions a persisted snapshot so a stale cache is detected and
// rejected rather than silently reused.
type Manifest struct {
	Format      int
	EmbedModel  string
	ChunkConfig string
	Dimension   int
	BuiltAt     time.Time
}

func (m Manifest) validate(embedModel, chunkConfig string) error {
	if m.Format != snapshotFormatVersion {
		return fmt.Errorf("snapshot format %d, want %d", m.Format, snapshotFormatVersion)
	}
	if m.EmbedModel != embedModel {
		return fmt.Errorf("snapshot built with embedding model %q, current %q", m.EmbedModel, embedModel)
	}
	if m.ChunkConfig != chunkConfig {
		return fmt.Errorf("snapshot built with chunk config %s, current %s", m.ChunkConfig, chunkConfig)
	}
	return nil
}

type snapshotFile struct {
	Manifest Manifest
	Chunks   []domain.Chunk
	Hashes   []string
	Vectors  [][]float32
	DocTimes map[string]time.Time
}

func saveSnapshotFile(path string, snap *Snapshot, hashes []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	file := snapshotFile{
		Manifest: Manifest{
			Format:      snapshotFormatVersion,
			EmbedModel:  snap.embedModel,
			ChunkConfig: snap.chunkCfg,
			Dimension:   snap.dim,
			BuiltAt:     time.Now().UTC(),
		},
		Chunks:   snap.chunks,
		Hashes:   hashes,
		Vectors:  snap.vectors,
		DocTimes: snap.docTimes,
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(file); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

func loadSnapshotFile(path string) (*snapshotFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	var file snapshotFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(file.Chunks) != len(file.Vectors) || len(file.Chunks) != len(file.Hashes) {
		return nil, fmt.Errorf("snapshot tables out of sync: %d chunks, %d vectors, %d hashes",
			len(file.Chunks), len(file.Vectors), len(file.Hashes))
	}
	return &file, nil
}
