package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// SnapshotSchemaVersion is bumped whenever the shape of cached
// snapshots changes. Entries written under an older schema decode with
// an error and are treated as misses.
const SnapshotSchemaVersion = 1

type snapshotEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// EncodeSnapshot wraps a value in a versioned JSON envelope and
// compresses it with zstd. The store and the cache always exchange this
// exact shape; there is no payload type sniffing on the way out.
func EncodeSnapshot(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	envelope, err := json.Marshal(snapshotEnvelope{
		SchemaVersion: SnapshotSchemaVersion,
		Payload:       payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %v", err)
	}

	compressed := bytes.NewBuffer(nil)
	compWriter, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := compWriter.Write(envelope); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %v", err)
	}
	if err := compWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}

	return compressed.Bytes(), nil
}

// DecodeSnapshot decompresses a cache entry and unmarshals its payload
// into v, rejecting entries written under a different schema version.
func DecodeSnapshot(data []byte, v interface{}) error {
	compReader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer compReader.Close()

	b, err := io.ReadAll(compReader)
	if err != nil {
		return fmt.Errorf("failed to read decompressed snapshot: %v", err)
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(b, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %v", err)
	}
	if envelope.SchemaVersion != SnapshotSchemaVersion {
		return fmt.Errorf("unexpected snapshot schema version: %d", envelope.SchemaVersion)
	}

	if err := json.Unmarshal(envelope.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	return nil
}
