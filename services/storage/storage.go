package storage

import "context"

// ObjectStorage is the blob-store contract the image pipeline depends on.
type ObjectStorage interface {
	// ListObjectNames returns the names of all objects under prefix.
	ListObjectNames(ctx context.Context, prefix string) ([]string, error)

	// PutObject uploads data under key and returns the public URL.
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Snapshot is a read-only set of object names loaded once at run start. It
// trades a per-product existence round trip for a bounded staleness window:
// objects deleted externally after load are treated as still existing until
// the next run.
type Snapshot map[string]struct{}

// LoadSnapshot lists all objects under prefix into a snapshot set.
func LoadSnapshot(ctx context.Context, store ObjectStorage, prefix string) (Snapshot, error) {
	names, err := store.ListObjectNames(ctx, prefix)
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(names))
	for _, name := range names {
		snap[name] = struct{}{}
	}
	return snap, nil
}

// Contains reports whether the snapshot holds the given object name.
func (s Snapshot) Contains(name string) bool {
	_, ok := s[name]
	return ok
}
