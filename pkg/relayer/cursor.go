package relayer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const cursorKey = "lastHandleCkbBlock"

// Cursor persists the last handled CKB block as "<height>,<hash>".
type Cursor struct {
	store KVStore
}

// NewCursor creates a cursor backed by store
func NewCursor(store KVStore) *Cursor {
	return &Cursor{store: store}
}

// Get returns the last handled block, or (0, "") when none was recorded.
func (c *Cursor) Get(ctx context.Context) (uint64, string, error) {
	raw, err := c.store.GetKV(ctx, cursorKey)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read cursor: %w", err)
	}
	if raw == "" {
		return 0, "", nil
	}

	heightStr, hash, ok := strings.Cut(raw, ",")
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor %q", raw)
	}
	height, err := strconv.ParseUint(heightStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor height %q: %w", heightStr, err)
	}
	return height, hash, nil
}

// Set records height and hash as the last handled block.
func (c *Cursor) Set(ctx context.Context, height uint64, hash string) error {
	if err := c.store.SetKV(ctx, cursorKey, fmt.Sprintf("%d,%s", height, hash)); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}
	return nil
}
