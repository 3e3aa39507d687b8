// Package cache stores JSON-encoded values with an optional time to live.
// The memory backend serves single-node deployments; the redis backend
// shares entries across nodes.
package cache

import (
	"context"
	"encoding/json"
	"time"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
)

// CodeCacheMiss is returned by Load for absent or expired keys.
const CodeCacheMiss xerrors.Code = "CACHE_MISS"

// ErrNotFound reports an absent or expired key.
var ErrNotFound = xerrors.New(CodeCacheMiss, "object not found")

func init() {
	xerrors.Register(CodeCacheMiss, xerrors.Attributes{
		Message:  "object not found",
		Severity: xerrors.SeverityInfo,
	})
}

// Store is the cache contract shared by the backends. A ttl <= 0 keeps the
// entry until it is destroyed.
type Store interface {
	Save(ctx context.Context, key string, value any, ttl time.Duration) error
	// Load decodes the entry stored under key into dest.
	Load(ctx context.Context, key string, dest any) error
	// Destroy removes key and reports whether it existed.
	Destroy(ctx context.Context, key string) (bool, error)
}

func encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

func decode(raw []byte, dest any) error {
	return json.Unmarshal(raw, dest)
}
