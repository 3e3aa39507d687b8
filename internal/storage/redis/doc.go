// Package redis opens the shared redis client used by the cache and the
// redis task queue.
package redis
