// Package peekcache persists decoded peek windows in a bbolt store,
// keyed on (path, window size, content hash). The Reader does not use
// it: reader.Run reads every peek window, including those of the
// Mapper's re-loop, from disk. Grounded on
// rohankatakam-coderisk's internal/mcp/identity_resolver.go bbolt
// get/set pattern.
package peekcache

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "peek_windows"

// Cache is a bbolt-backed store of decoded peek windows.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if absent) a peek-window cache at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open peek cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key builds the cache key for a (path, window size, content hash)
// triple. An empty contentHash still yields a usable, if weaker, key —
// callers without HighwayHash available fall back to path+window only.
func Key(path string, window int, contentHash string) string {
	return fmt.Sprintf("%s\x00%d\x00%s", path, window, contentHash)
}

// Get returns the cached peek text for key, if present.
func (c *Cache) Get(key string) (string, bool) {
	var result []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		result = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return "", false
	}
	return string(result), true
}

// Put stores text under key, overwriting any existing entry.
func (c *Cache) Put(key, text string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(text))
	})
}
