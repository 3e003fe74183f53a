package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ugorji/go/codec"
	"go.etcd.io/bbolt"
)

var boltBucket = []byte("layouts")

// mh encodes bolt entries as msgpack.
var mh codec.MsgpackHandle

// BoltCache stores entries in a single bbolt database file.
type BoltCache struct {
	db *bbolt.DB
}

type boltEntry struct {
	Data      []byte `codec:"d"`
	ExpiresAt int64  `codec:"e"` // unix nanoseconds, 0 for none
}

// NewBoltCache opens (or creates) the database at path.
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltCache{db: db}, nil
}

// Get retrieves a value. Expired entries are removed on access.
func (c *BoltCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry boltEntry
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		// raw is only valid inside the transaction; the decoder copies.
		return codec.NewDecoderBytes(raw, &mh).Decode(&entry)
	})
	if err != nil {
		_ = c.Delete(ctx, key)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	if entry.ExpiresAt != 0 && time.Now().UnixNano() > entry.ExpiresAt {
		_ = c.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Set stores a value.
func (c *BoltCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := boltEntry{Data: data}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}
	var raw []byte
	if err := codec.NewEncoderBytes(&raw, &mh).Encode(entry); err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), raw)
	})
}

// Delete removes a value.
func (c *BoltCache) Delete(ctx context.Context, key string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

// Clear drops and recreates the bucket.
func (c *BoltCache) Clear(ctx context.Context) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(boltBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(boltBucket)
		return err
	})
}

// Close closes the database file.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

var (
	_ Cache   = (*BoltCache)(nil)
	_ Clearer = (*BoltCache)(nil)
)
