package store

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"mobiletracking/internal/common/fsutil"
)

var bucketPreferences = []byte("preferences")

// Bolt is a Store backed by a BoltDB file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) the BoltDB file at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := fsutil.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPreferences)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt store: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Load(ctx context.Context) (Preferences, error) {
	if err := ctx.Err(); err != nil {
		return Preferences{}, err
	}
	fields := map[string]string{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketPreferences)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			fields[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return Preferences{}, wrapBoltErr(err)
	}
	return decode(fields), nil
}

func (b *Bolt) Save(ctx context.Context, p Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketPreferences)
		if err != nil {
			return err
		}
		for k, v := range encode(p) {
			if err := bkt.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapBoltErr(err)
}

func (b *Bolt) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketPreferences) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketPreferences)
	})
	return wrapBoltErr(err)
}

func (b *Bolt) Close() error { return b.db.Close() }

func wrapBoltErr(err error) error {
	if err == nil {
		return nil
	}
	if err == bbolt.ErrDatabaseNotOpen {
		return ErrClosed
	}
	return fmt.Errorf("bolt store: %w", err)
}
