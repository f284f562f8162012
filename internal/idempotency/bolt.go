package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "idempotency"

// BoltTracker stores keys in a single-file BoltDB database. Expired records
// are ignored on read and removed by PurgeExpired.
type BoltTracker struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenBoltTracker opens (or creates) the database at path.
func OpenBoltTracker(path string, ttl time.Duration) (*BoltTracker, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltTracker{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the database file lock.
func (t *BoltTracker) Close() error {
	return t.db.Close()
}

func (t *BoltTracker) Reserve(_ context.Context, key, transactionID string) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		rec, ok, err := t.get(b, key)
		if err != nil {
			return err
		}
		if ok {
			return alreadyExists(key, rec)
		}
		return put(b, key, Record{TransactionID: transactionID, State: StateReserved, ExpiresAt: t.now().Add(t.ttl).UTC()})
	})
}

func (t *BoltTracker) Complete(_ context.Context, key, transactionID string, result []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		rec, ok, err := t.get(b, key)
		if err != nil {
			return err
		}
		if ok && rec.TransactionID != transactionID {
			return ErrNotOwner
		}
		if !ok {
			rec = Record{TransactionID: transactionID, ExpiresAt: t.now().Add(t.ttl).UTC()}
		}
		rec.State = StateCompleted
		rec.Result = result
		return put(b, key, rec)
	})
}

func (t *BoltTracker) Release(_ context.Context, key, transactionID string) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		rec, ok, err := t.get(b, key)
		if err != nil || !ok {
			return err
		}
		if rec.TransactionID != transactionID {
			return ErrNotOwner
		}
		if rec.State == StateCompleted {
			return ErrCompleted
		}
		return b.Delete([]byte(key))
	})
}

func (t *BoltTracker) Lookup(_ context.Context, key string) (Record, error) {
	var (
		rec Record
		ok  bool
	)
	err := t.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, ok, err = t.get(tx.Bucket([]byte(bucketName)), key)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// PurgeExpired deletes every expired record and reports how many were removed.
func (t *BoltTracker) PurgeExpired(ctx context.Context) (int, error) {
	purged := 0
	now := t.now()
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode idempotency record %q: %w", k, err)
			}
			if !now.Before(rec.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// deleting while iterating skips keys
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	return purged, err
}

func (t *BoltTracker) get(b *bolt.Bucket, key string) (Record, bool, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record %q: %w", key, err)
	}
	if !t.now().Before(rec.ExpiresAt) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func put(b *bolt.Bucket, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
