package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket layout:
//
//	links              seq -> SubmittedLink JSON
//	link_ids           id -> seq
//	link_urls          normalized url -> id
//	link_pending       seq -> id, unprocessed only
//	scholarships       id -> ScholarshipRecord JSON
//	scholarship_names  name key -> id
//	seen               key -> expiry
const (
	linksBucket        = "links"
	linkIDsBucket      = "link_ids"
	linkURLsBucket     = "link_urls"
	linkPendingBucket  = "link_pending"
	scholarshipsBucket = "scholarships"
	namesBucket        = "scholarship_names"
	seenBucket         = "seen"
	expiryValueBytes   = 8
)

var allBuckets = []string{
	linksBucket, linkIDsBucket, linkURLsBucket, linkPendingBucket,
	scholarshipsBucket, namesBucket, seenBucket,
}

// boltStore implements Store and SeenSet backed by BoltDB. bbolt serialises
// writers, so the check and insert inside one Update act as a unique constraint.
type boltStore struct {
	db              *bolt.DB
	loc             *time.Location
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	seenTTL         time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (*boltStore, error) {
	opts = normalizeOptions(opts)

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	store := &boltStore{
		db:              db,
		loc:             opts.Location,
		seenTTL:         opts.SeenTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// OpenBoltSeenSet opens a standalone bbolt file used only as a seen-set.
func OpenBoltSeenSet(path string, opts Options) (SeenSet, func() error, error) {
	store, err := openBolt(path, opts)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Ping checks that the database is readable.
func (b *boltStore) Ping(context.Context) error {
	return domain.NewStorageError("ping", b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(linksBucket)) == nil {
			return errors.New("links bucket missing")
		}
		return nil
	}))
}

// Store inserts the link unless its normalized URL is already known.
func (b *boltStore) Store(ctx context.Context, rawURL, actor, sourceContext string) (domain.StoreResult, error) {
	link, rejected := newLink(rawURL, actor, sourceContext, b.now())
	if rejected != nil {
		return *rejected, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.StoreResult{}, err
	}

	duplicate := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		urls := tx.Bucket([]byte(linkURLsBucket))
		if urls.Get([]byte(link.URL)) != nil {
			duplicate = true
			return nil
		}

		links := tx.Bucket([]byte(linksBucket))
		seq, err := links.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)

		raw, err := json.Marshal(link)
		if err != nil {
			return err
		}
		if err := links.Put(key, raw); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(linkIDsBucket)).Put([]byte(link.ID), key); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(linkPendingBucket)).Put(key, []byte(link.ID)); err != nil {
			return err
		}
		return urls.Put([]byte(link.URL), []byte(link.ID))
	})
	if err != nil {
		return domain.StoreResult{}, domain.NewStorageError("store link", err)
	}
	if duplicate {
		return domain.StoreResult{OK: false, URL: link.URL, Reason: domain.ReasonDuplicate}, nil
	}
	return domain.StoreResult{OK: true, LinkID: link.ID, URL: link.URL}, nil
}

// ListUnprocessed returns up to limit unprocessed links, oldest first.
func (b *boltStore) ListUnprocessed(ctx context.Context, limit int) ([]domain.SubmittedLink, error) {
	limit = clampLimit(limit)
	if limit == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.SubmittedLink, 0, limit)
	err := b.db.View(func(tx *bolt.Tx) error {
		links := tx.Bucket([]byte(linksBucket))
		cursor := tx.Bucket([]byte(linkPendingBucket)).Cursor()
		for k, _ := cursor.First(); k != nil && len(out) < limit; k, _ = cursor.Next() {
			raw := links.Get(k)
			if raw == nil {
				continue
			}
			var link domain.SubmittedLink
			if err := json.Unmarshal(raw, &link); err != nil {
				return fmt.Errorf("decode link: %w", err)
			}
			out = append(out, link)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list unprocessed", err)
	}
	return out, nil
}

// MarkProcessed flags the given links. Unknown or already processed ids are
// skipped; the return value counts links that changed state.
func (b *boltStore) MarkProcessed(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := b.now().UTC()
	marked := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		links := tx.Bucket([]byte(linksBucket))
		index := tx.Bucket([]byte(linkIDsBucket))
		pending := tx.Bucket([]byte(linkPendingBucket))

		for _, id := range ids {
			key := index.Get([]byte(id))
			if key == nil {
				continue
			}
			key = append([]byte(nil), key...)
			raw := links.Get(key)
			if raw == nil {
				continue
			}
			var link domain.SubmittedLink
			if err := json.Unmarshal(raw, &link); err != nil {
				return fmt.Errorf("decode link %s: %w", id, err)
			}
			if link.Processed {
				continue
			}
			link.Processed = true
			link.ProcessedAt = now
			updated, err := json.Marshal(link)
			if err != nil {
				return err
			}
			if err := links.Put(key, updated); err != nil {
				return err
			}
			if err := pending.Delete(key); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, domain.NewStorageError("mark processed", err)
	}
	return marked, nil
}

// GetLink returns a link by id or domain.ErrNotFound.
func (b *boltStore) GetLink(_ context.Context, id string) (domain.SubmittedLink, error) {
	var link domain.SubmittedLink
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket([]byte(linkIDsBucket)).Get([]byte(id))
		if key == nil {
			return nil
		}
		raw := tx.Bucket([]byte(linksBucket)).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &link)
	})
	if err != nil {
		return link, domain.NewStorageError("get link", err)
	}
	if !found {
		return link, domain.ErrNotFound
	}
	return link, nil
}

// Upsert inserts the record unless its normalized name already exists.
func (b *boltStore) Upsert(ctx context.Context, rec domain.ScholarshipRecord) (domain.UpsertResult, error) {
	rec, err := prepareRecord(rec, b.now())
	if err != nil {
		return domain.UpsertResult{Status: domain.UpsertError, Name: rec.Name, Reason: err.Error()}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.UpsertResult{}, err
	}

	key := []byte(rec.NameKey())
	exists := false
	err = b.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket([]byte(namesBucket))
		if names.Get(key) != nil {
			exists = true
			return nil
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(scholarshipsBucket)).Put([]byte(rec.ID), raw); err != nil {
			return err
		}
		return names.Put(key, []byte(rec.ID))
	})
	if err != nil {
		return domain.UpsertResult{}, domain.NewStorageError("upsert scholarship", err)
	}
	if exists {
		return domain.UpsertResult{Status: domain.UpsertSkipped, Name: rec.Name, Reason: domain.ReasonAlreadyExists}, nil
	}
	return domain.UpsertResult{Status: domain.UpsertAdded, ID: rec.ID, Name: rec.Name}, nil
}

// Search returns matching records sorted by name.
func (b *boltStore) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ScholarshipRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle, minAmount, useAmount := compileQuery(q)

	var out []domain.ScholarshipRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(scholarshipsBucket)).ForEach(func(_, v []byte) error {
			var rec domain.ScholarshipRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode scholarship: %w", err)
			}
			if matchesQuery(rec, needle, minAmount, useAmount) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, domain.NewStorageError("search scholarships", err)
	}
	sortByName(out)
	return applyLimit(out, q.Limit), nil
}

// RemoveExpired deletes records whose deadline parses to a time before now.
func (b *boltStore) RemoveExpired(ctx context.Context, now time.Time) (domain.RemoveResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RemoveResult{}, err
	}

	var removed []domain.ScholarshipRecord
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(scholarshipsBucket))
		names := tx.Bucket([]byte(namesBucket))

		var expired [][]byte
		var recs []domain.ScholarshipRecord
		err := bucket.ForEach(func(k, v []byte) error {
			var rec domain.ScholarshipRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode scholarship: %w", err)
			}
			if domain.IsExpired(rec.Deadline, now, b.loc) {
				expired = append(expired, append([]byte(nil), k...))
				recs = append(recs, rec)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for i, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			if err := names.Delete([]byte(recs[i].NameKey())); err != nil {
				return err
			}
		}
		removed = recs
		return nil
	})
	if err != nil {
		return domain.RemoveResult{}, domain.NewStorageError("remove expired", err)
	}
	return domain.RemoveResult{RemovedCount: len(removed), Removed: removed}, nil
}

// Count returns the number of catalog records.
func (b *boltStore) Count(context.Context) (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(scholarshipsBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, domain.NewStorageError("count scholarships", err)
	}
	return n, nil
}

// MarkSeen records key with the configured TTL and reports whether it was new.
func (b *boltStore) MarkSeen(_ context.Context, key string) (bool, error) {
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, domain.NewStorageError("seen cleanup", err)
	}

	fresh := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(seenBucket))
		if value := bucket.Get([]byte(key)); value != nil {
			if expiry, ok := decodeExpiry(value); ok && expiry.After(now) {
				return nil
			}
		}
		fresh = true
		buf := make([]byte, expiryValueBytes)
		binary.BigEndian.PutUint64(buf, uint64(now.Add(b.seenTTL).Unix()))
		return bucket.Put([]byte(key), buf)
	})
	if err != nil {
		return false, domain.NewStorageError("mark seen", err)
	}
	return fresh, nil
}

// maybeCleanupExpired removes expired seen keys on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(seenBucket))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			expiry, ok := decodeExpiry(v)
			if !ok || !expiry.After(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
