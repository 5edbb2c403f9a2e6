// Package storage is the indexed item store. Items and feeds live in bbolt
// buckets with JSON values; secondary index buckets keep the recency, unread,
// starred, feed and ingestion-time axes independently scannable.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("not found")

var (
	feedsBucket      = []byte("feeds")
	itemsBucket      = []byte("items")
	idxDateBucket    = []byte("idx_date")    // invTS(SortTS)+id -> nil, forward scan is newest first
	idxUnreadBucket  = []byte("idx_unread")  // id -> feed id
	idxStarredBucket = []byte("idx_starred") // id -> nil
	idxFeedBucket    = []byte("idx_feed")    // feedID+0x00+id -> nil
	idxCreatedBucket = []byte("idx_created") // ts(CreatedAt)+id -> nil, retention scan order
)

type Store struct {
	db  *bolt.DB
	now func() time.Time
}

func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			feedsBucket, itemsBucket,
			idxDateBucket, idxUnreadBucket, idxStarredBucket, idxFeedBucket, idxCreatedBucket,
		} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// index key encoding: 8 bytes big-endian timestamp followed by the item id.
// The date index inverts the timestamp so a forward cursor walks newest first.

func encTS(ts int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ts))
	return b[:]
}

func encInvTS(ts int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ^uint64(ts))
	return b[:]
}

func dateKey(it *Item) []byte {
	return append(encInvTS(it.SortTS), it.ID...)
}

func createdKey(it *Item) []byte {
	return append(encTS(it.CreatedAt.UnixMilli()), it.ID...)
}

func feedKey(feedID, id string) []byte {
	k := make([]byte, 0, len(feedID)+1+len(id))
	k = append(k, feedID...)
	k = append(k, 0)
	k = append(k, id...)
	return k
}

func feedPrefix(feedID string) []byte {
	return append([]byte(feedID), 0)
}

// SaveFeed inserts or updates a feed record.
func (s *Store) SaveFeed(feed *Feed) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(feed)
		if err != nil {
			return err
		}
		return tx.Bucket(feedsBucket).Put([]byte(feed.ID), data)
	})
}

func (s *Store) GetFeed(id string) (*Feed, error) {
	var feed Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(feedsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("feed %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &feed)
	})
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

// ListFeeds returns all feeds in subscription order.
func (s *Store) ListFeeds() ([]*Feed, error) {
	var feeds []*Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(feedsBucket).ForEach(func(_, v []byte) error {
			var feed Feed
			if err := json.Unmarshal(v, &feed); err != nil {
				return err
			}
			feeds = append(feeds, &feed)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(feeds, func(i, j int) bool {
		if !feeds[i].CreatedAt.Equal(feeds[j].CreatedAt) {
			return feeds[i].CreatedAt.Before(feeds[j].CreatedAt)
		}
		return feeds[i].ID < feeds[j].ID
	})
	return feeds, nil
}

// DeleteFeed removes the feed record and all its items, starred included.
func (s *Store) DeleteFeed(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(feedsBucket).Delete([]byte(id)); err != nil {
			return err
		}
		_, err := deleteFeedItemsTx(tx, id, true)
		return err
	})
}

// UpsertItems inserts or refreshes items keyed by item id. An existing item
// keeps its Read, Starred and CreatedAt values; only content fields are
// refreshed. Returns the items that were genuinely new.
func (s *Store) UpsertItems(items []*Item) ([]*Item, error) {
	var inserted []*Item
	err := s.db.Update(func(tx *bolt.Tx) error {
		ib := tx.Bucket(itemsBucket)
		for _, it := range items {
			existing := ib.Get([]byte(it.ID))
			if existing != nil {
				var prev Item
				if err := json.Unmarshal(existing, &prev); err != nil {
					return fmt.Errorf("decoding item %s: %w", it.ID, err)
				}
				it.Read = prev.Read
				it.Starred = prev.Starred
				it.CreatedAt = prev.CreatedAt
				if prev.FeedID != it.FeedID {
					// guid re-delivered by another feed: the item moves,
					// the feed-axis indexes must move with it
					if err := tx.Bucket(idxFeedBucket).Delete(feedKey(prev.FeedID, prev.ID)); err != nil {
						return err
					}
					if err := tx.Bucket(idxFeedBucket).Put(feedKey(it.FeedID, it.ID), nil); err != nil {
						return err
					}
					if tx.Bucket(idxUnreadBucket).Get([]byte(it.ID)) != nil {
						if err := tx.Bucket(idxUnreadBucket).Put([]byte(it.ID), []byte(it.FeedID)); err != nil {
							return err
						}
					}
				}
				if prev.SortTS != it.SortTS {
					if err := tx.Bucket(idxDateBucket).Delete(dateKey(&prev)); err != nil {
						return err
					}
					if err := tx.Bucket(idxDateBucket).Put(dateKey(it), nil); err != nil {
						return err
					}
				}
				data, err := json.Marshal(it)
				if err != nil {
					return err
				}
				if err := ib.Put([]byte(it.ID), data); err != nil {
					return err
				}
				continue
			}

			it.Read = false
			it.Starred = false
			it.CreatedAt = s.now()
			data, err := json.Marshal(it)
			if err != nil {
				return err
			}
			if err := ib.Put([]byte(it.ID), data); err != nil {
				return err
			}
			if err := tx.Bucket(idxDateBucket).Put(dateKey(it), nil); err != nil {
				return err
			}
			if err := tx.Bucket(idxUnreadBucket).Put([]byte(it.ID), []byte(it.FeedID)); err != nil {
				return err
			}
			if err := tx.Bucket(idxFeedBucket).Put(feedKey(it.FeedID, it.ID), nil); err != nil {
				return err
			}
			if err := tx.Bucket(idxCreatedBucket).Put(createdKey(it), nil); err != nil {
				return err
			}
			inserted = append(inserted, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func getItemTx(tx *bolt.Tx, id string) (*Item, error) {
	data := tx.Bucket(itemsBucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func putItemTx(tx *bolt.Tx, it *Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return err
	}
	return tx.Bucket(itemsBucket).Put([]byte(it.ID), data)
}

// deleteItemTx removes an item and all of its index entries.
func deleteItemTx(tx *bolt.Tx, it *Item) error {
	if err := tx.Bucket(itemsBucket).Delete([]byte(it.ID)); err != nil {
		return err
	}
	if err := tx.Bucket(idxDateBucket).Delete(dateKey(it)); err != nil {
		return err
	}
	if err := tx.Bucket(idxUnreadBucket).Delete([]byte(it.ID)); err != nil {
		return err
	}
	if err := tx.Bucket(idxStarredBucket).Delete([]byte(it.ID)); err != nil {
		return err
	}
	if err := tx.Bucket(idxFeedBucket).Delete(feedKey(it.FeedID, it.ID)); err != nil {
		return err
	}
	return tx.Bucket(idxCreatedBucket).Delete(createdKey(it))
}

func deleteFeedItemsTx(tx *bolt.Tx, feedID string, includeStarred bool) (int, error) {
	var ids []string
	c := tx.Bucket(idxFeedBucket).Cursor()
	prefix := feedPrefix(feedID)
	for k, _ := c.Seek(prefix); k != nil && len(k) > len(prefix) && string(k[:len(prefix)]) == string(prefix); k, _ = c.Next() {
		ids = append(ids, string(k[len(prefix):]))
	}

	deleted := 0
	for _, id := range ids {
		it, err := getItemTx(tx, id)
		if err != nil {
			return deleted, err
		}
		if it.Starred && !includeStarred {
			continue
		}
		if err := deleteItemTx(tx, it); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
