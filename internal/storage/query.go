package storage

import (
	"errors"

	bolt "go.etcd.io/bbolt"
)

// PageSize is the fixed number of items per recency page.
const PageSize = 20

// ItemFilter selects items for Query. Exactly one of ID, FeedID or the
// paginated recency scan applies: ID wins, then FeedID, then the scan.
// Before is a strictly-older-than SortTS cursor (0 means start at newest);
// UnreadOnly and StarredOnly refine the scan and may be combined.
type ItemFilter struct {
	ID          string
	FeedID      string
	Before      int64
	UnreadOnly  bool
	StarredOnly bool
}

// ItemPage is one page of the recency scan. Total is the count of the whole
// recency index, not of the filtered result; the item-list surface shows the
// global count next to a filtered page.
type ItemPage struct {
	Items []*Item `json:"items"`
	Total int     `json:"total"`
}

func (s *Store) Query(filter ItemFilter) (*ItemPage, error) {
	page := &ItemPage{Items: []*Item{}}
	err := s.db.View(func(tx *bolt.Tx) error {
		page.Total = tx.Bucket(idxDateBucket).Stats().KeyN

		if filter.ID != "" {
			it, err := getItemTx(tx, filter.ID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			page.Items = append(page.Items, it)
			return nil
		}

		if filter.FeedID != "" {
			c := tx.Bucket(idxFeedBucket).Cursor()
			prefix := feedPrefix(filter.FeedID)
			for k, _ := c.Seek(prefix); k != nil && len(k) > len(prefix) && string(k[:len(prefix)]) == string(prefix); k, _ = c.Next() {
				it, err := getItemTx(tx, string(k[len(prefix):]))
				if err != nil {
					return err
				}
				page.Items = append(page.Items, it)
			}
			return nil
		}

		unread := tx.Bucket(idxUnreadBucket)
		starred := tx.Bucket(idxStarredBucket)
		c := tx.Bucket(idxDateBucket).Cursor()

		var k []byte
		if filter.Before > 0 {
			// first key with SortTS <= Before-1, i.e. strictly older
			k, _ = c.Seek(encInvTS(filter.Before - 1))
		} else {
			k, _ = c.First()
		}
		for ; k != nil && len(page.Items) < PageSize; k, _ = c.Next() {
			id := k[8:]
			if filter.UnreadOnly && unread.Get(id) == nil {
				continue
			}
			if filter.StarredOnly && starred.Get(id) == nil {
				continue
			}
			it, err := getItemTx(tx, string(id))
			if err != nil {
				return err
			}
			page.Items = append(page.Items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Store) CountAll() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(itemsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) CountUnread() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(idxUnreadBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// GroupUnreadByFeed returns feed id -> unread count from one unread index scan.
func (s *Store) GroupUnreadByFeed() (map[string]int, error) {
	group := map[string]int{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(idxUnreadBucket).ForEach(func(_, feedID []byte) error {
			group[string(feedID)]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// MarkRead flags the given items as read. Unknown ids are a no-op.
func (s *Store) MarkRead(ids ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, id := range ids {
			it, err := getItemTx(tx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			if it.Read {
				continue
			}
			it.Read = true
			if err := putItemTx(tx, it); err != nil {
				return err
			}
			if err := tx.Bucket(idxUnreadBucket).Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MarkFeedRead(feedID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(idxFeedBucket).Cursor()
		prefix := feedPrefix(feedID)
		for k, _ := c.Seek(prefix); k != nil && len(k) > len(prefix) && string(k[:len(prefix)]) == string(prefix); k, _ = c.Next() {
			id := string(k[len(prefix):])
			it, err := getItemTx(tx, id)
			if err != nil {
				return err
			}
			if it.Read {
				continue
			}
			it.Read = true
			if err := putItemTx(tx, it); err != nil {
				return err
			}
			if err := tx.Bucket(idxUnreadBucket).Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MarkAllRead() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var ids []string
		if err := tx.Bucket(idxUnreadBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			it, err := getItemTx(tx, id)
			if err != nil {
				return err
			}
			it.Read = true
			if err := putItemTx(tx, it); err != nil {
				return err
			}
			if err := tx.Bucket(idxUnreadBucket).Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetStarred pins or unpins an item.
func (s *Store) SetStarred(id string, starred bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		it, err := getItemTx(tx, id)
		if err != nil {
			return err
		}
		if it.Starred == starred {
			return nil
		}
		it.Starred = starred
		if err := putItemTx(tx, it); err != nil {
			return err
		}
		if starred {
			return tx.Bucket(idxStarredBucket).Put([]byte(id), nil)
		}
		return tx.Bucket(idxStarredBucket).Delete([]byte(id))
	})
}

// DeleteItems removes the given items. A bulk request (two or more ids)
// silently skips starred items; a single-id delete removes the item
// regardless of its star. Returns the number deleted.
func (s *Store) DeleteItems(ids []string) (int, error) {
	protectStarred := len(ids) >= 2
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, id := range ids {
			it, err := getItemTx(tx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			if it.Starred && protectStarred {
				continue
			}
			if err := deleteItemTx(tx, it); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

// DeleteAll removes every non-starred item.
func (s *Store) DeleteAll() (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var ids []string
		if err := tx.Bucket(itemsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			it, err := getItemTx(tx, id)
			if err != nil {
				return err
			}
			if it.Starred {
				continue
			}
			if err := deleteItemTx(tx, it); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// DeleteByFeed clears a feed's items. Starred items survive unless
// includeStarred is set, which only the unsubscribe path does.
func (s *Store) DeleteByFeed(feedID string, includeStarred bool) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var txErr error
		deleted, txErr = deleteFeedItemsTx(tx, feedID, includeStarred)
		return txErr
	})
	return deleted, err
}

// DeleteOlderThan removes non-starred items whose SortTS is strictly below
// cutoff (unix ms). The scan walks the ingestion-time index; the age test is
// on the publication timestamp, so starred items survive any age.
func (s *Store) DeleteOlderThan(cutoff int64) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var ids []string
		c := tx.Bucket(idxCreatedBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k[8:]))
		}
		for _, id := range ids {
			it, err := getItemTx(tx, id)
			if err != nil {
				return err
			}
			if it.Starred || it.SortTS >= cutoff {
				continue
			}
			if err := deleteItemTx(tx, it); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
