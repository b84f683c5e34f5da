// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/cmscom/aal2-audit/internal/logging"
)

// Key layout segments. All keys for one container share its scope prefix,
// so multiple logical scopes coexist in a single Badger instance.
const (
	primarySegment = ":ev:"
	indexSegment   = ":ix:"
	metaSegment    = ":meta"

	dimUser    = "user"
	dimAction  = "action"
	dimOutcome = "outcome"
)

// bucketSep terminates the dimension value inside secondary-index keys.
// Dimension values must not contain a NUL byte.
const bucketSep = 0x00

// DefaultRetentionDays is the retention policy applied to new containers.
const DefaultRetentionDays = 90

// ErrEventTooOld is returned when an event's timestamp cannot be encoded
// as a store key (pre-epoch timestamps).
var ErrEventTooOld = errors.New("event timestamp precedes the epoch")

// Container owns the primary time-ordered event store and the three
// secondary indexes (user, action type, outcome) for one logical scope.
// All mutations run inside a single Badger update transaction; Badger's
// MVCC gives readers consistent snapshots without any locking here.
type Container struct {
	db    *badger.DB
	scope string
}

// containerMeta is the persistent metadata record of a container.
type containerMeta struct {
	Created       time.Time  `json:"created"`
	LastCleaned   *time.Time `json:"last_cleaned"`
	TotalEvents   int        `json:"total_events"`
	RetentionDays int        `json:"retention_days"`
}

// ContainerStats is a summary of container-level counters.
type ContainerStats struct {
	TotalEvents      int        `json:"total_events"`
	Created          time.Time  `json:"created"`
	LastCleaned      *time.Time `json:"last_cleaned,omitempty"`
	RetentionDays    int        `json:"retention_days"`
	UsersCount       int        `json:"users_count"`
	ActionTypesCount int        `json:"action_types_count"`
}

// Scope returns the logical scope this container is bound to.
func (c *Container) Scope() string {
	return c.scope
}

// timeKey converts a timestamp to its microsecond-resolution store key.
func timeKey(t time.Time) uint64 {
	return uint64(t.UnixMicro())
}

// keyTime is the inverse of timeKey.
func keyTime(k uint64) time.Time {
	return time.UnixMicro(int64(k)).UTC()
}

func (c *Container) primaryPrefix() []byte {
	return []byte(c.scope + primarySegment)
}

// primaryKey encodes the microsecond key big-endian so byte order under
// iteration equals timestamp order.
func (c *Container) primaryKey(k uint64) []byte {
	prefix := c.primaryPrefix()
	buf := make([]byte, 0, len(prefix)+8)
	buf = append(buf, prefix...)
	return binary.BigEndian.AppendUint64(buf, k)
}

func (c *Container) dimPrefix(dim string) []byte {
	return []byte(c.scope + indexSegment + dim + ":")
}

func (c *Container) bucketPrefix(dim, value string) []byte {
	prefix := c.dimPrefix(dim)
	buf := make([]byte, 0, len(prefix)+len(value)+1)
	buf = append(buf, prefix...)
	buf = append(buf, value...)
	return append(buf, bucketSep)
}

func (c *Container) indexKey(dim, value string, k uint64) []byte {
	return binary.BigEndian.AppendUint64(c.bucketPrefix(dim, value), k)
}

func (c *Container) metaKey() []byte {
	return []byte(c.scope + metaSegment)
}

// keySuffix decodes the trailing microsecond key of a primary or
// secondary index key.
func keySuffix(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// rangeKeys converts optional inclusive time bounds to key bounds.
func rangeKeys(start, end *time.Time) (uint64, uint64) {
	var startKey uint64
	endKey := uint64(math.MaxUint64)
	if start != nil && start.UnixMicro() > 0 {
		startKey = timeKey(*start)
	}
	if end != nil {
		endKey = timeKey(*end)
	}
	return startKey, endKey
}

func (c *Container) readMeta(txn *badger.Txn) (*containerMeta, error) {
	item, err := txn.Get(c.metaKey())
	if err != nil {
		return nil, fmt.Errorf("get container metadata: %w", err)
	}
	meta := &containerMeta{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("decode container metadata: %w", err)
	}
	return meta, nil
}

func (c *Container) writeMeta(txn *badger.Txn, meta *containerMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode container metadata: %w", err)
	}
	if err := txn.Set(c.metaKey(), data); err != nil {
		return fmt.Errorf("set container metadata: %w", err)
	}
	return nil
}

// AddEvent inserts an event into the primary store and all three
// secondary indexes, and increments the event counter, all in one atomic
// commit. If the microsecond key derived from the event timestamp is
// already taken, the key advances one microsecond at a time until free,
// so same-instant events keep insertion order and nothing is overwritten.
// Returns the event ID.
func (c *Container) AddEvent(ctx context.Context, event *Event) (string, error) {
	if event.Timestamp.UnixMicro() < 0 {
		return "", fmt.Errorf("%w: %s", ErrEventTooOld, event.Timestamp)
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		key := timeKey(event.Timestamp)
		for {
			_, err := txn.Get(c.primaryKey(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				break
			}
			if err != nil {
				return fmt.Errorf("probe primary key: %w", err)
			}
			key++
		}

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := txn.Set(c.primaryKey(key), data); err != nil {
			return fmt.Errorf("set primary entry: %w", err)
		}

		eventID := []byte(event.EventID)
		for _, entry := range []struct {
			dim   string
			value string
		}{
			{dimUser, event.UserID},
			{dimAction, string(event.ActionType)},
			{dimOutcome, string(event.Outcome)},
		} {
			if err := txn.Set(c.indexKey(entry.dim, entry.value, key), eventID); err != nil {
				return fmt.Errorf("set %s index entry: %w", entry.dim, err)
			}
		}

		meta, err := c.readMeta(txn)
		if err != nil {
			return err
		}
		meta.TotalEvents++
		return c.writeMeta(txn, meta)
	})
	if err != nil {
		return "", err
	}

	EventsStored.WithLabelValues(string(event.ActionType), string(event.Outcome)).Inc()
	logging.Debug().
		Str("event_id", event.EventID).
		Str("user_id", event.UserID).
		Str("action_type", string(event.ActionType)).
		Str("outcome", string(event.Outcome)).
		Msg("Added audit event")

	return event.EventID, nil
}

// QueryByTimestamp returns all events with start <= timestamp <= end in
// ascending timestamp order. A nil bound is unbounded.
func (c *Container) QueryByTimestamp(ctx context.Context, start, end *time.Time) ([]*Event, error) {
	startKey, endKey := rangeKeys(start, end)
	prefix := c.primaryPrefix()

	var results []*Event
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(c.primaryKey(startKey)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if keySuffix(item.Key()) > endKey {
				break
			}
			event := &Event{}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, event)
			})
			if err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			results = append(results, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// QueryByUser returns the events of one user in the time range, ascending.
// An unknown user yields an empty result.
func (c *Container) QueryByUser(ctx context.Context, userID string, start, end *time.Time) ([]*Event, error) {
	return c.queryIndex(ctx, dimUser, userID, start, end)
}

// QueryByAction returns the events of one action type in the time range,
// ascending. An unknown action type yields an empty result.
func (c *Container) QueryByAction(ctx context.Context, action ActionType, start, end *time.Time) ([]*Event, error) {
	return c.queryIndex(ctx, dimAction, string(action), start, end)
}

// QueryByOutcome returns the events with one outcome in the time range,
// ascending.
func (c *Container) QueryByOutcome(ctx context.Context, outcome Outcome, start, end *time.Time) ([]*Event, error) {
	return c.queryIndex(ctx, dimOutcome, string(outcome), start, end)
}

// queryIndex walks one secondary-index bucket and resolves every entry
// through the primary store. A secondary entry without a primary record
// means the indexes desynchronized from the primary store; it is logged
// loudly and counted, then skipped so reads stay available.
func (c *Container) queryIndex(ctx context.Context, dim, value string, start, end *time.Time) ([]*Event, error) {
	startKey, endKey := rangeKeys(start, end)
	prefix := c.bucketPrefix(dim, value)

	var results []*Event
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := binary.BigEndian.AppendUint64(append([]byte{}, prefix...), startKey)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			key := keySuffix(it.Item().Key())
			if key > endKey {
				break
			}

			var eventID string
			err := it.Item().Value(func(val []byte) error {
				eventID = string(val)
				return nil
			})
			if err != nil {
				return fmt.Errorf("read %s index entry: %w", dim, err)
			}

			primary, err := txn.Get(c.primaryKey(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				IndexConsistencySkips.WithLabelValues(dim).Inc()
				logging.Warn().
					Str("scope", c.scope).
					Str("dimension", dim).
					Str("value", value).
					Str("event_id", eventID).
					Uint64("key", key).
					Msg("Secondary index entry has no primary record; skipping")
				continue
			}
			if err != nil {
				return fmt.Errorf("resolve primary entry: %w", err)
			}

			event := &Event{}
			err = primary.Value(func(val []byte) error {
				return json.Unmarshal(val, event)
			})
			if err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			results = append(results, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CleanupOldEvents deletes every event with timestamp < cutoff from the
// primary store and all three indexes in one atomic commit, and stamps
// last_cleaned. Buckets hold no standalone records in the key layout, so
// emptied buckets vanish with their last entry. Returns the number of
// events deleted.
func (c *Container) CleanupOldEvents(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffKey := timeKey(cutoff)
	prefix := c.primaryPrefix()
	deleted := 0

	err := c.db.Update(func(txn *badger.Txn) error {
		type doomed struct {
			key   uint64
			event *Event
		}
		var victims []doomed

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(c.primaryKey(0)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := keySuffix(item.Key())
			if key >= cutoffKey {
				break
			}
			event := &Event{}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, event)
			})
			if err != nil {
				it.Close()
				return fmt.Errorf("decode event: %w", err)
			}
			victims = append(victims, doomed{key: key, event: event})
		}
		it.Close()

		for _, v := range victims {
			if err := txn.Delete(c.primaryKey(v.key)); err != nil {
				return fmt.Errorf("delete primary entry: %w", err)
			}
			for _, entry := range []struct {
				dim   string
				value string
			}{
				{dimUser, v.event.UserID},
				{dimAction, string(v.event.ActionType)},
				{dimOutcome, string(v.event.Outcome)},
			} {
				err := txn.Delete(c.indexKey(entry.dim, entry.value, v.key))
				if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("delete %s index entry: %w", entry.dim, err)
				}
			}
		}

		meta, err := c.readMeta(txn)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		meta.TotalEvents -= len(victims)
		meta.LastCleaned = &now
		if err := c.writeMeta(txn, meta); err != nil {
			return err
		}

		deleted = len(victims)
		return nil
	})
	if err != nil {
		return 0, err
	}

	EventsDeleted.Add(float64(deleted))
	logging.Info().
		Str("scope", c.scope).
		Int("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Cleaned up old audit events")

	return deleted, nil
}

// Stats returns container-level counters. The distinct bucket counts for
// the user and action dimensions serve as "users seen" and "action types
// seen"; they are computed by seeking past each bucket rather than
// scanning every entry.
func (c *Container) Stats(ctx context.Context) (*ContainerStats, error) {
	stats := &ContainerStats{}
	err := c.db.View(func(txn *badger.Txn) error {
		meta, err := c.readMeta(txn)
		if err != nil {
			return err
		}
		stats.TotalEvents = meta.TotalEvents
		stats.Created = meta.Created
		stats.LastCleaned = meta.LastCleaned
		stats.RetentionDays = meta.RetentionDays
		stats.UsersCount = c.distinctBuckets(txn, dimUser)
		stats.ActionTypesCount = c.distinctBuckets(txn, dimAction)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// distinctBuckets counts the non-empty buckets of one index dimension by
// seeking directly past each bucket's key range.
func (c *Container) distinctBuckets(txn *badger.Txn, dim string) int {
	prefix := c.dimPrefix(dim)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	it.Seek(prefix)
	for it.ValidForPrefix(prefix) {
		key := it.Item().Key()
		rest := key[len(prefix):]
		sep := bytes.IndexByte(rest, bucketSep)
		if sep < 0 {
			break
		}
		count++

		// Jump past every remaining key of this bucket: value+0x01 sorts
		// after value+0x00+<anything> and before the next bucket value.
		next := make([]byte, 0, len(prefix)+sep+1)
		next = append(next, prefix...)
		next = append(next, rest[:sep]...)
		next = append(next, bucketSep+1)
		it.Seek(next)
	}
	return count
}

// countBucket counts the entries of one secondary-index bucket without
// decoding events.
func (c *Container) countBucket(dim, value string) (int, error) {
	prefix := c.bucketPrefix(dim, value)
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RetentionDays returns the container's stored retention policy.
func (c *Container) RetentionDays(ctx context.Context) (int, error) {
	days := 0
	err := c.db.View(func(txn *badger.Txn) error {
		meta, err := c.readMeta(txn)
		if err != nil {
			return err
		}
		days = meta.RetentionDays
		return nil
	})
	if err != nil {
		return 0, err
	}
	return days, nil
}

// SetRetentionDays updates the container's stored retention policy.
func (c *Container) SetRetentionDays(ctx context.Context, days int) error {
	if days < 1 {
		return fmt.Errorf("retention days must be positive, got %d", days)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		meta, err := c.readMeta(txn)
		if err != nil {
			return err
		}
		meta.RetentionDays = days
		return c.writeMeta(txn, meta)
	})
}
