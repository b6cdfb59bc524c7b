// Package history persists selected detections as scan history.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chiliwax/QrCodeReader-v2/internal/kv"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// ErrNotFound is returned by Get and Remove for unknown ids.
var ErrNotFound = errors.New("history: item not found")

var prefix = kv.Key{"history"}

// Item is one stored scan.
type Item struct {
	ID           string        `json:"id" msgpack:"id"`
	Data         string        `json:"data" msgpack:"data"`
	Type         string        `json:"type" msgpack:"type"`
	Timestamp    int64         `json:"timestamp" msgpack:"timestamp"` // unix milliseconds
	Bounds       *types.Rect   `json:"bounds,omitempty" msgpack:"bounds,omitempty"`
	CornerPoints []types.Point `json:"cornerPoints" msgpack:"cornerPoints"`
}

// Detection rebuilds the detection the item was recorded from.
func (it Item) Detection() types.Detection {
	return types.Detection{
		Payload:      it.Data,
		FormatTag:    it.Type,
		Bounds:       it.Bounds,
		CornerPoints: it.CornerPoints,
	}.Clone()
}

// Store keeps history items in a kv.Store.
type Store struct {
	kv kv.Store
}

func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Record stores d under id. It satisfies stream.HistoryRecorder.
func (s *Store) Record(ctx context.Context, d types.Detection, id string, at time.Time) error {
	snap := d.Clone()
	item := Item{
		ID:           id,
		Data:         snap.Payload,
		Type:         snap.FormatTag,
		Timestamp:    at.UnixMilli(),
		Bounds:       snap.Bounds,
		CornerPoints: snap.CornerPoints,
	}
	data, err := msgpack.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode history item: %w", err)
	}
	if err := s.kv.Set(ctx, key(id), data); err != nil {
		return fmt.Errorf("store history item %s: %w", id, err)
	}
	logger.Debug("History", "Recorded %s (%d bytes)", id, len(data))
	return nil
}

func key(id string) kv.Key { return kv.Key{prefix[0], id} }

// Get returns the item with id.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	data, err := s.kv.Get(ctx, key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	var it Item
	if err := msgpack.Unmarshal(data, &it); err != nil {
		return Item{}, fmt.Errorf("decode history item %s: %w", id, err)
	}
	return it, nil
}

// List returns all items, newest first. Undecodable entries are skipped.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	var items []Item
	for e, err := range s.kv.List(ctx, prefix) {
		if err != nil {
			return nil, err
		}
		var it Item
		if err := msgpack.Unmarshal(e.Value, &it); err != nil {
			logger.Warn("History", "Skipping corrupt entry %s: %v", e.Key, err)
			continue
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp > items[j].Timestamp
	})
	return items, nil
}

// Remove deletes one item.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.kv.Get(ctx, key(id)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.kv.Delete(ctx, key(id))
}

// Clear deletes every item.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.DeletePrefix(ctx, prefix)
}
