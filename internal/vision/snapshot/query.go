package snapshot

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// Recent returns up to limit snapshot sidecars newest first, skipping
// offset entries. A missing snapshot directory reads as empty, not as an
// error: nothing has been captured yet.
func (w *Writer) Recent(limit, offset int) ([]Meta, error) {
	metas, err := w.allMetas()
	if err != nil {
		return nil, err
	}

	if offset >= len(metas) {
		return []Meta{}, nil
	}
	metas = metas[offset:]
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

// Range returns snapshots captured in [start, end], newest first, with the
// total match count before limit/offset were applied.
func (w *Writer) Range(start, end time.Time, limit, offset int) ([]Meta, int, error) {
	all, err := w.allMetas()
	if err != nil {
		return nil, 0, err
	}

	var matched []Meta
	for _, m := range all {
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		matched = append(matched, m)
	}
	total := len(matched)

	if offset >= len(matched) {
		return []Meta{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// Count returns how many snapshots are stored.
func (w *Writer) Count() (int, error) {
	if !w.fs.Exists(w.settings.Dir) {
		return 0, nil
	}
	names, err := w.snapshotNames()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// allMetas reads every sidecar in the snapshot directory, newest first.
// Unreadable sidecars are skipped with a warning.
func (w *Writer) allMetas() ([]Meta, error) {
	if !w.fs.Exists(w.settings.Dir) {
		return []Meta{}, nil
	}

	names, err := w.snapshotNames()
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(names))
	for _, name := range names {
		sidecar := filepath.Join(w.settings.Dir, name+".json")
		data, err := w.fs.ReadFile(sidecar)
		if err != nil {
			continue
		}
		var m Meta
		if err := json.Unmarshal(data, &m); err != nil {
			monitoring.Logf("snapshot: skipping unreadable sidecar %s: %v", sidecar, err)
			continue
		}
		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Timestamp.After(metas[j].Timestamp)
	})
	return metas, nil
}
