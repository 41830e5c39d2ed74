// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflictRetriesExhausted indicates a write kept conflicting with
	// concurrent transactions and was abandoned.
	ErrConflictRetriesExhausted = errors.New("transaction conflict retries exhausted")
)

// maxTxnRetries bounds conflict retries on read-modify-write transactions.
// Run workers contend on the progress counter, so this is sized generously.
const maxTxnRetries = 20

// -----------------------------------------------------------------------------
// Key layout
// -----------------------------------------------------------------------------

// All values are JSON. Keys:
//
//	detection:<code>
//	promptver:<detectionCode>:<versionID>
//	dataset:<datasetID>
//	item:<datasetID>:<itemID>
//	run:<runID>
//	prediction:<runID>:<itemID>
//	predid:<predictionID>           -> prediction key (secondary index)

func detectionKey(code string) []byte {
	return []byte("detection:" + code)
}

func promptVersionKey(code, id string) []byte {
	return []byte("promptver:" + code + ":" + id)
}

func datasetKey(id string) []byte {
	return []byte("dataset:" + id)
}

func itemKey(datasetID, itemID string) []byte {
	return []byte("item:" + datasetID + ":" + itemID)
}

func runKey(id string) []byte {
	return []byte("run:" + id)
}

func predictionKey(runID, itemID string) []byte {
	return []byte("prediction:" + runID + ":" + itemID)
}

func predictionIndexKey(predictionID string) []byte {
	return []byte("predid:" + predictionID)
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the typed persistence layer over BadgerDB.
//
// # Description
//
// Store exposes simple key-addressed reads and writes per entity, prefix
// scans for "list by parent" queries, and a conflict-retrying update path
// so concurrent writers (run workers updating the progress counter) are
// serialized rather than lost.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// NewStore creates a Store over an opened database.
func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// update runs fn in a read-write transaction, retrying on write conflicts
// with a short backoff. Badger detects conflicting commits; retrying the
// whole closure re-reads current state, which is what a serialized counter
// increment needs.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
	return ErrConflictRetriesExhausted
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, raw)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// listPrefix collects every value under prefix, decoded via decode.
func listPrefix(txn *badger.Txn, prefix []byte, decode func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(decode); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Detections
// -----------------------------------------------------------------------------

// PutDetection inserts or replaces a detection.
func (s *Store) PutDetection(ctx context.Context, d *datatypes.Detection) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, detectionKey(d.Code), d)
	})
}

// GetDetection fetches a detection by code. Returns ErrNotFound if absent.
func (s *Store) GetDetection(ctx context.Context, code string) (*datatypes.Detection, error) {
	var d datatypes.Detection
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, detectionKey(code), &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDetections returns all detections ordered by code.
func (s *Store) ListDetections(ctx context.Context) ([]datatypes.Detection, error) {
	var out []datatypes.Detection
	err := s.view(ctx, func(txn *badger.Txn) error {
		return listPrefix(txn, []byte("detection:"), func(val []byte) error {
			var d datatypes.Detection
			if err := json.Unmarshal(val, &d); err != nil {
				return err
			}
			out = append(out, d)
			return nil
		})
	})
	return out, err
}

// -----------------------------------------------------------------------------
// Prompt versions
// -----------------------------------------------------------------------------

// PutPromptVersion inserts or replaces a prompt version.
func (s *Store) PutPromptVersion(ctx context.Context, pv *datatypes.PromptVersion) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, promptVersionKey(pv.DetectionCode, pv.ID), pv)
	})
}

// GetPromptVersion fetches one prompt version of a detection.
func (s *Store) GetPromptVersion(ctx context.Context, detectionCode, id string) (*datatypes.PromptVersion, error) {
	var pv datatypes.PromptVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, promptVersionKey(detectionCode, id), &pv)
	})
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

// ListPromptVersions returns all prompt versions of a detection.
func (s *Store) ListPromptVersions(ctx context.Context, detectionCode string) ([]datatypes.PromptVersion, error) {
	var out []datatypes.PromptVersion
	prefix := []byte("promptver:" + detectionCode + ":")
	err := s.view(ctx, func(txn *badger.Txn) error {
		return listPrefix(txn, prefix, func(val []byte) error {
			var pv datatypes.PromptVersion
			if err := json.Unmarshal(val, &pv); err != nil {
				return err
			}
			out = append(out, pv)
			return nil
		})
	})
	return out, err
}

// -----------------------------------------------------------------------------
// Datasets and items
// -----------------------------------------------------------------------------

// PutDataset inserts or replaces a dataset record (not its items).
func (s *Store) PutDataset(ctx context.Context, ds *datatypes.Dataset) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, datasetKey(ds.ID), ds)
	})
}

// GetDataset fetches a dataset by id.
func (s *Store) GetDataset(ctx context.Context, id string) (*datatypes.Dataset, error) {
	var ds datatypes.Dataset
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, datasetKey(id), &ds)
	})
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// ListDatasets returns datasets, optionally filtered by detection code.
func (s *Store) ListDatasets(ctx context.Context, detectionCode string) ([]datatypes.Dataset, error) {
	var out []datatypes.Dataset
	err := s.view(ctx, func(txn *badger.Txn) error {
		return listPrefix(txn, []byte("dataset:"), func(val []byte) error {
			var ds datatypes.Dataset
			if err := json.Unmarshal(val, &ds); err != nil {
				return err
			}
			if detectionCode == "" || ds.DetectionCode == detectionCode {
				out = append(out, ds)
			}
			return nil
		})
	})
	return out, err
}

// FindGoldenDataset returns the GOLDEN dataset for a detection, or
// ErrNotFound when none exists (regression checking is then skipped).
func (s *Store) FindGoldenDataset(ctx context.Context, detectionCode string) (*datatypes.Dataset, error) {
	all, err := s.ListDatasets(ctx, detectionCode)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Role == datatypes.SplitGolden {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

// ListItems returns a dataset's items ordered by item id. This is the
// canonical order used for fingerprints and run execution.
func (s *Store) ListItems(ctx context.Context, datasetID string) ([]datatypes.DatasetItem, error) {
	var out []datatypes.DatasetItem
	prefix := []byte("item:" + datasetID + ":")
	err := s.view(ctx, func(txn *badger.Txn) error {
		return listPrefix(txn, prefix, func(val []byte) error {
			var it datatypes.DatasetItem
			if err := json.Unmarshal(val, &it); err != nil {
				return err
			}
			out = append(out, it)
			return nil
		})
	})
	return out, err
}

// GetItem fetches a single dataset item.
func (s *Store) GetItem(ctx context.Context, datasetID, itemID string) (*datatypes.DatasetItem, error) {
	var it datatypes.DatasetItem
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, itemKey(datasetID, itemID), &it)
	})
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// PutItem writes one item and refreshes the owning dataset's size and
// fingerprint in the same transaction.
func (s *Store) PutItem(ctx context.Context, item *datatypes.DatasetItem) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, itemKey(item.DatasetID, item.ID), item); err != nil {
			return err
		}
		return s.refreshDataset(txn, item.DatasetID)
	})
}

// ReplaceItems atomically swaps a dataset's item list and refreshes the
// dataset's size and fingerprint.
func (s *Store) ReplaceItems(ctx context.Context, datasetID string, items []datatypes.DatasetItem) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		prefix := []byte("item:" + datasetID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for i := range items {
			items[i].DatasetID = datasetID
			if err := setJSON(txn, itemKey(datasetID, items[i].ID), &items[i]); err != nil {
				return err
			}
		}
		return s.refreshDataset(txn, datasetID)
	})
}

// refreshDataset recomputes size and fingerprint from the items currently
// visible in txn. Must run inside the same transaction as the item writes.
func (s *Store) refreshDataset(txn *badger.Txn, datasetID string) error {
	var ds datatypes.Dataset
	if err := getJSON(txn, datasetKey(datasetID), &ds); err != nil {
		return err
	}
	var items []datatypes.DatasetItem
	prefix := []byte("item:" + datasetID + ":")
	if err := listPrefix(txn, prefix, func(val []byte) error {
		var it datatypes.DatasetItem
		if err := json.Unmarshal(val, &it); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	}); err != nil {
		return err
	}
	ds.Size = len(items)
	ds.Fingerprint = datatypes.ComputeFingerprint(items)
	ds.UpdatedAt = time.Now().UTC()
	return setJSON(txn, datasetKey(datasetID), &ds)
}

// -----------------------------------------------------------------------------
// Runs
// -----------------------------------------------------------------------------

// PutRun inserts or replaces a run.
func (s *Store) PutRun(ctx context.Context, r *datatypes.Run) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, runKey(r.ID), r)
	})
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*datatypes.Run, error) {
	var r datatypes.Run
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, runKey(id), &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRun applies fn to the stored run inside a transaction. fn sees the
// current value; conflicting writers are retried, so counter updates are
// serialized and monotonic.
func (s *Store) UpdateRun(ctx context.Context, id string, fn func(r *datatypes.Run) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var r datatypes.Run
		if err := getJSON(txn, runKey(id), &r); err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		return setJSON(txn, runKey(id), &r)
	})
}

// IncrementRunProgress adds one to a run's processed-image counter.
func (s *Store) IncrementRunProgress(ctx context.Context, id string) error {
	return s.UpdateRun(ctx, id, func(r *datatypes.Run) error {
		if r.ProcessedImages >= r.TotalImages {
			return fmt.Errorf("run %s progress overflow: %d/%d", id, r.ProcessedImages, r.TotalImages)
		}
		r.ProcessedImages++
		return nil
	})
}

// ListRuns returns runs, optionally filtered by detection code.
func (s *Store) ListRuns(ctx context.Context, detectionCode string) ([]datatypes.Run, error) {
	var out []datatypes.Run
	err := s.view(ctx, func(txn *badger.Txn) error {
		return listPrefix(txn, []byte("run:"), func(val []byte) error {
			var r datatypes.Run
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			if detectionCode == "" || r.DetectionCode == detectionCode {
				out = append(out, r)
			}
			return nil
		})
	})
	return out, err
}

// DeleteRun removes a run and all of its predictions. Predictions are
// deleted before the run record so a crash mid-delete leaves a run with
// missing predictions rather than orphaned predictions.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	preds, err := s.ListPredictions(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range preds {
		err := s.update(ctx, func(txn *badger.Txn) error {
			if err := txn.Delete(predictionKey(p.RunID, p.ItemID)); err != nil {
				return err
			}
			return txn.Delete(predictionIndexKey(p.ID))
		})
		if err != nil {
			return err
		}
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(runKey(id))
	})
}

// -----------------------------------------------------------------------------
// Predictions
// -----------------------------------------------------------------------------

// PutPrediction writes a prediction and its id index entry.
func (s *Store) PutPrediction(ctx context.Context, p *datatypes.Prediction) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := predictionKey(p.RunID, p.ItemID)
		if err := setJSON(txn, key, p); err != nil {
			return err
		}
		return txn.Set(predictionIndexKey(p.ID), key)
	})
}

// GetPrediction resolves a prediction by its id via the index.
func (s *Store) GetPrediction(ctx context.Context, predictionID string) (*datatypes.Prediction, error) {
	var p datatypes.Prediction
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(predictionIndexKey(predictionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, key, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePrediction applies fn to the stored prediction inside a
// transaction. Only HIL fields should be mutated by callers.
func (s *Store) UpdatePrediction(ctx context.Context, predictionID string, fn func(p *datatypes.Prediction) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(predictionIndexKey(predictionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		var p datatypes.Prediction
		if err := getJSON(txn, key, &p); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		return setJSON(txn, key, &p)
	})
}

// ListPredictions returns every prediction of a run ordered by item id.
func (s *Store) ListPredictions(ctx context.Context, runID string) ([]datatypes.Prediction, error) {
	var out []datatypes.Prediction
	prefix := []byte("prediction:" + runID + ":")
	err := s.view(ctx, func(txn *badger.Txn) error {
		return listPrefix(txn, prefix, func(val []byte) error {
			var p datatypes.Prediction
			if err := json.Unmarshal(val, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}
