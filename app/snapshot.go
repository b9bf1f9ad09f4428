package app

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/types"
)

const snapshotChunkSize = 64 * 1024

type snapshot struct {
	desc types.SnapshotDescriptor
	data []byte
}

// snapshotOf encodes the committed ledger state.
func (app *App) snapshotOf() (*snapshot, error) {
	base, err := app.committed()
	if err != nil {
		return nil, err
	}
	st := base.State()
	data, err := st.Encode()
	if err != nil {
		return nil, fmt.Errorf("app: encode state: %w", err)
	}
	appHash, err := st.AppHash()
	if err != nil {
		return nil, fmt.Errorf("app: hash state: %w", err)
	}
	return &snapshot{
		desc: types.SnapshotDescriptor{
			Height:  st.Height,
			Format:  types.SnapshotFormat,
			Chunks:  uint32((len(data) + snapshotChunkSize - 1) / snapshotChunkSize),
			Hash:    types.Hash(sha256.Sum256(data)),
			AppHash: appHash,
		},
		data: data,
	}, nil
}

func (app *App) AvailableSnapshots(_ context.Context) ([]types.SnapshotDescriptor, error) {
	snap, err := app.snapshotOf()
	if err != nil {
		return nil, err
	}
	if snap.desc.Height == 0 {
		return nil, nil
	}
	return []types.SnapshotDescriptor{snap.desc}, nil
}

func (app *App) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if format != types.SnapshotFormat {
		return nil, nil, fmt.Errorf("app: unsupported snapshot format %d", format)
	}
	snap, err := app.snapshotOf()
	if err != nil {
		return nil, nil, err
	}
	if snap.desc.Height != height {
		return nil, nil, fmt.Errorf("app: snapshot at height %d not available (current: %d)", height, snap.desc.Height)
	}

	ch := make(chan types.SnapshotChunk, snap.desc.Chunks)
	go func() {
		defer close(ch)
		for i := range snap.desc.Chunks {
			start := int(i) * snapshotChunkSize
			end := min(start+snapshotChunkSize, len(snap.data))
			select {
			case ch <- types.SnapshotChunk{Index: i, Data: snap.data[start:end]}:
			case <-ctx.Done():
				return
			}
		}
	}()
	desc := snap.desc
	return ch, &desc, nil
}

func (app *App) ImportSnapshot(_ context.Context, descriptor types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if descriptor.Format != types.SnapshotFormat {
		return reject("unsupported format %d", descriptor.Format), nil
	}

	received := make(map[uint32][]byte)
	for chunk := range chunks {
		if chunk.Index < descriptor.Chunks {
			received[chunk.Index] = chunk.Data
		}
	}
	if uint32(len(received)) != descriptor.Chunks {
		var missing []uint32
		for i := range descriptor.Chunks {
			if _, ok := received[i]; !ok {
				missing = append(missing, i)
			}
		}
		return types.ImportResult{Status: types.ImportRetryChunks, RetryIndices: missing}, nil
	}

	var full []byte
	for i := range descriptor.Chunks {
		full = append(full, received[i]...)
	}
	if types.Hash(sha256.Sum256(full)) != descriptor.Hash {
		return reject("snapshot hash mismatch"), nil
	}

	st, err := ledger.DecodeState(full)
	if err != nil {
		return reject("decode state: %v", err), nil
	}
	if st.Height != descriptor.Height {
		return reject("snapshot state at height %d, descriptor says %d", st.Height, descriptor.Height), nil
	}
	appHash, err := st.AppHash()
	if err != nil {
		return reject("hash state: %v", err), nil
	}
	if appHash != descriptor.AppHash {
		return reject("app hash mismatch"), nil
	}
	restored := ledger.New(st, app.deps)
	if err := restored.Invariants(); err != nil {
		return reject("restored state inconsistent: %v", err), nil
	}

	app.mu.Lock()
	app.current = restored
	app.staged = nil
	app.mu.Unlock()

	app.log.Info("restored from snapshot",
		zap.Uint64("height", st.Height),
		zap.Uint32("chunks", descriptor.Chunks))
	return types.ImportResult{Status: types.ImportOK, AppHash: &appHash}, nil
}

func reject(format string, args ...any) types.ImportResult {
	return types.ImportResult{Status: types.ImportReject, Reason: fmt.Sprintf(format, args...)}
}
