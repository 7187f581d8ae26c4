// Package imagestore provides an embedded, pebble-backed implementation of
// the image.Image interface. It persists snapshot metadata, image-state blobs,
// and object data in a single pebble database and delivers update
// notifications to in-process watchers. It stands in for the cluster client
// library when mirroring between local stores.
package imagestore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

type Store struct {
	storeConfig

	ref       image.Ref
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	// mu is the image lock: shared for snapshot scans, exclusive for
	// metadata mutation.
	mu  sync.RWMutex
	hdr headerRecord

	gen          atomic.Uint64
	refreshedGen atomic.Uint64

	wmu           sync.Mutex
	watchers      map[image.WatcherHandle]image.UpdateWatcher
	watcherHandle uint64

	closed atomic.Bool
}

var _ image.Image = (*Store)(nil)

// Open opens or creates the image store at path. A fresh store is assigned a
// random mirror uuid.
func Open(path string, ref image.Ref, opts ...Option) (*Store, error) {
	cfg, err := newStoreConfig(opts)
	if err != nil {
		return nil, err
	}
	if ref.Pool.Invalid() || ref.Image.Invalid() {
		return nil, errors.Wrapf(merrors.ErrInvalid, "imagestore: bad ref %s", ref)
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.WithMessage(err, "imagestore: open")
	}

	s := &Store{
		storeConfig: cfg,
		ref:         ref,
		db:          db,
		writeOpts:   pebble.NoSync,
		watchers:    make(map[image.WatcherHandle]image.UpdateWatcher),
	}
	if cfg.syncWAL {
		s.writeOpts = pebble.Sync
	}
	s.logger = s.logger.With(zap.String("image", ref.String()))

	if err := s.loadOrInitHeader(); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	s.logger.Info("opened", zap.String("mirror_uuid", s.hdr.MirrorUUID))
	return s, nil
}

func (s *Store) loadOrInitHeader() error {
	data, closer, err := s.db.Get(headerKey())
	if err == nil {
		defer func() {
			_ = closer.Close()
		}()
		s.hdr, err = decodeHeaderRecord(data)
		return err
	}
	if err != pebble.ErrNotFound {
		return errors.WithMessage(err, "imagestore: read header")
	}

	s.hdr = headerRecord{
		Pool:       int64(s.ref.Pool),
		Image:      string(s.ref.Image),
		MirrorUUID: uuid.NewString(),
	}
	return s.writeHeader()
}

func (s *Store) writeHeader() error {
	data, err := encodeHeaderRecord(s.hdr)
	if err != nil {
		return err
	}
	return errors.WithMessage(s.db.Set(headerKey(), data, s.writeOpts), "imagestore: write header")
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.db.Close()
	s.logger.Info("closed")
	return err
}

func (s *Store) Ref() image.Ref {
	return s.ref
}

// MirrorUUID is the uuid of the cluster holding this image copy.
func (s *Store) MirrorUUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hdr.MirrorUUID
}

func (s *Store) markUpdated() {
	s.gen.Add(1)
}

func (s *Store) IsRefreshRequired() bool {
	return s.gen.Load() != s.refreshedGen.Load()
}

func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, closer, err := s.db.Get(headerKey())
	if err != nil {
		return errors.WithMessage(err, "imagestore: refresh")
	}
	defer func() {
		_ = closer.Close()
	}()
	hdr, err := decodeHeaderRecord(data)
	if err != nil {
		return err
	}
	s.hdr = hdr
	s.refreshedGen.Store(s.gen.Load())
	return nil
}

func (s *Store) Snapshots() []image.SnapInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower, upper := snapshotKeyRange()
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		s.logger.Error("snapshot scan failed", zap.Error(err))
		return nil
	}
	defer func() {
		_ = it.Close()
	}()

	var infos []image.SnapInfo
	for it.First(); it.Valid(); it.Next() {
		rec, err := decodeSnapshotRecord(it.Value())
		if err != nil {
			s.logger.Error("corrupt snapshot record", zap.Error(err))
			continue
		}
		si, err := rec.toSnapInfo()
		if err != nil {
			s.logger.Error("corrupt snapshot record", zap.Error(err))
			continue
		}
		infos = append(infos, si)
	}
	return infos
}

func (s *Store) GetSnapshot(id types.SnapID) (image.SnapInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.getSnapshotRecord(id)
	if err != nil {
		return image.SnapInfo{}, err
	}
	return rec.toSnapInfo()
}

func (s *Store) getSnapshotRecord(id types.SnapID) (snapshotRecord, error) {
	data, closer, err := s.db.Get(snapshotKey(id))
	if err == pebble.ErrNotFound {
		return snapshotRecord{}, errors.Wrapf(merrors.ErrNotFound, "imagestore: snapshot %s", id)
	}
	if err != nil {
		return snapshotRecord{}, errors.WithMessage(err, "imagestore: read snapshot")
	}
	defer func() {
		_ = closer.Close()
	}()
	return decodeSnapshotRecord(data)
}

func (s *Store) putSnapshotRecord(rec snapshotRecord) error {
	data, err := encodeSnapshotRecord(rec)
	if err != nil {
		return err
	}
	return errors.WithMessage(
		s.db.Set(snapshotKey(types.SnapID(rec.ID)), data, s.writeOpts),
		"imagestore: write snapshot")
}

func (s *Store) CreateSnapshot(ctx context.Context, name string, ns image.SnapshotNamespace) (types.SnapID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hdr.SnapSeq++
	id := types.SnapID(s.hdr.SnapSeq)

	rec := toSnapshotRecord(id, name, ns)
	rec.ObjectCount = s.hdr.HeadObjectCount
	if err := s.putSnapshotRecord(rec); err != nil {
		return 0, err
	}
	if err := s.snapshotHeadObjects(id); err != nil {
		return 0, err
	}
	if err := s.writeHeader(); err != nil {
		return 0, err
	}
	s.markUpdated()
	s.logger.Debug("snapshot created",
		zap.Stringer("snap_id", id), zap.String("name", name))
	return id, nil
}

// snapshotHeadObjects freezes the head objects under the new snapshot id.
func (s *Store) snapshotHeadObjects(id types.SnapID) error {
	lower, upper := objectKeyRange(types.NoSnap)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errors.WithMessage(err, "imagestore: snapshot objects")
	}
	defer func() {
		_ = it.Close()
	}()

	batch := s.db.NewBatch()
	defer func() {
		_ = batch.Close()
	}()
	for it.First(); it.Valid(); it.Next() {
		objectNumber := types.ObjectNumber(decodeObjectNumber(it.Key()))
		if err := batch.Set(objectKey(id, objectNumber), it.Value(), nil); err != nil {
			return errors.WithMessage(err, "imagestore: snapshot objects")
		}
	}
	return errors.WithMessage(s.db.Apply(batch, s.writeOpts), "imagestore: snapshot objects")
}

func (s *Store) RemoveSnapshot(ctx context.Context, id types.SnapID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getSnapshotRecord(id); err != nil {
		return err
	}
	err := s.db.Delete(snapshotKey(id), s.writeOpts)
	err = multierr.Append(err, s.db.Delete(imageStateKey(id), s.writeOpts))
	lower, upper := objectKeyRange(id)
	err = multierr.Append(err, s.db.DeleteRange(lower, upper, s.writeOpts))
	if err != nil {
		return errors.WithMessage(err, "imagestore: remove snapshot")
	}
	s.markUpdated()
	s.logger.Debug("snapshot removed", zap.Stringer("snap_id", id))
	return nil
}

func (s *Store) SetSnapshotNamespace(ctx context.Context, id types.SnapID, ns image.SnapshotNamespace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getSnapshotRecord(id)
	if err != nil {
		return err
	}
	next := toSnapshotRecord(id, rec.Name, ns)
	next.ObjectCount = rec.ObjectCount
	if err := s.putSnapshotRecord(next); err != nil {
		return err
	}
	s.markUpdated()
	return nil
}

func (s *Store) SetCopyProgress(ctx context.Context, id types.SnapID, complete bool, lastCopiedObjectNumber types.ObjectNumber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getSnapshotRecord(id)
	if err != nil {
		return err
	}
	if rec.Mirror == nil {
		return errors.Wrapf(merrors.ErrInvalid, "imagestore: snapshot %s is not a mirror snapshot", id)
	}
	rec.Mirror.Complete = complete
	rec.Mirror.LastCopiedObjectNumber = uint64(lastCopiedObjectNumber)
	if err := s.putSnapshotRecord(rec); err != nil {
		return err
	}
	s.markUpdated()
	s.logger.Debug("copy progress updated",
		zap.Stringer("snap_id", id), zap.Bool("complete", complete),
		zap.Stringer("last_copied_object_number", lastCopiedObjectNumber))
	return nil
}

func (s *Store) ImageState(ctx context.Context, id types.SnapID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, closer, err := s.db.Get(imageStateKey(id))
	if err == pebble.ErrNotFound {
		return nil, errors.Wrapf(merrors.ErrNotFound, "imagestore: image state of snapshot %s", id)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "imagestore: read image state")
	}
	defer func() {
		_ = closer.Close()
	}()
	state := make([]byte, len(data))
	copy(state, data)
	return state, nil
}

func (s *Store) SetImageState(ctx context.Context, id types.SnapID, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.WithMessage(
		s.db.Set(imageStateKey(id), state, s.writeOpts),
		"imagestore: write image state")
}

func (s *Store) RegisterUpdateWatcher(watcher image.UpdateWatcher) (image.WatcherHandle, error) {
	if watcher == nil {
		return 0, errors.Wrap(merrors.ErrInvalid, "imagestore: nil watcher")
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.watcherHandle++
	handle := image.WatcherHandle(s.watcherHandle)
	s.watchers[handle] = watcher
	return handle, nil
}

func (s *Store) UnregisterUpdateWatcher(ctx context.Context, handle image.WatcherHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, ok := s.watchers[handle]; !ok {
		return errors.Wrapf(merrors.ErrNotFound, "imagestore: watcher %d", handle)
	}
	delete(s.watchers, handle)
	return nil
}

func (s *Store) NotifyUpdate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.wmu.Lock()
	watchers := make([]image.UpdateWatcher, 0, len(s.watchers))
	for _, watcher := range s.watchers {
		watchers = append(watchers, watcher)
	}
	s.wmu.Unlock()

	for _, watcher := range watchers {
		watcher.HandleNotify()
	}
	return nil
}

func (s *Store) ObjectCount(ctx context.Context, id types.SnapID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == types.NoSnap {
		return s.hdr.HeadObjectCount, nil
	}
	rec, err := s.getSnapshotRecord(id)
	if err != nil {
		return 0, err
	}
	return rec.ObjectCount, nil
}

// ReadObject reads one data object of a snapshot or the head. An unwritten
// object reads as nil, matching sparse image semantics.
func (s *Store) ReadObject(ctx context.Context, id types.SnapID, objectNumber types.ObjectNumber) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, closer, err := s.db.Get(objectKey(id, objectNumber))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "imagestore: read object")
	}
	defer func() {
		_ = closer.Close()
	}()
	obj := make([]byte, len(data))
	copy(obj, data)
	return obj, nil
}

func (s *Store) WriteObject(ctx context.Context, objectNumber types.ObjectNumber, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Set(objectKey(types.NoSnap, objectNumber), data, s.writeOpts); err != nil {
		return errors.WithMessage(err, "imagestore: write object")
	}
	if uint64(objectNumber)+1 > s.hdr.HeadObjectCount {
		s.hdr.HeadObjectCount = uint64(objectNumber) + 1
		if err := s.writeHeader(); err != nil {
			return err
		}
	}
	return nil
}
