// Package deepcopy replicates snapshot metadata and object data between two
// images. CopySnapshots mirrors the remote snapshot history onto the local
// image and produces the snap-seqs translation table; CopyImage performs the
// bulk object copy with bounded parallelism and resumable progress.
package deepcopy

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/types"
)

// Progress receives object-copy progress. UpdateProgress is invoked with the
// number of contiguously copied objects and the total object count; it may be
// called from the copy goroutines.
type Progress interface {
	UpdateProgress(offset, total uint64)
}

type Copier struct {
	copierConfig
}

func New(opts ...Option) (*Copier, error) {
	cfg, err := newCopierConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Copier{copierConfig: cfg}, nil
}

// CopySnapshots ensures every remote user snapshot strictly inside
// (remoteStart, remoteEnd) has a matching local snapshot and returns the
// remote-to-local id translation. Snapshots already copied by an earlier,
// interrupted run are matched by name and reused, so the operation is
// idempotent. When both sync points are set, their pairing seeds the table.
func (c *Copier) CopySnapshots(ctx context.Context, remote, local image.Image, remoteStart, remoteEnd, localStart types.SnapID) (image.SnapSeqs, error) {
	snapSeqs := make(image.SnapSeqs)
	if remoteStart != 0 && localStart != 0 {
		snapSeqs[remoteStart] = localStart
	}

	localByName := make(map[string]types.SnapID)
	for _, si := range local.Snapshots() {
		if _, ok := si.Namespace.(image.UserSnapshotNamespace); ok && si.ID > localStart {
			localByName[si.Name] = si.ID
		}
	}

	for _, si := range remote.Snapshots() {
		if si.ID <= remoteStart || si.ID >= remoteEnd {
			continue
		}
		if _, ok := si.Namespace.(image.UserSnapshotNamespace); !ok {
			continue
		}
		if localID, ok := localByName[si.Name]; ok {
			snapSeqs[si.ID] = localID
			continue
		}
		localID, err := local.CreateSnapshot(ctx, si.Name, image.UserSnapshotNamespace{})
		if err != nil {
			return nil, errors.WithMessagef(err, "deepcopy: copy snapshot %s", si.ID)
		}
		snapSeqs[si.ID] = localID
		c.logger.Debug("snapshot copied",
			zap.Stringer("remote_snap_id", si.ID),
			zap.Stringer("local_snap_id", localID),
			zap.String("name", si.Name))
	}
	return snapSeqs, nil
}

// progressTracker advances a contiguous completion frontier across
// out-of-order object completions.
type progressTracker struct {
	mu       sync.Mutex
	done     map[uint64]struct{}
	frontier uint64
	total    uint64
	sink     Progress
}

func newProgressTracker(start, total uint64, sink Progress) *progressTracker {
	return &progressTracker{
		done:     make(map[uint64]struct{}),
		frontier: start,
		total:    total,
		sink:     sink,
	}
}

func (pt *progressTracker) markDone(objectNumber uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.done[objectNumber] = struct{}{}
	for {
		if _, ok := pt.done[pt.frontier]; !ok {
			break
		}
		delete(pt.done, pt.frontier)
		pt.frontier++
	}

	// reporting under the lock keeps the delivered frontiers in order
	if pt.sink != nil {
		pt.sink.UpdateProgress(pt.frontier, pt.total)
	}
}

// CopyImage copies the objects of the remote snapshot remoteEnd onto the
// local image head, starting at resumeObject. Objects are copied with bounded
// parallelism; progress reflects only the contiguously completed prefix so a
// resume never skips an uncopied object.
func (c *Copier) CopyImage(ctx context.Context, remote, local image.Image, remoteStart, remoteEnd, localStart types.SnapID, resumeObject types.ObjectNumber, snapSeqs image.SnapSeqs, progress Progress) error {
	total, err := remote.ObjectCount(ctx, remoteEnd)
	if err != nil {
		return errors.WithMessage(err, "deepcopy: remote object count")
	}

	start := uint64(resumeObject)
	if start >= total {
		if progress != nil {
			progress.UpdateProgress(total, total)
		}
		return nil
	}

	c.logger.Debug("copying image objects",
		zap.Stringer("remote_snap_id_start", remoteStart),
		zap.Stringer("remote_snap_id_end", remoteEnd),
		zap.Stringer("local_snap_id_start", localStart),
		zap.Uint64("start_object", start),
		zap.Uint64("total_objects", total))

	tracker := newProgressTracker(start, total, progress)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for objectNumber := start; objectNumber < total; objectNumber++ {
		objectNumber := objectNumber
		g.Go(func() error {
			data, err := remote.ReadObject(gctx, remoteEnd, types.ObjectNumber(objectNumber))
			if err != nil {
				return errors.WithMessagef(err, "deepcopy: read object %d", objectNumber)
			}
			if data != nil {
				if err := local.WriteObject(gctx, types.ObjectNumber(objectNumber), data); err != nil {
					return errors.WithMessagef(err, "deepcopy: write object %d", objectNumber)
				}
			}
			tracker.markDone(objectNumber)
			return nil
		})
	}
	return g.Wait()
}
