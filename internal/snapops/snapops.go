// Package snapops implements the mirror-snapshot metadata operations the
// replayer requests against either image: fetching the image-state blob,
// creating the local non-primary snapshot, and unlinking a consumed peer from
// a remote primary snapshot.
package snapops

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

type Client struct {
	clientConfig
}

func New(opts ...Option) (*Client, error) {
	cfg, err := newClientConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Client{clientConfig: cfg}, nil
}

// GetImageState fetches the opaque image-state blob attached to a remote
// snapshot. A snapshot without a blob yields a nil state.
func (c *Client) GetImageState(ctx context.Context, remote image.Image, id types.SnapID) ([]byte, error) {
	state, err := remote.ImageState(ctx, id)
	if merrors.IsNotFound(err) {
		return nil, nil
	}
	return state, err
}

// CreateNonPrimary creates the incomplete local mirror snapshot recording the
// sync in progress and stores the image-state blob alongside it.
func (c *Client) CreateNonPrimary(ctx context.Context, local image.Image, demoted bool, primaryMirrorUUID string, primarySnapID types.SnapID, snapSeqs image.SnapSeqs, imageState []byte) (types.SnapID, error) {
	state := image.MirrorSnapshotStateNonPrimary
	if demoted {
		state = image.MirrorSnapshotStateNonPrimaryDemoted
	}
	ns := image.MirrorSnapshotNamespace{
		State:             state,
		Complete:          false,
		PrimaryMirrorUUID: primaryMirrorUUID,
		PrimarySnapID:     primarySnapID,
		SnapSeqs:          snapSeqs,
	}
	name := fmt.Sprintf("mirror.non-primary.%s.%s", primaryMirrorUUID, primarySnapID)
	id, err := local.CreateSnapshot(ctx, name, ns)
	if err != nil {
		return 0, errors.WithMessage(err, "snapops: create non-primary snapshot")
	}
	if imageState != nil {
		if err := local.SetImageState(ctx, id, imageState); err != nil {
			return 0, errors.WithMessage(err, "snapops: store image state")
		}
	}
	c.logger.Debug("non-primary snapshot created",
		zap.Stringer("local_snap_id", id),
		zap.Stringer("primary_snap_id", primarySnapID),
		zap.Bool("demoted", demoted))
	return id, nil
}

// UnlinkPeer removes peerUUID from the peer set of a remote primary snapshot.
// Removing the last peer prunes the snapshot. A missing snapshot returns
// merrors.ErrNotFound.
func (c *Client) UnlinkPeer(ctx context.Context, remote image.Image, id types.SnapID, peerUUID string) error {
	si, err := remote.GetSnapshot(id)
	if err != nil {
		return err
	}
	ns, ok := si.MirrorNamespace()
	if !ok || !ns.IsPrimary() {
		return errors.Wrapf(merrors.ErrInvalid, "snapops: snapshot %s is not a primary mirror snapshot", id)
	}
	if !ns.HasPeer(peerUUID) {
		return nil
	}

	delete(ns.MirrorPeerUUIDs, peerUUID)
	if len(ns.MirrorPeerUUIDs) == 0 {
		if err := remote.RemoveSnapshot(ctx, id); err != nil {
			return errors.WithMessage(err, "snapops: prune unlinked snapshot")
		}
		c.logger.Debug("unlinked snapshot pruned", zap.Stringer("remote_snap_id", id))
	} else {
		if err := remote.SetSnapshotNamespace(ctx, id, ns); err != nil {
			return errors.WithMessage(err, "snapops: unlink peer")
		}
	}

	if err := remote.NotifyUpdate(ctx); err != nil {
		c.logger.Warn("failed to notify remote image update", zap.Error(err))
	}
	return nil
}
