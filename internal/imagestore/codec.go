package imagestore

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/types"
)

const (
	headerKeyPrefix     = byte('h')
	snapshotKeyPrefix   = byte('s')
	imageStateKeyPrefix = byte('t')
	objectKeyPrefix     = byte('o')
)

func headerKey() []byte {
	return []byte{headerKeyPrefix}
}

func snapshotKey(id types.SnapID) []byte {
	key := make([]byte, 9)
	key[0] = snapshotKeyPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func snapshotKeyRange() (lower, upper []byte) {
	return snapshotKey(0), []byte{snapshotKeyPrefix + 1}
}

func imageStateKey(id types.SnapID) []byte {
	key := make([]byte, 9)
	key[0] = imageStateKeyPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func objectKey(id types.SnapID, objectNumber types.ObjectNumber) []byte {
	key := make([]byte, 17)
	key[0] = objectKeyPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	binary.BigEndian.PutUint64(key[9:], uint64(objectNumber))
	return key
}

func decodeObjectNumber(key []byte) uint64 {
	if len(key) != 17 {
		return 0
	}
	return binary.BigEndian.Uint64(key[9:])
}

func objectKeyRange(id types.SnapID) (lower, upper []byte) {
	lower = objectKey(id, 0)
	upper = make([]byte, 9)
	upper[0] = objectKeyPrefix
	binary.BigEndian.PutUint64(upper[1:], uint64(id))
	for i := 8; i >= 1; i-- {
		upper[i]++
		if upper[i] != 0 {
			return lower, upper
		}
	}
	return lower, []byte{objectKeyPrefix + 1}
}

type headerRecord struct {
	Pool            int64  `json:"pool"`
	Image           string `json:"image"`
	MirrorUUID      string `json:"mirror_uuid"`
	SnapSeq         uint64 `json:"snap_seq"`
	HeadObjectCount uint64 `json:"head_object_count"`
}

const (
	snapshotKindUser   = "user"
	snapshotKindMirror = "mirror"
)

type mirrorNamespaceRecord struct {
	State                  int8              `json:"state"`
	Complete               bool              `json:"complete"`
	PrimaryMirrorUUID      string            `json:"primary_mirror_uuid,omitempty"`
	PrimarySnapID          uint64            `json:"primary_snap_id,omitempty"`
	MirrorPeerUUIDs        []string          `json:"mirror_peer_uuids,omitempty"`
	SnapSeqs               map[string]uint64 `json:"snap_seqs,omitempty"`
	LastCopiedObjectNumber uint64            `json:"last_copied_object_number,omitempty"`
}

type snapshotRecord struct {
	ID          uint64                 `json:"id"`
	Name        string                 `json:"name"`
	Kind        string                 `json:"kind"`
	ObjectCount uint64                 `json:"object_count"`
	Mirror      *mirrorNamespaceRecord `json:"mirror,omitempty"`
}

func encodeSnapshotRecord(rec snapshotRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	return data, errors.WithMessage(err, "imagestore: encode snapshot")
}

func decodeSnapshotRecord(data []byte) (rec snapshotRecord, err error) {
	err = json.Unmarshal(data, &rec)
	return rec, errors.WithMessage(err, "imagestore: decode snapshot")
}

func encodeHeaderRecord(rec headerRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	return data, errors.WithMessage(err, "imagestore: encode header")
}

func decodeHeaderRecord(data []byte) (rec headerRecord, err error) {
	err = json.Unmarshal(data, &rec)
	return rec, errors.WithMessage(err, "imagestore: decode header")
}

func toSnapshotRecord(id types.SnapID, name string, ns image.SnapshotNamespace) snapshotRecord {
	rec := snapshotRecord{
		ID:   uint64(id),
		Name: name,
		Kind: snapshotKindUser,
	}
	mirror, ok := ns.(image.MirrorSnapshotNamespace)
	if !ok {
		return rec
	}
	rec.Kind = snapshotKindMirror
	mrec := &mirrorNamespaceRecord{
		State:                  int8(mirror.State),
		Complete:               mirror.Complete,
		PrimaryMirrorUUID:      mirror.PrimaryMirrorUUID,
		PrimarySnapID:          uint64(mirror.PrimarySnapID),
		LastCopiedObjectNumber: uint64(mirror.LastCopiedObjectNumber),
	}
	for peer := range mirror.MirrorPeerUUIDs {
		mrec.MirrorPeerUUIDs = append(mrec.MirrorPeerUUIDs, peer)
	}
	sort.Strings(mrec.MirrorPeerUUIDs)
	if len(mirror.SnapSeqs) > 0 {
		mrec.SnapSeqs = make(map[string]uint64, len(mirror.SnapSeqs))
		for remoteID, localID := range mirror.SnapSeqs {
			mrec.SnapSeqs[strconv.FormatUint(uint64(remoteID), 10)] = uint64(localID)
		}
	}
	rec.Mirror = mrec
	return rec
}

func (rec snapshotRecord) toSnapInfo() (image.SnapInfo, error) {
	si := image.SnapInfo{
		ID:   types.SnapID(rec.ID),
		Name: rec.Name,
	}
	if rec.Kind == snapshotKindUser || rec.Mirror == nil {
		si.Namespace = image.UserSnapshotNamespace{}
		return si, nil
	}
	ns := image.MirrorSnapshotNamespace{
		State:                  image.MirrorSnapshotState(rec.Mirror.State),
		Complete:               rec.Mirror.Complete,
		PrimaryMirrorUUID:      rec.Mirror.PrimaryMirrorUUID,
		PrimarySnapID:          types.SnapID(rec.Mirror.PrimarySnapID),
		LastCopiedObjectNumber: types.ObjectNumber(rec.Mirror.LastCopiedObjectNumber),
	}
	if len(rec.Mirror.MirrorPeerUUIDs) > 0 {
		ns.MirrorPeerUUIDs = make(map[string]struct{}, len(rec.Mirror.MirrorPeerUUIDs))
		for _, peer := range rec.Mirror.MirrorPeerUUIDs {
			ns.MirrorPeerUUIDs[peer] = struct{}{}
		}
	}
	if len(rec.Mirror.SnapSeqs) > 0 {
		ns.SnapSeqs = make(image.SnapSeqs, len(rec.Mirror.SnapSeqs))
		for remoteID, localID := range rec.Mirror.SnapSeqs {
			id, err := strconv.ParseUint(remoteID, 10, 64)
			if err != nil {
				return si, errors.WithMessage(err, "imagestore: decode snap seqs")
			}
			ns.SnapSeqs[types.SnapID(id)] = types.SnapID(localID)
		}
	}
	si.Namespace = ns
	return si, nil
}
