package replayer

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/wanzew/snapmirror/internal/deepcopy"
	"github.com/wanzew/snapmirror/internal/image"
	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

// fakeImage is an in-memory image.Image for unit tests. Error fields inject
// failures into individual operations; onSnapshots hooks into the middle of a
// snapshot scan.
type fakeImage struct {
	ref image.Ref

	mu         sync.Mutex
	snaps      map[types.SnapID]image.SnapInfo
	nextSnapID types.SnapID
	states     map[types.SnapID][]byte

	refreshRequired bool
	refreshCount    int
	refreshErr      error

	copyProgressErr error
	onCopyProgress  func()
	notifyUpdateErr error

	watchers      map[image.WatcherHandle]image.UpdateWatcher
	watcherHandle uint64
	registerErr   error
	unregisterErr error

	headObjectCount uint64

	snapshotsCalls int
	onSnapshots    func()
}

var _ image.Image = (*fakeImage)(nil)

func newFakeImage(ref image.Ref, nextSnapID types.SnapID) *fakeImage {
	return &fakeImage{
		ref:        ref,
		snaps:      make(map[types.SnapID]image.SnapInfo),
		nextSnapID: nextSnapID,
		states:     make(map[types.SnapID][]byte),
		watchers:   make(map[image.WatcherHandle]image.UpdateWatcher),
	}
}

func (f *fakeImage) addSnapshot(id types.SnapID, name string, ns image.SnapshotNamespace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[id] = image.SnapInfo{ID: id, Name: name, Namespace: ns}
	if id >= f.nextSnapID {
		f.nextSnapID = id + 1
	}
}

func (f *fakeImage) Ref() image.Ref {
	return f.ref
}

func (f *fakeImage) IsRefreshRequired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshRequired
}

func (f *fakeImage) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCount++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshRequired = false
	return nil
}

func (f *fakeImage) setOnSnapshots(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSnapshots = hook
}

func (f *fakeImage) numSnapshotsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotsCalls
}

func (f *fakeImage) Snapshots() []image.SnapInfo {
	f.mu.Lock()
	f.snapshotsCalls++
	infos := make([]image.SnapInfo, 0, len(f.snaps))
	for _, si := range f.snaps {
		infos = append(infos, si)
	}
	hook := f.onSnapshots
	f.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	if hook != nil {
		hook()
	}
	return infos
}

func (f *fakeImage) GetSnapshot(id types.SnapID) (image.SnapInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	si, ok := f.snaps[id]
	if !ok {
		return image.SnapInfo{}, errors.Wrapf(merrors.ErrNotFound, "fake image: snapshot %s", id)
	}
	return si, nil
}

func (f *fakeImage) CreateSnapshot(_ context.Context, name string, ns image.SnapshotNamespace) (types.SnapID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSnapID
	f.nextSnapID++
	f.snaps[id] = image.SnapInfo{ID: id, Name: name, Namespace: ns}
	return id, nil
}

func (f *fakeImage) RemoveSnapshot(_ context.Context, id types.SnapID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snaps[id]; !ok {
		return errors.Wrapf(merrors.ErrNotFound, "fake image: snapshot %s", id)
	}
	delete(f.snaps, id)
	return nil
}

func (f *fakeImage) SetSnapshotNamespace(_ context.Context, id types.SnapID, ns image.SnapshotNamespace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	si, ok := f.snaps[id]
	if !ok {
		return errors.Wrapf(merrors.ErrNotFound, "fake image: snapshot %s", id)
	}
	si.Namespace = ns
	f.snaps[id] = si
	return nil
}

func (f *fakeImage) SetCopyProgress(_ context.Context, id types.SnapID, complete bool, lastCopiedObjectNumber types.ObjectNumber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCopyProgress != nil {
		f.onCopyProgress()
	}
	if f.copyProgressErr != nil {
		return f.copyProgressErr
	}
	si, ok := f.snaps[id]
	if !ok {
		return errors.Wrapf(merrors.ErrNotFound, "fake image: snapshot %s", id)
	}
	ns, ok := si.Namespace.(image.MirrorSnapshotNamespace)
	if !ok {
		return errors.Wrapf(merrors.ErrInvalid, "fake image: snapshot %s", id)
	}
	ns.Complete = complete
	ns.LastCopiedObjectNumber = lastCopiedObjectNumber
	si.Namespace = ns
	f.snaps[id] = si
	return nil
}

func (f *fakeImage) ImageState(_ context.Context, id types.SnapID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[id]
	if !ok {
		return nil, errors.Wrapf(merrors.ErrNotFound, "fake image: image state of %s", id)
	}
	return state, nil
}

func (f *fakeImage) SetImageState(_ context.Context, id types.SnapID, state []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
	return nil
}

func (f *fakeImage) RegisterUpdateWatcher(watcher image.UpdateWatcher) (image.WatcherHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return 0, f.registerErr
	}
	f.watcherHandle++
	handle := image.WatcherHandle(f.watcherHandle)
	f.watchers[handle] = watcher
	return handle, nil
}

func (f *fakeImage) UnregisterUpdateWatcher(_ context.Context, handle image.WatcherHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unregisterErr != nil {
		return f.unregisterErr
	}
	if _, ok := f.watchers[handle]; !ok {
		return errors.Wrapf(merrors.ErrNotFound, "fake image: watcher %d", handle)
	}
	delete(f.watchers, handle)
	return nil
}

func (f *fakeImage) NotifyUpdate(context.Context) error {
	f.mu.Lock()
	if f.notifyUpdateErr != nil {
		err := f.notifyUpdateErr
		f.mu.Unlock()
		return err
	}
	watchers := make([]image.UpdateWatcher, 0, len(f.watchers))
	for _, watcher := range f.watchers {
		watchers = append(watchers, watcher)
	}
	f.mu.Unlock()

	for _, watcher := range watchers {
		watcher.HandleNotify()
	}
	return nil
}

func (f *fakeImage) numWatchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

func (f *fakeImage) ObjectCount(context.Context, types.SnapID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headObjectCount, nil
}

func (f *fakeImage) ReadObject(context.Context, types.SnapID, types.ObjectNumber) ([]byte, error) {
	return nil, nil
}

func (f *fakeImage) WriteObject(context.Context, types.ObjectNumber, []byte) error {
	return nil
}

// fakeCopier records deep-copy requests and injects failures. CopySnapshots
// returns snapSeqs; CopyImage reports progress through copyObjects.
type fakeCopier struct {
	mu sync.Mutex

	snapSeqs         image.SnapSeqs
	copySnapshotsErr error
	copyImageErr     error
	copyObjects      uint64

	copySnapshotsCalls int
	copyImageCalls     []types.ObjectNumber

	onCopyImage func()
}

var _ Copier = (*fakeCopier)(nil)

func (f *fakeCopier) CopySnapshots(_ context.Context, _, _ image.Image, _, _, _ types.SnapID) (image.SnapSeqs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copySnapshotsCalls++
	if f.copySnapshotsErr != nil {
		return nil, f.copySnapshotsErr
	}
	return f.snapSeqs, nil
}

func (f *fakeCopier) CopyImage(_ context.Context, _, _ image.Image, _, _, _ types.SnapID, resumeObject types.ObjectNumber, _ image.SnapSeqs, progress deepcopy.Progress) error {
	f.mu.Lock()
	f.copyImageCalls = append(f.copyImageCalls, resumeObject)
	err := f.copyImageErr
	total := f.copyObjects
	hook := f.onCopyImage
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}
	if progress != nil && total > 0 {
		progress.UpdateProgress(total, total)
	}
	return nil
}

func (f *fakeCopier) numCopySnapshotsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copySnapshotsCalls
}

func (f *fakeCopier) imageCopies() []types.ObjectNumber {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ObjectNumber(nil), f.copyImageCalls...)
}

// countingListener counts status notifications.
type countingListener struct {
	mu            sync.Mutex
	notifications int
}

var _ Listener = (*countingListener)(nil)

func (l *countingListener) HandleNotification() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifications++
}

func (l *countingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifications
}
