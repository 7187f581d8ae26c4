package main

import (
	"github.com/urfave/cli/v2"

	"github.com/wanzew/snapmirror/internal/deepcopy"
	"github.com/wanzew/snapmirror/internal/flags"
	"github.com/wanzew/snapmirror/internal/workqueue"
)

const (
	appName = "snapmirror"
	version = "0.0.1"
)

func newSnapMirrorApp() *cli.App {
	return &cli.App{
		Name:    appName,
		Usage:   "snapshot-based image mirroring",
		Version: version,
		Commands: []*cli.Command{
			newMirrorCommand(),
			newSnapshotCommand(),
		},
	}
}

func newMirrorCommand() *cli.Command {
	return &cli.Command{
		Name:    "mirror",
		Aliases: []string{"m"},
		Usage:   "replay mirror snapshots from the remote image store onto the local one",
		Action:  mirror,
		Flags: append([]cli.Flag{
			flagLocalPath.StringFlag(true, ""),
			flagRemotePath.StringFlag(true, ""),
			flagLocalPool.Uint64Flag(false, 1),
			flagRemotePool.Uint64Flag(false, 2),
			flagImageID.StringFlag(false, "image"),
			flagPeerUUID.StringFlag(false, ""),
			flagSyncWorkers.IntFlag(false, deepcopy.DefaultConcurrency),
			flagWorkQueueWorkers.IntFlag(false, workqueue.DefaultNumWorkers),
		}, flags.LoggerFlags()...),
	}
}

func newSnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Aliases: []string{"snap"},
		Usage:   "create a primary mirror snapshot in an image store",
		Action:  snapshot,
		Flags: append([]cli.Flag{
			flagPath.StringFlag(true, ""),
			flagPool.Uint64Flag(false, 2),
			flagImageID.StringFlag(false, "image"),
			flagPeerUUID.StringFlag(true, ""),
			flagDemoted.BoolFlag(),
		}, flags.LoggerFlags()...),
	}
}
