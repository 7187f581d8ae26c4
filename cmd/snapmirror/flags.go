package main

import (
	"github.com/wanzew/snapmirror/internal/flags"
)

var (
	flagLocalPath = flags.FlagDesc{
		Name:    "local-path",
		Aliases: []string{"local"},
		Envs:    []string{"LOCAL_PATH"},
		Usage:   "Directory of the local (secondary) image store.",
	}
	flagRemotePath = flags.FlagDesc{
		Name:    "remote-path",
		Aliases: []string{"remote"},
		Envs:    []string{"REMOTE_PATH"},
		Usage:   "Directory of the remote (primary) image store.",
	}
	flagLocalPool = flags.FlagDesc{
		Name: "local-pool",
		Envs: []string{"LOCAL_POOL"},
	}
	flagRemotePool = flags.FlagDesc{
		Name: "remote-pool",
		Envs: []string{"REMOTE_POOL"},
	}
	flagImageID = flags.FlagDesc{
		Name:    "image-id",
		Aliases: []string{"image"},
		Envs:    []string{"IMAGE_ID"},
	}
	flagPeerUUID = flags.FlagDesc{
		Name:  "peer-uuid",
		Envs:  []string{"PEER_UUID"},
		Usage: "Peer uuid under which the local cluster consumes remote snapshots.",
	}
	flagSyncWorkers = flags.FlagDesc{
		Name:  "sync-workers",
		Envs:  []string{"SYNC_WORKERS"},
		Usage: "Number of objects copied in parallel.",
	}
	flagWorkQueueWorkers = flags.FlagDesc{
		Name:  "workqueue-workers",
		Envs:  []string{"WORKQUEUE_WORKERS"},
		Usage: "Number of work queue workers shared by the replayer.",
	}
	flagPath = flags.FlagDesc{
		Name: "path",
		Envs: []string{"PATH_DIR"},
	}
	flagPool = flags.FlagDesc{
		Name: "pool",
		Envs: []string{"POOL"},
	}
	flagDemoted = flags.FlagDesc{
		Name:  "demoted",
		Usage: "Tag the snapshot as a demotion snapshot.",
	}
)
