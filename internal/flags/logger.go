package flags

import (
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/wanzew/snapmirror/pkg/util/log"
)

const CategoryLogger = "Logger:"

var (
	// LogDir is a flag specifying the directory of the logs.
	LogDir = &cli.StringFlag{
		Name:     "logdir",
		Category: CategoryLogger,
		Aliases:  []string{"log-dir"},
		EnvVars:  []string{"LOGDIR", "LOG_DIR"},
		Usage:    "Directory for the log files.",
	}
	// LogToStderr is a flag that decides whether the logs are printed to the stderr.
	LogToStderr = &cli.BoolFlag{
		Name:     "logtostderr",
		Category: CategoryLogger,
		Aliases:  []string{"log-to-stderr"},
		EnvVars:  []string{"LOGTOSTDERR"},
		Usage:    "Print the logs to the stderr.",
	}
	// LogHumanReadable is a flag that decides whether logs are human-readable.
	LogHumanReadable = &cli.BoolFlag{
		Name:     "log-human-readable",
		Category: CategoryLogger,
		EnvVars:  []string{"LOG_HUMAN_READABLE"},
		Usage:    "Human-readable output.",
	}
	// LogLevel is a flag specifying log level.
	LogLevel = &cli.StringFlag{
		Name:     "loglevel",
		Category: CategoryLogger,
		Aliases:  []string{"log-level"},
		EnvVars:  []string{"LOGLEVEL", "LOG_LEVEL"},
		Value:    "INFO",
		Usage:    "Log levels, either debug, info, warn, or error case-insensitively.",
	}
)

// LoggerFlags lists the logger flags attached to every command.
func LoggerFlags() []cli.Flag {
	return []cli.Flag{LogDir, LogToStderr, LogHumanReadable, LogLevel}
}

// ParseLoggerFlags turns the logger flags into log options. logFileName is
// the file created under --logdir when it is set.
func ParseLoggerFlags(c *cli.Context, logFileName string) (opts []log.Option, err error) {
	if logDir := c.String(LogDir.Name); len(logDir) != 0 {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, log.WithPath(filepath.Join(logDir, logFileName)))
	}
	if !c.Bool(LogToStderr.Name) {
		opts = append(opts, log.WithoutLogToStderr())
	}
	if c.Bool(LogHumanReadable.Name) {
		opts = append(opts, log.WithHumanFriendly())
	}
	level, err := log.ParseLevel(c.String(LogLevel.Name))
	if err != nil {
		return nil, err
	}
	opts = append(opts, log.WithLevel(level))
	return opts, nil
}
