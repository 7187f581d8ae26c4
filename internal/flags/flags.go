package flags

import (
	"github.com/urfave/cli/v2"
)

// FlagDesc describes a CLI flag once and instantiates it as the concrete
// urfave/cli flag types on demand.
type FlagDesc struct {
	Name        string
	Aliases     []string
	Usage       string
	Envs        []string
	DefaultText string
}

func (fd *FlagDesc) StringFlag(required bool, defaultValue string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        fd.Name,
		Aliases:     fd.Aliases,
		Usage:       fd.Usage,
		EnvVars:     fd.Envs,
		Required:    required,
		Value:       defaultValue,
		DefaultText: fd.DefaultText,
	}
}

func (fd *FlagDesc) IntFlag(required bool, defaultValue int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        fd.Name,
		Aliases:     fd.Aliases,
		Usage:       fd.Usage,
		EnvVars:     fd.Envs,
		Required:    required,
		Value:       defaultValue,
		DefaultText: fd.DefaultText,
	}
}

func (fd *FlagDesc) Uint64Flag(required bool, defaultValue uint64) *cli.Uint64Flag {
	return &cli.Uint64Flag{
		Name:        fd.Name,
		Aliases:     fd.Aliases,
		Usage:       fd.Usage,
		EnvVars:     fd.Envs,
		Required:    required,
		Value:       defaultValue,
		DefaultText: fd.DefaultText,
	}
}

func (fd *FlagDesc) BoolFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    fd.Name,
		Aliases: fd.Aliases,
		Usage:   fd.Usage,
		EnvVars: fd.Envs,
	}
}
