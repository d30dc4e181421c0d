// Package cli implements the splatcore command line surface: inspecting
// splat files, converting them to the renderer transport payload, and
// emitting decimated previews.
package cli

import (
	"github.com/urfave/cli/v2"
)

// NewApp returns the splatcore CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:            "splatcore",
		Usage:           "decode, preview, and package 3D Gaussian splat assets",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "classify a splat file and report its fields and bounds",
				ArgsUsage: "<file>",
				Action:    InspectAction,
			},
			{
				Name:      "convert",
				Usage:     "decode splat files and write the renderer transport JSON",
				ArgsUsage: "<file...>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "write payload to `FILE` instead of stdout",
					},
				},
				Action: ConvertAction,
			},
			{
				Name:      "preview",
				Usage:     "decode a splat file and emit a decimated preview",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "lod",
						Value: 1.0,
						Usage: "level-of-detail fraction in [0.01, 1.0]",
					},
					&cli.IntFlag{
						Name:  "cap",
						Value: 0,
						Usage: "hard cap on preview points (0 uses the default)",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "write preview to `FILE` instead of stdout",
					},
				},
				Action: PreviewAction,
			},
		},
	}
}
