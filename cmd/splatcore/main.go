// Command splatcore decodes 3D Gaussian splat assets and packages them for
// preview and transport.
package main

import (
	"os"

	"github.com/edaniels/golog"

	"github.com/splatcraft/splatcore/cli"
)

var logger = golog.NewDevelopmentLogger("splatcore")

func main() {
	if err := cli.NewApp().Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}
