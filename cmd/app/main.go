// Command app runs the desktop UI against ./frontend on disk, for frontend work
// without rebuilding the embedded assets.
package main

import (
	"github.com/sirupsen/logrus"

	"gm-batch-converter/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		logrus.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		logrus.Fatalf("run app: %v", err)
	}
}
