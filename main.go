package main

import (
	"embed"
	"io/fs"

	"github.com/sirupsen/logrus"

	"gm-batch-converter/internal/bootstrap"
)

//go:embed frontend
var frontendFiles embed.FS

func main() {
	assets, err := fs.Sub(frontendFiles, "frontend")
	if err != nil {
		logrus.Fatalf("frontend assets: %v", err)
	}

	app, err := bootstrap.NewWithAssets(assets)
	if err != nil {
		logrus.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		logrus.Fatalf("run app: %v", err)
	}
}
