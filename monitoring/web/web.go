// Package web includes the static page of the inspection server.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

// EnvAssets names a directory to serve the page from instead of the embedded
// copy, so that the page can be edited without rebuilding.
const EnvAssets = "PULSEC_MONITOR_ASSETS"

//go:embed static/*
var staticAssets embed.FS

// GetAssets returns the static assets
func GetAssets() http.FileSystem {
	if dir, ok := os.LookupEnv(EnvAssets); ok && dir != "" {
		fmt.Fprintf(os.Stderr, "Serving monitoring assets from %s\n", dir)
		return http.Dir(dir)
	}

	subFS, err := fs.Sub(staticAssets, "static")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}
