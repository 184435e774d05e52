package api

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var apiStaticFS embed.FS

// mapFS exposes a sub-filesystem rooted at static/.
var mapFS fs.FS = func() fs.FS {
	sub, err := fs.Sub(apiStaticFS, "static")
	if err != nil {
		return apiStaticFS
	}
	return sub
}()
