// Package web serves the browser client for the vending machine API.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var static embed.FS

// Handler serves the client's static files from the site root.
func Handler() http.Handler {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// The embedded tree is fixed at build time.
		panic(err)
	}
	return http.FileServerFS(sub)
}
