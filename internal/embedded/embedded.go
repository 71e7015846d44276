// Package embedded carries the report bundle compiled into the binary. The
// bundle is read-only; the generation service copies its templates into a
// local cache before compiling them.
package embedded

import (
	"embed"
	"io/fs"
	"os"

	"github.com/conneroisu/reports/internal/config"
)

//go:embed bundle
var files embed.FS

// Bundle returns the compiled-in bundle rooted at its metadata index.
func Bundle() fs.FS {
	sub, err := fs.Sub(files, "bundle")
	if err != nil {
		panic(err)
	}

	return sub
}

// Open returns the bundle to use for path: the compiled-in one when path is
// empty or config.BuiltinBundle, otherwise the directory at path.
func Open(path string) fs.FS {
	if path == "" || path == config.BuiltinBundle {
		return Bundle()
	}

	return os.DirFS(path)
}
