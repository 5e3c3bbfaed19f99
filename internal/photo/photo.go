// Package photo discovers the input images of a dataset.
package photo

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Supported image extensions (lowercase, with leading dot).
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".png":  true,
	".dng":  true,
}

// Photo is one input image.
type Photo struct {
	Filename string // Base name inside the images directory.
	Path     string // Absolute path.
}

// Discover lists the images directly inside dir (no recursion) sorted by
// filename for a deterministic image list.
func Discover(dir string) ([]Photo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to resolve %s", dir)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read images directory %s", dir)
	}

	var photos []Photo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		photos = append(photos, Photo{Filename: e.Name(), Path: filepath.Join(abs, e.Name())})
	}
	sort.Slice(photos, func(i, j int) bool { return photos[i].Filename < photos[j].Filename })
	return photos, nil
}
