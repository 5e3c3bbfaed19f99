package pdal

import "github.com/pkg/errors"

var (
	ErrNoReaders     = errors.New("pipeline needs at least one input file")
	ErrNoOutputType  = errors.New("raster writer needs an output type")
	ErrUnknownGround = errors.New("unknown ground classification method")
)
