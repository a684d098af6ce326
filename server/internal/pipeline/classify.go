package pipeline

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"

	"github.com/gateload/gateload/server/internal/source"
)

// Error kinds reported for failed ticks.
const (
	KindIO      = "io"
	KindSchema  = "schema"
	KindParse   = "parse"
	KindUnknown = "unknown"
)

// ErrorKind maps a tick error to one of the Kind constants. It returns "" for
// a nil error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var parseErr *csv.ParseError
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, source.ErrMissingTimestampColumn):
		return KindSchema
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &pathErr), errors.Is(err, io.ErrUnexpectedEOF):
		return KindIO
	default:
		return KindUnknown
	}
}
