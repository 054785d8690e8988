package svc

import (
	"errors"
	"strconv"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/backend"
)

// errMultiRange and errRangeUnsatisfiable distinguish the two non-200
// outcomes of Range parsing (§4.7) from a syntactically invalid header,
// which parseRange reports as a plain error that callers fold back into
// "serve the full entity" rather than rejecting the request.
var (
	errMultiRange         = errors.New("multi-range not supported")
	errRangeUnsatisfiable = errors.New("range not satisfiable")
)

// parseRange implements §4.7: a single "bytes=a-b" form is honored; a
// comma-separated multi-range yields errMultiRange (501); a range wholly
// outside [0, size) yields errRangeUnsatisfiable (416); anything else
// that fails to parse is reported as a generic error so the caller falls
// back to serving the full entity with 200, per the same section.
func parseRange(header string, size int64) (*backend.Range, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, errors.New("unrecognized range unit")
	}
	spec := header[len(prefix):]
	if strings.Contains(spec, ",") {
		return nil, errMultiRange
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, errors.New("malformed range")
	}
	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	var start, end int64
	var err error
	switch {
	case startStr == "" && endStr == "":
		return nil, errors.New("empty range")
	case startStr == "":
		// suffix range: "-N" means the last N bytes.
		n, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil {
			return nil, perr
		}
		if n <= 0 {
			return nil, errRangeUnsatisfiable
		}
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	case endStr == "":
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, err
		}
		end = size - 1
	default:
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, err
		}
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, err
		}
	}

	if start < 0 || start >= size || end < start {
		return nil, errRangeUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return &backend.Range{Start: start, End: end}, nil
}
