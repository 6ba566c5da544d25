//go:build !opus

package audioconv

import (
	"errors"
	"io"
)

func decodeOpus(io.ReadSeeker) (*PCM, error) {
	return nil, errors.New("opus support not built in (rebuild with -tags opus)")
}
