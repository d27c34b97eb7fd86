package ingest

import (
	"os"

	"github.com/meridian-dev/meridian/internal/merrors"
)

// readFile is a seam over os.ReadFile so tests can substitute an in-memory
// filesystem without touching the pipeline's control flow.
var readFile = defaultReadFile

func defaultReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to read host file: "+path, err)
	}
	return b, nil
}
