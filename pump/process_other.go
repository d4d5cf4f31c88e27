//go:build !unix

package pump

import (
	"os"

	"github.com/pkg/errors"
)

func parseParentFDs(v string) (int, int, error) {
	return 0, 0, errors.New("inherited descriptors are not supported on this platform")
}

func inheritFile(int, string) (*os.File, error) {
	return nil, errors.New("inherited descriptors are not supported on this platform")
}
