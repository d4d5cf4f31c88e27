//go:build unix

package pump

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

func parseParentFDs(v string) (r, w int, err error) {
	var parts = strings.Split(v, ",")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("expected two descriptors (%q)", v)
	}
	if r, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, err
	} else if w, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, err
	} else if r < 3 || w < 3 || r == w {
		return 0, 0, errors.Errorf("invalid descriptors (%q)", v)
	}
	return r, w, nil
}

// inheritFile wraps inherited descriptor |fd|. It's placed in non-blocking
// mode, so that the runtime poller is used and Close interrupts a blocked Read.
func inheritFile(fd int, name string) (*os.File, error) {
	if err := syscall.SetNonblock(fd, true); err != nil {
		return nil, errors.WithMessagef(err, "descriptor %d", fd)
	}
	return os.NewFile(uintptr(fd), name), nil
}
