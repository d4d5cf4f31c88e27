package message

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineUnpackingCases(t *testing.T) {
	const bsize = 16
	var buf = bytes.NewBufferString("a line\n" + strings.Repeat("x", bsize*3/2) + "\nextra")
	var br = bufio.NewReaderSize(buf, bsize)

	var p, _ = br.Peek(1)

	// Case 1: line fits in buffer.
	var line, err = UnpackLine(br)
	assert.NoError(t, err)
	assert.Equal(t, cap(p), cap(line)) // |line| references internal buffer.

	// Case 2: line doesn't fit in buffer.
	line, err = UnpackLine(br)
	assert.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", bsize*3/2)+"\n", string(line))
	assert.NotEqual(t, cap(p), cap(line)) // |line| *does not* reference internal buffer.

	// Case 3: EOF without newline and read content is mapped to ErrUnexpectedEOF.
	line, err = UnpackLine(br)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, "extra", string(line))

	// Case 4: EOF without any read content is passed through.
	line, err = UnpackLine(br)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "", string(line))
}

func TestLongLineUnpackingWithoutNewline(t *testing.T) {
	const bsize = 16
	var br = bufio.NewReaderSize(bytes.NewBufferString(strings.Repeat("y", bsize*2)), bsize)

	var line, err = UnpackLine(br)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, strings.Repeat("y", bsize*2), string(line))
}
