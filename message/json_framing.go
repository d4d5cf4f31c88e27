package message

import (
	"bufio"
	"bytes"
	"encoding/json"
)

type jsonFraming struct{}

// JSONFraming is a newline-delimited JSON message framing.
var JSONFraming = new(jsonFraming)

// Marshal |msg| as a single line of JSON to the Writer. The Writer is not flushed.
func (*jsonFraming) Marshal(msg interface{}, bw *bufio.Writer) error {
	return json.NewEncoder(bw).Encode(msg)
}

// Unpack the next message frame from the Reader. The returned frame may
// reference the Reader's internal buffer, and is valid only until the next
// read.
func (*jsonFraming) Unpack(r *bufio.Reader) ([]byte, error) {
	// We cannot use json.NewDecoder, as it buffers internally beyond the
	// precise boundary of a JSON message.
	return UnpackLine(r)
}

// Unmarshal a frame previously returned by Unpack into |msg|. Numbers decoded
// into untyped values are preserved as json.Number.
func (*jsonFraming) Unmarshal(frame []byte, msg interface{}) error {
	var dec = json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	return dec.Decode(msg)
}
