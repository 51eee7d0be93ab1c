package chat

import "bytes"

var (
	dataPrefix = []byte("data: ")
	doneMarker = []byte("[DONE]")
)

// FrameDecoder splits an event stream into "data: " payloads. Bytes after
// the last newline are carried over to the next Feed, so a frame split
// across reads is only returned once complete.
type FrameDecoder struct {
	buf  []byte
	done bool
}

// Feed appends p and returns the payloads of every completed data line.
// After the [DONE] marker it returns nothing further.
func (d *FrameDecoder) Feed(p []byte) [][]byte {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(d.buf[:i], "\r")
		d.buf = d.buf[i+1:]

		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]
		if bytes.Equal(bytes.TrimSpace(payload), doneMarker) {
			d.done = true
			d.buf = nil
			break
		}
		frames = append(frames, append([]byte(nil), payload...))
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Done reports whether the terminator frame was seen.
func (d *FrameDecoder) Done() bool { return d.done }
