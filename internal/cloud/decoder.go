// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// =============================================================================
// FRAMES
// =============================================================================

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// readChunkSize is the size of each read from the response body.
	readChunkSize = 4 * 1024

	// MaxLineSize caps a buffered partial line. A line that grows past it
	// is dropped as noise instead of buffering without bound.
	MaxLineSize = 1024 * 1024
)

// FrameKind tags the result of parsing one event line.
type FrameKind int

const (
	// FrameFragment carries a non-empty content delta.
	FrameFragment FrameKind = iota
	// FrameEmpty is valid JSON with no content at choices[0].delta.content.
	FrameEmpty
	// FrameNoise is a data line whose payload failed to parse. Dropped.
	FrameNoise
	// FrameDone is the [DONE] sentinel.
	FrameDone
	// frameIgnored is a blank, comment or non-data line.
	frameIgnored
)

// String returns the name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameFragment:
		return "fragment"
	case FrameEmpty:
		return "empty"
	case FrameNoise:
		return "noise"
	case FrameDone:
		return "done"
	default:
		return "ignored"
	}
}

// Frame is one parsed event line.
type Frame struct {
	Kind FrameKind
	Text string // fragment text for FrameFragment
	Line string // raw payload for FrameNoise
	Err  error  // parse error for FrameNoise
}

// streamChunk is the subset of a streamed completion chunk we read.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ParseLine parses a single complete line (without its newline).
func ParseLine(line []byte) Frame {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Frame{Kind: frameIgnored}
	}
	payload := line[len(dataPrefix):]
	if string(payload) == doneSentinel {
		return Frame{Kind: FrameDone}
	}

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return Frame{Kind: FrameNoise, Line: string(payload), Err: err}
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil || *chunk.Choices[0].Delta.Content == "" {
		return Frame{Kind: FrameEmpty}
	}
	return Frame{Kind: FrameFragment, Text: *chunk.Choices[0].Delta.Content}
}

// =============================================================================
// DECODER
// =============================================================================

// NoiseHook observes data lines that were dropped because they could not be
// parsed. It never changes decoding behaviour.
type NoiseHook func(line string, err error)

// Decoder turns an event stream into content fragments. Chunks need not be
// line aligned: a trailing partial line is held until the next Feed.
// A Decoder serves a single stream and is not safe for concurrent use.
type Decoder struct {
	buf   []byte
	done  bool
	noise int
	hook  NoiseHook
}

// NewDecoder creates a Decoder. hook may be nil.
func NewDecoder(hook NoiseHook) *Decoder {
	return &Decoder{hook: hook}
}

// Feed consumes the next chunk and returns the frames for every line it
// completed. Ignored lines are not returned. After FrameDone all further
// input is discarded.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		f := ParseLine(line)
		switch f.Kind {
		case frameIgnored:
			continue
		case FrameNoise:
			d.reportNoise(f.Line, f.Err)
		case FrameDone:
			d.done = true
			d.buf = nil
			return append(frames, f)
		}
		frames = append(frames, f)
	}

	if len(d.buf) > MaxLineSize {
		d.reportNoise(string(d.buf[:64]), errLineTooLong)
		d.buf = nil
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

var errLineTooLong = errors.New("line exceeds maximum size")

// Close ends decoding at EOF. An unterminated trailing data line is
// dropped and reported as noise.
func (d *Decoder) Close() {
	if !d.done && bytes.HasPrefix(d.buf, []byte(dataPrefix)) {
		d.reportNoise(string(d.buf[len(dataPrefix):]), io.ErrUnexpectedEOF)
	}
	d.buf = nil
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Noise returns the number of lines dropped so far.
func (d *Decoder) Noise() int {
	return d.noise
}

func (d *Decoder) reportNoise(line string, err error) {
	d.noise++
	if d.hook != nil {
		d.hook(line, err)
	}
}

// Decode reads r until EOF or [DONE], calling emit for every fragment.
// ctx is checked between reads. A read error other than io.EOF is returned
// unchanged; a cancelled ctx returns ctx.Err().
func (d *Decoder) Decode(ctx context.Context, r io.Reader, emit func(string)) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range d.Feed(buf[:n]) {
				if f.Kind == FrameFragment {
					emit(f.Text)
				}
			}
			if d.done {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.Close()
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}
