package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var dataPrefix = []byte("data:")

// Decoder reads events from an event-stream body.
//
// Lines that do not start with "data:" are ignored. A frame whose payload is
// not valid JSON is counted as malformed, logged, and dropped; decoding
// continues with the next line. Frames with an unknown type are skipped.
type Decoder struct {
	r   *bufio.Reader
	log *zap.Logger

	malformed int
	skipped   int
	done      bool
	sentinel  bool
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLogger sets the logger used to report dropped frames.
func WithLogger(l *zap.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:   bufio.NewReaderSize(r, 64*1024),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next event. It returns io.EOF after the [DONE] sentinel or
// when the body ends.
func (d *Decoder) Next() (Event, error) {
	for {
		if d.done {
			return Event{}, io.EOF
		}
		line, err := d.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				d.done = true
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("read event stream: %w", err)
		}

		ev, ok := d.decodeLine(line)
		if ok {
			return ev, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, fmt.Errorf("read event stream: %w", err)
		}
	}
}

func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return Event{}, false
	}
	if string(payload) == DoneSentinel {
		d.done = true
		d.sentinel = true
		return Event{}, false
	}

	if !gjson.ValidBytes(payload) {
		d.malformed++
		d.log.Debug("dropping malformed event frame",
			zap.Int("malformed_total", d.malformed),
			zap.Int("bytes", len(payload)))
		return Event{}, false
	}

	typ := Type(gjson.GetBytes(payload, "type").String())
	if !typ.Known() {
		d.skipped++
		d.log.Debug("skipping unknown event type", zap.String("type", string(typ)))
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		d.malformed++
		d.log.Debug("dropping undecodable event frame",
			zap.String("type", string(typ)),
			zap.Error(err))
		return Event{}, false
	}
	if typ.IsBuildComplete() {
		ev.Result = normalizeBuildResult(payload)
	}
	return ev, true
}

// Malformed returns the number of frames dropped because they failed to parse.
func (d *Decoder) Malformed() int { return d.malformed }

// Skipped returns the number of frames with an unknown type.
func (d *Decoder) Skipped() int { return d.skipped }

// Finished reports whether the [DONE] sentinel has been read.
func (d *Decoder) Finished() bool { return d.sentinel }
