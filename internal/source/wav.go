// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	applog "discolights/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DefaultChunkFrames is the number of frames decoded per read.
const DefaultChunkFrames = 4096

const wavFormatPCM = 1

// ErrNotWAV is returned by OpenWAV for files that are not valid WAV files.
var ErrNotWAV = errors.New("not a valid WAV file")

// WAVFile streams an integer PCM WAV file as normalised mono samples.
type WAVFile struct {
	file *os.File
	dec  *wav.Decoder
	buf  *audio.IntBuffer

	channels   int
	bitDepth   int
	sampleRate int
	frames     int64

	// Sample value v maps to (v - offset) * scale.
	offset int
	scale  float64
}

// OpenWAV opens path and reads its header. chunkFrames <= 0 selects
// DefaultChunkFrames.
func OpenWAV(path string, chunkFrames int) (*WAVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	w, err := newWAVFile(f, chunkFrames)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	applog.Debugf("WAVFile: Opened %s (%d Hz, %d channels, %d bit, %d frames)",
		path, w.sampleRate, w.channels, w.bitDepth, w.frames)
	return w, nil
}

func newWAVFile(f *os.File, chunkFrames int) (*WAVFile, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("unsupported WAV audio format %d, only integer PCM is supported", dec.WavAudioFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}

	w := &WAVFile{
		file:       f,
		dec:        dec,
		channels:   channels,
		bitDepth:   bitDepth,
		sampleRate: int(dec.SampleRate),
		frames:     dec.PCMLen() / int64(channels*bitDepth/8),
		scale:      1 / float64(int64(1)<<(bitDepth-1)),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(dec.SampleRate),
			},
			Data:           make([]int, chunkFrames*channels),
			SourceBitDepth: bitDepth,
		},
	}
	// 8 bit WAV samples are unsigned.
	if bitDepth == 8 {
		w.offset = 128
	}
	return w, nil
}

// SampleRate returns the file's sample rate in Hz.
func (w *WAVFile) SampleRate() int { return w.sampleRate }

// Channels returns the file's channel count.
func (w *WAVFile) Channels() int { return w.channels }

// BitDepth returns the file's bits per sample.
func (w *WAVFile) BitDepth() int { return w.bitDepth }

// Frames returns the number of frames declared by the data chunk.
func (w *WAVFile) Frames() int64 { return w.frames }

// Stream decodes the rest of the file, downmixes every frame to mono by
// averaging its channels and passes the result to sink. Progress, when not
// nil, is called after every chunk. Cancellation is checked between chunks.
// It returns the number of frames delivered.
func (w *WAVFile) Stream(ctx context.Context, sink Sink, progress Progress) (int64, error) {
	var done int64
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		w.buf.Data = w.buf.Data[:cap(w.buf.Data)]
		n, err := w.dec.PCMBuffer(w.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return done, fmt.Errorf("decoding PCM data: %w", err)
		}
		frames := n / w.channels
		if frames == 0 {
			return done, nil
		}

		data := w.buf.Data
		inv := 1 / float64(w.channels)
		for f := range frames {
			var sum int
			for _, v := range data[f*w.channels : (f+1)*w.channels] {
				sum += v - w.offset
			}
			sink.Add(float64(sum) * inv * w.scale)
		}

		done += int64(frames)
		if progress != nil {
			progress(done, w.frames)
		}
		if errors.Is(err, io.EOF) {
			return done, nil
		}
	}
}

// Close closes the underlying file.
func (w *WAVFile) Close() error {
	return w.file.Close()
}
