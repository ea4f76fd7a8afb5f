// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	applog "discolights/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by StartRecording while a recording is in
// progress.
var ErrAlreadyRecording = errors.New("already recording")

// RecordingFilename returns a timestamped capture file name in dir.
func RecordingFilename(dir string, t time.Time) string {
	return filepath.Join(dir, "capture-"+t.Format("20060102-150405")+".wav")
}

// StartRecording writes the raw interleaved capture to a PCM WAV file of
// the given bit depth (16, 24 or 32).
func (e *Engine) StartRecording(filename string, bitDepth int) error {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported recording bit depth %d", bitDepth)
	}

	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.isRecording.Load() {
		return ErrAlreadyRecording
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	channels := e.cfg.InputChannels
	e.wavEncoder = wav.NewEncoder(file, int(e.cfg.SampleRate), bitDepth, channels, 1)
	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(e.cfg.SampleRate),
		},
		Data:           make([]int, e.cfg.FramesPerBuffer*channels),
		SourceBitDepth: bitDepth,
	}
	e.sampleScale = float64(int64(1)<<(bitDepth-1) - 1)

	e.isRecording.Store(true)
	applog.Infof("Engine: Recording to %s (%d bit)", filename, bitDepth)
	return nil
}

// record runs on the capture thread.
func (e *Engine) record(in []float32) {
	if !e.isRecording.Load() || !e.recMu.TryLock() {
		return
	}
	defer e.recMu.Unlock()
	if e.wavEncoder == nil {
		return
	}

	n := min(len(in), cap(e.sampleBuf.Data))
	data := e.sampleBuf.Data[:n]
	for i, v := range in[:n] {
		data[i] = int(max(-1, min(1, float64(v))) * e.sampleScale)
	}
	e.sampleBuf.Data = data

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("Engine: Error writing to WAV file: %v", err)
	}
}

// IsRecording reports whether a recording is in progress.
func (e *Engine) IsRecording() bool {
	return e.isRecording.Load()
}

// StopRecording finalises the WAV header and closes the file. It is a no-op
// when not recording.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if !e.isRecording.Load() {
		return nil
	}
	e.isRecording.Store(false)

	var errs []error
	if e.wavEncoder != nil {
		errs = append(errs, e.wavEncoder.Close())
		e.wavEncoder = nil
	}
	if e.outputFile != nil {
		errs = append(errs, e.outputFile.Close())
		e.outputFile = nil
	}
	return errors.Join(errs...)
}
