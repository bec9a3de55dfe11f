// Package waveform implements W: decoding one audio stream into a
// normalized amplitude vector and a rendered PNG image.
package waveform

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/storagepool"
)

// Generator extracts amplitude data and a waveform image from an audio
// stream, using ffmpeg for the .wav extraction step.
type Generator struct {
	ffmpegPath string
	storage    *storagepool.Pool
	local      *storagepool.Pool
}

// New constructs a Generator. storage is the pool holding the input
// stream; local is a filesystem-backed staging pool used when storage's
// handles aren't local paths.
func New(ffmpegPath string, storage, local *storagepool.Pool) *Generator {
	return &Generator{ffmpegPath: ffmpegPath, storage: storage, local: local}
}

// Generate mutates stream in place, attaching WaveformData and
// WaveformFilename.
func (g *Generator) Generate(ctx context.Context, stream *archivestream.Stream, baseName string) error {
	remote, releaseRemote, err := g.storage.Get(ctx)
	if err != nil {
		return apierrors.Waveform("failed to acquire storage handle", err)
	}
	defer releaseRemote()

	handle, path, downloaded, release, err := g.resolveWorkingHandle(ctx, remote, stream)
	if err != nil {
		return err
	}
	defer release()

	wavFilename := baseName + ".wav"
	exists, err := handle.Exists(ctx, wavFilename)
	if err != nil {
		return apierrors.Waveform(fmt.Sprintf("failed to check existence of %s", wavFilename), err)
	}
	if !exists {
		wavPath := path(wavFilename)
		if err := os.MkdirAll(filepath.Dir(wavPath), 0o755); err != nil {
			return apierrors.Waveform("failed to create working directory", err)
		}
		if err := runTool(ctx, g.ffmpegPath, "-y", "-i", path(stream.Filename), "-vn", "-ar", "44100", wavPath); err != nil {
			return apierrors.Waveform("wav extraction failed", err)
		}
	}

	amplitudes, err := extractAmplitudes(path(wavFilename))
	if err != nil {
		return apierrors.Waveform("failed to extract amplitude data", err)
	}
	rounded := roundTo4Decimals(amplitudes)

	pngFilename := baseName + ".png"
	if err := render(rounded, path(pngFilename)); err != nil {
		return apierrors.Waveform("failed to render waveform image", err)
	}

	stream.WaveformData = rounded
	stream.WaveformFilename = pngFilename

	if downloaded {
		if err := g.uploadBack(ctx, remote, handle, []string{wavFilename, pngFilename}); err != nil {
			return err
		}
	}

	return nil
}

func (g *Generator) resolveWorkingHandle(ctx context.Context, remote storagepool.Storage, stream *archivestream.Stream) (storagepool.Storage, func(string) string, bool, func(), error) {
	if resolver, ok := remote.(storagepool.LocalPathResolver); ok {
		return remote, resolver.Path, false, func() {}, nil
	}

	local, release, err := g.local.Get(ctx)
	if err != nil {
		return nil, nil, false, nil, apierrors.Waveform("failed to acquire local working pool handle", err)
	}
	resolver, ok := local.(storagepool.LocalPathResolver)
	if !ok {
		release()
		return nil, nil, false, nil, apierrors.Waveform("local working pool handle is not path-addressable", nil)
	}

	exists, err := local.Exists(ctx, stream.Filename)
	if err != nil {
		release()
		return nil, nil, false, nil, apierrors.Waveform(fmt.Sprintf("failed to check local existence of %s", stream.Filename), err)
	}
	if !exists {
		rc, err := remote.Open(ctx, stream.Filename)
		if err != nil {
			release()
			return nil, nil, false, nil, apierrors.Waveform(fmt.Sprintf("failed to open remote stream %s", stream.Filename), err)
		}
		saveErr := local.Save(ctx, stream.Filename, rc)
		rc.Close()
		if saveErr != nil {
			release()
			return nil, nil, false, nil, apierrors.Waveform(fmt.Sprintf("failed to stage remote stream %s locally", stream.Filename), saveErr)
		}
	}

	return local, resolver.Path, true, release, nil
}

func (g *Generator) uploadBack(ctx context.Context, remote, local storagepool.Storage, filenames []string) error {
	for _, filename := range filenames {
		rc, err := local.Open(ctx, filename)
		if err != nil {
			return apierrors.Waveform(fmt.Sprintf("failed to open staged output %s", filename), err)
		}
		saveErr := remote.Save(ctx, filename, rc)
		rc.Close()
		if saveErr != nil {
			return apierrors.Waveform(fmt.Sprintf("failed to upload waveform output %s", filename), saveErr)
		}
	}
	return nil
}

func roundTo4Decimals(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = math.Round(v*10000) / 10000
	}
	return out
}

// EncodeJSON serializes waveform amplitude data the way it is attached
// to a stream: each value rounded to 4 decimal places.
func EncodeJSON(data []float64) ([]byte, error) {
	return json.Marshal(roundTo4Decimals(data))
}
