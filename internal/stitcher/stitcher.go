// Package stitcher implements S: multi-stream audio normalization,
// padding by per-stream offset, mixing to a single track, and container
// remux, driven by external ffmpeg and sox binaries.
package stitcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/storagepool"
)

// Stitcher drives the FFmpeg/sox pipeline over a storage pool, falling
// back to a local working-directory pool when the primary pool's
// handles aren't addressable as local paths.
type Stitcher struct {
	ffmpegPath string
	soxPath    string
	storage    *storagepool.Pool
	local      *storagepool.Pool
}

// New constructs a Stitcher. storage is the pool streams are read from
// and results are written to; local is a filesystem-backed pool used as
// a staging area when storage's handles aren't local paths.
func New(ffmpegPath, soxPath string, storage, local *storagepool.Pool) *Stitcher {
	return &Stitcher{ffmpegPath: ffmpegPath, soxPath: soxPath, storage: storage, local: local}
}

// Stitch runs the full pipeline over streams and returns
// [mp4_stream, stitched_mp3_stream].
func (s *Stitcher) Stitch(ctx context.Context, streams []*archivestream.Stream, base string) ([]*archivestream.Stream, error) {
	if len(streams) == 0 {
		return nil, apierrors.Stitcher("stitch called with no input streams", nil)
	}

	remote, releaseRemote, err := s.storage.Get(ctx)
	if err != nil {
		return nil, apierrors.Stitcher("failed to acquire storage handle", err)
	}
	defer releaseRemote()

	working, workingPath, downloaded, release, err := s.resolveWorkingHandle(ctx, remote, streams)
	if err != nil {
		return nil, err
	}
	defer release()

	audioStreams, err := s.extractAudio(ctx, working, workingPath, streams, base)
	if err != nil {
		return nil, err
	}

	normStreams, err := s.normalize(ctx, working, workingPath, audioStreams)
	if err != nil {
		return nil, err
	}

	mp3Stream, err := s.mix(ctx, working, workingPath, normStreams, base)
	if err != nil {
		return nil, err
	}

	mp4Stream, err := s.remux(ctx, working, workingPath, mp3Stream)
	if err != nil {
		return nil, err
	}

	if downloaded {
		if err := s.uploadBack(ctx, remote, working, []*archivestream.Stream{mp3Stream, mp4Stream}); err != nil {
			return nil, err
		}
	}

	return []*archivestream.Stream{mp4Stream, mp3Stream}, nil
}

// resolveWorkingHandle implements the pre-stage: if remote is already
// addressable as local paths, use it directly; otherwise download every
// stream into the local working pool and operate there.
func (s *Stitcher) resolveWorkingHandle(ctx context.Context, remote storagepool.Storage, streams []*archivestream.Stream) (storagepool.Storage, func(string) string, bool, func(), error) {
	if resolver, ok := remote.(storagepool.LocalPathResolver); ok {
		return remote, resolver.Path, false, func() {}, nil
	}

	local, release, err := s.local.Get(ctx)
	if err != nil {
		return nil, nil, false, nil, apierrors.Stitcher("failed to acquire local working pool handle", err)
	}

	resolver, ok := local.(storagepool.LocalPathResolver)
	if !ok {
		release()
		return nil, nil, false, nil, apierrors.Stitcher("local working pool handle is not path-addressable", nil)
	}

	for _, stream := range streams {
		exists, err := local.Exists(ctx, stream.Filename)
		if err != nil {
			release()
			return nil, nil, false, nil, apierrors.Stitcher(fmt.Sprintf("failed to check local existence of %s", stream.Filename), err)
		}
		if exists {
			continue
		}
		rc, err := remote.Open(ctx, stream.Filename)
		if err != nil {
			release()
			return nil, nil, false, nil, apierrors.Stitcher(fmt.Sprintf("failed to open remote stream %s", stream.Filename), err)
		}
		saveErr := local.Save(ctx, stream.Filename, rc)
		rc.Close()
		if saveErr != nil {
			release()
			return nil, nil, false, nil, apierrors.Stitcher(fmt.Sprintf("failed to stage remote stream %s locally", stream.Filename), saveErr)
		}
	}

	return local, resolver.Path, true, release, nil
}

func (s *Stitcher) uploadBack(ctx context.Context, remote, local storagepool.Storage, streams []*archivestream.Stream) error {
	for _, stream := range streams {
		rc, err := local.Open(ctx, stream.Filename)
		if err != nil {
			return apierrors.Stitcher(fmt.Sprintf("failed to open staged output %s", stream.Filename), err)
		}
		saveErr := remote.Save(ctx, stream.Filename, rc)
		rc.Close()
		if saveErr != nil {
			return apierrors.Stitcher(fmt.Sprintf("failed to upload stitched output %s", stream.Filename), saveErr)
		}
	}
	return nil
}

// extractAudio is Stage A: per-stream audio extraction to
// {base}-{i+1}.mp3, mono-or-stereo at 44100 Hz, video discarded. Skips
// work when the output already exists.
func (s *Stitcher) extractAudio(ctx context.Context, handle storagepool.Storage, path func(string) string, streams []*archivestream.Stream, base string) ([]*archivestream.Stream, error) {
	out := make([]*archivestream.Stream, len(streams))

	for i, stream := range streams {
		outFilename := fmt.Sprintf("%s-%d.mp3", base, i+1)

		exists, err := handle.Exists(ctx, outFilename)
		if err != nil {
			return nil, apierrors.Stitcher(fmt.Sprintf("failed to check existence of %s", outFilename), err)
		}
		if !exists {
			if err := ensureDir(path(outFilename)); err != nil {
				return nil, apierrors.Stitcher("failed to create working directory", err)
			}
			if _, err := runTool(ctx, s.ffmpegPath, "-y", "-i", path(stream.Filename), "-vn", "-ar", "44100", path(outFilename)); err != nil {
				return nil, apierrors.Stitcher(fmt.Sprintf("audio extraction failed for %s", stream.Filename), err)
			}
		}

		out[i] = &archivestream.Stream{
			Filename: outFilename,
			Type:     archivestream.TypeUserAudio,
			LengthMS: stream.LengthMS,
			Users:    stream.Users,
			OffsetMS: stream.OffsetMS,
		}
	}

	return out, nil
}

// normalize is Stage B: the pivot-relative RMS normalization. Skips
// applying gain to any stream whose normalized output already exists,
// mirroring extractAudio's idempotence pattern.
func (s *Stitcher) normalize(ctx context.Context, handle storagepool.Storage, path func(string) string, streams []*archivestream.Stream) ([]*archivestream.Stream, error) {
	stats := make([]*soxStats, len(streams))
	for i, stream := range streams {
		m, err := s.measure(ctx, path(stream.Filename))
		if err != nil {
			return nil, apierrors.Stitcher(fmt.Sprintf("failed to measure %s", stream.Filename), err)
		}
		stats[i] = m
	}

	pivot := 0
	for i := 1; i < len(stats); i++ {
		if stats[i].RMSAmplitude < stats[pivot].RMSAmplitude {
			pivot = i
		}
	}

	pivotOutFilename := normFilename(streams[pivot].Filename)
	pivotExists, err := handle.Exists(ctx, pivotOutFilename)
	if err != nil {
		return nil, apierrors.Stitcher(fmt.Sprintf("failed to check existence of %s", pivotOutFilename), err)
	}
	if !pivotExists {
		pivotGain := 0.70 * stats[pivot].VolumeAdjustment
		if err := s.applyGain(ctx, path(streams[pivot].Filename), path(pivotOutFilename), pivotGain); err != nil {
			return nil, err
		}
	}
	pivotPost, err := s.measure(ctx, path(pivotOutFilename))
	if err != nil {
		return nil, apierrors.Stitcher("failed to measure pivot output", err)
	}
	targetRMS := pivotPost.RMSAmplitude

	out := make([]*archivestream.Stream, len(streams))
	for i, stream := range streams {
		outFilename := normFilename(stream.Filename)
		if i != pivot {
			exists, err := handle.Exists(ctx, outFilename)
			if err != nil {
				return nil, apierrors.Stitcher(fmt.Sprintf("failed to check existence of %s", outFilename), err)
			}
			if !exists {
				gain := targetRMS / stats[i].RMSAmplitude
				if err := s.applyGain(ctx, path(stream.Filename), path(outFilename), gain); err != nil {
					return nil, err
				}
			}
		}
		out[i] = &archivestream.Stream{
			Filename: outFilename,
			Type:     stream.Type,
			LengthMS: stream.LengthMS,
			Users:    stream.Users,
			OffsetMS: stream.OffsetMS,
		}
	}

	return out, nil
}

func (s *Stitcher) applyGain(ctx context.Context, inPath, outPath string, gain float64) error {
	if err := ensureDir(outPath); err != nil {
		return apierrors.Stitcher("failed to create working directory", err)
	}
	if _, err := runTool(ctx, s.soxPath, inPath, outPath, "vol", strconv.FormatFloat(gain, 'f', -1, 64), "amplitude"); err != nil {
		return apierrors.Stitcher(fmt.Sprintf("gain application failed for %s", inPath), err)
	}
	return nil
}

// mix is Stage C: mix (or, for a single stream, renormalize) and pad by
// offset. Skips the sox invocation and returns a stream handle matching
// the existing file's measured length if the output already exists.
func (s *Stitcher) mix(ctx context.Context, handle storagepool.Storage, path func(string) string, streams []*archivestream.Stream, base string) (*archivestream.Stream, error) {
	outFilename := base + ".mp3"
	outPath := path(outFilename)

	exists, err := handle.Exists(ctx, outFilename)
	if err != nil {
		return nil, apierrors.Stitcher(fmt.Sprintf("failed to check existence of %s", outFilename), err)
	}
	if !exists {
		if err := ensureDir(outPath); err != nil {
			return nil, apierrors.Stitcher("failed to create working directory", err)
		}

		if len(streams) > 1 {
			args := []string{"-m", "--norm"}
			for _, stream := range streams {
				offsetSeconds := float64(stream.OffsetOrZero()) / 1000.0
				args = append(args, fmt.Sprintf("|%s %s -p pad %s", s.soxPath, path(stream.Filename), strconv.FormatFloat(offsetSeconds, 'f', -1, 64)))
			}
			args = append(args, outPath)
			if _, err := runTool(ctx, s.soxPath, args...); err != nil {
				return nil, apierrors.Stitcher("failed to mix streams", err)
			}
		} else {
			stream := streams[0]
			offsetSeconds := float64(stream.OffsetOrZero()) / 1000.0
			if _, err := runTool(ctx, s.soxPath, path(stream.Filename), outPath, "norm", "pad", strconv.FormatFloat(offsetSeconds, 'f', -1, 64)); err != nil {
				return nil, apierrors.Stitcher("failed to renormalize single stream", err)
			}
		}
	}

	stats, err := s.measure(ctx, outPath)
	if err != nil {
		return nil, apierrors.Stitcher("failed to measure mixed output", err)
	}
	lengthMS := int(stats.LengthSeconds * 1000)

	return &archivestream.Stream{
		Filename: outFilename,
		Type:     archivestream.TypeStitchedAudio,
		LengthMS: &lengthMS,
		Users:    archivestream.UnionUsers(streams),
		OffsetMS: archivestream.MinOffset(streams),
	}, nil
}

// remux is Stage D: convert {base}.mp3 to {base}.mp4 preserving metadata.
// Skips re-encoding if the mp4 output already exists.
func (s *Stitcher) remux(ctx context.Context, handle storagepool.Storage, path func(string) string, stream *archivestream.Stream) (*archivestream.Stream, error) {
	ext := filepath.Ext(stream.Filename)
	outFilename := strings.TrimSuffix(stream.Filename, ext) + ".mp4"
	outPath := path(outFilename)

	exists, err := handle.Exists(ctx, outFilename)
	if err != nil {
		return nil, apierrors.Stitcher(fmt.Sprintf("failed to check existence of %s", outFilename), err)
	}
	if !exists {
		if err := ensureDir(outPath); err != nil {
			return nil, apierrors.Stitcher("failed to create working directory", err)
		}

		if _, err := runTool(ctx, s.ffmpegPath, "-y", "-i", path(stream.Filename), outPath); err != nil {
			return nil, apierrors.Stitcher("failed to remux to mp4", err)
		}
	}

	return &archivestream.Stream{
		Filename: outFilename,
		Type:     stream.Type,
		LengthMS: stream.LengthMS,
		Users:    stream.Users,
		OffsetMS: stream.OffsetMS,
	}, nil
}

func normFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return base + "-norm" + ext
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
