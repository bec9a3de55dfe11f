// Package pipeline implements R: the per-job orchestration of
// fetch, stitch, waveform, persist and delete-at-provider.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/fetcher"
	"github.com/techresidents/archivesvc/internal/jobqueue"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/metrics"
	"github.com/techresidents/archivesvc/internal/persister"
	"github.com/techresidents/archivesvc/internal/stitcher"
	"github.com/techresidents/archivesvc/internal/waveform"
)

// Pipeline runs F→S→W→P→delete-at-provider for one job. It implements
// workerpool.Runner.
type Pipeline struct {
	fetcher            *fetcher.Fetcher
	stitcher           *stitcher.Stitcher
	waveform           *waveform.Generator
	persister          *persister.Persister
	timestampFilenames bool
}

// New wires the pipeline's four stage components.
func New(f *fetcher.Fetcher, s *stitcher.Stitcher, w *waveform.Generator, p *persister.Persister, timestampFilenames bool) *Pipeline {
	return &Pipeline{fetcher: f, stitcher: s, waveform: w, persister: p, timestampFilenames: timestampFilenames}
}

// Run satisfies workerpool.Runner.
func (p *Pipeline) Run(ctx context.Context, job *jobqueue.LeasedJob) error {
	start := time.Now()
	defer func() { metrics.RecordJobDuration(time.Since(start).Seconds()) }()

	baseName := p.deriveBaseName(job.SessionID)

	manifest, err := stage(ctx, "fetch", func() (*archivestream.Manifest, error) {
		return p.fetcher.Fetch(ctx, job.SessionID, job.Data, baseName)
	})
	if err != nil {
		return err
	}
	if manifest.Empty() {
		logger.Log.Info("no archive to process", logger.WithJobID(job.ID), logger.WithSessionID(job.SessionID))
		return nil
	}

	results, err := stage(ctx, "stitch", func() ([]*archivestream.Stream, error) {
		return p.stitcher.Stitch(ctx, manifest.Streams, baseName)
	})
	if err != nil {
		return err
	}
	mp4Stream, mp3Stream := results[0], results[1]

	if _, err := stage(ctx, "waveform", func() (struct{}, error) {
		return struct{}{}, p.waveform.Generate(ctx, mp3Stream, baseName)
	}); err != nil {
		return err
	}
	mp4Stream.WaveformData = mp3Stream.WaveformData
	mp4Stream.WaveformFilename = mp3Stream.WaveformFilename

	union := []*archivestream.Stream{mp4Stream, mp3Stream}
	for _, stream := range manifest.Streams {
		if stream.Type != archivestream.TypeStitchedAudio {
			union = append(union, stream)
		}
	}

	if _, err := stage(ctx, "persist", func() (struct{}, error) {
		return struct{}{}, p.persister.Persist(ctx, job.SessionID, union)
	}); err != nil {
		return err
	}

	if _, err := stage(ctx, "delete", func() (struct{}, error) {
		return struct{}{}, p.fetcher.Delete(ctx, job.SessionID, job.Data)
	}); err != nil {
		return err
	}

	return nil
}

// stage times fn and records its outcome under name before returning its
// result, so every pipeline stage reports duration and failures uniformly.
func stage[T any](ctx context.Context, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	metrics.RecordStage(name, time.Since(start).Seconds(), err)
	return result, err
}

func (p *Pipeline) deriveBaseName(sessionID int64) string {
	base := fmt.Sprintf("archive/%s", archivestream.EncodeSessionID(sessionID))
	if p.timestampFilenames {
		base = fmt.Sprintf("%s-%d", base, time.Now().Unix())
	}
	return base
}
