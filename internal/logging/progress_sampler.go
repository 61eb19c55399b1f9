package logging

import "strings"

const defaultSampleBytes = 16 << 20

// ProgressPoint is one engine progress event as seen by a sampler.
type ProgressPoint struct {
	Stage   string
	File    string
	Percent float64
	Bytes   int64
}

// ProgressSampler decides which progress events are worth a log line. It
// emits on stage changes, when the engine moves to another file (the video
// and audio streams of a merged download restart at 0%), at each percent
// bucket, and every byteStep bytes when the total size is unknown.
type ProgressSampler struct {
	bucketSize float64
	byteStep   int64

	lastStage  string
	lastFile   string
	lastBucket int
	lastBytes  int64
}

// NewProgressSampler builds a sampler. Non-positive arguments fall back to 5%
// buckets and 16 MiB byte steps.
func NewProgressSampler(bucketSize float64, byteStep int64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	if byteStep <= 0 {
		byteStep = defaultSampleBytes
	}
	s := &ProgressSampler{bucketSize: bucketSize, byteStep: byteStep}
	s.Reset()
	return s
}

// ShouldLog reports whether p should be logged. A nil sampler logs
// everything.
func (s *ProgressSampler) ShouldLog(p ProgressPoint) bool {
	if s == nil {
		return true
	}
	emit := false
	stage := strings.TrimSpace(p.Stage)
	if stage != "" && stage != s.lastStage {
		s.lastStage = stage
		s.restart()
		emit = true
	}
	if p.File != "" && p.File != s.lastFile {
		s.lastFile = p.File
		s.restart()
		emit = true
	}

	if p.Percent >= 0 {
		bucket := int(min(p.Percent, 100) / s.bucketSize)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
		return emit
	}
	if p.Bytes >= s.lastBytes+s.byteStep {
		s.lastBytes = p.Bytes - p.Bytes%s.byteStep
		emit = true
	}
	return emit
}

// Reset forgets everything seen so far.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStage = ""
	s.lastFile = ""
	s.restart()
}

func (s *ProgressSampler) restart() {
	s.lastBucket = -1
	s.lastBytes = 0
}
