package relay

import "github.com/dgnsrekt/stagehand-relay/internal/media"

// Detector decides whether a sample is a meaningful change.
// It is owned by the polling goroutine and is not safe for concurrent use.
type Detector struct {
	last      media.Snapshot
	lastEpoch uint64
	// primed is false right after an epoch change: the sentinel compares
	// unequal to every sample, so the first sample of a session is emitted.
	primed bool
}

// NewDetector starts from the process-start state: idle snapshot, epoch 0.
func NewDetector() *Detector {
	return &Detector{last: media.Idle(), primed: true}
}

// Consider returns the sample and true when it should be broadcast.
func (d *Detector) Consider(sample media.Snapshot, epoch uint64) (media.Snapshot, bool) {
	if epoch != d.lastEpoch {
		d.lastEpoch = epoch
		d.primed = false
	}

	if d.primed && sample.Equal(d.last) {
		return media.Snapshot{}, false
	}

	d.last = sample.Clone()
	d.primed = true
	return sample, true
}

// Last returns the most recently emitted snapshot.
func (d *Detector) Last() media.Snapshot {
	return d.last
}
