package relay

import (
	"time"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// Update is a published snapshot stamped with its broadcast sequence number.
// Seq increases by one per publish; Seq 0 is the startup "no media" state.
type Update struct {
	Seq      uint64         `json:"seq"`
	Snapshot media.Snapshot `json:"snapshot"`
	Initial  bool           `json:"initial"`
	At       time.Time      `json:"at"`
}
