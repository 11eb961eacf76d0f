package monitoring

import (
	"sync"

	"github.com/rs/xid"
)

// A ProgressBar tracks the completion of one long-running stage.
type ProgressBar struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Total      uint64 `json:"total"`
	Finished   uint64 `json:"finished"`
	InProgress uint64 `json:"in_progress"`

	lock sync.Mutex
}

func newProgressBar(name string, total uint64) *ProgressBar {
	return &ProgressBar{
		ID:    xid.New().String(),
		Name:  name,
		Total: total,
	}
}

// IncrementFinished adds to the completed count.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.Finished += amount

	if b.Finished > b.Total {
		b.Finished = b.Total
	}
}

// MarkInProgress sets the number of units currently being worked on.
func (b *ProgressBar) MarkInProgress(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.InProgress = amount
}

// Complete fills the bar.
func (b *ProgressBar) Complete() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.Finished = b.Total
	b.InProgress = 0
}

func (b *ProgressBar) snapshot() ProgressBar {
	b.lock.Lock()
	defer b.lock.Unlock()

	return ProgressBar{
		ID:         b.ID,
		Name:       b.Name,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}
