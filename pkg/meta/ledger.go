package meta

import (
	"context"
	"errors"

	"itemstore/pkg/cluster"
	"itemstore/pkg/transfer"

	"github.com/google/uuid"
)

// Ledger 把传输报告写进 transfers 表
type Ledger struct {
	repo *Repository
}

var _ transfer.Recorder = (*Ledger)(nil)

func NewLedger(repo *Repository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) Record(ctx context.Context, r transfer.Report) error {
	m := &TransferModel{
		ID:         uuid.NewString(),
		SourceNode: r.SourceNode,
		SourcePath: r.SourcePath,
		DestNode:   r.DestNode,
		DestPath:   r.DestPath,
		Includes:   r.Includes,
		Excludes:   r.Excludes,
		Count:      r.Count,
		Status:     status(r.Err),
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		m.Error = r.Err.Error()
	}
	return l.repo.RecordTransfer(ctx, m)
}

func status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, cluster.ErrInterrupted):
		return StatusInterrupted
	default:
		return StatusFailed
	}
}
