package audit

import (
	"context"
	"fmt"

	"github.com/spec-kit/triage-service/internal/domain"
)

const verifyPageSize = 500

// VerifyChain recomputes every hash and checks previousHash linkage over
// the requested seq range (fromSeq <= 0 starts at genesis, toSeq <= 0 runs
// through the tail). It is read-only and stops early when ctx is cancelled.
// A mismatch is returned as *BrokenLinkError, never repaired.
func VerifyChain(ctx context.Context, store Store, fromSeq, toSeq int64) error {
	if fromSeq <= 0 {
		fromSeq = 1
	}

	var prev *domain.AuditEntry
	if fromSeq > 1 {
		// Anchor the walk on the entry just before the range.
		anchor, err := store.Range(ctx, fromSeq-1, fromSeq-1)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if len(anchor) == 1 {
			prev = &anchor[0]
		}
	}

	next := fromSeq
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageEnd := next + verifyPageSize - 1
		if toSeq > 0 && pageEnd > toSeq {
			pageEnd = toSeq
		}
		page, err := store.Range(ctx, next, pageEnd)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if len(page) == 0 {
			return nil
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry := &page[i]
			if err := verifyLink(prev, entry); err != nil {
				return err
			}
			prev = entry
		}

		if toSeq > 0 && prev.Seq >= toSeq {
			return nil
		}
		next = prev.Seq + 1
	}
}

func verifyLink(prev, entry *domain.AuditEntry) error {
	if recomputed := ComputeHash(entry); recomputed != entry.Hash {
		return &BrokenLinkError{Seq: entry.Seq, EntryID: entry.ID, Reason: "stored hash does not recompute"}
	}
	switch {
	case prev == nil:
		if entry.Seq == 1 && entry.PreviousHash != GenesisHash {
			return &BrokenLinkError{Seq: entry.Seq, EntryID: entry.ID, Reason: "first entry does not chain from genesis"}
		}
	case entry.Seq != prev.Seq+1:
		return &BrokenLinkError{Seq: entry.Seq, EntryID: entry.ID,
			Reason: fmt.Sprintf("gap in chain: seq %d follows %d", entry.Seq, prev.Seq)}
	case entry.PreviousHash != prev.Hash:
		return &BrokenLinkError{Seq: entry.Seq, EntryID: entry.ID, Reason: "previousHash does not match predecessor"}
	}
	if prev != nil && entry.Timestamp.Before(prev.Timestamp) {
		return &BrokenLinkError{Seq: entry.Seq, EntryID: entry.ID, Reason: "timestamp regressed"}
	}
	return nil
}
