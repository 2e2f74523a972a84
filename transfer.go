package chronicle

import (
	"context"
	"fmt"
)

// TransferOptions selects what Transfer copies besides changes.
type TransferOptions struct {
	// Refs names the refs to copy; nil copies all of them.
	Refs []string
	// RefPrefix is prepended to each ref name in the destination, e.g.
	// "/remote/origin/" to keep remote-tracking refs apart from local ones.
	RefPrefix string
}

type TransferStats struct {
	Changes int
	Refs    int
}

// Transfer copies into dst every change of src that dst lacks, parents
// before children, then copies refs. It uses only the Index surface, so
// src and dst may be any mix of in-memory and persistent indexes.
func Transfer[O any](ctx context.Context, src, dst Index[O], opts *TransferOptions) (TransferStats, error) {
	if opts == nil {
		opts = &TransferOptions{}
	}
	var stats TransferStats
	for _, id := range src.List() {
		stack := []string{id}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if dst.Contains(top) {
				stack = stack[:len(stack)-1]
				continue
			}
			change, err := src.Get(ctx, top)
			if err != nil {
				return stats, fmt.Errorf("transfer: %w", err)
			}
			pending := false
			for _, p := range change.Parents() {
				if !dst.Contains(p) {
					stack = append(stack, p)
					pending = true
				}
			}
			if pending {
				continue
			}
			if err := dst.Add(ctx, change); err != nil {
				return stats, fmt.Errorf("transfer: %w", err)
			}
			stats.Changes++
			stack = stack[:len(stack)-1]
		}
	}

	names := opts.Refs
	if names == nil {
		names = src.ListRefs()
	}
	for _, name := range names {
		id, ok := src.GetRef(name)
		if !ok {
			return stats, fmt.Errorf("transfer ref %s: %w", name, ErrUnknownRef)
		}
		target := opts.RefPrefix + name
		if current, ok := dst.GetRef(target); ok && current == id {
			continue
		}
		if err := dst.SetRef(ctx, target, id); err != nil {
			return stats, fmt.Errorf("transfer: %w", err)
		}
		stats.Refs++
	}
	return stats, nil
}
