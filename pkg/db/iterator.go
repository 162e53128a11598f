package db

const defaultIterBatch = 256

// LeaseIter walks the active leases in id order without loading the
// whole table at once, fetching a page of rows at a time with keyset
// pagination. It follows the sql.Rows contract: Next advances, Lease
// reads the current entry, Err reports what stopped a short walk.
// Each call to ActiveLeases starts a fresh walk from the beginning;
// every page observes committed state only.
type LeaseIter struct {
	d         *database
	batchSize int

	batch  []LeaseEntry
	idx    int
	lastID uint
	done   bool
	err    error
}

func (d *database) ActiveLeases() *LeaseIter {
	return &LeaseIter{
		d:         d,
		batchSize: defaultIterBatch,
		idx:       -1,
	}
}

// Next fetches the next active lease, loading the next page when the
// current one is spent. It returns false at the end of the walk or on
// the first storage error.
func (it *LeaseIter) Next() bool {
	if it.err != nil {
		return false
	}
	it.idx++
	if it.idx < len(it.batch) {
		return true
	}
	if it.done {
		return false
	}

	ctx, cancel := it.d.opCtx()
	defer cancel()

	var page []LeaseEntry
	err := it.d.withRetry(func() error {
		page = nil
		return it.d.db.WithContext(ctx).
			Where("deleted = 0 AND id > ?", it.lastID).
			Order("id").Limit(it.batchSize).Find(&page).Error
	})
	if err != nil {
		it.err = storageErr(err)
		return false
	}
	if len(page) == 0 {
		it.done = true
		return false
	}
	if len(page) < it.batchSize {
		it.done = true
	}
	it.lastID = page[len(page)-1].ID
	it.batch = page
	it.idx = 0
	return true
}

// Lease returns the entry Next advanced to. Only valid after a true
// Next.
func (it *LeaseIter) Lease() LeaseEntry {
	return it.batch[it.idx]
}

func (it *LeaseIter) Err() error {
	return it.err
}
