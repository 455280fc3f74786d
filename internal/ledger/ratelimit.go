package ledger

import (
	"errors"

	"github.com/witnz/ledgerd/internal/storage"
)

// CheckRateLimit reports whether identity may perform another write-class
// action at the given height. It never counts as an action itself.
func (l *Ledger) CheckRateLimit(identity string, height uint64) (bool, error) {
	var ok bool
	err := l.view(func(tx *storage.Tx) error {
		if stored := tx.GetUint64(storage.MetaHeight); height < stored {
			height = stored
		}
		var err error
		ok, err = l.withinRateLimit(tx, identity, height)
		return err
	})
	return ok, err
}

func (l *Ledger) GetUserActivity(identity string) (*storage.ActivityEntry, error) {
	var entry *storage.ActivityEntry
	err := l.view(func(tx *storage.Tx) error {
		var err error
		entry, err = tx.GetActivity(identity)
		return notFound(err, "no activity for %q", identity)
	})
	return entry, err
}

func (l *Ledger) windowExpired(entry *storage.ActivityEntry, height uint64) bool {
	return height >= entry.RateWindowStart+l.rateWindow
}

func (l *Ledger) withinRateLimit(tx *storage.Tx, identity string, height uint64) (bool, error) {
	entry, err := tx.GetActivity(identity)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if l.windowExpired(entry, height) {
		return true, nil
	}
	return entry.ActionCount < RateLimitCount, nil
}

func (l *Ledger) requireRateLimit(tx *storage.Tx, identity string, height uint64) error {
	ok, err := l.withinRateLimit(tx, identity, height)
	if err != nil {
		return err
	}
	if !ok {
		return newError(KindRateLimited, "%q exceeded %d actions in %d heights", identity, RateLimitCount, l.rateWindow)
	}
	return nil
}

// recordAction counts one write-class action. A missing or expired entry
// starts a new window at height.
func (l *Ledger) recordAction(tx *storage.Tx, identity string, height uint64) error {
	entry, err := tx.GetActivity(identity)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if entry == nil || l.windowExpired(entry, height) {
		entry = &storage.ActivityEntry{
			User:            identity,
			RateWindowStart: height,
		}
	}
	entry.ActionCount++
	entry.LastAction = height
	return tx.PutActivity(entry)
}
