package repository

import (
	"errors"

	"gorm.io/gorm"
)

// Every *Tx method accepts the transaction it must run in. A nil tx means
// "outside a transaction" and falls back to the repository's own handle.
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// Page normalizes pagination input the same way for every list query.
func Page(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return (page - 1) * limit, limit
}
