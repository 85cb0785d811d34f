package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFoundError reports whether the error is a record-not-found from the
// underlying store.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
