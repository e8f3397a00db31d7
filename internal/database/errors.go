package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrSlotTaken            = errors.New("slot already booked")
	ErrPriceMappingNotFound = errors.New("price mapping not found")
	ErrServiceNotFound      = errors.New("service not found")
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
