package database

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate reports that an insert lost to a uniqueness constraint,
// e.g. two concurrent writers racing to create the same channel name.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolationCode = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode
}
