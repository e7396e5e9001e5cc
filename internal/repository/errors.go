package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateKey は一意制約違反を表す。
var ErrDuplicateKey = errors.New("duplicate key")

// uniqueViolation はPostgreSQLの一意制約違反(23505)かどうかを判定する。
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
