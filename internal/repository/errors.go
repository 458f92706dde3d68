// Package repository defines error types that are reused across multiple
// repositories together with the translation of MySQL error numbers into
// them.  These sentinel values allow higher layers such as services and
// handlers to distinguish between different failure scenarios without
// looking at driver errors.  For example, ErrDuplicateTicket signals that
// the (event, seat) unique key rejected an insert, while ErrTxAborted
// means the server rolled the whole transaction back and the caller may
// retry it from the start.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrSeatNotFound  = errors.New("seat not found")
	ErrUserNotFound  = errors.New("user not found")

	// ErrDuplicateTicket is returned when a ticket insert hits the
	// (event_id, seat_id) unique key.  The statement is rolled back but the
	// surrounding transaction stays usable.
	ErrDuplicateTicket = errors.New("seat already has a ticket")

	// ErrTxAborted is returned when MySQL aborted the whole transaction
	// (deadlock or lock wait timeout).  Everything done inside the
	// transaction is gone.
	ErrTxAborted = errors.New("transaction aborted by storage")

	ErrEmailExists       = errors.New("email already exists")
	ErrRefreshInvalid    = errors.New("refresh token invalid")
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
)

// MySQL server error numbers the repositories care about.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

func isDuplicateKey(err error) bool {
	return mysqlErrorNumber(err) == errDupEntry
}

func isTxAborted(err error) bool {
	switch mysqlErrorNumber(err) {
	case errLockDeadlock, errLockWaitTimeout:
		return true
	}
	return false
}

// storageErr wraps err with ErrTxAborted when MySQL reports a deadlock or
// lock wait timeout, so callers can retry with errors.Is.  Other errors are
// returned unchanged.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if isTxAborted(err) {
		return fmt.Errorf("%w: %v", ErrTxAborted, err)
	}
	return err
}
