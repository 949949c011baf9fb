// Package repository holds the MySQL implementations of the storage ports
// and the sentinel errors shared across repositories.  Driver errors are
// translated here so higher layers can test them with errors.Is: a
// duplicate key becomes ErrDuplicate, a lock wait timeout or deadlock
// becomes game.ErrTransient, and a missing row becomes ErrNotFound.
package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/numbers-lottery/internal/game"
)

// ErrNotFound and ErrDuplicate are the core's store errors so a repository
// result can be returned to the core unchanged.
var (
    ErrNotFound  = game.ErrNotFound
    ErrDuplicate = game.ErrDuplicate
)

// ErrEmailExists is returned by UserRepo.Create for a taken address.
var ErrEmailExists = errors.New("email already exists")

// MySQL server error numbers the repositories react to.
const (
    errDupEntry        = 1062
    errLockWaitTimeout = 1205
    errDeadlock        = 1213
)

// translate maps driver errors onto the sentinels above.  Other errors
// pass through unchanged.
func translate(err error) error {
    if err == nil {
        return nil
    }
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return errors.Join(game.ErrTransient, err)
    }
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        switch me.Number {
        case errDupEntry:
            return errors.Join(ErrDuplicate, err)
        case errLockWaitTimeout, errDeadlock:
            return errors.Join(game.ErrTransient, err)
        }
    }
    return err
}
