package dispatch

import (
	"fmt"

	"github.com/thoas/go-funk"
)

// Check decides whether a command may run. A false result without an error
// is reported as a generic CheckFailure.
type Check func(ctx *Context) (bool, error)

// runCheck calls check, turning errors and panics that are not CommandErrors
// into CheckFailure.
func runCheck(check Check, ctx *Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &CheckFailure{Cause: &PanicError{Value: r}}
		}
	}()

	ok, err = check(ctx)
	if err != nil && !IsCommandError(err) {
		err = &CheckFailure{Message: err.Error(), Cause: err}
	}
	return ok, err
}

// InUserList only lets the listed users through.
func InUserList(ids ...string) Check {
	return func(ctx *Context) (bool, error) {
		author := ctx.Message.AuthorID()
		if funk.ContainsString(ids, author) {
			return true, nil
		}
		return false, &NotInUserList{
			CheckFailure: CheckFailure{Message: fmt.Sprintf("user %s is not in the allowed list", author)},
			UserID:       author,
		}
	}
}
