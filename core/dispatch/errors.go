package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"VKBot/core/cooldown"
)

var (
	ErrCommandExists    = errors.New("command is already registered")
	ErrInvalidSignature = errors.New("invalid command signature")
	ErrCogExists        = errors.New("cog is already loaded")
	ErrNoSender         = errors.New("no sender configured")
	ErrNoPrefix         = errors.New("prefix function returned no prefixes")
)

// CommandError marks every error that the dispatcher routes to the error
// event instead of returning.
type CommandError interface {
	error
	commandError()
}

// ArgumentError marks errors caused by the user's input.
type ArgumentError interface {
	CommandError
	argumentError()
}

func IsCommandError(err error) bool {
	var ce CommandError
	return errors.As(err, &ce)
}

func IsArgumentError(err error) bool {
	var ae ArgumentError
	return errors.As(err, &ae)
}

type commandErr struct{}

func (commandErr) commandError() {}

type argumentErr struct{ commandErr }

func (argumentErr) argumentError() {}

type CommandNotFound struct {
	commandErr
	Name string
}

func (e *CommandNotFound) Error() string {
	return fmt.Sprintf("Command %q is not found", e.Name)
}

type DisabledCommand struct {
	commandErr
	Name string
}

func (e *DisabledCommand) Error() string {
	return e.Name + " command is disabled"
}

// CheckFailure is returned when a check predicate fails or errors.
type CheckFailure struct {
	commandErr
	Message string
	Cause   error
}

func (e *CheckFailure) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *CheckFailure) Unwrap() error { return e.Cause }

// NotInUserList is the CheckFailure of InUserList.
type NotInUserList struct {
	CheckFailure
	UserID string
}

func (e *NotInUserList) Error() string {
	return fmt.Sprintf("User %s is not allowed to run this command", e.UserID)
}

func (e *NotInUserList) Unwrap() error { return &e.CheckFailure }

type CommandOnCooldown struct {
	commandErr
	Cooldown   *cooldown.Cooldown
	RetryAfter time.Duration
}

func (e *CommandOnCooldown) Error() string {
	return fmt.Sprintf("You are on cooldown. Try again in %.2fs", e.RetryAfter.Seconds())
}

type BadArgument struct {
	argumentErr
	Message string
	Cause   error
}

func (e *BadArgument) Error() string { return e.Message }

func (e *BadArgument) Unwrap() error { return e.Cause }

type MissingRequiredArgument struct {
	argumentErr
	Param Param
}

func (e *MissingRequiredArgument) Error() string {
	return e.Param.Name + " is a required argument that is missing."
}

type TooManyArguments struct {
	argumentErr
	Command string
}

func (e *TooManyArguments) Error() string {
	return "Too many arguments passed to " + e.Command
}

// ConversionError wraps a failure of a user supplied Converter.
type ConversionError struct {
	argumentErr
	Converter Converter
	Cause     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("Converting with %s failed: %v", converterName(e.Converter), e.Cause)
}

func (e *ConversionError) Unwrap() error { return e.Cause }

// BadUnionArgument carries one error per union alternative tried.
type BadUnionArgument struct {
	argumentErr
	Param      Param
	Converters []Converter
	Errors     []error
}

func (e *BadUnionArgument) Error() string {
	names := make([]string, 0, len(e.Converters))
	for _, c := range e.Converters {
		if isNone(c) {
			continue
		}
		names = append(names, converterName(c))
	}
	var joined string
	if len(names) > 2 {
		joined = strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	} else {
		joined = strings.Join(names, " or ")
	}
	return fmt.Sprintf("Could not convert %q into %s.", e.Param.Name, joined)
}

func (e *BadUnionArgument) Unwrap() []error { return e.Errors }

type UnexpectedQuoteError struct {
	argumentErr
	Quote rune
}

func (e *UnexpectedQuoteError) Error() string {
	return fmt.Sprintf("Unexpected quote mark, %q, in non-quoted string", e.Quote)
}

type ExpectedClosingQuoteError struct {
	argumentErr
	CloseQuote rune
}

func (e *ExpectedClosingQuoteError) Error() string {
	return fmt.Sprintf("Expected closing %q.", e.CloseQuote)
}

type InvalidEndOfQuotedStringError struct {
	argumentErr
	Char rune
}

func (e *InvalidEndOfQuotedStringError) Error() string {
	return fmt.Sprintf("Expected space after closing quotation but received %q", e.Char)
}

// CommandInvokeError wraps a handler or hook failure that is not itself a
// CommandError.
type CommandInvokeError struct {
	commandErr
	Cause error
}

func (e *CommandInvokeError) Error() string {
	return "Command raised an exception: " + e.Cause.Error()
}

func (e *CommandInvokeError) Unwrap() error { return e.Cause }

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
