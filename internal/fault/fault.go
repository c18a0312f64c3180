// Package fault defines the error kinds shared by the provisioning pipeline.
//
// Every failure that leaves a component is tagged with one kind so callers can
// branch on the category with errors.Is while still reaching the underlying
// cause:
//
//	if errors.Is(err, fault.ErrNetwork) { ... }
//	if errors.Is(err, fs.ErrPermission) { ... }
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed or unsupported configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNetwork marks a failed fetch: connection, timeout or non-success status.
	ErrNetwork = errors.New("network error")
	// ErrFilesystem marks local I/O failures such as permission or space problems.
	ErrFilesystem = errors.New("filesystem error")
	// ErrArchiveFormat marks a corrupt gzip stream, malformed tar data or an
	// archive entry that cannot be applied safely.
	ErrArchiveFormat = errors.New("archive format error")
)

// Error is a tagged failure. Op names the operation ("mkdir", "fetch",
// "extract"), Path the file or URL it was working on.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Configuration tags err as a configuration error.
func Configuration(op string, err error) error {
	return &Error{Kind: ErrConfiguration, Op: op, Err: err}
}

// Configurationf builds a configuration error from a format string.
func Configurationf(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Err: fmt.Errorf(format, args...)}
}

// Network tags err as a network error for url.
func Network(op, url string, err error) error {
	return &Error{Kind: ErrNetwork, Op: op, Path: url, Err: err}
}

// Filesystem tags err as a filesystem error for path.
func Filesystem(op, path string, err error) error {
	return &Error{Kind: ErrFilesystem, Op: op, Path: path, Err: err}
}

// ArchiveFormat tags err as an archive format error for the given entry or file.
func ArchiveFormat(op, path string, err error) error {
	return &Error{Kind: ErrArchiveFormat, Op: op, Path: path, Err: err}
}
