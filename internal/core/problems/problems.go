// Package problems carries structural diagnostics through a manifest
// resolution call. A Problems value is an immutable flag set: deriving a
// suppressed copy for one lookup never affects any other call site.
package problems

import (
	"log/slog"

	"plugincheck.dev/cli/internal/errs"
)

// Flags selects which diagnostic classes are muted.
type Flags uint8

const (
	// FlagIgnoreMissingFile mutes missing-descriptor diagnostics. Used when
	// probing locations that are allowed to be empty.
	FlagIgnoreMissingFile Flags = 1 << iota
	// FlagIgnoreMissingMandatory mutes missing-mandatory-element
	// diagnostics. Optional descriptors may omit fields a primary
	// descriptor must carry.
	FlagIgnoreMissingMandatory
)

// Problems is the diagnostic configuration for one resolution call.
// The zero value reports everything and logs nowhere.
type Problems struct {
	flags Flags
	log   *slog.Logger
}

// New returns a Problems value that reports every diagnostic class and
// writes suppressed ones to log at debug level. A nil log discards them.
func New(log *slog.Logger) Problems {
	return Problems{log: log}
}

// IgnoreMissingFile derives a copy that treats a missing descriptor file
// as a non-event. Other diagnostic classes stay active.
func (p Problems) IgnoreMissingFile() Problems {
	p.flags |= FlagIgnoreMissingFile
	return p
}

// IgnoreMissingMandatory derives a copy that accepts descriptors lacking
// mandatory elements.
func (p Problems) IgnoreMissingMandatory() Problems {
	p.flags |= FlagIgnoreMissingMandatory
	return p
}

// MissingMandatorySuppressed reports whether missing-mandatory-element
// diagnostics are muted.
func (p Problems) MissingMandatorySuppressed() bool {
	return p.flags&FlagIgnoreMissingMandatory != 0
}

// MissingFile reports that the sought descriptor file does not exist.
// Returns nil when the class is suppressed.
func (p Problems) MissingFile(msg string) error {
	if p.flags&FlagIgnoreMissingFile != 0 {
		p.debug(msg)
		return nil
	}
	return errs.Structural("resolve", msg)
}

// IncorrectStructure reports a malformed plugin layout. Never suppressed.
func (p Problems) IncorrectStructure(msg string) error {
	return errs.Structural("resolve", msg)
}

// MissingMandatory reports a descriptor lacking a mandatory element.
// Returns nil when the class is suppressed.
func (p Problems) MissingMandatory(msg string) error {
	if p.flags&FlagIgnoreMissingMandatory != 0 {
		p.debug(msg)
		return nil
	}
	return errs.Structural("resolve", msg)
}

// CheckedException reports an I/O or parse failure on a stream that had to
// be readable. Never suppressed.
func (p Problems) CheckedException(msg string, cause error) error {
	return errs.IO("resolve", msg, cause)
}

func (p Problems) debug(msg string) {
	if p.log != nil {
		p.log.Debug("suppressed diagnostic", "msg", msg)
	}
}
