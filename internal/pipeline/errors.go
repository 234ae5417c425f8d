package pipeline

import (
	"errors"
	"fmt"
	"go-reconcile-pipeline/internal/model"
)

var (
	// ErrIO marks an extract that could not be opened or read.
	ErrIO = errors.New("extract unreadable")
	// ErrFormat marks an extract whose rows do not parse into the header's columns.
	ErrFormat = errors.New("extract malformed")
)

// ExtractError is a fatal failure to load one extract. It matches
// ErrIO or ErrFormat with errors.Is.
type ExtractError struct {
	Extract model.Extract
	Path    string
	Line    int // 0 when not tied to a row
	Kind    error
	Err     error
}

func (e *ExtractError) Error() string {
	name := e.Path
	if e.Extract != "" {
		name = fmt.Sprintf("%s (%s)", e.Extract, e.Path)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%v: %s line %d: %v", e.Kind, name, e.Line, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, name, e.Err)
}

func (e *ExtractError) Is(target error) bool { return target == e.Kind }

func (e *ExtractError) Unwrap() error { return e.Err }

// StageError names the stage a run aborted in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
