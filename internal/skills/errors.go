package skills

import (
	"errors"
	"fmt"
)

var (
	ErrSkillNotFound          = errors.New("skill not found")
	ErrSkillAlreadyRegistered = errors.New("skill already registered")
	ErrSkillLoad              = errors.New("skill load failed")
	ErrInvalidMetadata        = errors.New("invalid skill metadata")
)

// LoadError reports why a skill directory or file could not be turned into a
// Skill. It matches ErrSkillLoad with errors.Is.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load skill %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load skill %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrSkillLoad }

func loadErr(path, reason string, err error) error {
	return &LoadError{Path: path, Reason: reason, Err: err}
}
