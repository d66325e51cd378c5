package transport

import "sync"

// Class groups vendor business codes by how callers must react to them.
type Class int

const (
	// ClassFailure is any non-success code without special handling.
	ClassFailure Class = iota
	ClassSuccess
	// ClassSessionInvalid means the backend no longer accepts the session's tokens.
	ClassSessionInvalid
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassSessionInvalid:
		return "session_invalid"
	default:
		return "failure"
	}
}

const (
	CodeSuccess        = "0"
	CodeSessionInvalid = "2000"
	// CodeLocalFailure is never sent by the backend; it marks envelopes synthesized locally.
	CodeLocalFailure = "-1"
)

var (
	codesMu sync.RWMutex
	codes   = map[string]Class{
		CodeSuccess:        ClassSuccess,
		CodeSessionInvalid: ClassSessionInvalid,
	}
)

// RegisterCode adds or overrides the classification of a business code. The set of
// codes the backend uses is not fully known, so it stays open for extension.
func RegisterCode(code string, class Class) {
	codesMu.Lock()
	defer codesMu.Unlock()
	codes[code] = class
}

// Classify returns the class for code. Unknown codes are failures.
func Classify(code string) Class {
	codesMu.RLock()
	defer codesMu.RUnlock()
	if c, ok := codes[code]; ok {
		return c
	}
	return ClassFailure
}
