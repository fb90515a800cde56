package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidGeometry     Kind = "InvalidGeometry"
	KindDecodeFailure       Kind = "DecodeFailure"
	KindInvalidSeriesFormat Kind = "InvalidSeriesFormat"
	KindFrameResolution     Kind = "FrameResolutionFailure"
	KindUnknownColorTable   Kind = "UnknownColorTable"
)

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrInvalidGeometry     = &Error{Kind: KindInvalidGeometry, Msg: "invalid tile geometry"}
	ErrDecodeFailure       = &Error{Kind: KindDecodeFailure, Msg: "decode failed"}
	ErrInvalidSeriesFormat = &Error{Kind: KindInvalidSeriesFormat, Msg: "invalid series format"}
	ErrFrameResolution     = &Error{Kind: KindFrameResolution, Msg: "no frames resolved"}
	ErrUnknownColorTable   = &Error{Kind: KindUnknownColorTable, Msg: "unknown color table"}
)

// Error is a terminal request error carrying its kind and a human message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Errorf(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

func Wrap(kind Kind, err error, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
