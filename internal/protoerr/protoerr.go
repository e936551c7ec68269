// Package protoerr provides the wrapped-error shape used across the
// sdspi packages, adapted from daedaluz/goserial's error.go.
package protoerr

type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		msg := e.msg
		if e.err != nil {
			msg += ": " + e.err.Error()
		}
		return msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

func Wrap(msg string, e error) error {
	if e == nil {
		return nil
	}
	return Error{msg: msg, err: e}
}

func New(msg string) error {
	return Error{msg: msg}
}
