package weberr

import "errors"

// Opt decorates an error on its way up to the errors middleware.
type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

type responseError struct {
	error
	body   any
	status int
}

func (e *responseError) Unwrap() error { return e.error }

// WithResponse sets the body and status rendered to the client.
func WithResponse(body any, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

// Response returns the outermost response attached to err.
func Response(err error) (body any, status int, ok bool) {
	var re *responseError
	if !errors.As(err, &re) {
		return nil, 0, false
	}
	return re.body, re.status, true
}

type fieldsError struct {
	error
	fields map[string]any
}

func (e *fieldsError) Unwrap() error { return e.error }

// WithFields attaches log fields. They are logged next to the error and
// never rendered.
func WithFields(fields map[string]any) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

// Fields merges the log fields attached along the chain. A key set by an
// outer wrapper wins over the same key set further down.
func Fields(err error) (map[string]any, bool) {
	var merged map[string]any
	for ; err != nil; err = errors.Unwrap(err) {
		fe, ok := err.(*fieldsError)
		if !ok {
			continue
		}
		if merged == nil {
			merged = make(map[string]any, len(fe.fields))
		}
		for k, v := range fe.fields {
			if _, set := merged[k]; !set {
				merged[k] = v
			}
		}
	}
	return merged, merged != nil
}
