package traffic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/client"
)

// Class tells how an outcome came about.
type Class string

const (
	ClassOK         Class = "ok"
	ClassSkipped    Class = "skipped"    // precondition not met, nothing sent
	ClassTransport  Class = "transport"  // target unreachable
	ClassRemote     Class = "remote"     // target answered with an error status
	ClassDecode     Class = "decode"     // body not in the expected shape
	ClassRegistry   Class = "registry"   // id registry backend failed
	ClassUnexpected Class = "unexpected" // a trigger route did not fail
	ClassPanic      Class = "panic"      // the action itself panicked
)

// Outcome is the result of one action invocation.
type Outcome struct {
	Action     string        `json:"action"`
	Iteration  int           `json:"iteration"`
	Succeeded  bool          `json:"succeeded"`
	Class      Class         `json:"class"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	RawBody    string        `json:"raw_body,omitempty"`
	Latency    time.Duration `json:"latency"`
	At         time.Time     `json:"at"`

	// aborted marks a call cut short by run cancellation. Such outcomes
	// are neither counted nor recorded.
	aborted bool
}

// Aborted reports whether the invocation was cut short by shutdown.
func (o Outcome) Aborted() bool { return o.aborted }

func succeeded(status int, format string, args ...any) Outcome {
	return Outcome{Succeeded: true, Class: ClassOK, HTTPStatus: status, Detail: fmt.Sprintf(format, args...)}
}

func skipped(detail string) Outcome {
	return Outcome{Succeeded: true, Class: ClassSkipped, Detail: detail}
}

// failed classifies err from the client into a failed outcome.
func failed(ctx context.Context, err error) Outcome {
	out := Outcome{Succeeded: false, Detail: err.Error()}

	var (
		te *client.TransportError
		se *client.StatusError
		de *client.DecodeError
	)
	switch {
	case errors.As(err, &te):
		out.Class = ClassTransport
		out.aborted = ctx.Err() != nil
	case errors.As(err, &se):
		out.Class = ClassRemote
		out.HTTPStatus = se.StatusCode
	case errors.As(err, &de):
		out.Class = ClassDecode
		out.HTTPStatus = de.StatusCode
		out.RawBody = de.Body
	default:
		out.Class = ClassTransport
	}
	return out
}
