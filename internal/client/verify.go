package client

import "github.com/omochice/toy-socket-calc/pkg/protocol"

// Verdict is the outcome of checking a server response.
type Verdict struct {
	// Done is false while no complete response frame has arrived.
	Done bool

	Match bool
	Got   protocol.Result

	// Err is set when the response frame could not be parsed.
	Err error
}

// Verify checks the first response frame in inbound against expected.
// Bytes after the first frame are ignored.
func Verify(expected protocol.Result, inbound []byte) Verdict {
	frame, _, ok := protocol.NextFrame(inbound)
	if !ok {
		return Verdict{}
	}

	var got protocol.Result
	if err := got.Decode(frame); err != nil {
		return Verdict{Done: true, Err: err}
	}
	return Verdict{Done: true, Match: got == expected, Got: got}
}
