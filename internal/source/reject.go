package source

import (
	"fmt"

	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

// cannedResponses holds the fully RFC 7230-compliant status lines (empty
// body, no headers) emitted by the reject path for each protocol failure
// the decoder can raise (§7, §8 scenario 3/4).
var cannedResponses = map[int][]byte{
	400: []byte("HTTP/1.1 400 Bad Request\r\n\r\n"),
	404: []byte("HTTP/1.1 404 Not Found\r\n\r\n"),
	431: []byte("HTTP/1.1 431 Request Header Fields Too Large\r\n\r\n"),
	505: []byte("HTTP/1.1 505 HTTP Version Not Supported\r\n\r\n"),
}

func cannedResponse(status int) []byte {
	if body, ok := cannedResponses[status]; ok {
		return body
	}
	return []byte(fmt.Sprintf("HTTP/1.1 %d Error\r\n\r\n", status))
}

// rejectWriterHandler is the one-shot throttle that streams a canned
// response body into the reject target as WINDOW credits arrive,
// transitioning itself away once the payload is exhausted (§4.4's
// rejectWriter). It is a plain closure rather than a Stream-bound
// throttleStateFn because it drives a loopback target/stream the parent
// SourceInputStream does not otherwise own.
func rejectWriterHandler(target fabric.Target, targetID uint64, body []byte) fabric.Handler {
	remaining := body
	return func(f fabric.Frame) {
		if f.StreamID != targetID {
			return
		}
		switch f.Type {
		case fabric.TypeReset:
			target.RemoveThrottle(targetID)
		case fabric.TypeWindow:
			n := min(f.Update, len(remaining))
			if n > 0 {
				target.DoHTTPData(targetID, remaining[:n])
				remaining = remaining[n:]
			}
			if len(remaining) == 0 {
				target.DoHTTPEnd(targetID)
				target.RemoveThrottle(targetID)
			}
		}
	}
}
