package source

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

var crlfcrlf = []byte("\r\n\r\n")

// ProtocolError is a decode failure that must be answered with a canned
// HTTP status line and a source reset (§4.2, §7). Status is the exact
// code to send. A route miss (404) is not a ProtocolError: it is raised
// by decodeHttpBegin after header parsing succeeds, once routing fails.
type ProtocolError struct {
	Status int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: HTTP %d", e.Status)
}

func protoErr(status int) error { return &ProtocolError{Status: status} }

// headersEnd scans buf[offset:limit] for the first CRLFCRLF and returns
// the offset just past it, or -1 if the terminator hasn't arrived yet.
// Mirrors the original's BufferUtil.limitOfBytes(payload, offset, limit,
// CRLFCRLF_BYTES).
func headersEnd(buf []byte, offset, limit int) int {
	idx := bytes.Index(buf[offset:limit], crlfcrlf)
	if idx == -1 {
		return -1
	}
	return offset + idx + len(crlfcrlf)
}

// decodedRequest is the outcome of parsing one complete header block.
type decodedRequest struct {
	headers       fabric.Headers
	contentLength int
	hasUpgrade    bool
}

// decodeHeaderBlock parses a complete "METHOD SP TARGET SP VERSION CRLF
// (header CRLF)*" block — the caller passes everything up to but
// excluding the terminating CRLFCRLF — into pseudo- and regular headers,
// following §4.2's rules.
func decodeHeaderBlock(block []byte) (decodedRequest, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 {
		return decodedRequest{}, protoErr(400)
	}

	start := strings.Fields(lines[0])
	if len(start) != 3 {
		return decodedRequest{}, protoErr(400)
	}
	method, target, version := start[0], start[1], start[2]

	if !isHTTP1Version(version) {
		return decodedRequest{}, protoErr(505)
	}

	requestURI, err := url.ParseRequestURI(target)
	if err != nil {
		// Some request-targets (e.g. "*", CONNECT authority-form) aren't
		// valid RequestURIs; fall back to a bare path/opaque parse.
		requestURI, err = url.Parse(target)
		if err != nil {
			return decodedRequest{}, protoErr(400)
		}
	}
	if requestURI.User != nil {
		return decodedRequest{}, protoErr(400)
	}

	headers := make(fabric.Headers, 0, len(lines)+4)
	headers = append(headers,
		fabric.Header{":scheme", "http"},
		fabric.Header{":method", method},
		fabric.Header{":path", requestURI.Path},
	)

	authority := requestURI.Host
	if authority != "" {
		headers = append(headers, fabric.Header{":authority", authority})
	}

	contentLength := 0
	hasUpgrade := false
	for _, line := range lines[1:] {
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return decodedRequest{}, protoErr(400)
		}
		// rfc7230#section-5.5: a Host header only sets :authority when
		// the request-target carried no authority of its own.
		if name == "host" {
			if authority == "" {
				headers = append(headers, fabric.Header{":authority", value})
				authority = value
			}
			continue
		}
		headers = append(headers, fabric.Header{name, value})
		switch name {
		case "content-length":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return decodedRequest{}, protoErr(400)
			}
			contentLength = n
		case "upgrade":
			hasUpgrade = true
		}
	}

	if authority == "" {
		return decodedRequest{}, protoErr(400)
	}

	return decodedRequest{headers: headers, contentLength: contentLength, hasUpgrade: hasUpgrade}, nil
}

// splitHeaderLine splits "Name: value" on the first colon, trims
// surrounding whitespace, and lowercases the field name per §4.2.
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	name = strings.ToLower(strings.TrimSpace(line[:idx]))
	if name == "" {
		return "", "", false
	}
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}

// isHTTP1Version reports whether version matches "HTTP/1.(digit)".
func isHTTP1Version(version string) bool {
	if !strings.HasPrefix(version, "HTTP/1.") || len(version) != len("HTTP/1.0") {
		return false
	}
	d := version[len(version)-1]
	return d >= '0' && d <= '9'
}
