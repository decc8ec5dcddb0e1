package proxy

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// headerTerminator marks the end of an HTTP request head.
var headerTerminator = []byte("\r\n\r\n")

// Request is the parsed descriptor of one client request. It is immutable
// once produced; Raw holds the exact bytes received up to and including the
// header terminator and is forwarded verbatim, never reconstructed.
type Request struct {
	Method        string
	Host          string
	Port          int
	Raw           []byte
	RequestLine   string
	ContentLength int64
	Headers       map[string]string
}

// ReadRequestHeaders reads from conn in bufferSize chunks until the header
// terminator appears, the peer closes, or maxHeaderBytes is exceeded. It
// returns whatever was accumulated; callers must validate completeness. The
// returned error is non-nil for read timeouts and for oversized headers.
func ReadRequestHeaders(conn net.Conn, bufferSize, maxHeaderBytes int) ([]byte, error) {
	var data []byte
	buf := make([]byte, bufferSize)
	for !bytes.Contains(data, headerTerminator) {
		n, err := conn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if len(data) > maxHeaderBytes {
				return data, newParseError(ErrCodeHeadersTooLarge,
					fmt.Errorf("accumulated %d bytes without header terminator", len(data)))
			}
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return data, err
			}
			// EOF or connection reset: return what we have.
			return data, nil
		}
	}
	return data, nil
}

// ParseRequest decodes the request line and headers from raw bytes. The
// destination host and port are resolved from the CONNECT target, the Host
// header, or an absolute-form target URI, in that order.
func ParseRequest(raw []byte) (*Request, error) {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 {
		return nil, newParseError(ErrCodeRequestLineMalformed, nil)
	}

	tokens := strings.Fields(lines[0])
	if len(tokens) < 2 {
		return nil, newParseError(ErrCodeRequestLineMalformed,
			fmt.Errorf("request line %q", lines[0]))
	}
	method := tokens[0]
	target := tokens[1]

	headers := make(map[string]string)
	var contentLength int64
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		// Last occurrence of a repeated header wins.
		headers[key] = value

		if key == "content-length" {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				// Unparsable or negative values are treated as no body.
				n = 0
			}
			contentLength = n
		}
	}

	var host string
	var port int

	if method == "CONNECT" {
		// Target form: host:port, defaulting to 443 without an explicit port.
		if hostPart, portPart, found := strings.Cut(target, ":"); found {
			parsed, err := strconv.Atoi(portPart)
			if err != nil {
				return nil, newParseError(ErrCodeInvalidPort,
					fmt.Errorf("CONNECT target %q", target))
			}
			host = hostPart
			port = parsed
		} else {
			host = target
			port = 443
		}
	} else {
		if hostHeader, ok := headers["host"]; ok && hostHeader != "" {
			if hostPart, portPart, found := strings.Cut(hostHeader, ":"); found {
				parsed, err := strconv.Atoi(portPart)
				if err != nil {
					return nil, newParseError(ErrCodeInvalidPort,
						fmt.Errorf("Host header %q", hostHeader))
				}
				host = hostPart
				port = parsed
			} else {
				host = hostHeader
				port = 80
			}
		}

		if host == "" && (strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")) {
			parsed, err := url.Parse(target)
			if err == nil {
				host = parsed.Hostname()
				port = 80
				if portStr := parsed.Port(); portStr != "" {
					if p, perr := strconv.Atoi(portStr); perr == nil {
						port = p
					}
				}
			}
		}
	}

	if host == "" {
		return nil, newParseError(ErrCodeMissingHost,
			fmt.Errorf("%s %s", method, target))
	}
	if port < 1 || port > 65535 {
		return nil, newParseError(ErrCodeInvalidPort,
			fmt.Errorf("port %d out of range", port))
	}

	return &Request{
		Method:        method,
		Host:          host,
		Port:          port,
		Raw:           raw,
		RequestLine:   lines[0],
		ContentLength: contentLength,
		Headers:       headers,
	}, nil
}

// ReadRequestBody reads exactly contentLength bytes from conn in bufferSize
// chunks. A short buffer is returned if the peer closes early; callers treat
// that as an incomplete forward, not a fatal error.
func ReadRequestBody(conn net.Conn, contentLength int64, bufferSize int) []byte {
	body := make([]byte, 0, contentLength)
	buf := make([]byte, bufferSize)
	remaining := contentLength
	for remaining > 0 {
		chunk := int64(bufferSize)
		if remaining < chunk {
			chunk = remaining
		}
		n, err := conn.Read(buf[:chunk])
		if n > 0 {
			body = append(body, buf[:n]...)
			remaining -= int64(n)
		}
		if err != nil {
			break
		}
	}
	return body
}

// ExtractResponseStatus parses the status code from the first line of an
// HTTP response. Returns 0 when the status line is malformed.
func ExtractResponseStatus(response []byte) int {
	end := bytes.Index(response, []byte("\r\n"))
	if end < 0 {
		end = len(response)
	}
	tokens := strings.Fields(string(response[:end]))
	if len(tokens) < 2 || !strings.HasPrefix(tokens[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0
	}
	return code
}
