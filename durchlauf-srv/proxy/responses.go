package proxy

import (
	"fmt"
	"net"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

// connectEstablished is the synthesized CONNECT success response.
var connectEstablished = []byte("HTTP/1.1 200 Connection Established\r\n\r\n")

// serviceUnavailable is the synthesized admission rejection response.
var serviceUnavailable = []byte("HTTP/1.1 503 Service Unavailable\r\n" +
	"Content-Type: text/plain\r\n" +
	"Connection: close\r\n" +
	"\r\n" +
	"Proxy server at maximum capacity. Please try again later.\r\n")

var statusMessages = map[int]string{
	400: "Bad Request",
	403: "Forbidden",
	408: "Request Timeout",
	500: "Internal Server Error",
	501: "Not Implemented",
}

const detailedErrorTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>%d %s</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        h1 { color: #d32f2f; }
        .error-code { font-size: 72px; font-weight: bold; color: #e0e0e0; }
        .message { margin-top: 20px; padding: 20px; background: #f5f5f5; border-left: 4px solid #d32f2f; }
    </style>
</head>
<body>
    <div class="error-code">%d</div>
    <h1>%s</h1>
    <div class="message">%s</div>
    <hr>
    <p><small>durchlauf proxy</small></p>
</body>
</html>`

const genericErrorTemplate = `<!DOCTYPE html>
<html>
<head><title>%d %s</title></head>
<body>
    <h1>%d %s</h1>
    <p>%s</p>
</body>
</html>`

// buildErrorResponse renders a complete HTTP error response with an HTML
// body. The detailed flag selects the styled template over the plain one;
// the message renders in both. Callers substitute a generic message where
// internals must not leak (the 500 path).
func buildErrorResponse(statusCode int, message string, detailed bool) []byte {
	statusMessage, ok := statusMessages[statusCode]
	if !ok {
		statusMessage = "Error"
	}

	var body string
	if detailed {
		body = fmt.Sprintf(detailedErrorTemplate, statusCode, statusMessage, statusCode, statusMessage, message)
	} else {
		body = fmt.Sprintf(genericErrorTemplate, statusCode, statusMessage, statusCode, statusMessage, message)
	}

	head := fmt.Sprintf("HTTP/1.1 %d %s\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n", statusCode, statusMessage, len(body))

	return append([]byte(head), body...)
}

// sendErrorResponse writes an error response to the client. Write failures
// are logged and otherwise ignored; the connection is about to close anyway.
func sendErrorResponse(conn net.Conn, statusCode int, message string, detailed bool) {
	if _, err := conn.Write(buildErrorResponse(statusCode, message, detailed)); err != nil {
		logger.Debug("Failed to send %d response: %v", statusCode, err)
	}
}
