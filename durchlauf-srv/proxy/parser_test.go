package proxy

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectRequest(t *testing.T) {
	raw := []byte("CONNECT example.com:8443 HTTP/1.1\r\nHost: example.com:8443\r\n\r\n")
	req, err := ParseRequest(raw)
	require.NoError(t, err)

	assert.Equal(t, "CONNECT", req.Method)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 8443, req.Port)
	assert.Equal(t, raw, req.Raw)
}

func TestParseConnectDefaultPort(t *testing.T) {
	req, err := ParseRequest([]byte("CONNECT example.com HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 443, req.Port)
}

func TestParseConnectInvalidPort(t *testing.T) {
	_, err := ParseRequest([]byte("CONNECT example.com:abc HTTP/1.1\r\n\r\n"))
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestParseHostHeader(t *testing.T) {
	req, err := ParseRequest([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 80, req.Port)
}

func TestParseHostHeaderWithPort(t *testing.T) {
	req, err := ParseRequest([]byte("GET / HTTP/1.1\r\nHost: example.com:9090\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 9090, req.Port)
}

func TestParseAbsoluteFormTarget(t *testing.T) {
	req, err := ParseRequest([]byte("GET http://example.com:8080/path HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 8080, req.Port)
}

func TestParseAbsoluteFormDefaultPort(t *testing.T) {
	req, err := ParseRequest([]byte("GET http://example.com/ HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 80, req.Port)
}

func TestParseNoHostFails(t *testing.T) {
	_, err := ParseRequest([]byte("GET /relative HTTP/1.1\r\nAccept: */*\r\n\r\n"))
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestParseMalformedRequestLine(t *testing.T) {
	_, err := ParseRequest([]byte("GARBAGE\r\n\r\n"))
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestParseHeadersLowercasedLastWins(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"X-Custom: first\r\n" +
		"x-custom: second\r\n" +
		"\r\n")
	req, err := ParseRequest(raw)
	require.NoError(t, err)

	assert.Equal(t, "second", req.Headers["x-custom"])
	_, hasUppercase := req.Headers["X-Custom"]
	assert.False(t, hasUppercase)
}

func TestParseContentLength(t *testing.T) {
	req, err := ParseRequest([]byte("POST / HTTP/1.1\r\nHost: example.com\r\nContent-Length: 42\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), req.ContentLength)
}

func TestParseContentLengthUnparsable(t *testing.T) {
	req, err := ParseRequest([]byte("POST / HTTP/1.1\r\nHost: example.com\r\nContent-Length: banana\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), req.ContentLength)
}

func TestParseContentLengthNegative(t *testing.T) {
	req, err := ParseRequest([]byte("POST / HTTP/1.1\r\nHost: example.com\r\nContent-Length: -5\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), req.ContentLength)
}

func TestReadRequestHeaders(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	request := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	go func() {
		_, _ = client.Write([]byte(request))
	}()

	raw, err := ReadRequestHeaders(server, 8, 64*1024)
	require.NoError(t, err)
	assert.Equal(t, []byte(request), raw)
}

func TestReadRequestHeadersPeerClosed(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("GET / HT"))
		client.Close()
	}()

	raw, err := ReadRequestHeaders(server, 4096, 64*1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("GET / HT"), raw)
}

func TestReadRequestHeadersTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 1024)
		for i := range buf {
			buf[i] = 'a'
		}
		for {
			if _, err := client.Write(buf); err != nil {
				return
			}
		}
	}()

	_, err := ReadRequestHeaders(server, 1024, 4096)
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestReadRequestBodyShortRead(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("abc"))
		client.Close()
	}()

	body := ReadRequestBody(server, 10, 4096)
	assert.Equal(t, []byte("abc"), body)
}

func TestReadRequestBodyExact(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("hello world"))
	}()

	body := ReadRequestBody(server, 5, 2)
	assert.Equal(t, []byte("hello"), body)
}

func TestExtractResponseStatus(t *testing.T) {
	assert.Equal(t, 200, ExtractResponseStatus([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK")))
	assert.Equal(t, 404, ExtractResponseStatus([]byte("HTTP/1.0 404 Not Found\r\n\r\n")))
	assert.Equal(t, 0, ExtractResponseStatus([]byte("not an http response")))
	assert.Equal(t, 0, ExtractResponseStatus(nil))
	assert.Equal(t, 0, ExtractResponseStatus([]byte("HTTP/1.1 abc\r\n\r\n")))
}

func TestReadRequestHeadersTimeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := net.Dial("tcp", listener.Addr().String())
		if err != nil {
			return
		}
		// Send a partial request and keep the connection open.
		_, _ = conn.Write([]byte("GET / HT"))
		time.Sleep(2 * time.Second)
		conn.Close()
	}()

	conn, err := listener.Accept()
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))

	raw, err := ReadRequestHeaders(conn, 4096, 64*1024)
	require.Error(t, err)
	netErr, ok := err.(net.Error)
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
	assert.Equal(t, []byte("GET / HT"), raw)
}
