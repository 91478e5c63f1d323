package httpwire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Version is the protocol version written on every request line.
const Version = "HTTP/1.1"

var (
	// ErrMalformedResponse is returned when a response violates the framing the
	// browser understands: a short status line, a header line without a colon,
	// or a missing required header.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUnhandledTransferEncoding is returned for any Transfer-Encoding other than chunked.
	ErrUnhandledTransferEncoding = errors.New("unhandled transfer-encoding")
)

// Response is a fully read HTTP response. Body holds the raw bytes after
// transfer decoding but before content decoding.
type Response struct {
	Version     string
	Status      int
	Explanation string
	Headers     *Headers
	Body        []byte
}

// WriteRequest writes a GET request for path and flushes w.
func WriteRequest(w *bufio.Writer, path string, headers *Headers) error {
	if _, err := fmt.Fprintf(w, "GET %s %s\r\n", path, Version); err != nil {
		return fmt.Errorf("write request line: %w", err)
	}
	if _, err := w.WriteString(headers.WireString() + "\r\n"); err != nil {
		return fmt.Errorf("write request headers: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush request: %w", err)
	}
	return nil
}

// ReadResponse reads one response from r, consuming exactly its bytes so the
// stream can carry the next exchange.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("read status line: %w", err)
	}

	resp := &Response{Headers: NewHeaders()}
	if err := resp.parseStatusLine(line); err != nil {
		return nil, err
	}

	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("read header line: %w", err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q has no colon", ErrMalformedResponse, line)
		}
		resp.Headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	resp.Body, err = readBody(r, resp.Headers)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (resp *Response) parseStatusLine(line string) error {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 3 {
		return fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}
	status, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return fmt.Errorf("%w: status code %q", ErrMalformedResponse, parts[1])
	}
	resp.Version = parts[0]
	resp.Status = int(status)
	resp.Explanation = parts[2]
	return nil
}

// readLine returns the next line without its trailing CRLF. A stream that
// ends before the line terminator is reported as io.ErrUnexpectedEOF, except
// when nothing at all was read.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readBody(r *bufio.Reader, headers *Headers) ([]byte, error) {
	if te, ok := headers.Get("Transfer-Encoding"); ok {
		if te != "chunked" {
			return nil, fmt.Errorf("%w: %q", ErrUnhandledTransferEncoding, te)
		}
		return readChunked(r)
	}

	cl, ok := headers.Get("Content-Length")
	if !ok {
		return nil, fmt.Errorf("%w: no Content-Length or Transfer-Encoding", ErrMalformedResponse)
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: Content-Length %q", ErrMalformedResponse, cl)
	}
	return readN(r, n)
}

func readChunked(r *bufio.Reader) ([]byte, error) {
	var body bytes.Buffer
	crlf := make([]byte, 2)
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("read chunk size: %w", err)
		}
		size, _, _ := strings.Cut(line, ";")
		n, err := strconv.ParseInt(strings.TrimSpace(size), 16, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: chunk size %q", ErrMalformedResponse, line)
		}

		chunk, err := readN(r, n)
		if err != nil {
			return nil, err
		}
		body.Write(chunk)

		if _, err := io.ReadFull(r, crlf); err != nil {
			return nil, fmt.Errorf("read chunk terminator: %w", unexpectedEOF(err))
		}
		if string(crlf) != "\r\n" {
			return nil, fmt.Errorf("%w: chunk not terminated by CRLF", ErrMalformedResponse)
		}

		if n == 0 {
			return body.Bytes(), nil
		}
	}
}

func readN(r io.Reader, n int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, n); err != nil {
		return nil, fmt.Errorf("read body: %w", unexpectedEOF(err))
	}
	return buf.Bytes(), nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Decompress inflates a gzip-encoded body.
func Decompress(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}
