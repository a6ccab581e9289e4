package wire

import (
	"bytes"
	"net"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/uf"
	"github.com/wiregate-web/wiregate/config"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/tcp"
	"github.com/wiregate-web/wiregate/kv"
)

var headTerminator = []byte("\r\n\r\n")

// Parser reads one message at a time from a client. Bytes past the message
// boundary are returned to the client, so pipelined or keep-alive requests stay
// intact for the next Parse call.
type Parser struct {
	cfg config.Config
}

func NewParser(cfg config.Config) *Parser {
	return &Parser{cfg: cfg}
}

// Parse blocks until a complete message arrives, the read deadline expires, or
// the peer closes. Returned errors are typed via gateway/status: framing errors
// carry the code to respond with, status.ErrDisconnected means the peer went
// away between messages and the connection must be closed silently.
func (p *Parser) Parse(client tcp.Client) (*Message, error) {
	head, extra, err := p.readHead(client)
	if err != nil {
		return nil, err
	}

	message, err := parseHead(head)
	if err != nil {
		return nil, err
	}

	length, err := p.bodyLength(message.Headers)
	if err != nil {
		return nil, err
	}

	message.Body, err = p.readBody(client, extra, length)
	if err != nil {
		return nil, err
	}

	return message, nil
}

// readHead accumulates bytes until the header terminator, bounded by
// Headers.MaxSize. Returns the head section (terminator excluded) and whatever
// arrived past it.
func (p *Parser) readHead(client tcp.Client) (head, extra []byte, err error) {
	var buff []byte

	for {
		data, err := client.Read()
		if err != nil {
			if isTimeout(err) && len(buff) > 0 {
				return nil, nil, status.ErrHeaderTimeout
			}

			// a peer silent before the first byte, or gone mid-header: nothing
			// was promised to it yet, close without a report
			return nil, nil, status.ErrDisconnected
		}

		buff = append(buff, data...)
		if len(buff) > p.cfg.Headers.MaxSize {
			return nil, nil, status.ErrHeaderTooLarge
		}

		if idx := bytes.Index(buff, headTerminator); idx != -1 {
			return buff[:idx], buff[idx+len(headTerminator):], nil
		}
	}
}

func parseHead(head []byte) (*Message, error) {
	line, rest, _ := bytes.Cut(head, []byte("\r\n"))

	message, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	message.Headers, err = parseHeaders(rest)
	if err != nil {
		return nil, err
	}

	return message, nil
}

func parseRequestLine(line []byte) (*Message, error) {
	method, rest, found := bytes.Cut(line, []byte(" "))
	if !found || len(method) == 0 {
		return nil, status.ErrMalformedRequestLine
	}

	target, proto, found := bytes.Cut(rest, []byte(" "))
	if !found || len(target) == 0 || bytes.ContainsRune(proto, ' ') {
		return nil, status.ErrMalformedRequestLine
	}

	switch uf.B2S(proto) {
	case "HTTP/1.0", "HTTP/1.1":
	default:
		if !bytes.HasPrefix(proto, []byte("HTTP/")) {
			return nil, status.ErrMalformedRequestLine
		}

		return nil, status.ErrUnsupportedProtocol
	}

	path, query, _ := bytes.Cut(target, []byte("?"))

	return &Message{
		Method:   uf.B2S(method),
		Path:     uf.B2S(path),
		RawQuery: uf.B2S(query),
		Proto:    uf.B2S(proto),
	}, nil
}

func parseHeaders(section []byte) (*kv.Storage, error) {
	headers := kv.NewPrealloc(8)

	for len(section) > 0 {
		line, rest, _ := bytes.Cut(section, []byte("\r\n"))
		section = rest

		key, value, found := bytes.Cut(line, []byte(":"))
		if !found || len(key) == 0 || bytes.ContainsAny(key, " \t") {
			return nil, status.ErrMalformedHeader
		}

		headers.Add(
			strings.ToLower(uf.B2S(key)),
			uf.B2S(bytes.Trim(value, " \t")),
		)
	}

	return headers, nil
}

func (p *Parser) bodyLength(headers *kv.Storage) (int64, error) {
	if te := headers.Value("transfer-encoding"); te != "" {
		if strings.Contains(strings.ToLower(te), "chunked") {
			return 0, status.ErrUnsupportedFraming
		}

		return 0, status.ErrMalformedHeader
	}

	raw, found := headers.Get("content-length")
	if !found {
		return 0, nil
	}

	length, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || length < 0 {
		return 0, status.ErrMalformedHeader
	}

	if length > p.cfg.Body.MaxSize {
		return 0, status.ErrBodyTooLarge
	}

	return length, nil
}

// readBody reads exactly length bytes, starting with the already-buffered extra.
// The declared length is authoritative: excess bytes are pushed back for the
// next message, insufficient bytes end in a timeout or a framing error.
func (p *Parser) readBody(client tcp.Client, extra []byte, length int64) ([]byte, error) {
	if int64(len(extra)) >= length {
		client.Unread(extra[length:])

		return extra[:length], nil
	}

	body := make([]byte, len(extra), length)
	copy(body, extra)

	for int64(len(body)) < length {
		data, err := client.Read()
		if err != nil {
			if isTimeout(err) {
				return nil, status.ErrBodyTimeout
			}

			return nil, status.ErrBodyIncomplete
		}

		missing := length - int64(len(body))
		if int64(len(data)) > missing {
			body = append(body, data[:missing]...)
			client.Unread(data[missing:])
			break
		}

		body = append(body, data...)
	}

	return body, nil
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
