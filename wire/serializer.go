package wire

import (
	"strconv"
	"strings"

	"github.com/indigo-web/utils/uf"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

const (
	contentLength    = "content-length: "
	transferEncoding = "transfer-encoding: "
	connectionClose  = "connection: close\r\n"
	crlf             = "\r\n"
	colonsp          = ": "
)

var chunkedFinalizer = []byte("0\r\n\r\n")

// Framing tells how the response body is delimited on the wire.
type Framing uint8

const (
	// FramingLength: the head carries a content-length, body bytes are raw.
	FramingLength Framing = iota + 1
	// FramingChunked: body is sent as length-prefixed chunks.
	FramingChunked
	// FramingClose: no length is known; the connection close delimits the body.
	FramingClose
)

type Writer interface {
	Write([]byte) error
}

// Serializer renders responses into a reusable buffer before handing them to the
// writer. One instance serves one connection.
type Serializer struct {
	buff           []byte
	defaultHeaders defaultHeaders
}

func NewSerializer(buff []byte, defHdrs map[string]string) *Serializer {
	return &Serializer{
		buff:           buff[:0],
		defaultHeaders: processDefaultHeaders(defHdrs),
	}
}

// WriteBuffered renders and sends a fully buffered response. A content-length
// header is added unless the handler declared one itself. suppressBody serves
// HEAD responses: the head is rendered as usual, the body bytes are withheld.
func (s *Serializer) WriteBuffered(
	w Writer, proto string, code status.Code, headers *kv.Storage, body []byte, suppressBody bool,
) error {
	defer s.clear()

	s.renderStatusLine(proto, code)
	declared := s.renderHeaders(headers)

	if !hasHeader(declared, "content-length") {
		s.buff = strconv.AppendInt(append(s.buff, contentLength...), int64(len(body)), 10)
		s.crlf()
	}

	s.crlf()

	if !suppressBody {
		s.buff = append(s.buff, body...)
	}

	return w.Write(s.buff)
}

// WriteHead renders and sends the status line and headers only, appending the
// framing declaration the body writing will follow.
func (s *Serializer) WriteHead(
	w Writer, proto string, code status.Code, headers *kv.Storage, framing Framing,
) error {
	defer s.clear()

	s.renderStatusLine(proto, code)
	declared := s.renderHeaders(headers)

	switch framing {
	case FramingChunked:
		if !hasHeader(declared, "transfer-encoding") {
			s.buff = append(s.buff, transferEncoding...)
			s.buff = append(s.buff, "chunked"...)
			s.crlf()
		}
	case FramingClose:
		if !hasHeader(declared, "connection") {
			s.buff = append(s.buff, connectionClose...)
		}
	}

	s.crlf()

	return w.Write(s.buff)
}

// WriteChunk sends one body chunk respecting the framing declared by WriteHead.
// Empty chunks are skipped for chunked framing, as an empty chunk terminates it.
func (s *Serializer) WriteChunk(w Writer, data []byte, framing Framing) error {
	if framing != FramingChunked {
		return w.Write(data)
	}

	if len(data) == 0 {
		return nil
	}

	defer s.clear()

	s.buff = strconv.AppendUint(s.buff, uint64(len(data)), 16)
	s.crlf()
	s.buff = append(s.buff, data...)
	s.crlf()

	return w.Write(s.buff)
}

// Finish completes the body according to the framing. Only chunked framing has
// an explicit terminator.
func (s *Serializer) Finish(w Writer, framing Framing) error {
	if framing != FramingChunked {
		return nil
	}

	return w.Write(chunkedFinalizer)
}

// WriteError sends a minimal response for an engine-level failure, e.g. a
// framing error. 0-coded control sentinels are mapped to a silent close.
func (s *Serializer) WriteError(w Writer, proto string, err error) error {
	code := status.CodeOf(err)
	if code == status.CloseConnection {
		return nil
	}

	body := uf.S2B(err.Error())

	return s.WriteBuffered(w, proto, code, kv.New().Add("connection", "close"), body, false)
}

// DetectFraming derives response framing from handler-declared headers: an
// explicit content-length wins, otherwise the body is chunk-framed.
func DetectFraming(headers *kv.Storage) Framing {
	if headers != nil && headers.Has("content-length") {
		return FramingLength
	}

	return FramingChunked
}

func (s *Serializer) renderStatusLine(proto string, code status.Code) {
	s.buff = append(s.buff, proto...)
	s.buff = append(s.buff, ' ')

	if line := status.Line(code); line != "" {
		s.buff = append(s.buff, line...)
	} else {
		s.buff = strconv.AppendInt(s.buff, int64(code), 10)
		s.buff = append(s.buff, ' ')
		s.buff = append(s.buff, status.Text(code)...)
	}

	s.crlf()
}

// renderHeaders writes the handler's headers in their declared order, then the
// default headers that were not overridden. Returns the handler's headers for
// follow-up lookups.
func (s *Serializer) renderHeaders(headers *kv.Storage) *kv.Storage {
	if headers != nil {
		for _, pair := range headers.Pairs() {
			s.buff = append(s.buff, pair.Key...)
			s.buff = append(s.buff, colonsp...)
			s.buff = append(s.buff, pair.Value...)
			s.crlf()
			s.defaultHeaders.Exclude(pair.Key)
		}
	}

	for _, header := range s.defaultHeaders {
		if header.Excluded {
			continue
		}

		s.buff = append(s.buff, header.Full...)
	}

	return headers
}

func (s *Serializer) crlf() {
	s.buff = append(s.buff, crlf...)
}

func (s *Serializer) clear() {
	s.buff = s.buff[:0]
	s.defaultHeaders.Reset()
}

func hasHeader(headers *kv.Storage, key string) bool {
	return headers != nil && headers.Has(key)
}

func processDefaultHeaders(hdrs map[string]string) defaultHeaders {
	processed := make(defaultHeaders, 0, len(hdrs))

	for key, value := range hdrs {
		full := key + colonsp + value + crlf
		processed = append(processed, defaultHeader{
			// the brand-new line is sliced for the key, letting the GC release
			// the original map
			Key:  full[:len(key)],
			Full: full,
		})
	}

	return processed
}

type defaultHeader struct {
	Excluded bool
	Key      string
	Full     string
}

type defaultHeaders []defaultHeader

func (d defaultHeaders) Exclude(key string) {
	for i, header := range d {
		if strings.EqualFold(header.Key, key) {
			header.Excluded = true
			d[i] = header
			return
		}
	}
}

func (d defaultHeaders) Reset() {
	for i := range d {
		d[i].Excluded = false
	}
}
