package wire

import (
	"bufio"
	"bytes"
	"io"
	stdhttp "net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

type accumulativeWriter struct {
	Data []byte
}

func (a *accumulativeWriter) Write(b []byte) error {
	a.Data = append(a.Data, b...)
	return nil
}

func getSerializer(defHdrs map[string]string) *Serializer {
	return NewSerializer(make([]byte, 0, 1024), defHdrs)
}

func readResponse(t *testing.T, raw []byte) *stdhttp.Response {
	t.Helper()
	stdreq, err := stdhttp.NewRequest(stdhttp.MethodGet, "/", nil)
	require.NoError(t, err)
	resp, err := stdhttp.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), stdreq)
	require.NoError(t, err)
	return resp
}

func TestWriteBuffered(t *testing.T) {
	t.Run("exact wire bytes", func(t *testing.T) {
		writer := new(accumulativeWriter)
		headers := kv.New().Add("content-type", "text/plain")
		require.NoError(t, getSerializer(nil).WriteBuffered(writer, "HTTP/1.1", status.OK, headers, []byte("hi"), false))
		require.Equal(t,
			"HTTP/1.1 200 OK\r\ncontent-type: text/plain\r\ncontent-length: 2\r\n\r\nhi",
			string(writer.Data),
		)
	})

	t.Run("default headers rendered unless overridden", func(t *testing.T) {
		serializer := getSerializer(map[string]string{"Server": "wiregate"})
		writer := new(accumulativeWriter)
		require.NoError(t, serializer.WriteBuffered(writer, "HTTP/1.1", status.OK, kv.New(), nil, false))

		resp := readResponse(t, writer.Data)
		require.Equal(t, "wiregate", resp.Header.Get("Server"))

		writer = new(accumulativeWriter)
		overridden := kv.New().Add("server", "custom")
		require.NoError(t, serializer.WriteBuffered(writer, "HTTP/1.1", status.OK, overridden, nil, false))

		resp = readResponse(t, writer.Data)
		require.Equal(t, []string{"custom"}, resp.Header["Server"])
	})

	t.Run("declared content-length is not duplicated", func(t *testing.T) {
		writer := new(accumulativeWriter)
		headers := kv.New().Add("content-length", "2")
		require.NoError(t, getSerializer(nil).WriteBuffered(writer, "HTTP/1.1", status.OK, headers, []byte("hi"), false))
		require.Equal(t, 1, bytes.Count(bytes.ToLower(writer.Data), []byte("content-length")))
	})

	t.Run("suppressed body keeps the length", func(t *testing.T) {
		writer := new(accumulativeWriter)
		require.NoError(t, getSerializer(nil).WriteBuffered(writer, "HTTP/1.1", status.OK, kv.New(), []byte("hi"), true))
		require.True(t, bytes.HasSuffix(writer.Data, []byte("content-length: 2\r\n\r\n")))
	})

	t.Run("unknown code falls back to numeric line", func(t *testing.T) {
		writer := new(accumulativeWriter)
		require.NoError(t, getSerializer(nil).WriteBuffered(writer, "HTTP/1.1", status.Teapot, kv.New(), nil, false))
		require.True(t, bytes.HasPrefix(writer.Data, []byte("HTTP/1.1 418 I'm a teapot\r\n")))
	})
}

func TestWriteStreamed(t *testing.T) {
	t.Run("chunked round trip", func(t *testing.T) {
		serializer := getSerializer(nil)
		writer := new(accumulativeWriter)

		require.NoError(t, serializer.WriteHead(writer, "HTTP/1.1", status.OK, kv.New(), FramingChunked))
		require.NoError(t, serializer.WriteChunk(writer, []byte("hello, "), FramingChunked))
		require.NoError(t, serializer.WriteChunk(writer, nil, FramingChunked))
		require.NoError(t, serializer.WriteChunk(writer, []byte("world"), FramingChunked))
		require.NoError(t, serializer.Finish(writer, FramingChunked))

		resp := readResponse(t, writer.Data)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "hello, world", string(body))
		require.Equal(t, []string{"chunked"}, resp.TransferEncoding)
	})

	t.Run("close-delimited declares connection close", func(t *testing.T) {
		serializer := getSerializer(nil)
		writer := new(accumulativeWriter)

		require.NoError(t, serializer.WriteHead(writer, "HTTP/1.1", status.OK, kv.New(), FramingClose))
		require.NoError(t, serializer.WriteChunk(writer, []byte("raw bytes"), FramingClose))
		require.NoError(t, serializer.Finish(writer, FramingClose))

		require.Contains(t, string(writer.Data), "connection: close\r\n")
		require.True(t, bytes.HasSuffix(writer.Data, []byte("\r\n\r\nraw bytes")))
	})

	t.Run("length-framed round trip", func(t *testing.T) {
		serializer := getSerializer(nil)
		writer := new(accumulativeWriter)
		headers := kv.New().Add("content-length", "5")

		require.Equal(t, FramingLength, DetectFraming(headers))
		require.NoError(t, serializer.WriteHead(writer, "HTTP/1.1", status.OK, headers, FramingLength))
		require.NoError(t, serializer.WriteChunk(writer, []byte("hello"), FramingLength))

		resp := readResponse(t, writer.Data)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "hello", string(body))
	})
}

func TestWriteError(t *testing.T) {
	t.Run("framing error becomes a response", func(t *testing.T) {
		writer := new(accumulativeWriter)
		require.NoError(t, getSerializer(nil).WriteError(writer, "HTTP/1.1", status.ErrMalformedRequestLine))

		resp := readResponse(t, writer.Data)
		require.Equal(t, 400, resp.StatusCode)
		require.Equal(t, "close", resp.Header.Get("Connection"))
	})

	t.Run("control sentinel stays silent", func(t *testing.T) {
		writer := new(accumulativeWriter)
		require.NoError(t, getSerializer(nil).WriteError(writer, "HTTP/1.1", status.ErrDisconnected))
		require.Empty(t, writer.Data)
	})
}

func TestMessageHelpers(t *testing.T) {
	t.Run("keep alive defaults", func(t *testing.T) {
		msg := &Message{Proto: "HTTP/1.1", Headers: kv.New()}
		require.True(t, msg.KeepAlive())
		msg.Headers.Add("connection", "close")
		require.False(t, msg.KeepAlive())

		old := &Message{Proto: "HTTP/1.0", Headers: kv.New()}
		require.False(t, old.KeepAlive())
		old.Headers.Add("connection", "keep-alive")
		require.True(t, old.KeepAlive())
	})

	t.Run("upgrade detection", func(t *testing.T) {
		msg := &Message{Proto: "HTTP/1.1", Headers: kv.New().
			Add("connection", "keep-alive, Upgrade").
			Add("upgrade", "websocket")}
		require.True(t, msg.IsUpgrade())

		plain := &Message{Proto: "HTTP/1.1", Headers: kv.New()}
		require.False(t, plain.IsUpgrade())
	})
}
