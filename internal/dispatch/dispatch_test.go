package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/config"
	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/tcp/dummy"
	"github.com/wiregate-web/wiregate/kv"
)

func bareConfig() config.Config {
	cfg := config.Default()
	cfg.HTTP.DefaultHeaders = map[string]string{}

	return cfg
}

func serveUnary(handler gateway.Handler, chunks ...[]byte) *dummy.Static {
	client := dummy.NewStatic(chunks...)
	NewUnary(bareConfig(), handler, zap.NewNop()).Serve(client, "http")

	return client
}

func serveEvents(handler gateway.EventHandler, chunks ...[]byte) *dummy.Static {
	client := dummy.NewStatic(chunks...)
	NewEvents(bareConfig(), handler, zap.NewNop()).Serve(client, "http")

	return client
}

func TestServe_Unary(t *testing.T) {
	t.Run("single exchange", func(t *testing.T) {
		handler := func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			_ = begin(status.OK, kv.New().Add("content-type", "text/plain"), nil)
			return gateway.Chunks([]byte("hi"))
		}

		client := serveUnary(handler, []byte("GET /x HTTP/1.1\r\nhost: a\r\nconnection: close\r\n\r\n"))
		require.Equal(t,
			"HTTP/1.1 200 OK\r\ncontent-type: text/plain\r\ncontent-length: 2\r\n\r\nhi",
			string(client.Written),
		)
	})

	t.Run("context carries the transport view", func(t *testing.T) {
		handler := func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			require.Equal(t, gateway.KindRequest, ctx.Kind)
			require.Equal(t, "POST", ctx.Method)
			require.Equal(t, "/submit", ctx.Path)
			require.Equal(t, "a=1&b=2", ctx.RawQuery)
			require.Equal(t, "http", ctx.Scheme)
			require.Equal(t, "example", ctx.Headers.Value("host"))
			require.Equal(t, "ping", string(ctx.Body))
			require.NotNil(t, ctx.RemoteAddr)

			_ = begin(status.NoContent, kv.New(), nil)
			return gateway.NoBody()
		}

		client := serveUnary(handler,
			[]byte("POST /submit?a=1&b=2 HTTP/1.1\r\nhost: example\r\ncontent-length: 4\r\n\r\nping"))
		require.Contains(t, string(client.Written), "204 No Content")
	})

	t.Run("keep-alive serves pipelined exchanges", func(t *testing.T) {
		served := 0
		handler := func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			served++
			_ = begin(status.OK, kv.New(), nil)
			return gateway.Chunks([]byte(ctx.Path))
		}

		client := serveUnary(handler,
			[]byte("GET /first HTTP/1.1\r\nhost: a\r\n\r\nGET /second HTTP/1.1\r\nhost: a\r\n\r\n"))
		require.Equal(t, 2, served)
		require.Contains(t, string(client.Written), "/first")
		require.Contains(t, string(client.Written), "/second")
	})

	t.Run("framing error yields a 400-class response", func(t *testing.T) {
		handler := func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			t.Fatal("the handler must never see a malformed message")
			return nil
		}

		client := serveUnary(handler, []byte("garbage with no structure\r\n\r\n"))
		require.True(t, strings.HasPrefix(string(client.Written), "HTTP/1.1 400 Bad Request\r\n"))
	})

	t.Run("handler panic never kills the dispatcher", func(t *testing.T) {
		handler := func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			panic("boom")
		}

		client := serveUnary(handler, []byte("GET / HTTP/1.1\r\nhost: a\r\n\r\n"))
		require.Contains(t, string(client.Written), "500 Internal Server Error")
	})
}

func TestServe_Events(t *testing.T) {
	t.Run("plain exchange goes to the request flow", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			require.Equal(t, gateway.KindRequest, ctx.Kind)

			ev, err := ctx.ReceiveEvent()
			require.NoError(t, err)
			require.Equal(t, "ping", string(ev.(gateway.BodyChunk).Data))

			err = ctx.SendEvent(gateway.ResponseStart{Code: status.OK, Headers: kv.New()})
			require.NoError(t, err)

			return ctx.SendEvent(gateway.ResponseChunk{Data: []byte("pong"), More: false})
		}

		client := serveEvents(handler,
			[]byte("POST /echo HTTP/1.1\r\nhost: a\r\ncontent-length: 4\r\n\r\nping"))
		require.Contains(t, string(client.Written), "200 OK")
		require.Contains(t, string(client.Written), "pong")
	})

	t.Run("upgrade goes to the channel flow", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			require.Equal(t, gateway.KindChannel, ctx.Kind)

			ev, err := ctx.ReceiveEvent()
			require.NoError(t, err)
			require.IsType(t, gateway.ChannelConnect{}, ev)

			require.NoError(t, ctx.SendEvent(gateway.ChannelAccept{}))

			ev, err = ctx.ReceiveEvent()
			require.NoError(t, err)
			require.Equal(t, gateway.ChannelClose{Code: 1000}, ev)

			return nil
		}

		upgrade := "GET /ws HTTP/1.1\r\n" +
			"host: a\r\n" +
			"upgrade: websocket\r\n" +
			"connection: Upgrade\r\n" +
			"sec-websocket-key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
			"sec-websocket-version: 13\r\n\r\n"
		// a masked close frame with code 1000 follows the handshake
		closeFrame := []byte{0x88, 0x82, 0x0A, 0x0B, 0x0C, 0x0D, 0x0A ^ 0x03, 0x0B ^ 0xE8}

		client := serveEvents(handler, []byte(upgrade), closeFrame)
		require.Contains(t, string(client.Written), "101 Switching Protocols")
		require.Contains(t, string(client.Written), "sec-websocket-accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
	})

	t.Run("broken upgrade is answered at the request level", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			_, err := ctx.ReceiveEvent()
			return err
		}

		client := serveEvents(handler,
			[]byte("POST /ws HTTP/1.1\r\nhost: a\r\nupgrade: websocket\r\nconnection: Upgrade\r\ncontent-length: 0\r\n\r\n"))
		require.Contains(t, string(client.Written), "400 Bad Request")
	})
}
