package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/config"
	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/tcp/dummy"
	"github.com/wiregate-web/wiregate/kv"
	"github.com/wiregate-web/wiregate/wire"
)

func getAdapter() *Adapter {
	return New(config.Default(), wire.NewSerializer(make([]byte, 0, 1024), nil), zap.NewNop())
}

func getContext(body []byte) *gateway.Context {
	return &gateway.Context{
		Kind:   gateway.KindRequest,
		Method: "POST",
		Path:   "/x",
		Proto:  "HTTP/1.1",
		Body:   body,
		Scope:  map[string]any{},
	}
}

func TestInvokeRequest_Exchange(t *testing.T) {
	t.Run("length-framed response", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			ev, err := ctx.ReceiveEvent()
			require.NoError(t, err)
			chunk := ev.(gateway.BodyChunk)
			require.Equal(t, "hello", string(chunk.Data))
			require.False(t, chunk.More)

			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{
				Code:    status.OK,
				Headers: kv.New().Add("content-type", "text/plain").Add("content-length", "5"),
			}))

			return ctx.SendEvent(gateway.ResponseChunk{Data: chunk.Data, More: false})
		}

		client := dummy.NewStatic()
		err := getAdapter().InvokeRequest(getContext([]byte("hello")), handler, client)
		require.ErrorIs(t, err, status.ErrCloseConnection)
		require.Equal(t,
			"HTTP/1.1 200 OK\r\ncontent-type: text/plain\r\ncontent-length: 5\r\n\r\nhello",
			string(client.Written),
		)
	})

	t.Run("chunk-framed response without declared length", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			_, err := ctx.ReceiveEvent()
			require.NoError(t, err)

			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{Code: status.OK, Headers: kv.New()}))
			require.NoError(t, ctx.SendEvent(gateway.ResponseChunk{Data: []byte("hel"), More: true}))

			return ctx.SendEvent(gateway.ResponseChunk{Data: []byte("lo"), More: false})
		}

		client := dummy.NewStatic()
		err := getAdapter().InvokeRequest(getContext(nil), handler, client)
		require.ErrorIs(t, err, status.ErrCloseConnection)
		require.Equal(t,
			"HTTP/1.1 200 OK\r\ntransfer-encoding: chunked\r\n\r\n3\r\nhel\r\n2\r\nlo\r\n0\r\n\r\n",
			string(client.Written),
		)
	})

	t.Run("large body is split into multiple chunk events", func(t *testing.T) {
		cfg := config.Default()
		cfg.NET.ReadBufferSize = 4
		adapter := New(cfg, wire.NewSerializer(make([]byte, 0, 1024), nil), zap.NewNop())

		var collected []byte
		handler := func(ctx *gateway.Context) error {
			for {
				ev, err := ctx.ReceiveEvent()
				require.NoError(t, err)
				chunk := ev.(gateway.BodyChunk)
				collected = append(collected, chunk.Data...)
				if !chunk.More {
					break
				}
			}

			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{Code: status.NoContent, Headers: kv.New()}))
			return ctx.SendEvent(gateway.ResponseChunk{More: false})
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			adapter.InvokeRequest(getContext([]byte("0123456789")), handler, client),
			status.ErrCloseConnection,
		)
		require.Equal(t, "0123456789", string(collected))
	})
}

func TestInvokeRequest_Disconnect(t *testing.T) {
	t.Run("second disconnect yields the same event", func(t *testing.T) {
		var first, second gateway.Event
		handler := func(ctx *gateway.Context) error {
			ev, err := ctx.ReceiveEvent()
			require.NoError(t, err)
			require.IsType(t, gateway.BodyChunk{}, ev)

			first, err = ctx.ReceiveEvent()
			require.NoError(t, err)
			second, err = ctx.ReceiveEvent()
			require.NoError(t, err)

			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{Code: status.NoContent, Headers: kv.New()}))
			return ctx.SendEvent(gateway.ResponseChunk{More: false})
		}

		// an exhausted peer stream means the peer is gone
		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
		require.Equal(t, gateway.Disconnect{}, first)
		require.Equal(t, gateway.Disconnect{}, second)
	})
}

func TestInvokeRequest_Violations(t *testing.T) {
	t.Run("endless receiving without a response is cut off", func(t *testing.T) {
		finals := 0
		var last error
		handler := func(ctx *gateway.Context) error {
			for {
				ev, err := ctx.ReceiveEvent()
				if err != nil {
					last = err
					return err
				}

				if chunk, ok := ev.(gateway.BodyChunk); ok && !chunk.More {
					finals++
				}
			}
		}

		// the peer stays connected and silent
		client := dummy.NewStatic([]byte("idle"))
		err := getAdapter().InvokeRequest(getContext([]byte("body")), handler, client)
		require.ErrorIs(t, err, status.ErrCloseConnection)
		require.ErrorIs(t, last, status.ErrProtocolViolation)
		require.Equal(t, maxFinalDeliveries, finals)
	})

	t.Run("response chunk before response start is fatal", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			_, err := ctx.ReceiveEvent()
			require.NoError(t, err)

			err = ctx.SendEvent(gateway.ResponseChunk{Data: []byte("early"), More: false})
			require.ErrorIs(t, err, status.ErrProtocolViolation)
			return err
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
		require.Empty(t, client.Written)
	})

	t.Run("second response start is fatal", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{Code: status.OK, Headers: kv.New()}))
			return ctx.SendEvent(gateway.ResponseStart{Code: status.OK, Headers: kv.New()})
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
	})

	t.Run("events after completion are rejected", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{Code: status.OK, Headers: kv.New()}))
			require.NoError(t, ctx.SendEvent(gateway.ResponseChunk{More: false}))

			err := ctx.SendEvent(gateway.ResponseChunk{Data: []byte("late"), More: false})
			require.ErrorIs(t, err, status.ErrResponseCompleted)
			return nil
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
	})
}

func TestInvokeRequest_Containment(t *testing.T) {
	t.Run("handler error before start synthesizes 500", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			return errors.New("backend exploded")
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
		require.Contains(t, string(client.Written), "500 Internal Server Error")
	})

	t.Run("handler panic after start closes uncleanly", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			require.NoError(t, ctx.SendEvent(gateway.ResponseStart{Code: status.OK, Headers: kv.New()}))
			panic("mid-response")
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
		require.NotContains(t, string(client.Written), "500")
	})

	t.Run("handler returning without a response synthesizes 500", func(t *testing.T) {
		handler := func(ctx *gateway.Context) error {
			return nil
		}

		client := dummy.NewStatic()
		require.ErrorIs(t,
			getAdapter().InvokeRequest(getContext(nil), handler, client),
			status.ErrCloseConnection,
		)
		require.Contains(t, string(client.Written), "500 Internal Server Error")
	})
}

func TestSplitBody(t *testing.T) {
	require.Equal(t, [][]byte{nil}, splitBody(nil, 4))
	require.Equal(t, [][]byte{[]byte("ab")}, splitBody([]byte("ab"), 4))
	require.Equal(t,
		[][]byte{[]byte("0123"), []byte("4567"), []byte("89")},
		splitBody([]byte("0123456789"), 4),
	)
	require.Equal(t, [][]byte{[]byte("0123")}, splitBody([]byte("0123"), 4))
}
