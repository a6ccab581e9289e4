// Package channel implements the upgraded-channel handshake and frame codec
// (RFC 6455) on top of a raw byte stream.
package channel

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/wire"
)

// acceptGUID is the fixed hashing constant of the channel-upgrade convention.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the handshake accept token from the peer-supplied key.
func AcceptKey(key string) string {
	digest := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// Handshake holds the validated parts of an upgrade request.
type Handshake struct {
	Key          string
	Subprotocols []string
}

// ValidateUpgrade checks the upgrade request and extracts the peer key and the
// offered subprotocols.
func ValidateUpgrade(msg *wire.Message) (Handshake, error) {
	if msg.Method != "GET" || msg.Proto != "HTTP/1.1" {
		return Handshake{}, status.ErrBadHandshake
	}

	key := msg.Headers.Value("sec-websocket-key")
	if key == "" || msg.Headers.Value("sec-websocket-version") != "13" {
		return Handshake{}, status.ErrBadHandshake
	}

	var subprotocols []string
	for _, value := range msg.Headers.Values("sec-websocket-protocol") {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				subprotocols = append(subprotocols, token)
			}
		}
	}

	return Handshake{Key: key, Subprotocols: subprotocols}, nil
}

// WriteAccept completes the handshake on the wire, switching the connection to
// frame mode.
func WriteAccept(w wire.Writer, key, subprotocol string) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("upgrade: websocket\r\n")
	b.WriteString("connection: Upgrade\r\n")
	b.WriteString("sec-websocket-accept: ")
	b.WriteString(AcceptKey(key))
	b.WriteString("\r\n")

	if subprotocol != "" {
		b.WriteString("sec-websocket-protocol: ")
		b.WriteString(subprotocol)
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")

	return w.Write([]byte(b.String()))
}
