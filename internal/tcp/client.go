package tcp

import (
	"net"
	"time"
)

// Client wraps a connection with a read deadline and a one-slot pushback buffer,
// so a consumer that read past a message boundary can return the excess.
type Client interface {
	Read() ([]byte, error)
	Unread([]byte)
	Write([]byte) error
	Remote() net.Addr
	Local() net.Addr
	Close() error
}

type client struct {
	conn    net.Conn
	buff    []byte
	pending []byte
	timeout time.Duration
}

func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		conn:    conn,
		buff:    buff,
		timeout: timeout,
	}
}

func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		data := c.pending
		c.pending = nil
		return data, nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}

	n, err := c.conn.Read(c.buff)
	if n == 0 {
		return nil, err
	}

	return c.buff[:n], nil
}

func (c *client) Unread(b []byte) {
	if len(b) == 0 {
		return
	}

	c.pending = b
}

func (c *client) Write(b []byte) error {
	_, err := c.conn.Write(b)

	return err
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Local() net.Addr {
	return c.conn.LocalAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}
