package tcp

// AsReader adapts a Client into an io.Reader, returning leftovers of oversized
// chunks back into the client.
func AsReader(client Client) *Reader {
	return &Reader{client: client}
}

type Reader struct {
	client Client
}

func (r *Reader) Read(p []byte) (int, error) {
	data, err := r.client.Read()
	if len(data) == 0 {
		return 0, err
	}

	n := copy(p, data)
	r.client.Unread(data[n:])

	return n, nil
}
