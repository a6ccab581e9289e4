package status

// Error is a status-coded error. Errors carrying the same code compare equal via
// errors.Is as long as their messages match, which keeps sentinels usable.
type Error struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return Error{
		Code:    code,
		Message: message,
	}
}

func (e Error) Error() string {
	return e.Message
}

// CodeOf extracts the status code carried by err, falling back to 500 for
// arbitrary errors.
func CodeOf(err error) Code {
	if statusErr, ok := err.(Error); ok {
		return statusErr.Code
	}

	return InternalServerError
}

// Framing errors. Always fatal to the connection; reported as a 400-class
// response if no bytes were sent yet, otherwise the connection is closed
// silently. They never reach a handler.
var (
	ErrMalformedRequestLine = NewError(BadRequest, "malformed request line")
	ErrMalformedHeader      = NewError(BadRequest, "malformed header line")
	ErrHeaderTooLarge       = NewError(HeaderFieldsTooLarge, "header section exceeds the allowed size")
	ErrHeaderTimeout        = NewError(RequestTimeout, "timed out reading the header section")
	ErrBodyTimeout          = NewError(RequestTimeout, "timed out reading the message body")
	ErrBodyIncomplete       = NewError(BadRequest, "peer closed before the declared body arrived")
	ErrBodyTooLarge         = NewError(RequestEntityTooLarge, "request body is too large")
	ErrUnsupportedFraming   = NewError(NotImplemented, "chunked request framing is not supported")
	ErrUnsupportedProtocol  = NewError(HTTPVersionNotSupported, "protocol version not supported")
	ErrBadHandshake         = NewError(BadRequest, "malformed channel upgrade handshake")
)

// ErrInternalServerError is the response synthesized when a handler fails
// before anything reached the wire.
var ErrInternalServerError = NewError(InternalServerError, "internal server error")

// Protocol-contract violations. Fatal: the connection is reset and the event is
// logged as a programming error in the handler. Never retried.
var (
	ErrDoubleInitiation  = NewError(InternalServerError, "response was initiated twice")
	ErrBodyBeforeStart   = NewError(InternalServerError, "body was produced before the response was initiated")
	ErrProtocolViolation = NewError(InternalServerError, "event sent out of the declared order")
	ErrResponseCompleted = NewError(InternalServerError, "event sent after the response was completed")
)

// Control-flow sentinels.
var (
	ErrCloseConnection  = NewError(CloseConnection, "actively closing the connection")
	ErrShutdown         = NewError(CloseConnection, "graceful shutdown")
	ErrGracefulShutdown = NewError(CloseConnection, "graceful shutdown with no clients disconnected")
	ErrDisconnected     = NewError(CloseConnection, "peer disconnected")
	ErrLifecycleFailed  = NewError(InternalServerError, "lifecycle handler failed to initialize")
)

// CloseConnection is a pseudo-code used by control-flow sentinels only; it never
// appears on the wire.
const CloseConnection Code = 0
