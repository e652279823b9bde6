package broker

// Status values of a Response
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response is the structured reply to a client method call
type Response map[string]any

// OK returns a successful response
func OK() Response {
	return Response{"status": StatusOK}
}

// Error returns a failed response carrying message
func Error(message string) Response {
	return Response{"status": StatusError, "message": message}
}

// IsOK reports whether the response has status "ok"
func (r Response) IsOK() bool {
	status, _ := r["status"].(string)
	return status == StatusOK
}

// Message returns the error message of a failed response
func (r Response) Message() string {
	msg, _ := r["message"].(string)
	return msg
}

// With returns the response with key set to value
func (r Response) With(key string, value any) Response {
	r[key] = value
	return r
}
