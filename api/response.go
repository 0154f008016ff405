// Package api exposes the gateway's HTTP surface: synchronous and
// streaming chat, asynchronous tasks, and file transfer.
package api

// Response is the JSON envelope of every non-streaming endpoint. The
// envelope always travels with HTTP 200; success and msg carry the
// outcome.
type Response struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg"`
	Data    interface{} `json:"data"`
}

const successMsg = "成功"

// OK wraps a successful payload.
func OK(data interface{}) Response {
	return Response{Success: true, Msg: successMsg, Data: data}
}

// Error wraps a failure message.
func Error(err error) Response {
	return Response{Success: false, Msg: err.Error()}
}
