package response

import (
	"net/http"

	"github.com/go-chi/render"
)

type APIError struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

// JSON writes data as the response body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	ErrorWithDetail(w, r, status, msg, "", nil)
}

func ErrorWithDetail(w http.ResponseWriter, r *http.Request, status int, msg, code string, detail interface{}) {
	render.Status(r, status)
	render.JSON(w, r, APIError{
		Status:  "error",
		Message: msg,
		Code:    code,
		Detail:  detail,
	})
}
