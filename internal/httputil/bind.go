package httputil

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-playground/form/v4"
)

const maxMultipartMemory = 1 << 20

// ErrUnsupportedMediaType is returned for bodies that are neither JSON nor a form.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// decoder caches struct metadata and is safe for concurrent use.
var decoder = form.NewDecoder()

// Bind decodes a JSON or form-encoded request body into dst. JSON uses the
// json tags, form bodies the form tags. Unknown form fields are ignored.
func Bind(r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		return json.NewDecoder(r.Body).Decode(dst)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return err
		}
		return decoder.Decode(dst, r.PostForm)
	case "application/x-www-form-urlencoded", "":
		if err := r.ParseForm(); err != nil {
			return err
		}
		return decoder.Decode(dst, r.PostForm)
	default:
		return ErrUnsupportedMediaType
	}
}

// BindError answers a request whose body Bind could not decode.
func BindError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, ErrUnsupportedMediaType):
		Error(w, http.StatusUnsupportedMediaType, "unsupported media type")
	default:
		Error(w, http.StatusBadRequest, "invalid request body")
	}
}
