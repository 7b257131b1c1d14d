package httputil

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/form/v4"
)

type loginForm struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Ignored  int    `json:"ignored" form:"ignored"`
}

func TestBind(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        loginForm
		wantErr     error
	}{
		{
			name:        "form",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=alice&password=s%26cret",
			want:        loginForm{Username: "alice", Password: "s&cret"},
		},
		{
			name:        "json",
			contentType: "application/json; charset=utf-8",
			body:        `{"username":"alice","password":"secret"}`,
			want:        loginForm{Username: "alice", Password: "secret"},
		},
		{
			name:        "form typed field and unknown fields",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=alice&ignored=7&csrfmiddlewaretoken=abc",
			want:        loginForm{Username: "alice", Ignored: 7},
		},
		{
			name:        "repeated field takes first value",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=alice&username=mallory",
			want:        loginForm{Username: "alice"},
		},
		{
			name:        "missing fields stay empty",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=alice",
			want:        loginForm{Username: "alice"},
		},
		{
			name:        "unsupported",
			contentType: "text/plain",
			body:        "username=alice",
			wantErr:     ErrUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			var got loginForm
			err := Bind(req, &got)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Bind() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Bind() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBind_Multipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("username", "alice")
	_ = mw.WriteField("password", "secret")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/login", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var got loginForm
	if err := Bind(req, &got); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if got.Username != "alice" || got.Password != "secret" {
		t.Errorf("Bind() = %+v", got)
	}
}

func TestBind_FormConversionError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&ignored=seven"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var got loginForm
	err := Bind(req, &got)
	var decodeErrs form.DecodeErrors
	if !errors.As(err, &decodeErrs) {
		t.Fatalf("Bind() error = %v, want form.DecodeErrors", err)
	}
	if _, ok := decodeErrs["ignored"]; !ok {
		t.Errorf("errors = %v, want one for ignored", decodeErrs)
	}

	rec := httptest.NewRecorder()
	BindError(rec, err)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("BindError status = %d, want 400", rec.Code)
	}
}

func TestBind_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	var got loginForm
	if err := Bind(req, &got); err == nil {
		t.Error("Bind() should fail on malformed JSON")
	}
}

func TestRedirect_SeeOther(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	Redirect(rec, req, "/verify-otp")

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/verify-otp" {
		t.Errorf("Location = %q", loc)
	}
}

func TestError_JSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadGateway, "failed to send verification email")

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"failed to send verification email"}` {
		t.Errorf("body = %s", body)
	}
}

func TestBindError(t *testing.T) {
	tests := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{
			name: "body too large",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"a-long-enough-name"}`))
				r.Header.Set("Content-Type", "application/json")
				r.Body = http.MaxBytesReader(httptest.NewRecorder(), r.Body, 4)
				return r
			},
			want: http.StatusRequestEntityTooLarge,
		},
		{
			name: "unsupported media type",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
				r.Header.Set("Content-Type", "text/plain")
				return r
			},
			want: http.StatusUnsupportedMediaType,
		},
		{
			name: "malformed json",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst struct {
				Username string `json:"username"`
			}
			err := Bind(tt.req(), &dst)
			if err == nil {
				t.Fatal("Bind() should fail")
			}
			rec := httptest.NewRecorder()
			BindError(rec, err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
