package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExemptions(t *testing.T) {
	tests := []struct {
		name Name
		want bool
	}{
		{Login, true},
		{Logout, true},
		{Register, true},
		{Activate, true},
		{VerifyOTP, true},
		{ResendOTP, true},
		{ForgotPassword, true},
		{PasswordResetVerify, true},
		{Home, false},
		{Dashboard, false},
		{Name("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			if got := IsExempt(tt.name); got != tt.want {
				t.Errorf("IsExempt(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	for _, ns := range []Namespace{NamespaceAdmin, NamespaceStatic, NamespaceMedia} {
		if !IsExemptNamespace(ns) {
			t.Errorf("IsExemptNamespace(%q) = false, want true", ns)
		}
	}
	if IsExemptNamespace(Namespace("api")) {
		t.Error("unknown namespace must not be exempt")
	}
}

func TestEveryRouteHasPattern(t *testing.T) {
	for name, r := range table {
		if r.Name != name || r.Pattern == "" {
			t.Errorf("route %q misregistered: %+v", name, r)
		}
	}
	if Path(VerifyOTP) != "/verify-otp" {
		t.Errorf("Path(VerifyOTP) = %q", Path(VerifyOTP))
	}
}

func TestPathPanicsOnParameterisedRoute(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Path(Activate) should panic")
		}
	}()
	Path(Activate)
}

func TestTag(t *testing.T) {
	var got Match
	var ok bool
	h := Tag(Dashboard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if !ok || got.Name != Dashboard {
		t.Errorf("FromContext() = %+v, %v", got, ok)
	}
}

func TestTagNamespace(t *testing.T) {
	var got Match
	h := TagNamespace(NamespaceStatic)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/app.css", nil))

	if got.Namespace != NamespaceStatic || got.Name != "" {
		t.Errorf("FromContext() = %+v", got)
	}
}
