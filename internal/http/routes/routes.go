// Package routes is the closed set of named routes. Handlers are tagged with
// their name when mounted so middleware can tell which route it is guarding
// without matching paths.
package routes

import (
	"context"
	"net/http"
	"strings"
)

// Name identifies a routed operation.
type Name string

const (
	Home                Name = "home"
	Register            Name = "register"
	Activate            Name = "activate"
	VerifyOTP           Name = "verify-otp"
	ResendOTP           Name = "resend-otp"
	ForgotPassword      Name = "forgot-password"
	PasswordResetVerify Name = "password-reset-verify"
	Login               Name = "login"
	Logout              Name = "logout"
	Dashboard           Name = "dashboard"
)

// Namespace groups routes mounted under a shared prefix.
type Namespace string

const (
	NamespaceAdmin  Namespace = "admin"
	NamespaceStatic Namespace = "static"
	NamespaceMedia  Namespace = "media"
)

// Route is a registered route.
type Route struct {
	Name    Name
	Pattern string
}

var table = map[Name]Route{
	Home:                {Name: Home, Pattern: "/"},
	Register:            {Name: Register, Pattern: "/register"},
	Activate:            {Name: Activate, Pattern: "/activate/{uidb64}/{token}"},
	VerifyOTP:           {Name: VerifyOTP, Pattern: "/verify-otp"},
	ResendOTP:           {Name: ResendOTP, Pattern: "/resend-otp"},
	ForgotPassword:      {Name: ForgotPassword, Pattern: "/forgot-password"},
	PasswordResetVerify: {Name: PasswordResetVerify, Pattern: "/forgot-password/verify"},
	Login:               {Name: Login, Pattern: "/login"},
	Logout:              {Name: Logout, Pattern: "/logout"},
	Dashboard:           {Name: Dashboard, Pattern: "/dashboard"},
}

var namespaces = map[Namespace]string{
	NamespaceAdmin:  "/admin",
	NamespaceStatic: "/static",
	NamespaceMedia:  "/media",
}

// Routes reachable by a signed-in user whose email is not verified yet.
var exempt = map[Name]bool{
	Login:               true,
	Logout:              true,
	Register:            true,
	Activate:            true,
	VerifyOTP:           true,
	ResendOTP:           true,
	ForgotPassword:      true,
	PasswordResetVerify: true,
}

var exemptNamespaces = map[Namespace]bool{
	NamespaceAdmin:  true,
	NamespaceStatic: true,
	NamespaceMedia:  true,
}

// Lookup returns the route registered under name.
func Lookup(name Name) (Route, bool) {
	r, ok := table[name]
	return r, ok
}

// Pattern returns the chi pattern for name. It panics on an unknown name,
// which can only happen through a programming error.
func Pattern(name Name) string {
	r, ok := Lookup(name)
	if !ok {
		panic("routes: unknown route " + string(name))
	}
	return r.Pattern
}

// Path returns the concrete path of a route without parameters.
func Path(name Name) string {
	p := Pattern(name)
	if strings.Contains(p, "{") {
		panic("routes: route " + string(name) + " needs parameters")
	}
	return p
}

// Prefix returns the mount prefix of a namespace.
func Prefix(ns Namespace) string {
	return namespaces[ns]
}

// IsExempt reports whether name may be reached with an unverified email.
func IsExempt(name Name) bool {
	return exempt[name]
}

// IsExemptNamespace reports whether a whole namespace bypasses the
// verification gate.
func IsExemptNamespace(ns Namespace) bool {
	return exemptNamespaces[ns]
}

// Match is the route identity of a request.
type Match struct {
	Name      Name
	Namespace Namespace
}

type contextKey struct{}

// Tag returns middleware that records name as the route of the request.
func Tag(name Name) func(http.Handler) http.Handler {
	Pattern(name)
	return tag(Match{Name: name})
}

// TagNamespace returns middleware that records ns as the namespace of the
// request.
func TagNamespace(ns Namespace) func(http.Handler) http.Handler {
	if _, ok := namespaces[ns]; !ok {
		panic("routes: unknown namespace " + string(ns))
	}
	return tag(Match{Namespace: ns})
}

func tag(m Match) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, m)))
		})
	}
}

// FromContext returns the route identity set by Tag or TagNamespace.
func FromContext(ctx context.Context) (Match, bool) {
	m, ok := ctx.Value(contextKey{}).(Match)
	return m, ok
}
