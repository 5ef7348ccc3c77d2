package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := SignJWT("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := EchoMiddleware(secret)(func(c echo.Context) error {
		called = true
		if got := c.Get("user_id"); got != "user-1" {
			t.Fatalf("user_id = %v", got)
		}
		if sub, ok := SubjectFromContext(c.Request().Context()); !ok || sub != "user-1" {
			t.Fatalf("subject from context = %q, %v", sub, ok)
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !called {
		t.Fatal("handler not reached")
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	e := echo.New()
	h := EchoMiddleware([]byte("right"))(func(c echo.Context) error { return nil })

	cases := map[string]func(*http.Request){
		"missing": func(r *http.Request) {},
		"garbage": func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
		"wrong key": func(r *http.Request) {
			tok, _ := SignJWT("u", []byte("wrong"), time.Hour)
			r.Header.Set("Authorization", "Bearer "+tok)
		},
		"expired": func(r *http.Request) {
			tok, _ := SignJWT("u", []byte("right"), -time.Hour)
			r.Header.Set("Authorization", "Bearer "+tok)
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			setup(req)
			c := e.NewContext(req, httptest.NewRecorder())
			err := h(c)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusUnauthorized {
				t.Fatalf("err = %v, want 401", err)
			}
		})
	}
}

func TestCookieToken(t *testing.T) {
	secret := []byte("s")
	tok, _ := SignJWT("user-2", secret, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	c := e.NewContext(req, httptest.NewRecorder())

	h := EchoMiddleware(secret)(func(c echo.Context) error {
		if got := c.Get("user_id"); got != "user-2" {
			t.Fatalf("user_id = %v", got)
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
}
