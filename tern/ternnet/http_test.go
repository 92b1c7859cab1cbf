// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package ternnet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom") != "abc" {
			http.Error(w, "missing header", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"answer":42}`)
	}))
	defer srv.Close()

	var thing struct {
		Answer int `json:"answer"`
	}
	var code int
	err := Get(context.Background(), srv.URL, &thing,
		WithRequestHeader("X-Custom", "abc"), WithStatusFunc(func(c int) { code = c }))
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if thing.Answer != 42 {
		t.Fatalf("answer %d, expected 42", thing.Answer)
	}
	if code != http.StatusOK {
		t.Fatalf("status func got %d", code)
	}

	// Missing header path exercises the error return.
	if err := Get(context.Background(), srv.URL, &thing); err == nil {
		t.Fatalf("no error for HTTP 400")
	}
}

func TestPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var thing struct {
		OK bool `json:"ok"`
	}
	if err := Post(context.Background(), srv.URL, &thing, []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if !thing.OK {
		t.Fatalf("response not decoded")
	}
}

func TestErrorParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, `{"error":"out of tea"}`)
	}))
	defer srv.Close()

	var errThing struct {
		Error string `json:"error"`
	}
	err := Get(context.Background(), srv.URL, nil, WithErrorParsing(&errThing))
	if err == nil {
		t.Fatalf("no error for HTTP 418")
	}
	if errThing.Error != "out of tea" {
		t.Fatalf("error body not parsed: %+v", errThing)
	}
}

func TestSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"pad":"%s"}`, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	var thing struct {
		Pad string `json:"pad"`
	}
	if err := Get(context.Background(), srv.URL, &thing, WithSizeLimit(10)); err == nil {
		t.Fatalf("no error for truncated response")
	}
	if err := Get(context.Background(), srv.URL, &thing, WithSizeLimit(1000)); err != nil {
		t.Fatalf("Get error with sufficient limit: %v", err)
	}
}
