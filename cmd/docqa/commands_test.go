package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "hello"); strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "hello"); !strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(t.TempDir())

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want the current process id", pid)
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("readPIDFile should fail after removal")
	}
}

func TestPIDFileCreatesDataDir(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested", "dir"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile into missing dir: %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"answer":"fine"}`))
		case "/fail":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":{"message":"unsupported file type"}}`))
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ok")
	if err != nil {
		t.Fatalf("GET /ok: %v", err)
	}
	var ok struct {
		Answer string `json:"answer"`
	}
	if err := decodeJSON(resp, &ok); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	if ok.Answer != "fine" {
		t.Errorf("answer = %q", ok.Answer)
	}

	resp, err = http.Get(srv.URL + "/fail")
	if err != nil {
		t.Fatalf("GET /fail: %v", err)
	}
	var ignored struct{}
	err = decodeJSON(resp, &ignored)
	if err == nil {
		t.Fatal("decodeJSON must fail on a 4xx response")
	}
	if !strings.Contains(err.Error(), "unsupported file type") {
		t.Errorf("error should carry the server message, got %v", err)
	}
}

func TestAPIClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, token: "secret", httpClient: srv.Client()}
	resp, err := c.get(context.Background(), "/api/documents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
