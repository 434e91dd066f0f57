package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentrydns/classifierd/internal/config"
)

func TestVersionCommandPrintsVersion(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("RunE: %v", err)
	}
	if strings.TrimSpace(buf.String()) != version {
		t.Errorf("output = %q, want %q", buf.String(), version)
	}
}

func TestRunCommandRequiresExactlyOneArg(t *testing.T) {
	cmd := newRunCmd()
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected error with zero args")
	}
	if err := cmd.Args(cmd, []string{"eth0", "extra"}); err == nil {
		t.Error("expected error with two args")
	}
	if err := cmd.Args(cmd, []string{"eth0"}); err != nil {
		t.Errorf("expected no error with one arg, got %v", err)
	}
}

func TestHealthcheckCommandSucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cmd := newHealthcheckCmd()
	cmd.SetArgs([]string{"--addr", strings.TrimPrefix(srv.URL, "http://")})
	if err := cmd.Execute(); err != nil {
		t.Errorf("healthcheck against healthy server failed: %v", err)
	}
}

func TestHealthcheckCommandFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := newHealthcheckCmd()
	cmd.SetArgs([]string{"--addr", strings.TrimPrefix(srv.URL, "http://")})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error against unhealthy server")
	}
}

func TestNewLoggerDefaultsToInfoOnInvalidLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "not-a-level", LogFormat: "json"}
	log := newLogger(cfg)
	if log.GetLevel().String() != "info" {
		t.Errorf("level = %q, want info", log.GetLevel().String())
	}
}
