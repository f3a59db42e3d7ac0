// Package testutil holds HTTP replay helpers shared by package tests.
package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// NewVCRRecorder opens testdata/fixtures/<cassetteName>.yaml in replay mode.
// Set VCR_MODE=record to talk to the live service and rewrite the cassette.
// The recorder is stopped when the test ends.
func NewVCRRecorder(t testing.TB, cassetteName string) *recorder.Recorder {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	cassettePath := filepath.Join("testdata", "fixtures", cassetteName)

	r, err := recorder.NewAsMode(cassettePath, mode, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Request bodies are not matched; one cassette per scenario.
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	// Credentials never reach the cassette.
	r.AddFilter(func(i *cassette.Interaction) error {
		delete(i.Request.Headers, "Authorization")
		return nil
	})

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	})

	return r
}

// VCRHTTPClient returns an HTTP client that replays the named cassette.
func VCRHTTPClient(t testing.TB, cassetteName string) *http.Client {
	t.Helper()
	return &http.Client{Transport: NewVCRRecorder(t, cassetteName)}
}

// APIKey returns the value of env, or a placeholder outside record mode.
func APIKey(t testing.TB, env string) string {
	t.Helper()
	key := os.Getenv(env)
	if key == "" {
		if os.Getenv("VCR_MODE") == "record" {
			t.Skipf("Skipping test: %s not set", env)
		}
		key = "test-key"
	}
	return key
}
