package ux

import (
	"io"
	"os"
	"strings"
	"testing"
)

// capture redirects stdout around fn and returns what was written.
func capture(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured output: %v", err)
	}
	return string(out)
}

func TestPlainModeVerdicts(t *testing.T) {
	SetPlain(true)
	t.Cleanup(func() { SetPlain(false) })

	tests := []struct {
		name string
		fn   func()
		want string
	}{
		{"pass", func() { Pass("gate passed") }, "PASS: gate passed\n"},
		{"warn", func() { Warn("canary tripped") }, "WARN: canary tripped\n"},
		{"fail", func() { Fail("gate failed") }, "FAIL: gate failed\n"},
		{"title", func() { Title("Gate") }, "Gate\n"},
		{"info", func() { Info("detail") }, "detail\n"},
		{"muted", func() { Muted("aside") }, "aside\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := capture(t, tt.fn)
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNoColorEnvForcesPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	got := capture(t, func() { Pass("ok") })
	if got != "PASS: ok\n" {
		t.Errorf("output = %q, want plain PASS line", got)
	}
}

func TestIconRenderPlain(t *testing.T) {
	SetPlain(true)
	t.Cleanup(func() { SetPlain(false) })
	if got := IconPass.Render(); got != "✓" {
		t.Errorf("IconPass = %q", got)
	}
	if got := IconArrow.Render(); got != "→" {
		t.Errorf("IconArrow = %q", got)
	}
}

func TestStyledOutputContainsText(t *testing.T) {
	SetPlain(false)
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		t.Skip("NO_COLOR set in environment")
	}
	got := capture(t, func() { Fail("drift.step_rate above bound") })
	if !strings.Contains(got, "drift.step_rate above bound") {
		t.Errorf("styled output lost the message: %q", got)
	}
}
