// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_DefaultWritesTextToStderr(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New returned nil")
	}
}

func TestNew_ServiceAttributeOnEveryRecord(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir, Service: "worker"})
	logger.Info("hello")

	entries, err := readLogFile(dir, "worker")
	if err != nil {
		t.Fatalf("readLogFile: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["service"] != "worker" {
		t.Fatalf("expected service=worker, got %v", entries[0]["service"])
	}
	if entries[0]["msg"] != "hello" {
		t.Fatalf("expected msg=hello, got %v", entries[0]["msg"])
	}
}

func TestNew_QuietDisablesStderr(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	logger := New(Config{Quiet: true})
	logger.Info("should not appear on stderr")

	w.Close()
	os.Stderr = orig
	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.Len() != 0 {
		t.Fatalf("expected no stderr output when Quiet, got %q", buf.String())
	}
}

func TestNew_LogDirWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir, Service: "reaper"})
	logger.Warn("disk getting full", "percent", 91)

	entries, err := readLogFile(dir, "reaper")
	if err != nil {
		t.Fatalf("readLogFile: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["level"] != "WARN" {
		t.Fatalf("expected level=WARN, got %v", entries[0]["level"])
	}
	if entries[0]["percent"] != float64(91) {
		t.Fatalf("expected percent=91, got %v", entries[0]["percent"])
	}
}

func TestNew_LogDirExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	logger := New(Config{Quiet: true, LogDir: "~/logs", Service: "cli"})
	logger.Info("hi")

	if _, err := readLogFile(filepath.Join(home, "logs"), "cli"); err != nil {
		t.Fatalf("expected log file under expanded home dir: %v", err)
	}
}

func TestNew_LevelFiltersBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir, Service: "filtered", Level: slog.LevelWarn})
	logger.Info("dropped")
	logger.Warn("kept")

	entries, err := readLogFile(dir, "filtered")
	if err != nil {
		t.Fatalf("readLogFile: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the Warn record to survive, got %d entries", len(entries))
	}
	if entries[0]["msg"] != "kept" {
		t.Fatalf("expected surviving record to be 'kept', got %v", entries[0]["msg"])
	}
}

func TestDefault_ReturnsUsableLogger(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
	logger.Info("no panic expected")
}

func readLogFile(dir, service string) ([]map[string]any, error) {
	matches, err := filepath.Glob(filepath.Join(dir, service+"_*.log"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
