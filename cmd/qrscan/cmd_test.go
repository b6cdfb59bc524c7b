package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
	"github.com/chiliwax/QrCodeReader-v2/internal/recorder"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// run executes a fresh root command with logging silenced.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCommand(newRootCmd(), append([]string{"--log-level", "silent"}, args...)...)
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	if root.Use != "qrscan" {
		t.Errorf("root.Use = %q, want %q", root.Use, "qrscan")
	}
	cmdMap := make(map[string]bool)
	for _, c := range root.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, name := range []string{"serve", "classify", "replay", "history", "settings"} {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "WIFI:S:MyNet;T:WPA;P:secret;;")
	if err != nil {
		t.Fatalf("classify: %v\n%s", err, out)
	}
	var parsed payload.Parsed
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if parsed.Kind != payload.KindWiFi {
		t.Errorf("kind = %s, want %s", parsed.Kind, payload.KindWiFi)
	}
	if parsed.RawData != "WIFI:S:MyNet;T:WPA;P:secret;;" {
		t.Errorf("rawData = %q", parsed.RawData)
	}

	out, err = run(t, "classify", "--kind", "tel:+15551234567")
	if err != nil {
		t.Fatalf("classify --kind: %v", err)
	}
	if strings.TrimSpace(out) != string(payload.KindPhone) {
		t.Errorf("classify --kind output = %q, want %q", out, payload.KindPhone)
	}
}

func TestClassifyCommandMalformedURL(t *testing.T) {
	out, err := run(t, "classify", "--kind", "https://exa mple.com")
	if err == nil {
		t.Fatal("expected an error for a malformed URL")
	}
	if !strings.Contains(out, string(payload.KindText)) {
		t.Errorf("fallback kind not printed: %q", out)
	}
}

func TestSettingsCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--data-dir", dir, "settings", "get", "multiCodeDetection")
	if err != nil {
		t.Fatalf("settings get: %v", err)
	}
	if strings.TrimSpace(out) != "false" {
		t.Errorf("default multiCodeDetection = %q, want false", out)
	}

	if _, err := run(t, "--data-dir", dir, "settings", "set", "multiCodeDetection", "1"); err != nil {
		t.Fatalf("settings set: %v", err)
	}
	out, err = run(t, "--data-dir", dir, "settings", "get", "multiCodeDetection")
	if err != nil {
		t.Fatalf("settings get: %v", err)
	}
	if strings.TrimSpace(out) != "true" {
		t.Errorf("multiCodeDetection after set = %q, want true", out)
	}

	out, err = run(t, "--data-dir", dir, "settings", "get")
	if err != nil {
		t.Fatalf("settings get all: %v", err)
	}
	if !strings.Contains(out, "themeColor") || !strings.Contains(out, "#00f2ea") {
		t.Errorf("settings listing missing themeColor:\n%s", out)
	}

	if _, err := run(t, "--data-dir", dir, "settings", "set", "vibration", "maybe"); err == nil {
		t.Error("expected an error for a non-boolean value")
	}
	if _, err := run(t, "--data-dir", dir, "settings", "set", "nope", "true"); err == nil {
		t.Error("expected an error for an unknown key")
	}

	if _, err := run(t, "--data-dir", dir, "settings", "reset"); err != nil {
		t.Fatalf("settings reset: %v", err)
	}
	out, _ = run(t, "--data-dir", dir, "settings", "get", "multiCodeDetection")
	if strings.TrimSpace(out) != "false" {
		t.Errorf("multiCodeDetection after reset = %q, want false", out)
	}
}

func TestHistoryCommandsEmpty(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--data-dir", dir, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "No scan history") {
		t.Errorf("history list output = %q", out)
	}
	if _, err := run(t, "--data-dir", dir, "history", "rm", "missing"); err == nil {
		t.Error("expected an error removing an unknown id")
	}
	if _, err := run(t, "--data-dir", dir, "history", "clear"); err != nil {
		t.Errorf("history clear: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("0123456789abc", 5); got != "0123…" {
		t.Errorf("truncate long = %q", got)
	}
}

// code is a 40x40 detection centred on (cx, cy).
func code(data string, cx, cy float64) types.Detection {
	x, y := cx-20, cy-20
	return types.Detection{
		Payload:      data,
		FormatTag:    "qr",
		Bounds:       &types.Rect{Origin: &types.Point{X: x, Y: y}, Size: types.Size{Width: 40, Height: 40}},
		CornerPoints: []types.Point{{X: x, Y: y}, {X: x + 40, Y: y}, {X: x + 40, Y: y + 40}, {X: x, Y: y + 40}},
	}
}

func writeRecording(t *testing.T, lines []recorder.Line) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.jsonl")
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			t.Fatalf("encode line: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

func readEvents(t *testing.T, out string) []replayEvent {
	t.Helper()
	var events []replayEvent
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var ev replayEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

// Viewport defaults to 390x844, centre (195, 422).
var replayLines = []recorder.Line{
	{OffsetMs: 0, Detection: code("https://far.example", 30, 30)},
	{OffsetMs: 50, Detection: code("https://near.example", 190, 420)},
	{OffsetMs: 60, Detection: code("https://far.example", 32, 30)},
	{OffsetMs: 450, Detection: code("tel:123", 195, 422)},
}

func TestReplaySingleMode(t *testing.T) {
	path := writeRecording(t, replayLines)

	out, err := run(t, "replay", path)
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	events := readEvents(t, out)
	if len(events) == 0 || events[0].Candidates == nil {
		t.Fatalf("first event is not a candidate set:\n%s", out)
	}
	got := events[0].Candidates.Payloads()
	if len(got) != 2 || got[0] != "https://far.example" || got[1] != "https://near.example" {
		t.Errorf("first window payloads = %v", got)
	}

	var sel *replayEvent
	for i := range events {
		if events[i].Selection != nil {
			if sel != nil {
				t.Fatal("more than one selection")
			}
			sel = &events[i]
		}
	}
	if sel == nil {
		t.Fatalf("no selection in output:\n%s", out)
	}
	if sel.Selection.Detection.Payload != "https://near.example" {
		t.Errorf("selected %q, want the centred code", sel.Selection.Detection.Payload)
	}
	if sel.Selection.Parsed.Kind != payload.KindURL {
		t.Errorf("selected kind = %s", sel.Selection.Parsed.Kind)
	}
	if strings.Contains(out, "tel:123") {
		t.Error("detection after the lock should have been dropped")
	}
}

func TestReplayMultiMode(t *testing.T) {
	path := writeRecording(t, replayLines)

	out, err := run(t, "replay", "--multi", path)
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	events := readEvents(t, out)
	var sets [][]string
	for _, ev := range events {
		if ev.Selection != nil {
			t.Fatalf("multi mode must not auto-select:\n%s", out)
		}
		if ev.Candidates != nil {
			sets = append(sets, ev.Candidates.Payloads())
		}
	}
	if len(sets) != 2 {
		t.Fatalf("got %d candidate sets, want 2:\n%s", len(sets), out)
	}
	if len(sets[1]) != 1 || sets[1][0] != "tel:123" {
		t.Errorf("second window payloads = %v", sets[1])
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := run(t, "replay", filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected an error for a missing recording")
	}
}
