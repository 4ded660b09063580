package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"propctl/devicesim"
)

func executeCommand(ctx context.Context, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

// simConfig starts a simulator and writes a config file pointing at it.
func simConfig(t *testing.T, sc devicesim.Config) (*devicesim.Simulator, string) {
	t.Helper()
	sim, err := devicesim.Start(context.Background(), sc)
	if err != nil {
		t.Fatalf("start simulator: %v", err)
	}
	t.Cleanup(func() { sim.Close() })

	path := filepath.Join(t.TempDir(), "propctl.yml")
	body := fmt.Sprintf(`Device:
  DHost: 127.0.0.1
  DCommandPort: %d
  DDataPort: %d
  DInterPacketDelay: 1ms
  DDrainTimeout: 10ms
  DFinalDrainTimeout: 10ms
  DAnnounceTimeout: 500ms
  DReplyTimeout: 2s
`, sim.CommandPort(), sim.DataPort())
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return sim, path
}

func TestOpcodeCommand(t *testing.T) {
	sim, cfg := simConfig(t, devicesim.Config{})
	if _, err := executeCommand(context.Background(), "--config", cfg, "turn_off"); err != nil {
		t.Fatalf("turn_off failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sim.Commands()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cmds := sim.Commands(); len(cmds) != 1 || string(cmds[0]) != "c31c89abca4a8c2e3" {
		t.Fatalf("unexpected commands %q", cmds)
	}
}

func TestReadPlaylistPrintsReply(t *testing.T) {
	_, cfg := simConfig(t, devicesim.Config{})
	out, err := executeCommand(context.Background(), "--config", cfg, "read_playlist")
	if err != nil {
		t.Fatalf("read_playlist failed: %v", err)
	}
	if !strings.Contains(out, string(devicesim.SamplePlaylistReply)) {
		t.Errorf("expected reply in output, got: %s", out)
	}
}

func TestSlotCommand(t *testing.T) {
	sim, cfg := simConfig(t, devicesim.Config{})
	if _, err := executeCommand(context.Background(), "--config", cfg, "slot", "3"); err != nil {
		t.Fatalf("slot failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sim.Commands()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cmds := sim.Commands(); len(cmds) != 1 || string(cmds[0]) != "c31c39abe03a4a8c2e3" {
		t.Fatalf("unexpected commands %q", cmds)
	}

	for _, bad := range []string{"100", "-1", "x"} {
		if _, err := executeCommand(context.Background(), "--config", cfg, "slot", bad); err == nil {
			t.Errorf("slot %s: expected error", bad)
		}
	}
}

func TestUploadCommand(t *testing.T) {
	sim, cfg := simConfig(t, devicesim.Config{})
	file := filepath.Join(t.TempDir(), "show.bin")
	if err := os.WriteFile(file, bytes.Repeat([]byte{7}, 3000), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(context.Background(), "--config", cfg, "upload", file)
	if err != nil {
		t.Fatalf("upload failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "uploaded") {
		t.Errorf("expected completion line, got: %s", out)
	}
	up, err := sim.NextUpload(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(up.Payloads) != 3 || !up.Terminated {
		t.Errorf("unexpected upload: %d frames, terminated=%v", len(up.Payloads), up.Terminated)
	}
}

func TestUploadCommand_BadName(t *testing.T) {
	_, cfg := simConfig(t, devicesim.Config{})
	file := filepath.Join(t.TempDir(), "much_too_long.bin")
	if err := os.WriteFile(file, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := executeCommand(context.Background(), "--config", cfg, "upload", "-q", file)
	if err == nil || !strings.Contains(err.Error(), "invalid file name") {
		t.Fatalf("expected invalid file name error, got %v", err)
	}
}

func TestUploadCommand_DeviceRefuses(t *testing.T) {
	_, cfg := simConfig(t, devicesim.Config{ReadyReply: []byte("no")})
	file := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(file, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand(context.Background(), "--config", cfg, "upload", file)
	if err == nil || !strings.Contains(err.Error(), "device not ready") {
		t.Fatalf("expected device not ready, got %v", err)
	}
	if !strings.Contains(out, "failed:") {
		t.Errorf("expected failure line, got: %s", out)
	}
}

func TestOpcodesCommand_JSON(t *testing.T) {
	out, err := executeCommand(context.Background(), "opcodes", "-o", "json")
	if err != nil {
		t.Fatalf("opcodes failed: %v", err)
	}
	var rows []opcodeRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("bad json: %v\n%s", err, out)
	}
	if len(rows) != 10 {
		t.Fatalf("expected 10 opcodes, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Name == "read_playlist" && !r.Reply {
			t.Error("read_playlist should expect a reply")
		}
	}
}

func TestOpcodesCommand_Table(t *testing.T) {
	out, err := executeCommand(context.Background(), "opcodes")
	if err != nil {
		t.Fatalf("opcodes failed: %v", err)
	}
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "c31c34abca4a8c2e3") {
		t.Errorf("unexpected table: %s", out)
	}
}

func TestOpcodesCommand_BadFormat(t *testing.T) {
	if _, err := executeCommand(context.Background(), "opcodes", "-o", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestConfigCommand_FlagOverrides(t *testing.T) {
	out, err := executeCommand(context.Background(), "config", "--host", "10.0.0.9", "--delay", "25ms", "--packet-size", "500")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	var cfg struct {
		Device struct {
			Host             string `yaml:"DHost"`
			CommandPort      int    `yaml:"DCommandPort"`
			PacketSize       int    `yaml:"DPacketSize"`
			InterPacketDelay string `yaml:"DInterPacketDelay"`
		} `yaml:"Device"`
	}
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("bad yaml: %v\n%s", err, out)
	}
	if cfg.Device.Host != "10.0.0.9" || cfg.Device.CommandPort != 5233 ||
		cfg.Device.PacketSize != 500 || cfg.Device.InterPacketDelay != "25ms" {
		t.Errorf("unexpected config %+v", cfg.Device)
	}
}

func TestConfigCommand_Invalid(t *testing.T) {
	if _, err := executeCommand(context.Background(), "config", "--packet-size", "20"); err == nil {
		t.Fatal("expected validation error for packet size 20")
	}
	if _, err := executeCommand(context.Background(), "config", "--config", "/nonexistent/propctl.yml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := executeCommand(context.Background(), "explode"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestSimulateCommand(t *testing.T) {
	cmdPort, dataPort := freePort(t), freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := executeCommand(ctx, "simulate",
			"--command-port", strconv.Itoa(cmdPort), "--data-port", strconv.Itoa(dataPort))
		done <- err
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cmdPort))
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("simulator never listened: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("simulate returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("simulate did not stop on cancel")
	}
}
