// Package bustest starts a private message bus for tests.
package bustest

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const configTemplate = `<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-Bus Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <type>session</type>
  <listen>unix:dir=%s</listen>
  <auth>EXTERNAL</auth>
  <policy context="default">
    <allow send_destination="*" eavesdrop="true"/>
    <allow eavesdrop="true"/>
    <allow own="*"/>
  </policy>
</busconfig>
`

const startTimeout = 10 * time.Second

// NewDaemon runs a dbus-daemon owned by the test and returns its address. The test is skipped
// when no dbus-daemon binary is installed.
func NewDaemon(t testing.TB) string {
	t.Helper()

	binary, err := exec.LookPath("dbus-daemon")
	if err != nil {
		t.Skip("dbus-daemon not installed")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "bus.conf")
	if err := os.WriteFile(configPath, []byte(fmt.Sprintf(configTemplate, dir)), 0o644); err != nil {
		t.Fatalf("failed to write bus config: %v", err)
	}

	cmd := exec.Command(binary, "--config-file="+configPath, "--nofork", "--print-address")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("failed to pipe dbus-daemon output: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start dbus-daemon: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	addressCh := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(stdout).ReadString('\n')
		addressCh <- strings.TrimSpace(line)
	}()

	select {
	case address := <-addressCh:
		if address == "" {
			t.Fatalf("dbus-daemon exited without printing an address")
		}
		return address
	case <-time.After(startTimeout):
		t.Fatalf("dbus-daemon did not start within %v", startTimeout)
		return ""
	}
}
