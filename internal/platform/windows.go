package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sysgate-io/sysgate/internal/logging"
)

// commandTimeout bounds every native-tool invocation. The windows admin
// tools normally return within a second or two; anything longer is hung.
const commandTimeout = 60 * time.Second

// runner executes a native tool and reports its output and exit code.
// Injected so the parsing paths are testable off-windows.
type runner func(name string, args ...string) (stdout, stderr string, exitCode int, err error)

type windowsOps struct {
	run runner
}

func newWindowsOps() *windowsOps {
	return &windowsOps{run: runNative}
}

func runNative(name string, args ...string) (string, string, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if err != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
		}
	}
	logging.Debug().
		Str("tool", name).
		Strs("args", args).
		Int("exit_code", code).
		Msg("native tool finished")
	return stdout.String(), stderr.String(), code, err
}

// RegistryRead queries a single value with reg.exe. A missing value is not
// an error: it returns (nil, nil) so callers can distinguish "no prior
// state" from a tool failure.
func (w *windowsOps) RegistryRead(keyPath, valueName string) (*RegistryValue, error) {
	stdout, _, code, err := w.run("reg", "query", keyPath, "/v", valueName)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	if code != 0 {
		// reg query exits non-zero when the key or value does not exist.
		return nil, nil
	}
	val := parseRegQuery(stdout, valueName)
	if val == nil {
		return nil, fmt.Errorf("unexpected reg query output for %s\\%s", keyPath, valueName)
	}
	return val, nil
}

// parseRegQuery extracts one value from `reg query <key> /v <name>` output,
// which lists the key path followed by indented "<name>  <REG_TYPE>  <data>"
// lines. The data portion may itself contain spaces.
func parseRegQuery(output, valueName string) *RegistryValue {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		idx := strings.Index(line, "REG_")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		if !strings.EqualFold(name, valueName) {
			continue
		}
		rest := line[idx:]
		fields := strings.SplitN(rest, "    ", 2)
		val := &RegistryValue{Name: name, Type: strings.TrimSpace(fields[0])}
		if len(fields) == 2 {
			val.Data = strings.TrimSpace(fields[1])
		}
		// The type field may be followed by a single-space-separated data
		// chunk when reg.exe uses narrow padding.
		if val.Data == "" {
			if parts := strings.Fields(rest); len(parts) > 1 {
				val.Type = parts[0]
				val.Data = strings.Join(parts[1:], " ")
			}
		}
		return val
	}
	return nil
}

func (w *windowsOps) RegistryWrite(keyPath, valueName, value, valueType string) error {
	if valueType == "" {
		valueType = "REG_SZ"
	}
	_, stderr, code, err := w.run("reg", "add", keyPath, "/v", valueName, "/t", valueType, "/d", value, "/f")
	if err != nil {
		return fmt.Errorf("failed to write registry value: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("reg add failed: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// RegistryDelete removes a single value, or the whole key when valueName is
// empty.
func (w *windowsOps) RegistryDelete(keyPath, valueName string) error {
	args := []string{"delete", keyPath, "/f"}
	if valueName != "" {
		args = []string{"delete", keyPath, "/v", valueName, "/f"}
	}
	_, stderr, code, err := w.run("reg", args...)
	if err != nil {
		return fmt.Errorf("failed to delete registry value: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("reg delete failed: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// Service drives sc.exe. Query returns the service state word (RUNNING,
// STOPPED, ...); start/stop/restart return a short confirmation message.
func (w *windowsOps) Service(name string, action ServiceAction) (string, error) {
	switch action {
	case ServiceQuery:
		stdout, stderr, code, err := w.run("sc", "query", name)
		if err != nil {
			return "", fmt.Errorf("failed to query service %s: %w", name, err)
		}
		if code != 0 {
			return "", fmt.Errorf("sc query failed: %s", strings.TrimSpace(firstNonEmpty(stderr, stdout)))
		}
		return parseServiceState(stdout), nil
	case ServiceStart:
		return w.serviceControl("start", name)
	case ServiceStop:
		return w.serviceControl("stop", name)
	case ServiceRestart:
		// Ignore the stop outcome: an already-stopped service is fine.
		_, _ = w.serviceControl("stop", name)
		return w.serviceControl("start", name)
	default:
		return "", fmt.Errorf("unknown service action %q", action)
	}
}

func (w *windowsOps) serviceControl(verb, name string) (string, error) {
	stdout, stderr, code, err := w.run("sc", verb, name)
	if err != nil {
		return "", fmt.Errorf("failed to %s service %s: %w", verb, name, err)
	}
	if code != 0 {
		return "", fmt.Errorf("sc %s failed: %s", verb, strings.TrimSpace(firstNonEmpty(stderr, stdout)))
	}
	return fmt.Sprintf("service %s: %s requested", name, verb), nil
}

// parseServiceState pulls the state word out of sc query output, whose
// STATE line looks like "        STATE              : 4  RUNNING".
func parseServiceState(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "STATE") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	return "UNKNOWN"
}

func (w *windowsOps) AddFirewallRule(rule FirewallRule) error {
	args := []string{
		"advfirewall", "firewall", "add", "rule",
		"name=" + rule.Name,
		"dir=" + rule.Direction,
		"action=" + rule.Action,
		"protocol=" + rule.Protocol,
	}
	if rule.Port > 0 {
		args = append(args, "localport="+strconv.Itoa(rule.Port))
	}
	_, stderr, code, err := w.run("netsh", args...)
	if err != nil {
		return fmt.Errorf("failed to add firewall rule: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("netsh failed: %s", strings.TrimSpace(stderr))
	}
	return nil
}

func (w *windowsOps) CreateScheduledTask(name, command, schedule string) error {
	_, stderr, code, err := w.run("schtasks", "/create", "/tn", name, "/tr", command, "/sc", schedule, "/f")
	if err != nil {
		return fmt.Errorf("failed to create scheduled task: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("schtasks create failed: %s", strings.TrimSpace(stderr))
	}
	return nil
}

func (w *windowsOps) DeleteScheduledTask(name string) error {
	_, stderr, code, err := w.run("schtasks", "/delete", "/tn", name, "/f")
	if err != nil {
		return fmt.Errorf("failed to delete scheduled task: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("schtasks delete failed: %s", strings.TrimSpace(stderr))
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
