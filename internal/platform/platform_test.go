package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and replays scripted responses.
type fakeRunner struct {
	calls  []call
	stdout string
	stderr string
	code   int
}

func (f *fakeRunner) run(name string, args ...string) (string, string, int, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return f.stdout, f.stderr, f.code, nil
}

func TestUnsupportedOpsUniform(t *testing.T) {
	ops := ForOS("linux")

	_, err := ops.RegistryRead(`HKCU\Software\X`, "v")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.ErrorIs(t, ops.RegistryWrite(`HKCU\Software\X`, "v", "1", "REG_SZ"), ErrUnsupportedPlatform)
	assert.ErrorIs(t, ops.RegistryDelete(`HKCU\Software\X`, "v"), ErrUnsupportedPlatform)
	_, err = ops.Service("Spooler", ServiceQuery)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.ErrorIs(t, ops.AddFirewallRule(FirewallRule{Name: "r"}), ErrUnsupportedPlatform)
	assert.ErrorIs(t, ops.CreateScheduledTask("t", "cmd", "DAILY"), ErrUnsupportedPlatform)
	assert.ErrorIs(t, ops.DeleteScheduledTask("t"), ErrUnsupportedPlatform)
}

func TestForOSWindows(t *testing.T) {
	_, ok := ForOS("windows").(*windowsOps)
	assert.True(t, ok)
}

func TestRegistryReadParsesValue(t *testing.T) {
	fake := &fakeRunner{stdout: strings.Join([]string{
		"",
		`HKEY_CURRENT_USER\Software\SysgateTest`,
		"    Greeting    REG_SZ    Hello from the other side",
		"",
	}, "\r\n")}
	ops := &windowsOps{run: fake.run}

	val, err := ops.RegistryRead(`HKEY_CURRENT_USER\Software\SysgateTest`, "Greeting")

	require.NoError(t, err)
	require.NotNil(t, val)
	assert.Equal(t, "Greeting", val.Name)
	assert.Equal(t, "REG_SZ", val.Type)
	assert.Equal(t, "Hello from the other side", val.Data)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "reg", fake.calls[0].name)
	assert.Equal(t, []string{"query", `HKEY_CURRENT_USER\Software\SysgateTest`, "/v", "Greeting"}, fake.calls[0].args)
}

func TestRegistryReadMissingValue(t *testing.T) {
	fake := &fakeRunner{stderr: "ERROR: The system was unable to find the specified registry key or value.", code: 1}
	ops := &windowsOps{run: fake.run}

	val, err := ops.RegistryRead(`HKCU\Software\Nope`, "Missing")

	assert.NoError(t, err)
	assert.Nil(t, val)
}

func TestRegistryWriteArgs(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	require.NoError(t, ops.RegistryWrite(`HKCU\Software\X`, "Num", "42", "REG_DWORD"))

	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{"add", `HKCU\Software\X`, "/v", "Num", "/t", "REG_DWORD", "/d", "42", "/f"}, fake.calls[0].args)
}

func TestRegistryWriteDefaultsToString(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	require.NoError(t, ops.RegistryWrite(`HKCU\Software\X`, "Name", "v", ""))

	assert.Contains(t, fake.calls[0].args, "REG_SZ")
}

func TestRegistryDeleteValueAndKey(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	require.NoError(t, ops.RegistryDelete(`HKCU\Software\X`, "Name"))
	require.NoError(t, ops.RegistryDelete(`HKCU\Software\X`, ""))

	assert.Equal(t, []string{"delete", `HKCU\Software\X`, "/v", "Name", "/f"}, fake.calls[0].args)
	assert.Equal(t, []string{"delete", `HKCU\Software\X`, "/f"}, fake.calls[1].args)
}

func TestServiceQueryParsesState(t *testing.T) {
	fake := &fakeRunner{stdout: strings.Join([]string{
		"SERVICE_NAME: Spooler",
		"        TYPE               : 110  WIN32_OWN_PROCESS",
		"        STATE              : 4  RUNNING",
		"        WIN32_EXIT_CODE    : 0  (0x0)",
	}, "\r\n")}
	ops := &windowsOps{run: fake.run}

	state, err := ops.Service("Spooler", ServiceQuery)

	require.NoError(t, err)
	assert.Equal(t, "RUNNING", state)
}

func TestServiceRestartStopsThenStarts(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	_, err := ops.Service("Spooler", ServiceRestart)

	require.NoError(t, err)
	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"stop", "Spooler"}, fake.calls[0].args)
	assert.Equal(t, []string{"start", "Spooler"}, fake.calls[1].args)
}

func TestServiceUnknownAction(t *testing.T) {
	ops := &windowsOps{run: (&fakeRunner{}).run}

	_, err := ops.Service("Spooler", ServiceAction("reload"))

	assert.Error(t, err)
}

func TestAddFirewallRuleArgs(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	err := ops.AddFirewallRule(FirewallRule{
		Name:      "sysgate-test",
		Action:    "allow",
		Direction: "in",
		Protocol:  "TCP",
		Port:      8080,
	})

	require.NoError(t, err)
	assert.Equal(t, "netsh", fake.calls[0].name)
	assert.Equal(t, []string{
		"advfirewall", "firewall", "add", "rule",
		"name=sysgate-test", "dir=in", "action=allow", "protocol=TCP", "localport=8080",
	}, fake.calls[0].args)
}

func TestAddFirewallRuleNoPort(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	require.NoError(t, ops.AddFirewallRule(FirewallRule{Name: "r", Action: "block", Direction: "out", Protocol: "UDP"}))

	for _, arg := range fake.calls[0].args {
		assert.NotContains(t, arg, "localport")
	}
}

func TestScheduledTaskArgs(t *testing.T) {
	fake := &fakeRunner{}
	ops := &windowsOps{run: fake.run}

	require.NoError(t, ops.CreateScheduledTask("nightly", `notepad.exe`, "DAILY"))
	require.NoError(t, ops.DeleteScheduledTask("nightly"))

	assert.Equal(t, []string{"/create", "/tn", "nightly", "/tr", "notepad.exe", "/sc", "DAILY", "/f"}, fake.calls[0].args)
	assert.Equal(t, []string{"/delete", "/tn", "nightly", "/f"}, fake.calls[1].args)
}

func TestRegistryWriteFailureSurfacesStderr(t *testing.T) {
	fake := &fakeRunner{stderr: "ERROR: Access is denied.", code: 1}
	ops := &windowsOps{run: fake.run}

	err := ops.RegistryWrite(`HKLM\Software\X`, "v", "1", "REG_SZ")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access is denied")
}
