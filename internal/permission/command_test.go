package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	commands, err := ParseCommand("git commit -m 'fix bug'")
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "git", commands[0].Name)
	assert.Equal(t, []string{"commit", "-m", "fix bug"}, commands[0].Args)
}

func TestParseCommandChain(t *testing.T) {
	commands, err := ParseCommand("echo hi && rm -rf /tmp/x; ls")
	require.NoError(t, err)
	require.Len(t, commands, 3)
	assert.Equal(t, "echo", commands[0].Name)
	assert.Equal(t, "rm", commands[1].Name)
	assert.Equal(t, "ls", commands[2].Name)
}

func TestFirstToken(t *testing.T) {
	tests := []struct {
		command  string
		expected string
	}{
		{"git status", "git"},
		{"  npm   install express", "npm"},
		{"echo 'hello world'", "echo"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.expected, FirstToken(tt.command))
		})
	}
}

func TestIsSafeCommand(t *testing.T) {
	tests := []struct {
		command string
		safe    bool
	}{
		{"echo hi", true},
		{"ls -la", true},
		{"dir", true},
		{"pwd", true},
		{"whoami", true},
		{"python --version", true},
		{"pip --version", true},
		{"python script.py", false},
		{"pip install requests", false},
		{"rm -rf /", false},
		{"git status", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.safe, IsSafeCommand(tt.command))
		})
	}
}

func TestIsSafeCommandChainRequiresAllSafe(t *testing.T) {
	assert.True(t, IsSafeCommand("echo hi && pwd"))
	assert.False(t, IsSafeCommand("echo hi && rm -rf /tmp/x"))
}

func TestIsSafeCommandCaseInsensitive(t *testing.T) {
	assert.True(t, IsSafeCommand("ECHO hi"))
	assert.True(t, IsSafeCommand("Python --Version"))
}
