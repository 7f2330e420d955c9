package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storydeck", cmd.Use)
	assert.Contains(t, cmd.Long, "story feed engine")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "test", "replay", "seed", "play", "trace"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestPlayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	playCmd, _, err := cmd.Find([]string{"play"})
	require.NoError(t, err)

	for _, name := range []string{"script", "resume", "db", "viewer", "dwell", "swipe-threshold", "fetch-timeout", "prefetch", "like-limit", "remote"} {
		assert.NotNil(t, playCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "-", playCmd.Flags().Lookup("script").DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	replayCmd, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)

	runsFlag := replayCmd.Flags().Lookup("runs")
	require.NotNil(t, runsFlag)
	assert.Equal(t, "2", runsFlag.DefValue)
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	require.NotNil(t, traceCmd.Flags().Lookup("db"))
	require.NotNil(t, traceCmd.Flags().Lookup("event"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigFileFeedsCommands(t *testing.T) {
	dir := t.TempDir()
	db := seededDB(t)
	cfgPath := filepath.Join(dir, "storydeck.yaml")
	writeFile(t, cfgPath, "viewer: me\nfeed:\n  dwell: 1h\ndatabase:\n  path: "+db+"\n")

	script := filepath.Join(dir, "session.txt")
	require.NoError(t, os.WriteFile(script, []byte("start\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "play", "--script", script})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "2 fetch (0,0)->(0,0) a1 appended [page 0]")

	buf.Reset()
	cmd = NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config", cfgPath, "trace"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "2 transitions")
}

func TestConfigErrorIsCommandError(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "trace"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
