package mainboilerplate

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCmd struct {
	Value    string `long:"value" default:"def"`
	executed []string
}

func (c *testCmd) Execute(args []string) error {
	c.executed = append(c.executed, args...)
	return nil
}

// groupCmd only contains sub-commands.
type groupCmd struct{ executed bool }

func (c *groupCmd) Execute([]string) error {
	c.executed = true
	return nil
}

func TestCommandRegistryBuildsNestedCommands(t *testing.T) {
	var top, other = new(groupCmd), new(groupCmd)
	var nested = new(testCmd)

	var reg = NewCommandRegistry()
	reg.AddCommand("top", "nested", "Nested command", "", nested)
	reg.AddCommand("", "top", "Top command", "", top)
	reg.AddCommand("", "other", "Other command", "", other)

	var parser = flags.NewParser(nil, flags.None)
	require.NoError(t, reg.AddCommands("", parser.Command, true))

	assert.NotNil(t, parser.Find("top"))
	assert.NotNil(t, parser.Find("other"))
	assert.NotNil(t, parser.Find("top").Find("nested"))

	var _, err = parser.ParseArgs([]string{"top", "nested", "--value", "v", "extra"})
	require.NoError(t, err)
	assert.Equal(t, "v", nested.Value)
	assert.Equal(t, []string{"extra"}, nested.executed)
	assert.False(t, top.executed)

	// Without recursion, only direct children are added.
	parser = flags.NewParser(nil, flags.None)
	require.NoError(t, reg.AddCommands("", parser.Command, false))
	assert.Nil(t, parser.Find("top").Find("nested"))
}

func TestCommandRegistryErrors(t *testing.T) {
	var reg = NewCommandRegistry()
	reg.AddCommand("", "ok", "", "", new(testCmd))
	reg.AddCommand("", "bad", "", "", &struct {
		Bad int `long:"bad" short:"too-long"`
	}{})

	var parser = flags.NewParser(nil, flags.None)
	assert.Error(t, reg.AddCommands("", parser.Command, false))
}

func TestMust(t *testing.T) {
	assert.NotPanics(t, func() { Must(nil, "not reached") })

	defer func() {
		var entry, ok = recover().(*log.Entry)
		require.True(t, ok)
		assert.Equal(t, "it failed", entry.Message)
		assert.Equal(t, "value", entry.Data["key"])
		assert.EqualError(t, entry.Data["err"].(error), "whoops")
	}()
	Must(errors.New("whoops"), "it failed", "key", "value")
}

func TestConfigPrefixes(t *testing.T) {
	t.Setenv("HOME", "/home/user")
	t.Setenv("UserProfile", "")
	assert.Equal(t, []string{".", "/home/user/.config/sql3"}, configPrefixes())
}
