package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matviet/outbound-cli/internal/classify"
	"github.com/matviet/outbound-cli/internal/config"
	"github.com/matviet/outbound-cli/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "fetch", "import", "reclassify", "link", "stats", "classify", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "outbound-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"log-level", "store"} {
		f := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, "root should have --%s", name)
		assert.Empty(t, f.DefValue)
	}
}

func TestCommand_Flags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"migrate", "seed", "false"},
		{"fetch", "dest", ""},
		{"import", "dir", ""},
		{"import", "file", ""},
		{"import", "replace", "false"},
		{"reclassify", "all", "false"},
		{"reclassify", "month", ""},
		{"link", "month", ""},
		{"link", "channel", ""},
		{"link", "per-month", "false"},
		{"stats", "grouping", "[]"},
		{"classify", "template", ""},
		{"serve", "port", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "%s should have --%s", tt.cmd, tt.flag)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestParseMonth(t *testing.T) {
	got, err := parseMonth("2025-03")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)))

	got, err = parseMonth("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseMonth("03/2025")
	assert.Error(t, err)
}

func TestInitStore(t *testing.T) {
	s, err := initStore(context.Background(), config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)

	_, err = initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestLoadTaxonomy_RequiresSeededTypes(t *testing.T) {
	cfg = &config.Config{}
	s := store.NewMemory()
	ctx := context.Background()

	_, err := loadTaxonomy(ctx, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate --seed")

	def, err := classify.LoadDefinition("")
	require.NoError(t, err)
	_, err = classify.Seed(ctx, s, def)
	require.NoError(t, err)

	tax, err := loadTaxonomy(ctx, s)
	require.NoError(t, err)
	assert.Len(t, tax.Types(), len(def.CampaignTypes))
}

func TestClassifyCommand(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"classify", "--log-level", "error", "Ma xac thuc cua ban la 482913. Vui long khong chia se."})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var res classify.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, classify.OTP, res.Category)
}
