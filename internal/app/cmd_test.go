package app

import (
	"bytes"
	"testing"
)

func TestNeedsConfig(t *testing.T) {
	tests := []struct {
		cmd  Command
		want bool
	}{
		{CommandServe, true},
		{CommandWorker, true},
		{CommandMigrate, true},
		{CommandImport, true},
		{CommandResetUser, true},
		{CommandFeedLink, true},
		{CommandHealthcheck, false},
		{CommandValidate, false},
		{commandHelp, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			if got := needsConfig(tt.cmd); got != tt.want {
				t.Errorf("needsConfig(%q) = %v, want %v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})

	for _, want := range []Command{
		CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck,
		CommandImport, CommandResetUser, CommandFeedLink, CommandValidate,
	} {
		cmd, _, err := root.Find([]string{string(want)})
		if err != nil {
			t.Errorf("Find(%q) error = %v", want, err)
			continue
		}
		if got := commandOf(cmd); got != want {
			t.Errorf("commandOf(%q) = %q", want, got)
		}
	}
}

func TestCommandOf_RootIsServe(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})
	if got := commandOf(root); got != CommandServe {
		t.Errorf("commandOf(root) = %q, want %q", got, CommandServe)
	}
}

func TestRun_Help_DoesNotRequireConfig(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"help"}); err != nil {
		t.Fatalf("Run(help) error = %v", err)
	}
	for _, want := range []string{"serve", "reset-user", "feed-link", "validate"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("help output should list %q, got:\n%s", want, buf.String())
		}
	}
}
