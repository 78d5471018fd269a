package app

import (
	"reflect"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	// Test that root command is properly configured
	if RootCmd.Use != "pkgretain" {
		t.Errorf("expected Use to be 'pkgretain', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{
		"register", "deregister", "explain", "list", "expire",
		"run", "watch", "status", "doctor",
	}
	foundCommands := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestSubcommandsAreDocumented(t *testing.T) {
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			continue
		}
		if cmd.Short == "" || cmd.Long == "" {
			t.Errorf("command %q: expected Short and Long descriptions", cmd.Name())
		}
		if cmd.RunE == nil {
			t.Errorf("command %q: expected RunE to be set", cmd.Name())
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "journal", "backend", "log-level"} {
		flag := RootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected --%s flag to be registered", name)
			continue
		}
		if flag.Usage == "" {
			t.Errorf("expected --%s flag to have usage text", name)
		}
	}
}

func TestRootCommand_PrintsTips(t *testing.T) {
	useTestJournal(t, "json")

	stdout, _, err := execute(t)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(stdout, "pkgretain status") {
		t.Errorf("expected tips in output, got:\n%s", stdout)
	}
}

func TestRootCommand_UnknownSubcommandSuggests(t *testing.T) {
	useTestJournal(t, "json")

	_, _, err := execute(t, "regster")
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(err.Error(), "register") {
		t.Errorf("expected a suggestion for 'register', got: %v", err)
	}
}

func TestGlobalArgs(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	if args := globalArgs(); len(args) != 0 {
		t.Errorf("globalArgs() with no flags = %v, want empty", args)
	}

	configPath = "/etc/pkgretain.yaml"
	backendName = "sqlite"

	want := []string{"--config", "/etc/pkgretain.yaml", "--backend", "sqlite"}
	if got := globalArgs(); !reflect.DeepEqual(got, want) {
		t.Errorf("globalArgs() = %v, want %v", got, want)
	}
}
