package searchcmd

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

// Error paths must return an exit-coded error rather than calling
// os.Exit, so deferred browser teardown still runs.
func TestSearchActionMissingQueryReturnsExitError(t *testing.T) {
	set := flag.NewFlagSet("search", flag.ContinueOnError)
	c := cli.NewContext(cli.NewApp(), set, nil)

	err := SearchAction(c)
	if err == nil {
		t.Fatal("expected an error for a missing query")
	}
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("error %T does not carry an exit code", err)
	}
	if ec.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", ec.ExitCode())
	}
}

func TestSearchActionBadConfigReturnsExitError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engines: [unbalanced"), 0o644); err != nil {
		t.Fatal(err)
	}
	set := flag.NewFlagSet("search", flag.ContinueOnError)
	set.String("config", "", "")
	if err := set.Set("config", path); err != nil {
		t.Fatal(err)
	}
	c := cli.NewContext(cli.NewApp(), set, nil)

	err := SearchAction(c)
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("error %T does not carry an exit code", err)
	}
	if ec.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", ec.ExitCode())
	}
}
