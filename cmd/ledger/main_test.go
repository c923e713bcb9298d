package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/ledger/internal/core"
)

type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(dir, "ledger.db"))
	t.Setenv("LOG_LEVEL", "error")

	c := &cli{t: t, dir: dir}
	if out, err := c.run("migrate"); err != nil || !strings.Contains(out, "schema up to date") {
		t.Fatalf("migrate = %q, %v", out, err)
	}
	return c
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(c.dir, "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) file(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		c.t.Fatal(err)
	}
	return path
}

func (c *cli) history(args ...string) []core.ImportRecord {
	c.t.Helper()
	out, err := c.run(append([]string{"history", "--json"}, args...)...)
	if err != nil {
		c.t.Fatalf("history: %v", err)
	}
	var recs []core.ImportRecord
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		c.t.Fatalf("history output %q: %v", out, err)
	}
	return recs
}

const janStatement = "Date,Description,Debit,Credit\n01/05/2024,Coffee,4.50,\n01/06/2024,Salary,,2500\n"

func TestImportCommand(t *testing.T) {
	c := newCLI(t)
	path := c.file("jan.csv", janStatement)

	out, err := c.run("import", path, "--account", "checking")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 2 transactions from jan.csv into checking") {
		t.Errorf("output = %q", out)
	}

	_, err = c.run("import", path, "--account", "checking")
	if !errors.Is(err, core.ErrDuplicateImport) {
		t.Errorf("re-import error = %v, want ErrDuplicateImport", err)
	}

	if _, err := c.run("import", path, "--account", "checking", "--allow-duplicate"); err != nil {
		t.Errorf("import --allow-duplicate: %v", err)
	}

	recs := c.history("--hash", core.HashContent([]byte(janStatement)))
	if len(recs) != 2 {
		t.Errorf("imports with jan hash = %d, want 2", len(recs))
	}
}

func TestImportCommand_RejectsBadFileAtomically(t *testing.T) {
	c := newCLI(t)
	path := c.file("bad.csv", "Date,Description,Amount\n2024-01-05,A,1\n2024-01-06,B,\n")

	_, err := c.run("import", path, "--account", "checking")
	var rowErr *core.InvalidRowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("error = %v, want *InvalidRowError", err)
	}
	if rowErr.Row != 3 || rowErr.Reason != core.ReasonInvalidAmount {
		t.Errorf("error = %v, want row 3: invalid amount", rowErr)
	}
	if recs := c.history(); len(recs) != 0 {
		t.Errorf("imports = %d, want 0", len(recs))
	}
}

func TestImportCommand_DryRun(t *testing.T) {
	c := newCLI(t)
	path := c.file("jan.csv", janStatement)

	out, err := c.run("import", path, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	for _, want := range []string{"2 rows would be imported", "Coffee", "Salary", "2024-01-05"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if recs := c.history(); len(recs) != 0 {
		t.Errorf("imports after dry run = %d, want 0", len(recs))
	}
}

func TestImportCommand_DryRunWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	c := &cli{t: t, dir: dir}
	path := c.file("jan.csv", janStatement)

	out, err := c.run("import", path, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "2 rows would be imported") {
		t.Errorf("output = %q", out)
	}

	_, err = c.run("import", path, "--account", "checking")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("import without database error = %v, want DATABASE_URL required", err)
	}
}

func TestImportCommand_Delimiter(t *testing.T) {
	c := newCLI(t)
	path := c.file("eu.csv", "Date;Description;Amount\n2024-03-01;Bakery;-3.20\n")

	if _, err := c.run("import", path, "--account", "a", "--delimiter", ";;"); err == nil {
		t.Error("two-character delimiter accepted")
	}
	if _, err := c.run("import", path, "--account", "a", "--delimiter", ";"); err != nil {
		t.Errorf("import with ';' delimiter: %v", err)
	}
}

func TestImportCommand_RequiresAccount(t *testing.T) {
	c := newCLI(t)
	path := c.file("jan.csv", janStatement)

	if _, err := c.run("import", path); err == nil {
		t.Error("import without --account succeeded")
	}
}

func TestShowCommand(t *testing.T) {
	c := newCLI(t)
	path := c.file("jan.csv", janStatement)

	if _, err := c.run("import", path, "--account", "checking"); err != nil {
		t.Fatal(err)
	}
	recs := c.history()
	if len(recs) != 1 {
		t.Fatalf("imports = %d, want 1", len(recs))
	}

	out, err := c.run("show", recs[0].ID.String())
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"jan.csv", "checking", "Coffee", "2500"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := c.run("show", "not-a-uuid"); err == nil {
		t.Error("show with invalid id succeeded")
	}
}
