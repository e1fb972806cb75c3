package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"worklog": run,
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			home := filepath.Join(env.WorkDir, "home")
			if err := os.MkdirAll(home, 0o755); err != nil {
				return err
			}
			env.Setenv("HOME", home)
			env.Setenv("WORKLOG_CONFIG", filepath.Join(home, "worklog.toml"))
			env.Setenv("WORKLOG_DB_PATH", filepath.Join(env.WorkDir, "worklog.db"))
			env.Setenv("WORKLOG_USER", "alice")
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"firstid": cmdFirstID,
		},
	})
}

// cmdFirstID stores the id of the first element of a JSON array file in an
// env var: firstid FILE VAR
func cmdFirstID(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("firstid does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: firstid FILE VAR")
	}
	var items []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(ts.ReadFile(args[0])), &items); err != nil {
		ts.Fatalf("parse %s: %v", args[0], err)
	}
	if len(items) == 0 || items[0].ID == "" {
		ts.Fatalf("%s holds no ids", args[0])
	}
	ts.Setenv(args[1], items[0].ID)
}
