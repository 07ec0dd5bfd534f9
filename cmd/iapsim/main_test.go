package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/iap/billing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunScenario(t *testing.T) {
	out, err := execute(t, "run", "--events=false", "testdata/session.toml")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	// gems: one duplicated success, one cancel, one unscripted success.
	want := map[string]string{"gems": "2", "no_ads": "1", "hat": "0"}
	for itemID, balance := range want {
		found := false
		for _, line := range strings.Split(out, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 2 && fields[0] == itemID {
				found = true
				if fields[1] != balance {
					t.Errorf("%s: got %s, want %s", itemID, fields[1], balance)
				}
			}
		}
		if !found {
			t.Errorf("%s missing from output:\n%s", itemID, out)
		}
	}
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute(t, "catalog", "testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, want := range []string{"version 2", "com.example.gems", "$1.99", "5 gems"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadScenario(t *testing.T) {
	sc, err := loadScenario("testdata/session.toml")
	if err != nil {
		t.Fatal(err)
	}
	if sc.Assets != filepath.Join("testdata", "catalog.yaml") {
		t.Errorf("assets path: got %q", sc.Assets)
	}
	if len(sc.Steps) != 2 || len(sc.Purchases) != 3 || len(sc.Owned) != 1 {
		t.Errorf("scenario: %+v", sc)
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("assets = \"a.yaml\"\nunknown_key = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadScenario(bad); err == nil {
		t.Error("unknown keys accepted")
	}
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in      stepSpec
		outcome billing.Outcome
		state   billing.PurchaseState
		wantErr bool
	}{
		{stepSpec{}, billing.OutcomeSuccess, billing.StatePurchased, false},
		{stepSpec{Outcome: "success", State: "refunded"}, billing.OutcomeSuccess, billing.StateRefunded, false},
		{stepSpec{Outcome: "already_owned"}, billing.OutcomeAlreadyOwned, billing.StatePurchased, false},
		{stepSpec{Outcome: "failed", Error: "declined"}, billing.OutcomeFailed, billing.StatePurchased, false},
		{stepSpec{Outcome: "exploded"}, 0, 0, true},
		{stepSpec{State: "lost"}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in.Outcome+"/"+tt.in.State, func(t *testing.T) {
			step, err := tt.in.toStep()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if step.Outcome != tt.outcome || step.State != tt.state {
				t.Errorf("step: %+v", step)
			}
			if tt.in.Error != "" && (step.Err == nil || step.Err.Error() != tt.in.Error) {
				t.Errorf("err: got %v, want %s", step.Err, tt.in.Error)
			}
		})
	}
}
