// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/app"
	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/models"
)

// harness runs commands against one shared in-memory stack.
type harness struct {
	t          *testing.T
	runner     *Runner
	configPath string
	opened     int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: memory\nlogging:\n  level: error\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	h := &harness{t: t, configPath: path}
	var stack *app.Stack
	h.runner = NewRunner(func(ctx context.Context, cfg *config.Config) (*app.Stack, error) {
		h.opened++
		if stack != nil {
			return stack, nil
		}
		var err error
		stack, err = app.Open(ctx, cfg)
		return stack, err
	})
	t.Cleanup(h.runner.Close)
	return h
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	root := h.runner.Command()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", h.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	if err != nil {
		h.t.Fatalf("featurectl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode output %q: %v", s, err)
	}
	return v
}

const hybridRanking = `{"name":"Hybrid ranking","slug":"hybrid-ranking","status":"running","traffic_percentage":50}`

func TestExperimentAndAssign(t *testing.T) {
	h := newHarness(t)

	exp := decode[models.Experiment](t, h.mustRun(hybridRanking, "experiment", "put"))
	if exp.ID == uuid.Nil || exp.Slug != "hybrid-ranking" {
		t.Fatalf("experiment put = %+v", exp)
	}
	if got := decode[models.Experiment](t, h.mustRun("", "experiment", "get", "hybrid-ranking")); got.ID != exp.ID {
		t.Errorf("experiment get ID = %v, want %v", got.ID, exp.ID)
	}

	bob := uuid.New().String()
	first := decode[assignOutput](t, h.mustRun("", "assign", "hybrid-ranking", "--subject-id", bob, "--email", "bob@example.com"))
	if !first.Included || !first.Created || first.Bucket != 16 || first.Variant != models.VariantTreatment {
		t.Errorf("first assign = %+v, want created treatment in bucket 16", first)
	}
	again := decode[assignOutput](t, h.mustRun("", "assign", "hybrid-ranking", "--subject-id", bob, "--email", "bob@example.com"))
	if again.Created || again.Variant != first.Variant {
		t.Errorf("second assign = %+v, want existing %s", again, first.Variant)
	}

	alice := decode[assignOutput](t, h.mustRun("", "assign", "hybrid-ranking", "--subject-id", uuid.New().String(), "--email", "alice@example.com"))
	if alice.Included || alice.Bucket != 88 {
		t.Errorf("alice assign = %+v, want excluded in bucket 88", alice)
	}

	if list := decode[[]models.Assignment](t, h.mustRun("", "experiment", "assignments", "hybrid-ranking")); len(list) != 1 {
		t.Errorf("assignments = %d, want 1", len(list))
	}
	if events := decode[[]models.EventLog](t, h.mustRun("", "experiment", "events", "hybrid-ranking")); len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}

	h.mustRun("", "experiment", "delete", "hybrid-ranking")
	if _, err := h.run("", "experiment", "get", "hybrid-ranking"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("get after delete error = %v, want ErrNotFound", err)
	}
}

func TestAssignBatch_PreservesInputOrder(t *testing.T) {
	h := newHarness(t)
	h.mustRun(hybridRanking, "experiment", "put")

	emails := []string{"alice@example.com", "bob@example.com", "carol@example.com", "dave@example.com", "erin@example.com"}
	wantBuckets := []int{88, 16, 55, 60, 30}

	var in strings.Builder
	for _, e := range emails {
		in.WriteString(`{"id":"` + uuid.New().String() + `","email":"` + e + `"}` + "\n\n")
	}
	out := h.mustRun(in.String(), "assign-batch", "hybrid-ranking", "--concurrency", "2", "--rate", "1000")

	var got []assignOutput
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		got = append(got, decode[assignOutput](t, scanner.Text()))
	}
	if len(got) != len(emails) {
		t.Fatalf("results = %d, want %d", len(got), len(emails))
	}
	for i, res := range got {
		if res.Bucket != wantBuckets[i] {
			t.Errorf("result %d bucket = %d, want %d", i, res.Bucket, wantBuckets[i])
		}
		if res.Included != (wantBuckets[i] < 50) {
			t.Errorf("result %d included = %v, want %v", i, res.Included, wantBuckets[i] < 50)
		}
	}
}

func TestAssignBatch_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.mustRun(hybridRanking, "experiment", "put")

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"malformed line", "{not json}\n", nil},
		{"missing id", `{"email":"bob@example.com"}` + "\n", nil},
		{"zero concurrency", "", []string{"--concurrency", "0"}},
		{"negative rate", "", []string{"--rate", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"assign-batch", "hybrid-ranking"}, tt.args...)
			if _, err := h.run(tt.stdin, args...); err == nil {
				t.Error("assign-batch error = nil, want error")
			}
		})
	}
}

func TestScoresAndSubjectDelete(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()
	first, second := uuid.New(), uuid.New()

	candidates := `[{"item_id":"` + first.String() + `","score":0.9},{"item_id":"` + second.String() + `","score":0.4}]`
	h.mustRun(candidates, "scores", "replace", "--user", user.String(), "--model-version", "v1")

	items := decode[[]models.RankedItem](t, h.mustRun("", "scores", "topk", "--user", user.String()))
	if len(items) != 2 || items[0].ItemID != first || items[0].Rank != 1 || items[1].Rank != 2 {
		t.Fatalf("topk = %+v", items)
	}
	if versions := decode[[]string](t, h.mustRun("", "scores", "versions", "--user", user.String())); len(versions) != 1 || versions[0] != "v1" {
		t.Errorf("versions = %v, want [v1]", versions)
	}

	h.mustRun("", "subject", "delete", first.String())
	items = decode[[]models.RankedItem](t, h.mustRun("", "scores", "topk", "--user", user.String(), "--model-version", "v1"))
	if len(items) != 1 || items[0].ItemID != second || items[0].Rank != 2 {
		t.Errorf("topk after delete = %+v, want only %s at rank 2", items, second)
	}

	increasing := `[{"item_id":"` + first.String() + `","score":0.1},{"item_id":"` + second.String() + `","score":0.4}]`
	if _, err := h.run(increasing, "scores", "replace", "--user", user.String(), "--model-version", "v1"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("replace increasing scores error = %v, want ErrInvalidInput", err)
	}
}

func TestEmbeddings(t *testing.T) {
	h := newHarness(t)
	subject := uuid.New()

	emb := `{"id":"` + uuid.New().String() + `","subject_id":"` + subject.String() +
		`","model_version":"v1","vector":[0.1,0.2,0.3],"dimension":3,"computed_at":"2026-03-01T12:00:00Z"}`
	h.mustRun(emb, "embeddings", "upsert", "--kind", "item")

	latest := decode[map[string]models.Embedding](t, h.mustRun("", "embeddings", "latest", "--kind", "item", subject.String()))
	if got, ok := latest[subject.String()]; !ok || got.Dimension != 3 {
		t.Errorf("latest = %+v, want dimension 3 embedding for %s", latest, subject)
	}

	if _, err := h.run(emb, "embeddings", "upsert", "--kind", "session"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("upsert kind session error = %v, want ErrInvalidInput", err)
	}
}

func TestFlagEval_DoesNotOpenStores(t *testing.T) {
	h := newHarness(t)
	subject := uuid.New().String()

	tests := []struct {
		name string
		args []string
		want bool
	}{
		{"full rollout", []string{"--rollout", "100"}, true},
		{"below bucket", []string{"--rollout", "50"}, false},
		{"above bucket", []string{"--rollout", "89"}, true},
		{"disabled", []string{"--rollout", "100", "--disabled"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"flag", "eval", "hybrid-ranking", "--subject-id", subject, "--email", "alice@example.com"}, tt.args...)
			res := decode[flagResult](t, h.mustRun("", args...))
			if res.Bucket != 88 {
				t.Errorf("bucket = %d, want 88", res.Bucket)
			}
			if res.Enabled != tt.want {
				t.Errorf("enabled = %v, want %v", res.Enabled, tt.want)
			}
		})
	}
	if h.opened != 0 {
		t.Errorf("stack opened %d times, want 0", h.opened)
	}
}

func TestMigrate_MemoryBackend(t *testing.T) {
	h := newHarness(t)
	res := decode[migrateResult](t, h.mustRun("", "migrate"))
	if res.Backend != "memory" || len(res.Versions) != 0 {
		t.Errorf("migrate = %+v, want memory with no versions", res)
	}
}

func TestInvalidUUIDFlag(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("", "scores", "versions", "--user", "not-a-uuid"); err == nil {
		t.Error("scores versions error = nil, want error")
	}
}
