package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestFrom_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Scenario: "landing"})
	ctx = WithCorrelation(ctx, Correlation{Step: 3, StepKind: "click"})
	From(ctx).Info("step done")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"run_id":    "run-1",
		"scenario":  "landing",
		"step":      float64(3),
		"step_kind": "click",
		"msg":       "step done",
	}
	for k, v := range want {
		if record[k] != v {
			t.Fatalf("field %q mismatch: got=%v want=%v", k, record[k], v)
		}
	}
	ts, _ := record["time"].(string)
	if !strings.HasSuffix(ts, "Z") {
		t.Fatalf("expected UTC timestamp, got %q", ts)
	}
}

func TestFrom_WithoutCorrelation(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	From(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "run_id") {
		t.Fatalf("unexpected correlation fields: %s", buf.String())
	}
}

func TestWithCorrelation_KeepsExistingFields(t *testing.T) {
	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-a", Scenario: "s"})
	ctx = WithCorrelation(ctx, Correlation{Scenario: "t"})
	corr := CorrelationFromContext(ctx)
	if corr.RunID != "run-a" || corr.Scenario != "t" {
		t.Fatalf("unexpected correlation: %+v", corr)
	}
}

func TestNewRunID_Unique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatalf("run IDs collide: %s", a)
	}
	if !strings.HasPrefix(a, "run-") {
		t.Fatalf("run ID missing prefix: %s", a)
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat(" TEXT ") != FormatText {
		t.Fatal("expected text format")
	}
	if ParseFormat("bogus") != FormatJSON {
		t.Fatal("expected JSON fallback")
	}
}
