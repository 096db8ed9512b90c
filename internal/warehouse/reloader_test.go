package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/climadw/climadw/internal/logging"
)

var defaultPlan = []string{
	`TRUNCATE "fact"."temperature" RESTART IDENTITY CASCADE`,
	`TRUNCATE "dim"."conditions" RESTART IDENTITY CASCADE`,
	`TRUNCATE "dim"."city" RESTART IDENTITY CASCADE`,
	`TRUNCATE "dim"."country" RESTART IDENTITY CASCADE`,
	`TRUNCATE "dim"."date" RESTART IDENTITY CASCADE`,
	`CALL "load_dim_date"()`,
	`CALL "load_dim_country"()`,
	`CALL "load_dim_city"()`,
	`CALL "load_dim_conditions"()`,
	`CALL "merge_fact_temperature"()`,
}

func newTestReloader(t *testing.T, exec Executor) *Reloader {
	t.Helper()
	r, err := NewReloader(DefaultSteps(), exec, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestReload_Order(t *testing.T) {
	exec := &RecordingExecutor{}
	r := newTestReloader(t, exec)

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.Statements) != len(defaultPlan) {
		t.Fatalf("expected %d statements, got %d", len(defaultPlan), len(exec.Statements))
	}
	for i, want := range defaultPlan {
		if exec.Statements[i] != want {
			t.Errorf("statement %d: expected %s, got %s", i, want, exec.Statements[i])
		}
	}
}

func TestReload_Idempotent(t *testing.T) {
	exec := &RecordingExecutor{}
	r := newTestReloader(t, exec)

	for i := 0; i < 2; i++ {
		if err := r.Reload(context.Background()); err != nil {
			t.Fatalf("reload %d: unexpected error: %v", i, err)
		}
	}
	first := strings.Join(exec.Statements[:len(defaultPlan)], ";")
	second := strings.Join(exec.Statements[len(defaultPlan):], ";")
	if first != second {
		t.Errorf("expected identical statement sequences, got\n%s\n%s", first, second)
	}
}

func TestReload_CityFailureStopsLaterSteps(t *testing.T) {
	cause := errors.New(`null value in column "city_name" violates not-null constraint`)
	exec := &RecordingExecutor{FailOn: "load_dim_city", Err: cause}
	r := newTestReloader(t, exec)

	err := r.Reload(context.Background())

	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if se.Step != "dim_city" || se.Phase != PhaseLoad {
		t.Errorf("expected load of dim_city, got %s of %s", se.Phase, se.Step)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be wrapped")
	}
	for _, stmt := range exec.Statements {
		if strings.Contains(stmt, "load_dim_conditions") || strings.Contains(stmt, "merge_fact_temperature") {
			t.Errorf("expected no statements after failure, got %s", stmt)
		}
	}
	if last := exec.Statements[len(exec.Statements)-1]; last != `CALL "load_dim_city"()` {
		t.Errorf("expected load_dim_city last, got %s", last)
	}
}

func TestReload_TruncateFailure(t *testing.T) {
	exec := &RecordingExecutor{FailOn: `"dim"."city"`, Err: errors.New("permission denied")}
	r := newTestReloader(t, exec)

	err := r.Reload(context.Background())

	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if se.Phase != PhaseTruncate || se.Step != "dim_city" {
		t.Errorf("expected truncate of dim_city, got %s of %s", se.Phase, se.Step)
	}
	for _, stmt := range exec.Statements {
		if strings.HasPrefix(stmt, "CALL") {
			t.Errorf("expected no routine calls, got %s", stmt)
		}
	}
}

func TestReload_Callbacks(t *testing.T) {
	exec := &RecordingExecutor{}
	r := newTestReloader(t, exec)

	var started, completed []string
	r.SetCallbacks(Callbacks{
		OnStatement: func(s Statement) { started = append(started, s.Phase+":"+s.Step) },
		OnComplete:  func(s Statement, _ time.Duration) { completed = append(completed, s.Step) },
	})

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(started) != 10 || len(completed) != 10 {
		t.Errorf("expected 10 callbacks each, got %d and %d", len(started), len(completed))
	}
	if started[0] != "truncate:fact_temperature" || started[9] != "load:fact_temperature" {
		t.Errorf("unexpected callback order %v", started)
	}
}

func TestNewReloader_Cycle(t *testing.T) {
	steps := []Step{
		{Name: "a", Table: "dim.a", Procedure: "load_a", DependsOn: []string{"b"}},
		{Name: "b", Table: "dim.b", Procedure: "load_b", DependsOn: []string{"a"}},
	}
	_, err := NewReloader(steps, &RecordingExecutor{}, nil)

	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Errorf("expected CycleError, got %v", err)
	}
}

func TestPlan_QualifiedProcedure(t *testing.T) {
	r, err := NewReloader([]Step{{Name: "x", Table: "dim.x", Procedure: "etl.load_x"}}, &RecordingExecutor{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plan := r.Plan()
	if plan[1].SQL != `CALL "etl"."load_x"()` {
		t.Errorf("unexpected statement %s", plan[1].SQL)
	}
}
