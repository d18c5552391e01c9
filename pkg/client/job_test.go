package client

import (
	"context"
	"errors"
	"testing"

	"cwlclient/pkg/apperrors"
)

func TestRunAssignsID(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	job := mustCreateJob(t, srv, "run-job")

	id := mustRun(t, job)
	if id == "" {
		t.Fatal("Run returned an empty id")
	}
	if job.ID() != id {
		t.Errorf("ID() = %q, want %q", job.ID(), id)
	}
	rec, ok := fake.JobByName("run-job")
	if !ok {
		t.Fatal("job record missing on the service")
	}
	if rec.State != "Waiting" {
		t.Errorf("initial state = %q, want Waiting", rec.State)
	}
}

func TestRunTwiceConflicts(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "run-twice")

	id := mustRun(t, job)
	_, err := job.Run(context.Background())
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second Run = %v, want conflict class", err)
	}
	if job.ID() != id {
		t.Errorf("failed Run changed id to %q", job.ID())
	}
}

func TestRunWithoutWorkflow(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "no-workflow")

	_, err := job.Run(context.Background())
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("Run without workflow = %v, want validation class", err)
	}
	if job.ID() != "" {
		t.Errorf("rejected Run assigned id %q", job.ID())
	}
}

func TestStateBeforeRun(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "unsubmitted")

	state, err := job.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateNone {
		t.Errorf("State = %q, want StateNone", state)
	}
}

func TestStateFollowsService(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "state-job")
	id := mustRun(t, job)

	for _, want := range []State{StateWaiting, StateRunning, StateSuccess} {
		fake.SetState(id, string(want))
		got, err := job.State(ctx)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if got != want {
			t.Errorf("State = %q, want %q", got, want)
		}
	}
}

func TestStateOfDeletedJob(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "vanishing")
	id := mustRun(t, job)

	// A second handle keeps the id after the job is destroyed through the
	// first one.
	other, err := srv.GetJobByID(ctx, id)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if err := job.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = other.State(ctx)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("State of deleted job = %v, want not-found class", err)
	}
}

func TestIsRunning(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "running-job")
	id := mustRun(t, job)

	tests := []struct {
		state string
		want  bool
	}{
		{"Waiting", true},
		{"Running", true},
		{"Success", false},
		{"PermanentFailure", false},
	}
	for _, tt := range tests {
		fake.SetState(id, tt.state)
		got, err := job.IsRunning(ctx)
		if err != nil {
			t.Fatalf("IsRunning in %s: %v", tt.state, err)
		}
		if got != tt.want {
			t.Errorf("IsRunning in %s = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "cancel-job")
	id := mustRun(t, job)
	fake.SetState(id, "Running")

	if err := job.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	state, err := job.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateCancelled {
		t.Errorf("State after cancel = %q, want Cancelled", state)
	}
}

func TestCancelPreservesTerminalState(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "late-cancel")
	id := mustRun(t, job)
	fake.SetState(id, "Success")

	if err := job.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	state, err := job.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateSuccess {
		t.Errorf("State after late cancel = %q, want Success", state)
	}
}

func TestCancelBeforeRunIsNoop(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "early-cancel")

	if err := job.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel before Run = %v, want nil", err)
	}
}

func TestLog(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "log-job")

	log, err := job.Log(ctx)
	if err != nil {
		t.Fatalf("Log before Run: %v", err)
	}
	if log != "" {
		t.Errorf("Log before Run = %q, want empty", log)
	}

	id := mustRun(t, job)
	fake.SetLog(id, "Final process status is success\n")

	log, err = job.Log(ctx)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if log != "Final process status is success\n" {
		t.Errorf("Log = %q", log)
	}
}

func TestOutputsBeforeRun(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "early-outputs")

	outputs, err := job.Outputs(context.Background())
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("Outputs before Run = %v, want empty", outputs)
	}
}

func TestOutputsRefetchUntilAvailable(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "pending-outputs")
	id := mustRun(t, job)

	outputs, err := job.Outputs(ctx)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	if len(outputs) != 0 {
		t.Fatalf("Outputs of a running job = %v, want empty", outputs)
	}

	// An empty result is not cached; the next call sees the finished job.
	loc := fake.PutFile("/files/output/pending-outputs/out.txt", []byte("done"))
	fake.SetState(id, "Success")
	fake.SetOutputs(id, map[string]any{
		"result": map[string]any{"class": "File", "location": loc, "basename": "out.txt"},
	})

	outputs, err = job.Outputs(ctx)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	file, ok := outputs["result"].(*OutputFile)
	if !ok {
		t.Fatalf("result = %T, want *OutputFile", outputs["result"])
	}
	if file.Location() != loc {
		t.Errorf("Location = %q, want %q", file.Location(), loc)
	}
}

func TestOutputsMemoized(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "memo-outputs")
	id := mustRun(t, job)

	loc := fake.PutFile("/files/output/memo-outputs/out.txt", []byte("v1"))
	fake.SetState(id, "Success")
	fake.SetOutputs(id, map[string]any{
		"result": map[string]any{"class": "File", "location": loc, "basename": "out.txt"},
		"count":  3,
	})

	first, err := job.Outputs(ctx)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}

	// Later backend mutations must not leak into the memoized result.
	fake.SetOutputs(id, map[string]any{"count": 99})
	second, err := job.Outputs(ctx)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}

	if len(second) != 2 {
		t.Fatalf("memoized outputs = %v, want the first result", second)
	}
	if second["result"] != first["result"] {
		t.Error("memoized call returned a different file handle")
	}
	if got := second["count"]; got != float64(3) {
		t.Errorf("count = %v, want 3", got)
	}
}

func TestOutputsShapes(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "shaped-outputs")
	id := mustRun(t, job)

	loc1 := fake.PutFile("/files/output/shaped-outputs/a.txt", []byte("a"))
	loc2 := fake.PutFile("/files/output/shaped-outputs/b.txt", []byte("b"))
	fake.SetState(id, "Success")
	fake.SetOutputs(id, map[string]any{
		"message": "ok",
		"parts": []any{
			map[string]any{"class": "File", "location": loc1, "basename": "a.txt"},
			map[string]any{"class": "File", "location": loc2, "basename": "b.txt"},
		},
	})

	outputs, err := job.Outputs(ctx)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	if got := outputs["message"]; got != "ok" {
		t.Errorf("message = %v", got)
	}
	files, ok := outputs["parts"].([]*OutputFile)
	if !ok {
		t.Fatalf("parts = %T, want []*OutputFile", outputs["parts"])
	}
	if len(files) != 2 || files[0].Location() != loc1 || files[1].Location() != loc2 {
		t.Errorf("parts = %v", files)
	}
}

func TestDeleteClearsID(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "delete-job")
	mustRun(t, job)

	if err := job.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if job.ID() != "" {
		t.Errorf("ID after Delete = %q, want empty", job.ID())
	}

	state, err := job.State(ctx)
	if err != nil {
		t.Fatalf("State after Delete: %v", err)
	}
	if state != StateNone {
		t.Errorf("State after Delete = %q, want StateNone", state)
	}
	if _, ok := fake.JobByName("delete-job"); ok {
		t.Error("job record still on the service")
	}
	if fake.HasCollection("/files/input/delete-job") {
		t.Error("input directory still on the service")
	}
}
