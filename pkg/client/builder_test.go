package client

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"cwlclient/pkg/apperrors"
)

func TestSetWorkflow(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "wf-job")

	if err := job.SetWorkflow(ctx, BytesSource("analysis.cwl", []byte("cwlVersion: v1.0"))); err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}

	wantSuffix := "/files/input/wf-job/analysis.cwl"
	if !strings.HasSuffix(job.WorkflowRef(), wantSuffix) {
		t.Errorf("WorkflowRef = %q, want suffix %q", job.WorkflowRef(), wantSuffix)
	}
	data, ok := fake.FileContent("/files/input/wf-job/analysis.cwl")
	if !ok {
		t.Fatal("workflow was not uploaded")
	}
	if string(data) != "cwlVersion: v1.0" {
		t.Errorf("uploaded workflow = %q", data)
	}
}

func TestSetWorkflowDefaultName(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	job := mustCreateJob(t, srv, "unnamed-wf")

	err := job.SetWorkflow(context.Background(), NamedSource("", strings.NewReader("cwlVersion: v1.0")))
	if err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}
	if _, ok := fake.FileContent("/files/input/unnamed-wf/workflow.cwl"); !ok {
		t.Error("unnamed workflow should be stored as workflow.cwl")
	}
}

func TestSetWorkflowOverwrites(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "rewf-job")

	if err := job.SetWorkflow(ctx, BytesSource("first.cwl", []byte("a"))); err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}
	if err := job.SetWorkflow(ctx, BytesSource("second.cwl", []byte("b"))); err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}
	if !strings.HasSuffix(job.WorkflowRef(), "/second.cwl") {
		t.Errorf("WorkflowRef = %q, want the last workflow to win", job.WorkflowRef())
	}
}

func TestSetWorkflowMissingPath(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "missing-wf")

	if err := job.SetWorkflow(ctx, BytesSource("keep.cwl", []byte("a"))); err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}
	before := job.WorkflowRef()

	err := job.SetWorkflow(ctx, PathSource(filepath.Join(t.TempDir(), "does-not-exist.cwl")))
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("SetWorkflow with missing path = %v, want not-found class", err)
	}
	if job.WorkflowRef() != before {
		t.Errorf("failed upload changed WorkflowRef to %q", job.WorkflowRef())
	}
}

func TestAddInputFileSingle(t *testing.T) {
	t.Parallel()

	fake, srv := newTestService(t)
	job := mustCreateJob(t, srv, "single-input")

	err := job.AddInputFile(context.Background(), "reads", BytesSource("reads.fq", []byte("ACGT")))
	if err != nil {
		t.Fatalf("AddInputFile: %v", err)
	}

	ref, ok := job.Inputs()["reads"].(FileRef)
	if !ok {
		t.Fatalf("binding = %T, want FileRef", job.Inputs()["reads"])
	}
	if ref.Basename != "reads.fq" {
		t.Errorf("Basename = %q", ref.Basename)
	}
	if !strings.HasSuffix(ref.Location, "/files/input/single-input/reads.fq") {
		t.Errorf("Location = %q", ref.Location)
	}
	if _, ok := fake.FileContent("/files/input/single-input/reads.fq"); !ok {
		t.Error("input file was not uploaded")
	}
}

func TestAddInputFileArray(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "array-input")

	err := job.AddInputFile(context.Background(), "samples",
		BytesSource("a.txt", []byte("a")),
		BytesSource("b.txt", []byte("b")))
	if err != nil {
		t.Fatalf("AddInputFile: %v", err)
	}

	arr, ok := job.Inputs()["samples"].(FileArray)
	if !ok {
		t.Fatalf("binding = %T, want FileArray", job.Inputs()["samples"])
	}
	if len(arr) != 2 || arr[0].Basename != "a.txt" || arr[1].Basename != "b.txt" {
		t.Errorf("array binding = %+v", arr)
	}
}

func TestAddInputFileNoSources(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	job := mustCreateJob(t, srv, "no-sources")

	err := job.AddInputFile(context.Background(), "reads")
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("AddInputFile with no sources = %v, want validation class", err)
	}
}

func TestRebindReplacesWholeEntry(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "rebind")

	err := job.AddInputFile(ctx, "data",
		BytesSource("a.txt", []byte("a")),
		BytesSource("b.txt", []byte("b")))
	if err != nil {
		t.Fatalf("AddInputFile: %v", err)
	}
	if err := job.AddInputFile(ctx, "data", BytesSource("c.txt", []byte("c"))); err != nil {
		t.Fatalf("AddInputFile: %v", err)
	}

	ref, ok := job.Inputs()["data"].(FileRef)
	if !ok {
		t.Fatalf("rebinding should replace the array, got %T", job.Inputs()["data"])
	}
	if ref.Basename != "c.txt" {
		t.Errorf("Basename = %q", ref.Basename)
	}

	// Scalars replace files too, array-ness included.
	job.SetInput("data", 42)
	if _, ok := job.Inputs()["data"].(Scalar); !ok {
		t.Errorf("SetInput should replace the file binding, got %T", job.Inputs()["data"])
	}
}

func TestBuilderFrozenAfterRun(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "frozen")
	mustRun(t, job)

	if err := job.SetWorkflow(ctx, BytesSource("late.cwl", []byte("x"))); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("SetWorkflow after Run = %v, want conflict class", err)
	}
	if err := job.AddInputFile(ctx, "late", BytesSource("late.txt", []byte("x"))); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("AddInputFile after Run = %v, want conflict class", err)
	}
	if err := job.AddSecondaryFile(ctx, "late", BytesSource("late.idx", []byte("x"))); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("AddSecondaryFile after Run = %v, want conflict class", err)
	}
}

func TestAddSecondaryFile(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "secondary")

	if err := job.AddInputFile(ctx, "reads", BytesSource("reads.fq", []byte("ACGT"))); err != nil {
		t.Fatalf("AddInputFile: %v", err)
	}
	if err := job.AddSecondaryFile(ctx, "reads", BytesSource("reads.fq.idx", []byte("idx"))); err != nil {
		t.Fatalf("AddSecondaryFile: %v", err)
	}
	if err := job.AddSecondaryFile(ctx, "reads", BytesSource("reads.fq.dict", []byte("dict"))); err != nil {
		t.Fatalf("AddSecondaryFile: %v", err)
	}

	ref := job.Inputs()["reads"].(FileRef)
	if len(ref.SecondaryFiles) != 2 {
		t.Fatalf("SecondaryFiles = %+v, want 2 entries", ref.SecondaryFiles)
	}
	// Append order is preserved.
	if ref.SecondaryFiles[0].Basename != "reads.fq.idx" || ref.SecondaryFiles[1].Basename != "reads.fq.dict" {
		t.Errorf("secondary file order = %q, %q",
			ref.SecondaryFiles[0].Basename, ref.SecondaryFiles[1].Basename)
	}
}

func TestAddSecondaryFileNoPrimary(t *testing.T) {
	t.Parallel()

	_, srv := newTestService(t)
	ctx := context.Background()
	job := mustCreateJob(t, srv, "no-primary")

	tests := []struct {
		name  string
		setup func(t *testing.T)
		input string
	}{
		{name: "unbound input", input: "reads"},
		{
			name:  "scalar input",
			input: "threshold",
			setup: func(t *testing.T) { job.SetInput("threshold", 3) },
		},
		{
			name:  "array input",
			input: "samples",
			setup: func(t *testing.T) {
				err := job.AddInputFile(ctx, "samples",
					BytesSource("a.txt", []byte("a")),
					BytesSource("b.txt", []byte("b")))
				if err != nil {
					t.Fatalf("AddInputFile: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			err := job.AddSecondaryFile(ctx, tt.input, BytesSource("extra.idx", []byte("x")))
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("AddSecondaryFile(%q) = %v, want validation class", tt.input, err)
			}
		})
	}
}
