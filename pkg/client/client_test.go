package client

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"cwlclient/internal/fakeservice"
)

// newTestService starts an in-memory fake service and returns a handle
// pointed at it.
func newTestService(t *testing.T) (*fakeservice.Server, *Service) {
	t.Helper()

	fake := fakeservice.New()
	t.Cleanup(fake.Close)

	u, err := url.Parse(fake.URL())
	if err != nil {
		t.Fatalf("parsing fake service URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing fake service port: %v", err)
	}

	return fake, NewService(u.Scheme+"://"+u.Hostname(), port)
}

// mustCreateJob creates an unsubmitted job or fails the test.
func mustCreateJob(t *testing.T, srv *Service, name string) *Job {
	t.Helper()

	job, err := srv.CreateJob(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateJob(%q): %v", name, err)
	}
	return job
}

// mustRun sets a workflow and submits the job, returning its id.
func mustRun(t *testing.T, job *Job) string {
	t.Helper()

	ctx := context.Background()
	if err := job.SetWorkflow(ctx, BytesSource("workflow.cwl", []byte("cwlVersion: v1.0"))); err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}
	id, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return id
}
