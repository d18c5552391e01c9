// Package client is a client library for a remote compute-job service. It
// manages jobs on a running service instance: building a job description
// (workflow plus input bindings), submitting it, polling its state, and
// retrieving outputs.
//
// The package is synchronous and performs no retries; every failure maps to
// one of the error classes in pkg/apperrors. Objects are not safe for
// concurrent use from multiple goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cwlclient/pkg/apperrors"
	"cwlclient/pkg/observability"
	"cwlclient/pkg/webdav"
)

// Service is a handle on a running compute-job service. It holds only the
// service's address; all job state lives on the service itself.
type Service struct {
	host    string
	port    int
	http    *http.Client
	dav     *webdav.Client
	metrics *observability.Metrics
}

// Config configures a Service handle.
type Config struct {
	Host       string // Service host, with or without scheme (default scheme http)
	Port       int
	HTTPClient *http.Client           // nil uses http.DefaultClient
	Metrics    *observability.Metrics // optional
}

// NewService creates a handle on the service listening at host:port. It does
// not contact the service.
func NewService(host string, port int) *Service {
	return NewServiceWithConfig(Config{Host: host, Port: port})
}

// NewServiceWithConfig creates a handle with explicit configuration.
func NewServiceWithConfig(cfg Config) *Service {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	host := cfg.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	host = strings.TrimSuffix(host, "/")

	return &Service{
		host:    host,
		port:    cfg.Port,
		http:    httpClient,
		dav:     webdav.NewClient(httpClient),
		metrics: cfg.Metrics,
	}
}

// Ref is a persistable reference to a service, sufficient to reconstruct a
// handle across process restarts. The service itself is the source of truth
// for all job state, so nothing else needs persisting.
type Ref struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// FromRef reconstructs a Service handle from a persisted reference.
func FromRef(ref Ref) *Service {
	return NewService(ref.Host, ref.Port)
}

// Ref returns a persistable reference to this service.
func (s *Service) Ref() Ref {
	return Ref{Host: s.host, Port: s.port}
}

// Host returns the service host including scheme.
func (s *Service) Host() string { return s.host }

// Port returns the service port.
func (s *Service) Port() int { return s.port }

func (s *Service) baseURL() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

func (s *Service) jobsURL() string {
	return s.baseURL() + "/jobs"
}

func (s *Service) filesURL() string {
	return s.baseURL() + "/files"
}

func (s *Service) inputRootURL() string {
	return s.filesURL() + "/input"
}

func (s *Service) jobInputDirURL(jobName string) string {
	return s.inputRootURL() + "/" + jobName
}

// jobRecord is the service's canonical representation of a submitted job.
type jobRecord struct {
	ID       string                     `json:"id"`
	Name     string                     `json:"name"`
	Workflow string                     `json:"workflow"`
	Input    Bindings                   `json:"input"`
	Output   map[string]json.RawMessage `json:"output"`
	State    string                     `json:"state"`
}

// submission is the wire form of a job-creation request.
type submission struct {
	Name     string   `json:"name"`
	Workflow string   `json:"workflow"`
	Input    Bindings `json:"input"`
}

// CreateJob makes a new, unsubmitted job on this service. The name must be
// unique among all jobs on the service; it becomes the name of the job's
// remote input directory.
func (s *Service) CreateJob(ctx context.Context, name string) (*Job, error) {
	if err := s.dav.Mkcol(ctx, s.jobInputDirURL(name)); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.JobAlreadyExists(name)
		}
		return nil, err
	}
	slog.Debug("Created job input directory", "job", name)
	return NewJob(s, name), nil
}

// GetJobByID fetches a job's record from the service and rebuilds a Job
// handle from it. The list of declared inputs is not reconstructible from
// the record and is left empty.
func (s *Service) GetJobByID(ctx context.Context, id string) (*Job, error) {
	endpoint := s.jobsURL() + "/" + id

	resp, err := s.get(ctx, "jobs.get", endpoint)
	if err != nil {
		return nil, apperrors.Communication("jobs.get", endpoint, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.JobNotFound(id)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.Communication("jobs.get", endpoint, resp.StatusCode, nil)
	}

	var rec jobRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, apperrors.Communication("jobs.get", endpoint, 0, err)
	}
	return s.jobFromRecord(&rec), nil
}

// GetJobByName finds a submitted job by its name. Unsubmitted local jobs are
// invisible to the service and cannot be found this way. Linear in the
// number of jobs; service job counts are small.
func (s *Service) GetJobByName(ctx context.Context, name string) (*Job, error) {
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Name() == name {
			return job, nil
		}
	}
	return nil, apperrors.JobNotFound(name)
}

// ListJobs returns all jobs known to the service.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	endpoint := s.jobsURL()

	resp, err := s.get(ctx, "jobs.list", endpoint)
	if err != nil {
		return nil, apperrors.Communication("jobs.list", endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Communication("jobs.list", endpoint, resp.StatusCode, nil)
	}

	var recs []jobRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, apperrors.Communication("jobs.list", endpoint, 0, err)
	}

	jobs := make([]*Job, 0, len(recs))
	for i := range recs {
		jobs = append(jobs, s.jobFromRecord(&recs[i]))
	}
	return jobs, nil
}

// DestroyJob removes a job's remote state: its uploaded input directory tree
// and, if the job was submitted, its record on the service. Both steps must
// succeed. No rollback is attempted on partial failure; the error reflects
// the step that failed.
func (s *Service) DestroyJob(ctx context.Context, job *Job) error {
	if err := s.dav.RemoveTree(ctx, s.jobInputDirURL(job.Name())); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.JobNotFound(job.Name())
		}
		return err
	}

	if job.ID() == "" {
		return nil
	}

	endpoint := s.jobsURL() + "/" + job.ID()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return apperrors.Communication("jobs.delete", endpoint, 0, err)
	}
	resp, err := s.do(ctx, "jobs.delete", req)
	if err != nil {
		return apperrors.Communication("jobs.delete", endpoint, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.JobNotFound(job.ID())
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.Communication("jobs.delete", endpoint, resp.StatusCode, nil)
	}

	s.metrics.RecordJobDestroyed(ctx)
	slog.Info("Destroyed job", "job", job.Name(), "jobId", job.ID())
	return nil
}

func (s *Service) jobFromRecord(rec *jobRecord) *Job {
	job := NewJob(s, rec.Name)
	job.id = rec.ID
	job.workflowRef = rec.Workflow
	if rec.Input != nil {
		job.bindings = rec.Input
	}
	return job
}

func (s *Service) get(ctx context.Context, op, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, op, req)
}

func (s *Service) postJSON(ctx context.Context, op, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.do(ctx, op, req)
}

// do runs one request against the jobs API, recording latency per operation
// and transport failures.
func (s *Service) do(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := s.http.Do(req)
	s.metrics.RecordCall(ctx, op, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError(ctx, op)
	}
	return resp, err
}
