package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"cwlclient/pkg/apperrors"
)

// cacheState tracks the output cache. An empty fetch does not populate the
// cache: outputs may simply not be available yet, so the next access
// refetches.
type cacheState int

const (
	cacheNotFetched cacheState = iota
	cacheEmpty
	cachePopulated
)

// Job is one unit of work on a service. A Job is built up locally (workflow
// plus input bindings), submitted at most once with Run, and polled through
// the service afterwards.
//
// A Job must be used from a single goroutine.
type Job struct {
	service *Service
	name    string
	id      string // assigned by the service on Run, immutable afterwards

	workflowRef    string
	bindings       Bindings
	declaredInputs []string // input names bound locally, in bind order

	outputState cacheState
	outputs     map[string]any
}

// NewJob creates a local Job handle bound to a service. It does not create
// anything on the service; use Service.CreateJob for that.
func NewJob(service *Service, name string) *Job {
	return &Job{
		service:  service,
		name:     name,
		bindings: make(Bindings),
	}
}

// Name returns the client-chosen job name.
func (j *Job) Name() string { return j.name }

// ID returns the service-assigned job id, or "" before submission.
func (j *Job) ID() string { return j.id }

// WorkflowRef returns the remote location of the uploaded workflow document,
// or "" if no workflow has been set.
func (j *Job) WorkflowRef() string { return j.workflowRef }

// Inputs returns the current input bindings. The returned map is the job's
// own; callers must not mutate it.
func (j *Job) Inputs() Bindings { return j.bindings }

// inputDirURL is this job's remote input directory.
func (j *Job) inputDirURL() string {
	return j.service.jobInputDirURL(j.name)
}

// upload resolves a source and sends it to the job's input directory,
// returning the file's remote location and basename.
func (j *Job) upload(ctx context.Context, src FileSource) (location, basename string, err error) {
	basename, r, err := src.open()
	if err != nil {
		return "", "", err
	}
	defer r.Close()

	if basename == "" {
		basename = "workflow.cwl"
	}
	location = j.inputDirURL() + "/" + basename
	if err := j.service.dav.Put(ctx, location, r); err != nil {
		return "", "", err
	}
	j.service.metrics.RecordUpload(ctx)
	return location, basename, nil
}

// SetWorkflow uploads the workflow document for this job. A path source is
// stored under its basename, other sources under their given name, or
// workflow.cwl if the name is empty. Repeated calls before submission
// overwrite; the last workflow wins. A failed upload leaves any previously
// set workflow untouched. The description is frozen once the job is
// submitted.
func (j *Job) SetWorkflow(ctx context.Context, src FileSource) error {
	if j.id != "" {
		return apperrors.JobAlreadyExists(j.name)
	}
	location, _, err := j.upload(ctx, src)
	if err != nil {
		return err
	}
	j.workflowRef = location
	return nil
}

// AddInputFile uploads one or more files and binds them to the named
// workflow input. A single source produces a File binding, several produce
// an array binding. Rebinding the same input name replaces the whole entry,
// array-ness included.
//
// The input name is not checked against the workflow's declared inputs; the
// service rejects unknown inputs at run time.
func (j *Job) AddInputFile(ctx context.Context, inputName string, sources ...FileSource) error {
	if j.id != "" {
		return apperrors.JobAlreadyExists(j.name)
	}
	if len(sources) == 0 {
		return apperrors.Validation("input", "at least one file source is required")
	}

	refs := make([]FileRef, 0, len(sources))
	for _, src := range sources {
		location, basename, err := j.upload(ctx, src)
		if err != nil {
			return err
		}
		refs = append(refs, FileRef{Location: location, Basename: basename})
	}

	if len(refs) == 1 {
		j.bind(inputName, refs[0])
	} else {
		j.bind(inputName, FileArray(refs))
	}
	return nil
}

// AddSecondaryFile uploads a file and appends it to the secondary files of
// the named input's primary file. The input must already be bound to a
// single file via AddInputFile. Append order is preserved; it is significant
// to the workflow engine.
func (j *Job) AddSecondaryFile(ctx context.Context, inputName string, src FileSource) error {
	if j.id != "" {
		return apperrors.JobAlreadyExists(j.name)
	}
	primary, ok := j.bindings[inputName].(FileRef)
	if !ok {
		return apperrors.NoPrimaryFile(inputName)
	}

	location, basename, err := j.upload(ctx, src)
	if err != nil {
		return err
	}

	primary.SecondaryFiles = append(primary.SecondaryFiles, FileRef{Location: location, Basename: basename})
	j.bindings[inputName] = primary
	return nil
}

// SetInput binds a scalar value to the named workflow input, replacing any
// previous binding regardless of its shape.
func (j *Job) SetInput(inputName string, value any) {
	j.bind(inputName, Scalar{Value: value})
}

func (j *Job) bind(inputName string, value InputValue) {
	if _, rebound := j.bindings[inputName]; !rebound {
		j.declaredInputs = append(j.declaredInputs, inputName)
	}
	j.bindings[inputName] = value
}

// Run submits the job. On success the service-assigned id is stored and
// returned, and the job description is frozen. A job can be submitted at
// most once; a second Run fails with the conflict class without contacting
// the service. A structurally invalid description (for example, a missing
// workflow) fails with the validation class and no id is assigned.
func (j *Job) Run(ctx context.Context) (string, error) {
	if j.id != "" {
		return "", apperrors.JobAlreadyExists(j.name)
	}

	endpoint := j.service.jobsURL()
	payload := submission{Name: j.name, Workflow: j.workflowRef, Input: j.bindings}

	resp, err := j.service.postJSON(ctx, "jobs.create", endpoint, payload)
	if err != nil {
		return "", apperrors.Communication("jobs.create", endpoint, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return "", apperrors.InvalidJob(j.name)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", apperrors.Communication("jobs.create", endpoint, resp.StatusCode, nil)
	}

	var rec jobRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return "", apperrors.Communication("jobs.create", endpoint, 0, err)
	}

	j.id = rec.ID
	j.service.metrics.RecordJobSubmitted(ctx)
	slog.Info("Submitted job", "job", j.name, "jobId", j.id)
	return j.id, nil
}

// State fetches the job's current state from the service. It returns
// StateNone without a remote call if the job has not been submitted. The
// state is never cached; every call is a fresh fetch.
func (j *Job) State(ctx context.Context) (State, error) {
	if j.id == "" {
		return StateNone, nil
	}
	rec, err := j.fetchRecord(ctx)
	if err != nil {
		return StateNone, err
	}
	j.service.metrics.RecordPoll(ctx, rec.State)
	return State(rec.State), nil
}

// IsRunning reports whether the job is still waiting or running. It fetches
// the state exactly once.
func (j *Job) IsRunning(ctx context.Context) (bool, error) {
	state, err := j.State(ctx)
	if err != nil {
		return false, err
	}
	return state == StateWaiting || state == StateRunning, nil
}

// Cancel asks the service to cancel the job. Cancellation is asynchronous:
// the state transitions to Cancelled eventually, unless the job already
// reached a terminal state, which is then preserved. Calling Cancel on an
// unsubmitted job is a no-op.
func (j *Job) Cancel(ctx context.Context) error {
	if j.id == "" {
		return nil
	}

	endpoint := j.service.jobsURL() + "/" + j.id + "/cancel"
	resp, err := j.service.postJSON(ctx, "jobs.cancel", endpoint, nil)
	if err != nil {
		return apperrors.Communication("jobs.cancel", endpoint, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.JobNotFound(j.id)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.Communication("jobs.cancel", endpoint, resp.StatusCode, nil)
	}

	slog.Info("Requested job cancellation", "job", j.name, "jobId", j.id)
	return nil
}

// Log fetches the service's log for this job. It returns "" without a remote
// call if the job has not been submitted.
func (j *Job) Log(ctx context.Context) (string, error) {
	if j.id == "" {
		return "", nil
	}

	endpoint := j.service.jobsURL() + "/" + j.id + "/log"
	resp, err := j.service.get(ctx, "jobs.log", endpoint)
	if err != nil {
		return "", apperrors.Communication("jobs.log", endpoint, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", apperrors.JobNotFound(j.id)
	case resp.StatusCode != http.StatusOK:
		return "", apperrors.Communication("jobs.log", endpoint, resp.StatusCode, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Communication("jobs.log", endpoint, 0, err)
	}
	return string(data), nil
}

// Outputs returns the job's outputs: scalars as-is, file-class outputs as
// *OutputFile handles. The result is memoized once the service reports a
// non-empty output map; an empty map means "not available yet" and the next
// call refetches. Outputs are produced exactly once by the service, so the
// memoized map is never invalidated.
func (j *Job) Outputs(ctx context.Context) (map[string]any, error) {
	if j.outputState == cachePopulated {
		return j.outputs, nil
	}
	if j.id == "" {
		return map[string]any{}, nil
	}

	rec, err := j.fetchRecord(ctx)
	if err != nil {
		return nil, err
	}

	if len(rec.Output) == 0 {
		j.outputState = cacheEmpty
		return map[string]any{}, nil
	}

	outputs := make(map[string]any, len(rec.Output))
	for name, raw := range rec.Output {
		value, err := decodeInputValue(raw)
		if err != nil {
			return nil, apperrors.Communication("jobs.outputs", j.service.jobsURL(), 0, err)
		}
		switch v := value.(type) {
		case FileRef:
			outputs[name] = newOutputFile(v.Location, j.service)
		case Scalar:
			outputs[name] = v.Value
		case FileArray:
			files := make([]*OutputFile, 0, len(v))
			for _, f := range v {
				files = append(files, newOutputFile(f.Location, j.service))
			}
			outputs[name] = files
		}
	}

	j.outputs = outputs
	j.outputState = cachePopulated
	return j.outputs, nil
}

// Delete removes the job's remote state: its input directory tree and its
// record on the service. The local object remains usable only as a name
// holder; the id is cleared, so State returns StateNone afterwards.
func (j *Job) Delete(ctx context.Context) error {
	if err := j.service.DestroyJob(ctx, j); err != nil {
		return err
	}
	j.id = ""
	return nil
}

func (j *Job) fetchRecord(ctx context.Context) (*jobRecord, error) {
	endpoint := j.service.jobsURL() + "/" + j.id

	resp, err := j.service.get(ctx, "jobs.get", endpoint)
	if err != nil {
		return nil, apperrors.Communication("jobs.get", endpoint, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.JobNotFound(j.id)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.Communication("jobs.get", endpoint, resp.StatusCode, nil)
	}

	var rec jobRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, apperrors.Communication("jobs.get", endpoint, 0, err)
	}
	return &rec, nil
}
