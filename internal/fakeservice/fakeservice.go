// Package fakeservice is an in-memory stand-in for a compute-job service:
// the jobs API plus a WebDAV-ish file store. It backs the client unit tests
// so they can run without a container.
//
// Jobs never execute; tests drive state transitions and outputs explicitly
// through SetState and SetOutputs.
package fakeservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// JobRecord is the canonical record the fake keeps per submitted job.
type JobRecord struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Workflow string          `json:"workflow"`
	Input    json.RawMessage `json:"input"`
	Output   map[string]any  `json:"output"`
	State    string          `json:"state"`
}

// Server is a fake compute-job service.
type Server struct {
	mu          sync.Mutex
	jobs        map[string]*JobRecord // by id
	logs        map[string]string     // by id
	files       map[string][]byte     // by URL path
	collections map[string]bool       // by URL path, no trailing slash
	deleteOrder []string
	nextID      int

	httpServer *httptest.Server
}

// New starts a fake service on an ephemeral port.
func New() *Server {
	s := &Server{
		jobs:        make(map[string]*JobRecord),
		logs:        make(map[string]string),
		files:       make(map[string][]byte),
		collections: make(map[string]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.handleDeleteJob).Methods(http.MethodDelete)
	r.HandleFunc("/jobs/{id}/cancel", s.handleCancelJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/log", s.handleJobLog).Methods(http.MethodGet)
	r.PathPrefix("/files/").HandlerFunc(s.handleFiles)

	s.httpServer = httptest.NewServer(r)
	return s
}

// URL returns the base URL of the fake service.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the fake down.
func (s *Server) Close() { s.httpServer.Close() }

// SetState moves a job to the given state.
func (s *Server) SetState(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.State = state
	}
}

// SetOutputs sets a job's output map. File-class outputs should reference
// locations previously stored with PutFile.
func (s *Server) SetOutputs(id string, outputs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Output = outputs
	}
}

// SetLog sets a job's log text.
func (s *Server) SetLog(id, log string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[id] = log
}

// PutFile stores content in the file store at the given path (for example
// /files/output/j1/out.txt) and returns its full URL.
func (s *Server) PutFile(path string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	return s.httpServer.URL + path
}

// RemoveFile deletes a stored file so that later fetches 404.
func (s *Server) RemoveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// FileContent returns what the file store holds at path.
func (s *Server) FileContent(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	return data, ok
}

// HasCollection reports whether a collection exists at path.
func (s *Server) HasCollection(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[strings.TrimSuffix(path, "/")]
}

// DeleteOrder returns the file-store paths deleted so far, in order.
func (s *Server) DeleteOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleteOrder...)
}

// JobByName returns the record of a submitted job, if any.
func (s *Server) JobByName(name string) (JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Name == name {
			return *job, true
		}
	}
	return JobRecord{}, false
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]*JobRecord, 0, len(s.jobs))
	for _, job := range s.jobs {
		recs = append(recs, job)
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Workflow string          `json:"workflow"`
		Input    json.RawMessage `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Workflow == "" {
		http.Error(w, "no workflow given", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	job := &JobRecord{
		ID:       fmt.Sprintf("job-%06d", s.nextID),
		Name:     req.Name,
		Workflow: req.Workflow,
		Input:    req.Input,
		State:    "Waiting",
	}
	s.jobs[job.ID] = job
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[mux.Vars(r)["id"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["id"]
	if _, ok := s.jobs[id]; !ok {
		http.NotFound(w, r)
		return
	}
	delete(s.jobs, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[mux.Vars(r)["id"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	// Terminal states are preserved.
	if job.State == "Waiting" || job.State == "Running" {
		job.State = "Cancelled"
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["id"]
	if _, ok := s.jobs[id]; !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.logs[id])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
