package fakeservice

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// handleFiles implements the file-store half of the fake: MKCOL, PUT, GET,
// DELETE and PROPFIND under /files/. Collections must be emptied before
// they can be deleted, which is what forces clients to remove deepest paths
// first.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch r.Method {
	case "MKCOL":
		s.handleMkcol(w, path)
	case http.MethodPut:
		s.handlePut(w, r, path)
	case http.MethodGet:
		s.handleGetFile(w, r, path)
	case http.MethodDelete:
		s.handleDeleteEntry(w, path)
	case "PROPFIND":
		s.handlePropfind(w, path)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMkcol(w http.ResponseWriter, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[path] {
		http.Error(w, "collection exists", http.StatusMethodNotAllowed)
		return
	}
	s.collections[path] = true
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, path string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request, path string) {
	s.mu.Lock()
	data, isFile := s.files[path]
	isCollection := s.collections[path]
	s.mu.Unlock()

	switch {
	case isFile:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(data)
	case isCollection:
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; ok {
		delete(s.files, path)
		s.deleteOrder = append(s.deleteOrder, path)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if s.collections[path] {
		// Refuse to delete a non-empty collection.
		prefix := path + "/"
		for f := range s.files {
			if strings.HasPrefix(f, prefix) {
				http.Error(w, "collection not empty", http.StatusConflict)
				return
			}
		}
		for c := range s.collections {
			if strings.HasPrefix(c, prefix) {
				http.Error(w, "collection not empty", http.StatusConflict)
				return
			}
		}
		delete(s.collections, path)
		s.deleteOrder = append(s.deleteOrder, path)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) handlePropfind(w http.ResponseWriter, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.collections[path] {
		if _, ok := s.files[path]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<D:multistatus xmlns:D="DAV:">`)
	writeResponse := func(href string, collection bool) {
		b.WriteString(`<D:response><D:href>`)
		b.WriteString(href)
		b.WriteString(`</D:href><D:propstat><D:prop><D:resourcetype>`)
		if collection {
			b.WriteString(`<D:collection/>`)
		}
		b.WriteString(`</D:resourcetype></D:prop>`)
		b.WriteString(`<D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`)
	}

	writeResponse(path+"/", true)
	prefix := path + "/"
	for c := range s.collections {
		if strings.HasPrefix(c, prefix) {
			writeResponse(c+"/", true)
		}
	}
	for f := range s.files {
		if strings.HasPrefix(f, prefix) {
			writeResponse(f, false)
		}
	}
	b.WriteString(`</D:multistatus>`)

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	fmt.Fprint(w, b.String())
}
