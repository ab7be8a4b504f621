package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"trifle/internal/auth"
	"trifle/internal/authz"
	"trifle/internal/content"
	"trifle/internal/keys"
	"trifle/internal/kv"
)

const kvAllowedMethods = "GET, HEAD, PUT, DELETE"

func (s *Server) handleKV(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
	default:
		w.Header().Set("Allow", kvAllowedMethods)
		s.writeErrorReq(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	// Authorization runs before any storage access.
	k, err := authz.Check(auth.FromContext(r.Context()), r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, k)
	case http.MethodHead:
		s.handleHead(w, r, k)
	case http.MethodPut:
		s.handlePut(w, r, k)
	case http.MethodDelete:
		s.handleDelete(w, r, k)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, k keys.Key) {
	key := k.String()
	value, ok, err := s.ns.Get(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		s.writeServiceError(w, r, fmt.Errorf("%w: %s", kv.ErrNotFound, key))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(value)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(value); err != nil {
		s.log().Debug("write value", "key", key, "error", err)
	}
	s.metrics.bytes.WithLabelValues("out").Add(float64(len(value)))
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request, k keys.Key) {
	ok, err := s.ns.Exists(r.Context(), k.String())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, k keys.Key) {
	key := k.String()

	var fileHash string
	if k.Gen == keys.GenFile {
		hash, ok := k.FileHash()
		if !ok {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(
				fmt.Errorf("%w: file keys must be file/{h[0:2]}/{h[2:4]}/{sha256}", keys.ErrInvalidKey), ErrCodeInvalidKey))
			return
		}
		fileHash = hash

		// Content-addressed: an existing file already holds these bytes.
		exists, err := s.ns.Exists(r.Context(), key)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if exists {
			writeOK(w)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxValueBytes))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if fileHash != "" && s.cfg.VerifyFileHashes {
		if got := content.Hash(body); got != fileHash {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(
				fmt.Errorf("body hashes to %s, key names %s", got, fileHash), ErrCodeHashMismatch))
			return
		}
	}

	if err := s.ns.Put(r.Context(), key, body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.bytes.WithLabelValues("in").Add(float64(len(body)))
	writeOK(w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, k keys.Key) {
	key := k.String()
	if k.Gen == keys.GenFile {
		// File content is shared by every identity that references it.
		s.writeErrorReq(w, r, http.StatusForbidden, makeAPIError(http.StatusForbidden, "forbidden", ErrCodeImmutable,
			fmt.Errorf("%w: file content cannot be deleted", authz.ErrForbidden)))
		return
	}
	if err := s.ns.Delete(r.Context(), key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	k, err := authz.Check(auth.FromContext(r.Context()), r.PathValue("prefix"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	opts, err := listOptions(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	out, err := s.ns.List(r.Context(), k.String(), opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func listOptions(r *http.Request) (kv.ListOptions, error) {
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("recursive")); raw != "" {
		recursive, err := strconv.ParseBool(raw)
		if err != nil {
			return kv.ListOptions{}, badRequestCode(fmt.Errorf("invalid recursive"), ErrCodeInvalidQuery)
		}
		if recursive {
			return kv.ListOptions{Recursive: true}, nil
		}
	}
	raw := strings.TrimSpace(query.Get("depth"))
	if raw == "" {
		return kv.ListOptions{Depth: kv.DefaultListDepth}, nil
	}
	depth, err := strconv.Atoi(raw)
	if err != nil || depth < 1 {
		return kv.ListOptions{}, badRequestCode(fmt.Errorf("depth must be a positive integer"), ErrCodeInvalidQuery)
	}
	return kv.ListOptions{Depth: depth}, nil
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
