package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/forcelayout/pkg/buildinfo"
	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/layout"
	"github.com/matzehuels/forcelayout/pkg/pipeline"
	"github.com/matzehuels/forcelayout/pkg/session"
)

// SessionResponse describes a session.
type SessionResponse struct {
	ID    string `json:"id"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

// ElementResponse is one store element.
type ElementResponse struct {
	Kind graph.Kind  `json:"kind"`
	Node *pkgio.Node `json:"node,omitempty"`
	Edge *pkgio.Edge `json:"edge,omitempty"`
}

// QueryResponse lists selector matches in store order.
type QueryResponse struct {
	Selector string            `json:"selector"`
	Count    int               `json:"count"`
	Elements []ElementResponse `json:"elements"`
}

// RunResponse reports a session layout run.
type RunResponse struct {
	RunID  string              `json:"run_id"`
	State  string              `json:"state"`
	Result *pkgio.ResultRecord `json:"result,omitempty"`
	Error  *errorBody          `json:"error,omitempty"`
}

// layoutRequest is the body of a stateless layout. Graph is decoded by
// pkgio.DecodeJSON so missing edge ids are generated.
type layoutRequest struct {
	Graph   json.RawMessage `json:"graph"`
	Config  *configBody     `json:"config,omitempty"`
	NoCache bool            `json:"no_cache,omitempty"`
}

// LayoutResponse is the outcome of a stateless layout.
type LayoutResponse struct {
	Result   pkgio.ResultRecord `json:"result"`
	Graph    pkgio.Description  `json:"graph"`
	CacheHit bool               `json:"cache_hit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  buildinfo.Version,
		"sessions": s.sessions.Len(),
	})
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Server) session(r *http.Request) (*session.Session, error) {
	return s.sessions.Get(chi.URLParam(r, "id"))
}

func sessionResponse(sess *session.Session) SessionResponse {
	n, e := sess.Counts()
	return SessionResponse{ID: sess.ID(), Nodes: n, Edges: e}
}

// handleCreateSession creates a session, seeded with the graph in the body
// if there is one.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var desc pkgio.Description
	if r.ContentLength != 0 {
		var err error
		if desc, err = pkgio.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	sess := s.sessions.Create()
	nodes, edges := desc.Elements()
	if err := sess.Add(nodes, edges); err != nil {
		_ = s.sessions.Delete(sess.ID())
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddElements(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	desc, err := pkgio.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	nodes, edges := desc.Elements()
	if err := sess.Add(nodes, edges); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(sess))
}

func elementResponse(el graph.Element) ElementResponse {
	resp := ElementResponse{Kind: el.Kind}
	if el.Kind == graph.KindEdge {
		e := pkgio.DescribeEdge(el.Edge)
		resp.Edge = &e
	} else {
		n := pkgio.DescribeNode(el.Node)
		resp.Node = &n
	}
	return resp
}

func (s *Server) handleGetElement(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	el, err := sess.GetByID(chi.URLParam(r, "eid"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, elementResponse(el))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	selector := r.URL.Query().Get("selector")
	els, err := sess.Query(selector)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := QueryResponse{Selector: selector, Count: len(els), Elements: make([]ElementResponse, len(els))}
	for i, el := range els {
		resp.Elements[i] = elementResponse(el)
	}
	respondJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Session layout runs
// =============================================================================

// handleStartLayout starts a run and returns 202 without waiting. The run
// outlives the request.
func (s *Server) handleStartLayout(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg, err := decodeConfig(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		s.respondError(w, r, err)
		return
	}
	run, err := sess.StartLayout(context.WithoutCancel(r.Context()), cfg, layout.Options{})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, RunResponse{RunID: run.ID(), State: run.State().String()})
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) *session.Run {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return nil
	}
	run := sess.LastRun()
	if run == nil {
		s.respondError(w, r, errors.New(errors.ErrCodeNotFound, "session %s has no layout run", sess.ID()))
	}
	return run
}

func runResponse(run *session.Run) RunResponse {
	resp := RunResponse{RunID: run.ID(), State: run.State().String()}
	res, err := run.Result()
	if res != nil {
		rec := pkgio.NewResultRecord(res)
		resp.Result = &rec
	}
	if err != nil {
		resp.Error = &errorBody{Error: errors.GetCode(err), Message: errors.UserMessage(err)}
	}
	return resp
}

func (s *Server) handleLayoutStatus(w http.ResponseWriter, r *http.Request) {
	if run := s.lastRun(w, r); run != nil {
		respondJSON(w, http.StatusOK, runResponse(run))
	}
}

// handleCancelLayout cancels the current run and waits for it to stop.
func (s *Server) handleCancelLayout(w http.ResponseWriter, r *http.Request) {
	run := s.lastRun(w, r)
	if run == nil {
		return
	}
	run.Cancel()
	if _, err := run.Wait(r.Context()); err != nil && r.Context().Err() != nil {
		// The client went away.
		return
	}
	respondJSON(w, http.StatusOK, runResponse(run))
}

// =============================================================================
// Stateless layout
// =============================================================================

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.Graph) == 0 {
		s.respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "graph is required"))
		return
	}
	desc, err := pkgio.DecodeJSON(bytes.NewReader(req.Graph))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg := layout.DefaultConfig()
	if req.Config != nil {
		cfg = req.Config.Config
	}
	res, err := s.runner.Layout(r.Context(), desc, cfg, pipeline.Options{NoCache: req.NoCache})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if res.Layout.Reason == layout.ReasonCancelled {
		// The client went away.
		return
	}
	respondJSON(w, http.StatusOK, LayoutResponse{
		Result:   pkgio.NewResultRecord(res.Layout),
		Graph:    res.Graph,
		CacheHit: res.CacheInfo.Hit,
	})
}
