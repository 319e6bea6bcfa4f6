package api

import (
	"net/http"

	"github.com/kredensia/kredensia/pkg/httputil"
	"github.com/kredensia/kredensia/pkg/questions"
)

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	var req questions.NewQuestion
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	q, err := s.questions.Create(r.Context(), req)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, q)
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	filter := questions.ListFilter{
		Category: httputil.ParseQueryString(r, "category", ""),
		Page:     httputil.ParseQueryInt(r, "page", 1),
		Limit:    httputil.ParseQueryInt(r, "limit", 20),
	}

	page, err := s.questions.List(r.Context(), filter)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

func (s *Server) getQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	q, err := s.questions.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, q)
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req questions.NewQuestion
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	q, err := s.questions.Update(r.Context(), id, req)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, q)
}

type questionActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) setQuestionActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req questionActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	q, err := s.questions.SetActive(r.Context(), id, req.Active)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, q)
}

func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.questions.Delete(r.Context(), id); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
