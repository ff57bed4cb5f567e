package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/connectpro/internal/convert"
	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
)

// --- Auth ---

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	link, err := s.auth.Register(r.Context(), req.Email, req.Name, clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":    "Magic link generated",
		"magic_link": link.URL,
	})
}

func (s *Server) checkEmail(w http.ResponseWriter, r *http.Request) {
	ok, err := s.auth.EmailExists(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

type verifyResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   convert.Timestamp `json:"expires_at"`
	User        convert.User      `json:"user"`
}

// verify takes the token from ?token= or a JSON body {"token": ...}.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.ContentLength != 0 {
		var body struct {
			Token string `json:"token"`
		}
		if err := decode(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		token = body.Token
	}
	if token == "" {
		writeDetail(w, http.StatusBadRequest, KindInvalidArgument, "token is required")
		return
	}
	tok, u, err := s.auth.Verify(r.Context(), token, clientIP(r))
	if err != nil {
		if status, _ := classify(err); status == http.StatusUnauthorized {
			writeDetail(w, http.StatusUnauthorized, KindUnauthenticated, "Invalid or expired magic link")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   convert.Timestamp(tok.ExpiresAt),
		User:        convert.FromUser(u),
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Me(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromUser(*u))
}

type profileUpdate struct {
	Name        *string `json:"name"`
	IsOnboarded *bool   `json:"is_onboarded"`
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileUpdate
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.auth.UpdateProfile(r.Context(), userID(r), req.Name, req.IsOnboarded)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromUser(*u))
}

// --- Connections ---

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var req convert.ConnectionCreate
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.conns.Create(r.Context(), userID(r), req.Model())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.FromConnection(*c, s.now()))
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := model.ConnectionFilter{Tag: q.Get("tag"), Search: q.Get("q")}
	res, err := s.conns.List(r.Context(), userID(r), f, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.NewPage(res, convert.FromConnections(res.Items, s.now())))
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.conns.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromConnection(*c, s.now()))
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := convert.DecodeConnectionPatch(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.conns.Update(r.Context(), userID(r), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromConnection(*c, s.now()))
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.conns.Delete(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listConnectionLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLogPage(w, r, model.LogFilter{ConnectionID: &id})
}

// --- Logs ---

func (s *Server) createLog(w http.ResponseWriter, r *http.Request) {
	var req convert.LogCreate
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := req.Model()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.logs.Create(r.Context(), userID(r), l)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.FromLog(*out))
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	var f model.LogFilter
	if v := r.URL.Query().Get("connection_id"); v != "" {
		id, err := parseUUID(v, "connection_id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.ConnectionID = &id
	}
	s.writeLogPage(w, r, f)
}

func (s *Server) writeLogPage(w http.ResponseWriter, r *http.Request, f model.LogFilter) {
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.logs.List(r.Context(), userID(r), f, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.NewPage(res, convert.FromLogs(res.Items)))
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.logs.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromLog(*l))
}

func (s *Server) deleteLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.logs.Delete(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tags, follow-ups, enrichment ---

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	tax, err := s.tags.ListByType(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromTaxonomy(tax))
}

func (s *Server) followUps(w http.ResponseWriter, r *http.Request) {
	b, err := s.conns.FollowUps(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromBuckets(b, s.now()))
}

// submitEnrich takes the profile URL from ?linkedin_url= or a JSON body {"linkedin_url": ...}.
func (s *Server) submitEnrich(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("linkedin_url")
	if target == "" && r.ContentLength != 0 {
		var body struct {
			LinkedInURL string `json:"linkedin_url"`
		}
		if err := decode(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		target = body.LinkedInURL
	}
	if target == "" {
		writeDetail(w, http.StatusBadRequest, KindInvalidArgument, "linkedin_url is required")
		return
	}
	id, err := s.enrich.Submit(userID(r), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id.String()})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	j, err := s.enrich.Get(userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromJob(j))
}

func parseUUID(v, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", errs.ErrInvalidArgument, name)
	}
	return id, nil
}
