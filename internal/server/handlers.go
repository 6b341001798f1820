package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/corrector"
)

// correctionRequest is the body of /check and /v1/corrections. Text is a
// pointer so a missing field can be told apart from an empty text.
type correctionRequest struct {
	Text   *string `json:"text"`
	Mode   string  `json:"mode"`
	Marker string  `json:"marker"`
}

// applyRequest is the body of /v1/corrections/apply.
type applyRequest struct {
	Text        *string                `json:"text"`
	Annotations []corrector.Annotation `json:"annotations"`
	Marker      string                 `json:"marker"`
}

// applyResponse is the success body of /v1/corrections/apply.
type applyResponse struct {
	Corrected string `json:"corrected"`
}

// errMissingText is returned before any component runs.
var errMissingText = fmt.Errorf("%w: field \"text\" is required", correction.ErrInvalidRequest)

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text == nil {
		writeError(w, r, errMissingText)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	res, err := s.svc.Check(ctx, correction.Request{
		Text:   *req.Text,
		Mode:   corrector.ModeAnnotate,
		Marker: req.Marker,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Annotations)
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text == nil {
		writeError(w, r, errMissingText)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	res, err := s.svc.Check(ctx, correction.Request{
		Text:   *req.Text,
		Mode:   corrector.Mode(req.Mode),
		Marker: req.Marker,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultBody(res))
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text == nil {
		writeError(w, r, errMissingText)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	corrected, err := s.svc.ApplyCorrections(ctx, *req.Text, req.Annotations, req.Marker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applyResponse{Corrected: corrected})
}

// resultBody selects the wire form of res: annotations in annotate mode,
// replace ops in rewrite mode.
func resultBody(res *correction.Result) any {
	if res.Mode == corrector.ModeRewrite {
		return res.Ops
	}
	return res.Annotations
}

// decode reads a size-limited JSON body into v. Decoding failures wrap
// [correction.ErrInvalidRequest].
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty request body", correction.ErrInvalidRequest)
		default:
			return fmt.Errorf("%w: malformed JSON body: %v", correction.ErrInvalidRequest, err)
		}
	}
	return nil
}

func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.requestTimeout)
}
