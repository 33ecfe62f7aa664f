package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/validation"
	"github.com/amrlab/amrflow/internal/workflow"
)

type sentenceCreateRequest struct {
	Text          string  `json:"text"`
	Source        *string `json:"source"`
	DifficultyTag *string `json:"difficulty_tag"`
}

// handleCreateSentence ingests a sentence into a project in status NEW.
func (s *Server) handleCreateSentence(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req sentenceCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Text == "" {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Cümle metni zorunludur"))
		return
	}

	actor, err := s.projectActor(r.Context(), id, projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentence, err := s.workflow.CreateSentence(r.Context(), actor,
		projectID, workflow.CreateSentenceRequest{
			Text:          req.Text,
			Source:        req.Source,
			DifficultyTag: req.DifficultyTag,
		})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newSentencePublic(sentence))
}

// handleListSentences lists a project's sentences. With a ?q= parameter the
// listing becomes a ranked full-text search.
func (s *Server) handleListSentences(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.db.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Proje bulunamadı"))
		return
	}
	if _, err := s.projectActor(r.Context(), id, projectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	if q := query.Get("q"); q != "" {
		limit := 50
		if raw := query.Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil &&
				parsed > 0 && parsed <= 200 {

				limit = parsed
			}
		}

		results, err := s.db.SearchSentences(r.Context(), projectID, q,
			limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		hits := make([]sentenceSearchHit, 0, len(results))
		for _, res := range results {
			hits = append(hits, sentenceSearchHit{
				sentencePublic: newSentencePublic(res.Sentence),
				Rank:           res.Rank,
			})
		}
		writeJSON(w, http.StatusOK, hits)
		return
	}

	sentences, err := s.db.ListSentences(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]sentencePublic, 0, len(sentences))
	for _, sentence := range sentences {
		out = append(out, newSentencePublic(sentence))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetSentence returns one sentence.
func (s *Server) handleGetSentence(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	_, sentence, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSentencePublic(sentence))
}

type assignBody struct {
	Strategy            amr.AssignmentStrategy `json:"strategy"`
	Role                amr.Role               `json:"role"`
	Count               int                    `json:"count"`
	RequiredSkills      []string               `json:"required_skills"`
	ProvidedAssignees   []int64                `json:"provided_assignees"`
	IsBlind             bool                   `json:"is_blind"`
	AllowMultiple       bool                   `json:"allow_multiple"`
	ReassignAfterReject bool                   `json:"reassign_after_reject"`
}

// handleAssign runs the assignment engine against a sentence.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := assignBody{
		Strategy: amr.StrategyRoundRobin,
		Role:     amr.RoleAnnotator,
		Count:    1,
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	assignments, err := s.workflow.Assign(r.Context(), actor, sentenceID,
		workflow.AssignRequest{
			Strategy:            body.Strategy,
			Role:                body.Role,
			Count:               body.Count,
			RequiredSkills:      body.RequiredSkills,
			ProvidedAssignees:   body.ProvidedAssignees,
			IsBlind:             body.IsBlind,
			AllowMultiple:       body.AllowMultiple,
			ReassignAfterReject: body.ReassignAfterReject,
		})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]assignmentPublic, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, newAssignmentPublic(a))
	}
	writeJSON(w, http.StatusCreated, out)
}

type submitBody struct {
	PenmanText string `json:"penman_text"`
}

// validationFailure is the 400 body for a rejected submission; it carries
// the full report so the client can show per-issue feedback.
type validationFailure struct {
	Detail string             `json:"detail"`
	Code   amr.Code           `json:"code"`
	Report *validation.Report `json:"report"`
}

// handleSubmit validates and stores an annotation. A validation failure
// returns 400 with the full report; the failed attempt is durably recorded
// server-side.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body submitBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.PenmanText == "" {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"PENMAN metni zorunludur"))
		return
	}

	actor, _, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.workflow.Submit(r.Context(), actor, sentenceID,
		body.PenmanText)
	if err != nil {
		var domainErr *amr.Error
		if errors.As(err, &domainErr) &&
			domainErr.Code == amr.CodeValidationFailed &&
			result.Report != nil {

			writeJSON(w, http.StatusBadRequest, validationFailure{
				Detail: domainErr.Message,
				Code:   domainErr.Code,
				Report: result.Report,
			})
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAnnotationPublic(result.Annotation))
}

// handleValidate runs the validation pipeline against a candidate PENMAN
// graph without persisting anything. Annotators use it as a pre-submit dry
// run.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body submitBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.PenmanText == "" {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"PENMAN metni zorunludur"))
		return
	}

	_, sentence, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	project, err := s.db.GetProject(r.Context(), sentence.ProjectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report := validation.NewService(project.AmrVersion,
		project.RoleSetVersion, project.ValidationRuleVersion).
		Validate(body.PenmanText)

	writeJSON(w, http.StatusOK, report)
}

type reviewBody struct {
	AnnotationID     int64              `json:"annotation_id"`
	Decision         amr.ReviewDecision `json:"decision"`
	Score            *float64           `json:"score"`
	Comment          *string            `json:"comment"`
	IsMultiAnnotator bool               `json:"is_multi_annotator"`
}

// handleReview records a reviewer decision and moves the sentence.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body reviewBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentence, err := s.workflow.Review(r.Context(), actor, sentenceID,
		workflow.ReviewRequest{
			AnnotationID:     body.AnnotationID,
			Decision:         body.Decision,
			Score:            body.Score,
			Comment:          body.Comment,
			IsMultiAnnotator: body.IsMultiAnnotator,
		})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSentencePublic(sentence))
}

type adjudicateBody struct {
	FinalPenman         string  `json:"final_penman"`
	DecisionNote        *string `json:"decision_note"`
	SourceAnnotationIDs []int64 `json:"source_annotation_ids"`
}

// handleAdjudicate records the curator's final merged graph.
func (s *Server) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body adjudicateBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.FinalPenman == "" {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Nihai PENMAN metni zorunludur"))
		return
	}

	actor, _, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	adjudication, err := s.workflow.Adjudicate(r.Context(), actor,
		sentenceID, workflow.AdjudicateRequest{
			FinalPenman:         body.FinalPenman,
			DecisionNote:        body.DecisionNote,
			SourceAnnotationIDs: body.SourceAnnotationIDs,
		})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAdjudicationPublic(adjudication))
}

// handleAccept moves an adjudicated sentence to its terminal ACCEPTED state.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentence, err := s.workflow.Accept(r.Context(), actor, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSentencePublic(sentence))
}

type reopenBody struct {
	Reason string `json:"reason"`
}

// handleReopen sends an adjudicated sentence back to review.
func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentenceID, err := pathID(r, "sentence_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body reopenBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _, err := s.sentenceActor(r.Context(), id, sentenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sentence, err := s.workflow.Reopen(r.Context(), actor, sentenceID,
		body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSentencePublic(sentence))
}
