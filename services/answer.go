package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa-platform/internal/config"
	"docqa-platform/internal/logger"
	"docqa-platform/models"
)

// NoEvidenceMessage is the fixed response returned when a document-scoped
// question finds no usable evidence. It deliberately bypasses generation:
// answering from model knowledge when grounding was requested invites
// hallucination.
const NoEvidenceMessage = "I couldn't find anything in the selected document that answers your question. " +
	"Try rephrasing it, using keywords that appear in the document, or checking that you selected the right file."

const groundedSystemPrompt = `You are an expert document assistant.

RULES:
1. Answer ONLY from the numbered sources in the DOCUMENT CONTEXT below.
2. Cite every claim with its source marker, e.g. [Source 2].
3. If the sources do not contain the answer, say so plainly. Never invent facts, figures, or names.
4. Format your answer in Markdown. Use **bold** for key terms and bullet points for lists.`

const generalSystemPrompt = `You are a friendly, knowledgeable assistant.

RULES:
1. Answer from your own knowledge. Be direct and helpful.
2. Format your answer in Markdown. Use **bold** for key terms, lists for enumerations, and code blocks for code.
3. Be thorough yet concise.`

const (
	groundedTemperature = 0.2
	generalTemperature  = 0.6
)

// AnswerService routes a question to the grounded or general completion
// backend depending on whether document evidence exists.
type AnswerService struct {
	cfg       *config.Config
	embedder  Embedder
	retriever *Retriever
	reranker  *Reranker
	grounded  Completer
	general   Completer
	store     MetadataStore
}

func NewAnswerService(cfg *config.Config, embedder Embedder, retriever *Retriever, reranker *Reranker, grounded, general Completer, store MetadataStore) *AnswerService {
	return &AnswerService{
		cfg:       cfg,
		embedder:  embedder,
		retriever: retriever,
		reranker:  reranker,
		grounded:  grounded,
		general:   general,
		store:     store,
	}
}

// preparedAnswer holds everything needed to invoke (or skip) generation.
type preparedAnswer struct {
	mode       string
	completer  Completer
	request    models.CompletionRequest
	citations  []models.Citation
	evidence   []models.ScoredCandidate
	noEvidence bool
}

// Answer handles one question synchronously.
func (s *AnswerService) Answer(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()

	prep, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if prep.noEvidence {
		resp := &models.AskResponse{
			Answer:        NoEvidenceMessage,
			Citations:     []models.Citation{},
			EvidenceCount: 0,
			Mode:          models.ModeDocument,
			ResponseMs:    time.Since(start).Milliseconds(),
		}
		s.saveTurn(ctx, req, resp.Answer)
		return resp, nil
	}

	answer, err := prep.completer.Complete(ctx, prep.request)
	if err != nil {
		return nil, generationError("answer generation failed", err)
	}

	s.saveTurn(ctx, req, answer)

	return &models.AskResponse{
		Answer:        answer,
		Citations:     prep.citations,
		EvidenceCount: len(prep.evidence),
		Mode:          prep.mode,
		ResponseMs:    time.Since(start).Milliseconds(),
	}, nil
}

// StreamResult carries the routing outcome plus the lazy answer stream.
// Deltas closes when the answer is complete; cancelling the request
// context abandons the stream with no effect on indexed state.
type StreamResult struct {
	Mode          string
	Citations     []models.Citation
	EvidenceCount int
	Deltas        <-chan models.StreamDelta
}

// AnswerStream handles one question as a lazy sequence of text increments.
// The no-evidence terminal state is delivered as a single increment without
// touching a completion backend. Successful streams are persisted to chat
// history once fully consumed.
func (s *AnswerService) AnswerStream(ctx context.Context, req models.AskRequest) (*StreamResult, error) {
	prep, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if prep.noEvidence {
		out := make(chan models.StreamDelta, 1)
		out <- models.StreamDelta{Text: NoEvidenceMessage}
		close(out)
		s.saveTurn(ctx, req, NoEvidenceMessage)
		return &StreamResult{
			Mode:          models.ModeDocument,
			Citations:     []models.Citation{},
			EvidenceCount: 0,
			Deltas:        out,
		}, nil
	}

	deltas, err := prep.completer.CompleteStream(ctx, prep.request)
	if err != nil {
		return nil, generationError("answer generation failed", err)
	}

	out := make(chan models.StreamDelta)
	go func() {
		defer close(out)
		var full strings.Builder
		failed := false
		for delta := range deltas {
			if delta.Err != nil {
				failed = true
			} else {
				full.WriteString(delta.Text)
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
		if !failed && full.Len() > 0 {
			s.saveTurn(context.WithoutCancel(ctx), req, full.String())
		}
	}()

	return &StreamResult{
		Mode:          prep.mode,
		Citations:     prep.citations,
		EvidenceCount: len(prep.evidence),
		Deltas:        out,
	}, nil
}

// prepare validates the request, runs retrieval and reranking when a
// target document is given, and assembles the completion request.
func (s *AnswerService) prepare(ctx context.Context, req models.AskRequest) (*preparedAnswer, error) {
	if req.TenantID == "" {
		return nil, validationError("tenant id is required")
	}
	if len(strings.TrimSpace(req.Question)) < 3 {
		return nil, validationError("question is too short")
	}
	question := strings.TrimSpace(req.Question)

	history := s.loadHistory(ctx, req)

	if req.SourceFile == "" {
		return &preparedAnswer{
			mode:      models.ModeGeneral,
			completer: s.general,
			request: models.CompletionRequest{
				SystemPrompt: generalSystemPrompt,
				History:      history,
				UserPrompt:   question,
				Temperature:  generalTemperature,
				MaxTokens:    s.cfg.MaxOutputTokens,
			},
		}, nil
	}

	questionVector, err := s.embedder.EmbedText(ctx, question, EmbedModeQuery)
	if err != nil {
		return nil, embeddingError("could not embed question", err)
	}

	candidates, err := s.retriever.Retrieve(ctx, req.TenantID, questionVector, req.SourceFile)
	if err != nil {
		return nil, err
	}

	evidence := s.reranker.Rerank(question, candidates, s.cfg.MaxContextChunks)
	if len(evidence) == 0 {
		return &preparedAnswer{noEvidence: true}, nil
	}

	citations := make([]models.Citation, len(evidence))
	for i, ev := range evidence {
		citations[i] = models.Citation{
			Index:      i + 1,
			SourceFile: ev.Chunk.SourceFile,
			PageNumber: ev.Chunk.PageNumber,
			Score:      ev.Score,
		}
	}

	return &preparedAnswer{
		mode:      models.ModeDocument,
		completer: s.grounded,
		evidence:  evidence,
		citations: citations,
		request: models.CompletionRequest{
			SystemPrompt: groundedSystemPrompt,
			History:      history,
			UserPrompt:   buildGroundedPrompt(question, evidence),
			Temperature:  groundedTemperature,
			MaxTokens:    s.cfg.MaxOutputTokens,
		},
	}, nil
}

// loadHistory fetches prior turns for context. History is best effort: a
// store failure degrades to an empty history rather than failing the answer.
func (s *AnswerService) loadHistory(ctx context.Context, req models.AskRequest) []models.ChatTurn {
	history, err := s.store.GetChatHistory(ctx, req.TenantID, s.cfg.MaxHistoryTurns, req.SourceFile)
	if err != nil {
		logger.Warn("could not load chat history", "tenant_id", req.TenantID, "error", err)
		return nil
	}
	return history
}

func (s *AnswerService) saveTurn(ctx context.Context, req models.AskRequest, answer string) {
	turn := models.ChatTurn{
		TenantID:   req.TenantID,
		Question:   strings.TrimSpace(req.Question),
		Answer:     answer,
		SourceFile: req.SourceFile,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertChatTurn(ctx, turn); err != nil {
		logger.Warn("could not save chat turn", "tenant_id", req.TenantID, "error", err)
	}
}

// buildGroundedPrompt assembles the numbered context block followed by the
// question. Source markers here must line up with the citation list.
func buildGroundedPrompt(question string, evidence []models.ScoredCandidate) string {
	var sb strings.Builder
	sb.WriteString("DOCUMENT CONTEXT:\n\n")
	for i, ev := range evidence {
		fmt.Fprintf(&sb, "[Source %d] %s, page %d (relevance: %s)\n%s\n\n",
			i+1, ev.Chunk.SourceFile, ev.Chunk.PageNumber, relevanceLabel(ev.Score), ev.Chunk.Text)
	}
	sb.WriteString("QUESTION:\n")
	sb.WriteString(question)
	return sb.String()
}

func relevanceLabel(score float64) string {
	switch {
	case score >= 0.75:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
