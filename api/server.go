package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/DeafMist/market-news-radar/internal/config"
	"github.com/DeafMist/market-news-radar/internal/elasticsearch"
	"github.com/DeafMist/market-news-radar/internal/models"
	"github.com/DeafMist/market-news-radar/internal/pipeline"
	"github.com/DeafMist/market-news-radar/internal/query"
)

const (
	maxBodyBytes        = 10 << 20
	storiesDefaultLimit = 50
	storiesMaxLimit     = 500
	summaryContentLen   = 200
	summaryListLen      = 5
)

type storySearcher interface {
	SearchStories(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log    *slog.Logger
	cfg    *config.API
	pipe   *pipeline.Pipeline
	search storySearcher
	now    func() time.Time
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/process", s.handleProcess)
	r.Post("/process/batch", s.handleProcessBatch)
	r.Post("/query", s.handleQuery)
	r.Get("/stories", s.handleStories)
	r.Get("/stocks/{symbol}", s.handleStock)
	r.Get("/stats", s.handleStats)
	r.Get("/search", s.handleSearch)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type submissionRequest struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Source        string     `json:"source"`
	URL           string     `json:"url,omitempty"`
	Author        string     `json:"author,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
}

func (r submissionRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return errors.New("title is required")
	case strings.TrimSpace(r.Content) == "":
		return errors.New("content is required")
	case strings.TrimSpace(r.Source) == "":
		return errors.New("source is required")
	}
	return nil
}

func (r submissionRequest) submission() pipeline.Submission {
	sub := pipeline.Submission{
		Title:   r.Title,
		Content: r.Content,
		Source:  r.Source,
		URL:     r.URL,
		Author:  r.Author,
	}
	if r.PublishedDate != nil {
		sub.PublishedAt = *r.PublishedDate
	}
	return sub
}

type entityView struct {
	Name     string            `json:"name"`
	Type     models.EntityType `json:"type"`
	Mentions int               `json:"mentions,omitempty"`
}

type impactView struct {
	Symbol     string            `json:"symbol"`
	Company    string            `json:"company,omitempty"`
	Confidence float64           `json:"confidence"`
	Type       models.ImpactType `json:"type,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
}

type articleResponse struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Source       string       `json:"source"`
	IsDuplicate  bool         `json:"is_duplicate"`
	DuplicateOf  *string      `json:"duplicate_of"`
	Entities     []entityView `json:"entities"`
	StockImpacts []impactView `json:"stock_impacts"`
}

func newArticleResponse(a models.Article) articleResponse {
	resp := articleResponse{
		ID:           a.ID,
		Title:        a.Title,
		Source:       a.Source,
		IsDuplicate:  a.IsDuplicate,
		Entities:     make([]entityView, 0, len(a.Entities)),
		StockImpacts: make([]impactView, 0, len(a.StockImpacts)),
	}
	if a.DuplicateOf != "" {
		dup := a.DuplicateOf
		resp.DuplicateOf = &dup
	}
	for _, e := range a.Entities {
		resp.Entities = append(resp.Entities, entityView{Name: e.Name, Type: e.Type, Mentions: e.Mentions})
	}
	for _, imp := range a.StockImpacts {
		resp.StockImpacts = append(resp.StockImpacts, impactView{
			Symbol:     imp.Symbol,
			Company:    imp.CompanyName,
			Confidence: round3(imp.Confidence),
			Type:       imp.Type,
			Reasoning:  imp.Reasoning,
		})
	}
	return resp
}

type batchArticle struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	IsDuplicate   bool   `json:"is_duplicate"`
	DuplicateOf   string `json:"duplicate_of,omitempty"`
	EntitiesCount int    `json:"entities_count"`
	StocksCount   int    `json:"stocks_count"`
}

type batchResponse struct {
	BatchID    string         `json:"batch_id"`
	Processed  int            `json:"processed"`
	Duplicates int            `json:"duplicates"`
	Unique     int            `json:"unique"`
	Stories    int            `json:"stories"`
	Articles   []batchArticle `json:"articles"`
}

type queryRequest struct {
	Query             string `json:"query"`
	Limit             *int   `json:"limit"`
	IncludeSectorNews *bool  `json:"include_sector_news"`
}

type storySummary struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	Source        string       `json:"source"`
	PublishedDate string       `json:"published_date"`
	Entities      []entityView `json:"entities"`
	StockImpacts  []impactView `json:"stock_impacts"`
	NumDuplicates int          `json:"num_duplicates"`
	Relevance     float64      `json:"relevance_score"`
}

type queryResponse struct {
	Query            string         `json:"query"`
	Results          []storySummary `json:"results"`
	TotalResults     int            `json:"total_results"`
	ProcessingTime   float64        `json:"processing_time"`
	ExpansionApplied bool           `json:"expansion_applied"`
}

func newStorySummary(st models.UniqueStory, score float64) storySummary {
	p := st.Primary
	sum := storySummary{
		ID:            st.ID,
		Title:         p.Title,
		Content:       truncate(p.Content, summaryContentLen) + "...",
		Source:        p.Source,
		PublishedDate: p.PublishedAt.Format(time.RFC3339),
		Entities:      make([]entityView, 0, summaryListLen),
		StockImpacts:  make([]impactView, 0, summaryListLen),
		NumDuplicates: st.NumDuplicates(),
		Relevance:     round3(score),
	}
	for i, e := range st.Entities {
		if i == summaryListLen {
			break
		}
		sum.Entities = append(sum.Entities, entityView{Name: e.Name, Type: e.Type})
	}
	for i, imp := range st.StockImpacts {
		if i == summaryListLen {
			break
		}
		sum.StockImpacts = append(sum.StockImpacts, impactView{Symbol: imp.Symbol, Confidence: round3(imp.Confidence)})
	}
	return sum
}

type storyListItem struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Source          string `json:"source"`
	PublishedDate   string `json:"published_date"`
	EntitiesCount   int    `json:"entities_count"`
	StocksCount     int    `json:"stocks_count"`
	DuplicatesCount int    `json:"duplicates_count"`
}

type storiesResponse struct {
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Stories []storyListItem `json:"stories"`
}

type stockStory struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	PublishedDate string  `json:"published_date"`
	Impact        float64 `json:"impact"`
}

type stockResponse struct {
	Symbol       string       `json:"symbol"`
	TotalStories int          `json:"total_stories"`
	Stories      []stockStory `json:"stories"`
}

type statsResponse struct {
	TotalStories      int                      `json:"total_stories"`
	TotalEntities     int                      `json:"total_entities"`
	TotalStockImpacts int                      `json:"total_stock_impacts"`
	DedupStats        any                      `json:"dedup_stats"`
	Extraction        pipeline.ExtractionStats `json:"extraction"`
	StorageInfo       map[string]string        `json:"storage_info"`
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Market News Radar API",
		"status":  "operational",
		"endpoints": map[string]string{
			"POST /process":        "Process a single news article",
			"POST /process/batch":  fmt.Sprintf("Process up to %d articles", s.pipe.MaxBatch()),
			"POST /query":          "Query stories in natural language",
			"GET /stories":         "List unique stories",
			"GET /stocks/{symbol}": "Stories impacting a stock symbol",
			"GET /stats":           "System statistics",
			"GET /search":          "Full-text search over the story index",
			"GET /health":          "Health check",
		},
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"stories":   s.pipe.Stats().Storage.TotalStories,
		"search":    "disabled",
	}
	if s.search == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.search.Health(ctx); err != nil {
		resp["status"] = "degraded"
		resp["search"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["search"] = "ok"
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	article, err := s.pipe.ProcessOne(r.Context(), req.submission())
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newArticleResponse(article))
}

func (s *server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []submissionRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(reqs) > s.pipe.MaxBatch() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("maximum %d articles per batch", s.pipe.MaxBatch())})
		return
	}

	subs := make([]pipeline.Submission, 0, len(reqs))
	for i, req := range reqs {
		if err := req.validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("article %d: %v", i, err)})
			return
		}
		subs = append(subs, req.submission())
	}

	res, err := s.pipe.ProcessBatch(r.Context(), subs)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	resp := batchResponse{
		BatchID:    res.ID,
		Processed:  len(res.Articles),
		Duplicates: res.Duplicates(),
		Stories:    len(res.Stories),
		Articles:   make([]batchArticle, 0, len(res.Articles)),
	}
	resp.Unique = resp.Processed - resp.Duplicates
	for _, a := range res.Articles {
		resp.Articles = append(resp.Articles, batchArticle{
			ID:            a.ID,
			Title:         a.Title,
			IsDuplicate:   a.IsDuplicate,
			DuplicateOf:   a.DuplicateOf,
			EntitiesCount: len(a.Entities),
			StocksCount:   len(a.StockImpacts),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	limit := s.cfg.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 1 || limit > s.cfg.MaxLimit {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("limit must be between 1 and %d", s.cfg.MaxLimit)})
		return
	}
	includeSector := true
	if req.IncludeSectorNews != nil {
		includeSector = *req.IncludeSectorNews
	}

	res := s.pipe.Query(query.Request{
		Query:             req.Query,
		Limit:             limit,
		IncludeSectorNews: includeSector,
		MinRelevance:      query.DefaultMinRelevance,
	})

	resp := queryResponse{
		Query:            res.Query,
		Results:          make([]storySummary, 0, len(res.Stories)),
		TotalResults:     res.TotalResults,
		ProcessingTime:   res.ProcessingTime.Seconds(),
		ExpansionApplied: res.ExpansionApplied,
	}
	for i, st := range res.Stories {
		resp.Results = append(resp.Results, newStorySummary(st, res.Scores[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStories(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r.URL.Query().Get("limit"), storiesDefaultLimit, storiesMaxLimit)
	offset := clampInt(r.URL.Query().Get("offset"), 0, math.MaxInt32)

	page, total := s.pipe.Stories(offset, limit)
	resp := storiesResponse{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Stories: make([]storyListItem, 0, len(page)),
	}
	for _, st := range page {
		resp.Stories = append(resp.Stories, storyListItem{
			ID:              st.ID,
			Title:           st.Primary.Title,
			Source:          st.Primary.Source,
			PublishedDate:   st.Primary.PublishedAt.Format(time.RFC3339),
			EntitiesCount:   len(st.Entities),
			StocksCount:     len(st.StockImpacts),
			DuplicatesCount: st.NumDuplicates(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	matches, total := s.pipe.StoriesBySymbol(symbol)

	resp := stockResponse{
		Symbol:       symbol,
		TotalStories: total,
		Stories:      make([]stockStory, 0, len(matches)),
	}
	for _, m := range matches {
		resp.Stories = append(resp.Stories, stockStory{
			ID:            m.Story.ID,
			Title:         m.Story.Primary.Title,
			PublishedDate: m.Story.Primary.PublishedAt.Format(time.RFC3339),
			Impact:        round3(m.Confidence),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.pipe.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		TotalStories:      st.Storage.TotalStories,
		TotalEntities:     st.Storage.TotalEntities,
		TotalStockImpacts: st.Storage.TotalImpacts,
		DedupStats:        st.Dedupe,
		Extraction:        st.Extraction,
		StorageInfo: map[string]string{
			"directory":    s.cfg.StorageDir,
			"stories_file": st.Storage.Path,
		},
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search index is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:  strings.TrimSpace(q.Get("q")),
		Symbol: strings.TrimSpace(q.Get("symbol")),
		Source: strings.TrimSpace(q.Get("source")),
		From:   clampInt(q.Get("from"), 0, 10_000),
		Size:   clampInt(q.Get("size"), s.cfg.DefaultLimit, s.cfg.MaxLimit),
		Start:  parseTime(q.Get("start")),
		End:    parseTime(q.Get("end")),
	}

	result, err := s.search.SearchStories(ctx, params)
	if err != nil {
		s.log.Error("search stories", slog.Any("err", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pipeline.ErrBatchTooLarge) || errors.Is(err, pipeline.ErrInvalidSubmission) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.log.Error("processing failed", slog.Any("err", err), slog.String("request_id", middleware.GetReqID(r.Context())))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "processing failed"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
