package clinctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/core/analyze"
	"github.com/medgrain/clinctx/core/pipeline"
	"github.com/medgrain/clinctx/core/ranking"
	"github.com/medgrain/clinctx/core/retrieval"
	"github.com/medgrain/clinctx/core/routing"
	"github.com/medgrain/clinctx/core/synthesis"
	"github.com/medgrain/clinctx/database"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
	loadSql "github.com/medgrain/clinctx/sql"
)

// Engine turns a clinical question plus a patient identifier into a
// token-budgeted, provenance-tagged context block for a language model.
// It composes query analysis, hybrid retrieval, ranking, optional
// cross-encoder reranking, and synthesis, and owns per-stage timing.
type Engine struct {
	DB          *helper.Database
	Records     *database.RecordsDBHandler
	Medications *database.MedicationsDBHandler
	Labs        *database.LabsDBHandler
	Pipeline    *pipeline.Pipeline // Optional ingestion pipeline

	Config model.EngineConfig

	analyzer    *analyze.Analyzer
	retriever   *retrieval.Retriever
	ranker      *ranking.ContextRanker
	reranker    *ranking.CrossEncoderReranker // Optional second ranking stage
	synthesizer *synthesis.ContextSynthesizer
	router      *routing.Router
	classifier  *routing.IntentClassifier
	// Logging
	log *slog.Logger
}

// ContextOptions are the per-call overrides for GetContext. Zero values fall
// back to the engine configuration; a nil MinScore uses the configured default.
type ContextOptions struct {
	MaxResults   int
	MaxTokens    int
	MinScore     *float64
	SystemPrompt string
	History      []string
}

// NewEngine creates a context engine backed by the Postgres record store.
// The embedding model is loaded lazily on the first retrieval, the
// cross-encoder on the first rerank; both loads are single-flight guarded.
func NewEngine(dbConfig *helper.DatabaseConfiguration, engineConfig model.EngineConfig) (*Engine, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("clinctx", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	records, err := database.NewRecordsDBHandler(db, pipeline.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create records handler", err)
	}

	medications, err := database.NewMedicationsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create medications handler", err)
	}

	labs, err := database.NewLabsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create labs handler", err)
	}

	structured, err := database.NewStructuredStore(medications, labs)
	if err != nil {
		return nil, helper.NewError("create structured store", err)
	}

	embedder := pipeline.NewLazyEmbedder(pipeline.DefaultEmbedder)
	reranker := ranking.NewCrossEncoderReranker(ranking.DefaultCrossEncoder, engineConfig, logger)

	engine := newEngine(embedder.Func(), records, records, structured, reranker, engineConfig, logger)
	engine.DB = db
	engine.Records = records
	engine.Medications = medications
	engine.Labs = labs

	return engine, nil
}

// NewEngineWithStores creates a context engine over caller-supplied stores.
// Any searcher may be nil; its retrieval channel never runs. A nil reranker
// disables the cross-encoder stage entirely.
func NewEngineWithStores(
	embed pipeline.EmbedFunc,
	vector retrieval.VectorSearcher,
	keyword retrieval.KeywordSearcher,
	structured retrieval.StructuredSearcher,
	reranker *ranking.CrossEncoderReranker,
	engineConfig model.EngineConfig,
	logger *slog.Logger,
) *Engine {
	return newEngine(embed, vector, keyword, structured, reranker, engineConfig, logger)
}

func newEngine(
	embed pipeline.EmbedFunc,
	vector retrieval.VectorSearcher,
	keyword retrieval.KeywordSearcher,
	structured retrieval.StructuredSearcher,
	reranker *ranking.CrossEncoderReranker,
	engineConfig model.EngineConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		Config:      engineConfig,
		analyzer:    analyze.NewAnalyzer(logger),
		retriever:   retrieval.NewRetriever(embed, vector, keyword, structured, engineConfig, logger),
		ranker:      ranking.NewContextRanker(engineConfig, logger),
		reranker:    reranker,
		synthesizer: synthesis.NewContextSynthesizer(logger),
		router:      routing.NewRouter(logger),
		classifier:  routing.NewIntentClassifier(engineConfig),
		log:         logger,
	}
}

// Close closes the database connection
func (e *Engine) Close() error {
	if e.DB != nil && e.DB.Instance != nil {
		return e.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the ingestion pipeline for record processing
func (e *Engine) SetPipeline(p *pipeline.Pipeline) {
	e.Pipeline = p
}

// UseDefaultPipeline sets up the default section chunking and embedding
// pipeline with the all-MiniLM-L6-v2 model (384 dimensions)
func (e *Engine) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	e.Pipeline = pipeline.NewPipeline(pipeline.DefaultChunker(), embedder)
	return nil
}

// UseDefaultEntityTagger attaches the NER entity tagger to the current
// pipeline, so ingested chunks carry entity metadata
func (e *Engine) UseDefaultEntityTagger() error {
	if e.Pipeline == nil {
		return helper.NewError("set entity tagger", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	tagger, err := pipeline.DefaultEntityTagger()
	if err != nil {
		return helper.NewError("create default entity tagger", err)
	}

	e.Pipeline.SetEntityTagger(tagger)
	return nil
}

// ProcessAndInsertRecord chunks and embeds record text, replaces any chunks
// previously ingested for the same source, and inserts the new ones.
// Returns the number of chunks inserted.
func (e *Engine) ProcessAndInsertRecord(text string, patientRID uuid.UUID, sourceType model.SourceType, sourceID string, eventDate *time.Time) (int, error) {
	if e.Pipeline == nil {
		return 0, helper.NewError("process record", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if e.Records == nil {
		return 0, helper.NewError("process record", fmt.Errorf("engine has no record store"))
	}
	if text == "" {
		return 0, helper.NewError("process record", fmt.Errorf("record text is empty"))
	}

	chunks, err := e.Pipeline.Process(text, patientRID, sourceType, sourceID, eventDate)
	if err != nil {
		return 0, helper.NewError("process chunks", err)
	}

	if _, err := e.Records.DeleteChunksBySource(patientRID, sourceType, sourceID); err != nil {
		return 0, helper.NewError("replace existing chunks", err)
	}

	if err := e.Records.InsertChunks(chunks); err != nil {
		return 0, helper.NewError("insert chunks", err)
	}

	e.log.Info("Ingested record",
		slog.String("patient_rid", patientRID.String()),
		slog.String("source_type", string(sourceType)),
		slog.String("source_id", sourceID),
		slog.Int("num_chunks", len(chunks)))

	return len(chunks), nil
}

// AnalyzeQuery runs stage 1 only, for diagnostics
func (e *Engine) AnalyzeQuery(query string, history []string) model.QueryAnalysis {
	return e.analyzer.Analyze(query, history)
}

// GetRawRetrieval runs stages 1 and 2 and returns the fused, unranked results
func (e *Engine) GetRawRetrieval(ctx context.Context, query string, patientRID uuid.UUID, limit int, minScore float64) (model.QueryAnalysis, model.RetrievalResponse, error) {
	analysis := e.analyzer.Analyze(query, nil)

	response, err := e.retriever.Retrieve(ctx, analysis, patientRID, limit, minScore)
	if err != nil {
		return analysis, model.RetrievalResponse{}, err
	}

	return analysis, response, nil
}

// GetContext runs the full pipeline: analysis, hybrid retrieval, ranking with
// the optional cross-encoder, and token-budgeted synthesis. Stages run
// strictly in sequence; coverage re-ranking applies only to summary intents.
func (e *Engine) GetContext(ctx context.Context, query string, patientRID uuid.UUID, opts ContextOptions) (*model.ContextResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = e.Config.MaxResults
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.Config.MaxTokens
	}
	minScore := e.Config.MinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	start := time.Now()
	timings := model.StageTimings{}

	// Stage 1: query analysis
	stageStart := time.Now()
	analysis := e.analyzer.Analyze(query, opts.History)
	timings.AnalyzeMs = time.Since(stageStart).Milliseconds()

	// Stage 2: hybrid retrieval, over-fetched so ranking has candidates to
	// trade off against each other
	stageStart = time.Now()
	response, err := e.retriever.Retrieve(ctx, analysis, patientRID, maxResults*2, minScore)
	if err != nil {
		return nil, helper.NewError("hybrid retrieval", err)
	}
	timings.RetrieveMs = time.Since(stageStart).Milliseconds()

	// Stage 3: ranking, with the cross-encoder when available. An empty
	// rerank result means the reranker is unavailable; heuristic ranking
	// continues on the fused results.
	stageStart = time.Now()
	candidates := response.Results
	if e.reranker != nil {
		if reranked := e.reranker.Rerank(analysis.NormalizedQuery, candidates); len(reranked) > 0 {
			candidates = reranked
		}
	}
	// Summary intents rank the whole fused pool so coverage selection can
	// pull in source types that pure score order would truncate away.
	rankLimit := maxResults
	if analysis.Intent == model.IntentSummary {
		rankLimit = len(candidates)
	}
	ranked := e.ranker.Rank(candidates, analysis, rankLimit)
	if analysis.Intent == model.IntentSummary {
		ranked = e.ranker.RerankForCoverage(ranked, e.Config.MinPerSource, maxResults)
	}
	timings.RankMs = time.Since(stageStart).Milliseconds()

	// Stage 4: synthesis
	stageStart = time.Now()
	synthesized := e.synthesizer.Synthesize(ranked, analysis, maxTokens)
	prompt := e.synthesizer.CreatePromptContext(synthesized, opts.SystemPrompt)
	timings.SynthesizeMs = time.Since(stageStart).Milliseconds()

	timings.TotalMs = time.Since(start).Milliseconds()

	if e.log != nil {
		e.log.Info("Context assembled",
			slog.String("intent", string(analysis.Intent)),
			slog.Int("retrieved", len(response.Results)),
			slog.Int("ranked", len(ranked)),
			slog.Int("chunks_used", synthesized.TotalChunksUsed),
			slog.Int64("total_ms", timings.TotalMs))
	}

	return &model.ContextResult{
		Analysis:    analysis,
		Retrieval:   response,
		Ranked:      ranked,
		Synthesized: synthesized,
		Prompt:      prompt,
		Timings:     timings,
	}, nil
}

// Search is a convenience wrapper returning plain maps, for callers that do
// not want the typed result bundle
func (e *Engine) Search(ctx context.Context, query string, patientRID uuid.UUID, limit int) ([]map[string]interface{}, error) {
	result, err := e.GetContext(ctx, query, patientRID, ContextOptions{MaxResults: limit})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(result.Ranked))
	for _, entry := range result.Ranked {
		row := map[string]interface{}{
			"id":          entry.Result.ID,
			"content":     entry.Result.Content,
			"source_type": string(entry.Result.SourceType),
			"source_id":   entry.Result.SourceID,
			"score":       entry.FinalScore,
			"reasoning":   entry.Reasoning,
		}
		if entry.Result.ContextDate != nil {
			row["context_date"] = entry.Result.ContextDate.Format("2006-01-02")
		}
		out = append(out, row)
	}

	return out, nil
}

// Route classifies the question into a generation task
func (e *Engine) Route(question string, history []string) model.RoutingResult {
	return e.router.Route(question, history)
}

// DecodingProfile selects the sampling configuration for the generation call
func (e *Engine) DecodingProfile(question string, task model.Task, intent model.Intent) model.DecodingProfile {
	return e.classifier.DecodingProfile(question, task, intent)
}
