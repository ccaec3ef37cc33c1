// Package workflow drives a full document analysis run: chunk loading,
// knowledge-graph ingestion, task decomposition, section-agent fan-out,
// checkpointing, and final report generation.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/config"
	"finsight/internal/decompose"
	"finsight/internal/document"
	"finsight/internal/kg"
	"finsight/internal/logging"
	"finsight/internal/memory"
	"finsight/internal/report"
)

// Orchestrator owns the shared state of one analysis run and the section
// agents that operate on it.
type Orchestrator struct {
	cfg        config.Config
	board      *blackboard.Board
	graph      *kg.Graph
	longTerm   *memory.LongTerm
	collab     *memory.Collaborative
	decomposer *decompose.Decomposer
	sections   map[document.Section]*agents.SectionAgent
	generator  *report.FinalGenerator
	log        *zap.Logger
}

// New builds an orchestrator with one section agent per report section.
// The long-term memory store is optional; passing nil disables persistence
// across runs but not the current analysis.
func New(cfg config.Config, longTerm *memory.LongTerm, caps capability.Set) *Orchestrator {
	board := blackboard.New()
	graph := kg.New(cfg.Storage.KnowledgeDir)
	collab := memory.NewCollaborative()

	sections := make(map[document.Section]*agents.SectionAgent)
	for _, section := range document.Sections() {
		sections[section] = agents.NewSectionAgent(section, board, graph, longTerm, collab, caps, cfg)
	}

	return &Orchestrator{
		cfg:        cfg,
		board:      board,
		graph:      graph,
		longTerm:   longTerm,
		collab:     collab,
		decomposer: decompose.New(),
		sections:   sections,
		generator:  report.NewFinalGenerator(board, graph),
		log:        logging.Get(logging.CategoryWorkflow),
	}
}

// Board exposes the run state, mainly for inspection and tests.
func (o *Orchestrator) Board() *blackboard.Board { return o.board }

// Graph exposes the knowledge graph.
func (o *Orchestrator) Graph() *kg.Graph { return o.graph }

// ProcessDocument runs the full pipeline over the parsed document in the
// configured output directory and returns the final report.
func (o *Orchestrator) ProcessDocument(ctx context.Context) (report.Report, error) {
	chunks, err := document.LoadParsedChunks(o.cfg.Storage.OutputDir, o.cfg.Analysis.MaxChunkChars)
	if err != nil {
		return report.Report{}, fmt.Errorf("load document chunks: %w", err)
	}
	if len(chunks) == 0 {
		return report.Report{}, fmt.Errorf("no document chunks found in %s", o.cfg.Storage.OutputDir)
	}

	for _, chunk := range chunks {
		o.board.AddChunk(chunk)
	}
	o.log.Info("document loaded", zap.Int("chunks", len(chunks)))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return report.Report{}, err
		}
		o.board.SetCurrentChunk(i)
		o.processChunk(ctx, chunk)
		o.board.MarkChunkProcessed(i)

		if (i+1)%o.cfg.Analysis.CheckpointInterval == 0 {
			path := filepath.Join(o.cfg.Storage.OutputDir, fmt.Sprintf("checkpoint_%d.json", i+1))
			if err := o.board.SaveCheckpoint(path); err != nil {
				o.board.AddError(fmt.Sprintf("checkpoint save failed: %v", err))
				o.log.Warn("checkpoint save failed", zap.Error(err))
			}
		}
	}

	o.board.SetGraphSummary(statsToMap(o.graph.SummaryStats()))

	return o.finish()
}

// processChunk ingests one chunk into the knowledge graph, decomposes it
// into tasks, and hands the tasks to the routed section agent.
func (o *Orchestrator) processChunk(ctx context.Context, chunk document.Chunk) {
	entityIDs, relationshipIDs := o.graph.IngestText(chunk.Content, chunk.ID, o.cfg.Analysis.ProximityWindow)
	if len(entityIDs) > 0 {
		o.board.TrackEntities(chunk.ID, entityIDs)
	}
	if len(relationshipIDs) > 0 {
		o.board.TrackRelationships(chunk.ID, relationshipIDs)
	}

	specs := o.decomposer.DecomposeContent(chunk.Content)
	tasks := make([]blackboard.Task, 0, len(specs))
	for _, spec := range specs {
		id := o.board.AddTask(spec)
		tasks = append(tasks, blackboard.Task{ID: id, Spec: spec, Status: "pending"})
	}

	section := chunk.SectionHint
	if section == "" {
		section = document.GuessSection(chunk.Content)
	}
	if section == "" {
		section = document.SectionOther
	}

	agent := o.sections[section]
	agent.ProcessTasks(ctx, tasks, chunk)

	o.log.Debug("chunk processed",
		zap.String("chunk_id", chunk.ID),
		zap.String("section", string(section)),
		zap.Int("tasks", len(tasks)),
		zap.Int("entities", len(entityIDs)),
		zap.Int("relationships", len(relationshipIDs)))
}

// GenerateReport builds the final report from the current state without
// reprocessing chunks. Useful after resuming from a checkpoint.
func (o *Orchestrator) GenerateReport() (report.Report, error) {
	return o.finish()
}

func (o *Orchestrator) finish() (report.Report, error) {
	r, err := o.generator.Generate()
	if err != nil {
		return report.Report{}, err
	}

	if err := os.MkdirAll(o.cfg.Storage.OutputDir, 0o755); err != nil {
		return report.Report{}, fmt.Errorf("create output dir: %w", err)
	}

	summaryPath := filepath.Join(o.cfg.Storage.OutputDir, "analysis_summary.json")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return report.Report{}, fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return report.Report{}, fmt.Errorf("write report: %w", err)
	}

	if err := o.graph.Save(); err != nil {
		o.board.AddError(fmt.Sprintf("knowledge graph save failed: %v", err))
		o.log.Warn("knowledge graph save failed", zap.Error(err))
	}

	finalState := filepath.Join(o.cfg.Storage.OutputDir, "final_state.json")
	if err := o.board.SaveCheckpoint(finalState); err != nil {
		o.board.AddError(fmt.Sprintf("final checkpoint failed: %v", err))
		o.log.Warn("final checkpoint failed", zap.Error(err))
	}

	o.log.Info("analysis complete", zap.String("summary", summaryPath))
	return r, nil
}

func statsToMap(s kg.Stats) map[string]any {
	return map[string]any{
		"total_entities":       s.TotalEntities,
		"total_relationships":  s.TotalRelationships,
		"entity_types":         s.EntityTypes,
		"avg_degree":           s.AvgDegree,
		"connected_components": s.ConnectedComponents,
		"density":              s.Density,
	}
}
