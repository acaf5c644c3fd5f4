package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/extraction"
	"github.com/dvloznov/receipt-tracker/internal/imagestore"
)

// PipelineStep represents a single step in the receipt scan pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps for one image.
type PipelineState struct {
	URI              string
	FallbackCurrency string

	Image     imagestore.Image
	RawOutput string
	Expense   domain.Expense
}

// FetchImageStep loads the image bytes.
type FetchImageStep struct {
	Source imagestore.Source
}

func (s *FetchImageStep) Execute(ctx context.Context, state *PipelineState) error {
	img, err := s.Source.Fetch(ctx, state.URI)
	if err != nil {
		return err
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("FetchImageStep: %s is empty", state.URI)
	}
	state.Image = img
	return nil
}

// AnalyzeStep asks the vision model to read the receipt.
type AnalyzeStep struct {
	Analyzer ReceiptAnalyzer
	Prompt   string
}

func (s *AnalyzeStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.Analyzer.Analyze(ctx, s.Prompt, state.Image.MIMEType, state.Image.Data)
	if err != nil {
		return err
	}
	state.RawOutput = raw
	return nil
}

// NormalizeStep turns the raw answer into an expense. It never fails.
type NormalizeStep struct {
	Normalizer *extraction.Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Expense = s.Normalizer.Normalize(state.RawOutput, state.FallbackCurrency)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially, stopping at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d not started: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewReceiptScanPipeline creates the standard three-step pipeline for one receipt image.
func NewReceiptScanPipeline(source imagestore.Source, analyzer ReceiptAnalyzer, prompt string, normalizer *extraction.Normalizer) *Pipeline {
	return NewPipeline(
		&FetchImageStep{Source: source},
		&AnalyzeStep{Analyzer: analyzer, Prompt: prompt},
		&NormalizeStep{Normalizer: normalizer},
	)
}
