// Package analysis runs the two-stage essay analysis (step split, then
// error scan) and verifies student revisions against the error model.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/llm"
	"github.com/abhisek/redpen/internal/modelout"
)

// Stage names a model call in the pipeline.
type Stage string

const (
	StageStepSplit Stage = llm.PurposeStepSplit
	StageErrorScan Stage = llm.PurposeErrorScan
	StageVerifyFix Stage = llm.PurposeVerifyFix
)

// StageError reports a failed model call. Outputs of earlier stages stay
// on the ledger.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Completer is the model boundary. *llm.Gateway implements it.
type Completer interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
	CompleteJSON(ctx context.Context, model, system, user string, schema *llm.Schema) (string, error)
}

// Result summarises one analysis run.
type Result struct {
	// Steps is the parsed step list, when the step output was JSON.
	Steps       []modelout.Step
	StepsParsed bool

	Findings []ledger.Finding

	// FindingsParsed is false when the error output held no usable list;
	// Findings is then empty and the raw output is on the ledger.
	FindingsParsed bool
}

// Analyzer runs analysis and verification calls.
type Analyzer struct {
	gw  Completer
	cfg Config
}

// New creates an Analyzer. Zero-valued config fields take their defaults.
func New(gw Completer, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.StepModel == "" {
		cfg.StepModel = def.StepModel
	}
	if cfg.ErrorModel == "" {
		cfg.ErrorModel = def.ErrorModel
	}
	if cfg.Preset == "" {
		cfg.Preset = def.Preset
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = def.VerifyTimeout
	}
	return &Analyzer{gw: gw, cfg: cfg}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Run sends the ledger's original text through the step-split and
// error-scan models, storing both raw outputs and ingesting the parsed
// findings. Unparsable error output ingests an empty list and is not an
// error.
func (a *Analyzer) Run(ctx context.Context, l *ledger.Ledger) (*Result, error) {
	res := &Result{}

	prompt, err := render(stepSplitTemplate, stepSplitInput{Preset: a.cfg.Preset, Text: l.OriginalText()})
	if err != nil {
		return nil, fmt.Errorf("build step-split prompt: %w", err)
	}
	stepOut, err := a.call(ctx, StageStepSplit, a.cfg.Timeout, a.cfg.StepModel, prompt, nil)
	if err != nil {
		return nil, err
	}
	l.SetStepOutput(stepOut)
	res.Steps, res.StepsParsed = modelout.Steps(stepOut)

	prompt, err = render(errorScanTemplate, errorScanInput{Preset: a.cfg.Preset, Steps: stepOut})
	if err != nil {
		return nil, fmt.Errorf("build error-scan prompt: %w", err)
	}
	var schema *llm.Schema
	if a.cfg.StructuredOutput {
		schema = FindingsSchema
	}
	errOut, err := a.call(ctx, StageErrorScan, a.cfg.Timeout, a.cfg.ErrorModel, prompt, schema)
	if err != nil {
		return res, err
	}
	l.SetErrorOutput(errOut)

	res.Findings, res.FindingsParsed = modelout.Findings(errOut)
	if !res.FindingsParsed {
		slog.Warn("error scan output is not a finding list", "session", l.ID(), "bytes", len(errOut))
	}
	l.IngestFindings(res.Findings)

	slog.Info("analysis complete", "session", l.ID(), "findings", len(res.Findings), "steps", len(res.Steps))
	return res, nil
}

// Verify asks the error model whether revised fixes f. It never fails: a
// model call error yields FixedError with the error text, and output that
// is not a verdict yields FixedUnknown with the raw output.
func (a *Analyzer) Verify(ctx context.Context, f ledger.Finding, revised string) ledger.VerifyResult {
	prompt, err := render(verifyTemplate, verifyInput{
		Preset:  a.cfg.Preset,
		Excerpt: f.Excerpt,
		Revised: revised,
		Name:    f.Name,
	})
	if err != nil {
		return ledger.VerifyResult{Fixed: ledger.FixedError, Comment: err.Error()}
	}

	var schema *llm.Schema
	if a.cfg.StructuredOutput {
		schema = VerdictSchema
	}
	out, err := a.call(ctx, StageVerifyFix, a.cfg.VerifyTimeout, a.cfg.ErrorModel, prompt, schema)
	if err != nil {
		slog.Warn("verification failed", "finding", f.Name, "error", err)
		return ledger.VerifyResult{Fixed: ledger.FixedError, Comment: err.Error()}
	}
	return modelout.Verdict(out)
}

func (a *Analyzer) call(ctx context.Context, stage Stage, timeout time.Duration, model, prompt string, schema *llm.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(llm.WithPurpose(ctx, string(stage)), timeout)
	defer cancel()

	var (
		out string
		err error
	)
	if schema != nil {
		out, err = a.gw.CompleteJSON(ctx, model, a.cfg.Preset, prompt, schema)
	} else {
		out, err = a.gw.Complete(ctx, model, a.cfg.Preset, prompt)
	}
	if err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	return out, nil
}
