package analysis

import "time"

// DefaultPresetPrompt is the shared system prompt sent with every call.
const DefaultPresetPrompt = "You are an academic writing assistant. Help split the introduction into labeled steps and provide error analysis when asked. Respond in JSON where requested."

// Config holds the analysis pipeline settings.
type Config struct {
	// StepModel segments the essay into labelled steps.
	StepModel string

	// ErrorModel scans for errors and verifies revisions.
	ErrorModel string

	// Preset is the system prompt, also prepended to every task.
	Preset string

	// Timeout bounds each step-split and error-scan call.
	Timeout time.Duration

	// VerifyTimeout bounds each verification call.
	VerifyTimeout time.Duration

	// StructuredOutput attaches JSON schemas to the error-scan and
	// verification requests.
	StructuredOutput bool
}

// DefaultConfig returns the defaults for the placeholder fine-tuned models.
func DefaultConfig() Config {
	return Config{
		StepModel:     "your-finetuned-model-1",
		ErrorModel:    "your-finetuned-model-2",
		Preset:        DefaultPresetPrompt,
		Timeout:       120 * time.Second,
		VerifyTimeout: 60 * time.Second,
	}
}
