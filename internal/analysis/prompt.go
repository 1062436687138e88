package analysis

import (
	"bytes"
	"text/template"
)

// Each task prompt repeats the preset ahead of the task, matching the
// format the fine-tuned models were trained on.

var stepSplitTemplate = template.Must(template.New("step-split").Parse(`{{.Preset}}

TASK: split the following text into labelled steps and return a JSON with the fields 'steps' (list of {label, text}).

TEXT:
{{.Text}}`))

var errorScanTemplate = template.Must(template.New("error-scan").Parse(`{{.Preset}}

TASK: Given the following steps (JSON or plain) identify 19 possible writing errors. Return a JSON array of 19 objects, each with keys: name (string), status ('yes' or 'no'), location (string or indices), excerpt (text snippet), explanation (why this is an error in this student's writing), suggestion (concrete edit suggestion). Use [] if none.

INPUT_STEPS:
{{.Steps}}`))

var verifyTemplate = template.Must(template.New("verify-fix").Parse(`{{.Preset}}

TASK: Judge whether the following revised excerpt fixes the target error. Return JSON with {fixed: 'yes'/'no', comment: string}.

ORIGINAL_EXCERPT:
{{.Excerpt}}

REVISED_EXCERPT:
{{.Revised}}

ERROR_NAME:
{{.Name}}`))

type stepSplitInput struct {
	Preset string
	Text   string
}

type errorScanInput struct {
	Preset string
	Steps  string
}

type verifyInput struct {
	Preset  string
	Excerpt string
	Revised string
	Name    string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
