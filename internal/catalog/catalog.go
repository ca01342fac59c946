package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"capstan/internal/statusdoc"
)

// Kind identifies one of the remotely triggerable pipeline workflows.
type Kind string

const (
	KindDownload    Kind = "download"
	KindTranscribe  Kind = "transcribe"
	KindSplit       Kind = "split"
	KindTranslateAr Kind = "translate-ar"
	KindTranslateTr Kind = "translate-tr"
	KindDelete      Kind = "delete"
	KindResetStep   Kind = "reset-step"
)

// Reset targets accepted by the reset-step workflow.
var resetSteps = map[string]bool{
	"download":        true,
	"transcription":   true,
	"split":           true,
	"translations.ar": true,
	"translations.tr": true,
}

// Workflow describes one dispatchable workflow: its remote event type, a
// human label, how to build its client payload, and an advisory eligibility
// predicate over the target's current status. The server side remains the
// authority; a workflow triggered despite being "ineligible" simply re-runs.
type Workflow struct {
	Kind     Kind
	Event    string
	Label    string
	Language string

	eligible func(*statusdoc.Video) bool
}

// Eligible reports whether triggering this workflow for the target makes
// sense right now. A nil target means the video is not in the status document
// yet; only download applies then.
func (w Workflow) Eligible(target *statusdoc.Video) bool {
	if target == nil {
		return w.Kind == KindDownload
	}
	return w.eligible(target)
}

// BuildPayload assembles the client_payload for a dispatch. requestedBy is
// injected unless an override already supplies one; overrides win over every
// derived field.
func (w Workflow) BuildPayload(videoID, requestedBy string, target *statusdoc.Video, overrides map[string]any) (map[string]any, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, fmt.Errorf("%s: video id is required", w.Kind)
	}

	payload := map[string]any{
		"videoId":     videoID,
		"requestedBy": requestedBy,
	}

	switch w.Kind {
	case KindDownload:
		if target != nil {
			if target.SourceURL != "" {
				payload["sourceUrl"] = target.SourceURL
			}
			if target.ChannelID != "" {
				payload["channelId"] = target.ChannelID
			}
		}
	case KindTranslateAr, KindTranslateTr:
		payload["language"] = w.Language
	case KindResetStep:
		step, _ := overrides["resetStep"].(string)
		if !resetSteps[step] {
			return nil, fmt.Errorf("reset-step: unknown step %q", step)
		}
	}

	for key, value := range overrides {
		payload[key] = value
	}

	if w.Kind == KindDownload {
		if source, _ := payload["sourceUrl"].(string); strings.TrimSpace(source) == "" {
			return nil, fmt.Errorf("download: sourceUrl is required for %s", videoID)
		}
	}

	return payload, nil
}

var workflows = []Workflow{
	{
		Kind:  KindDownload,
		Event: "download",
		Label: "Download",
		eligible: func(v *statusdoc.Video) bool {
			return !v.Download.Completed()
		},
	},
	{
		Kind:  KindTranscribe,
		Event: "transcribe",
		Label: "Transcribe",
		eligible: func(v *statusdoc.Video) bool {
			return v.Download.Completed() && !v.Transcription.Completed()
		},
	},
	{
		Kind:  KindSplit,
		Event: "split",
		Label: "Split",
		eligible: func(v *statusdoc.Video) bool {
			return v.Transcription.Completed() && !v.Split.Completed()
		},
	},
	{
		Kind:     KindTranslateAr,
		Event:    "translate-ar",
		Label:    translateLabel("ar"),
		Language: "ar",
		eligible: translationEligible("ar"),
	},
	{
		Kind:     KindTranslateTr,
		Event:    "translate-tr",
		Label:    translateLabel("tr"),
		Language: "tr",
		eligible: translationEligible("tr"),
	},
	{
		Kind:  KindDelete,
		Event: "delete",
		Label: "Delete artifacts",
		eligible: func(v *statusdoc.Video) bool {
			return v.HasArtifacts()
		},
	},
	{
		Kind:  KindResetStep,
		Event: "reset-step",
		Label: "Reset step",
		eligible: func(v *statusdoc.Video) bool {
			return true
		},
	},
}

func translationEligible(lang string) func(*statusdoc.Video) bool {
	return func(v *statusdoc.Video) bool {
		if !v.Split.Completed() {
			return false
		}
		step, ok := v.Translation(lang)
		return !ok || !step.Completed()
	}
}

func translateLabel(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return "Translate (" + lang + ")"
	}
	return fmt.Sprintf("Translate (%s)", display.English.Languages().Name(tag))
}

// Lookup resolves a workflow kind. The kind set is closed; unknown kinds are
// rejected rather than forwarded to the dispatch endpoint.
func Lookup(kind Kind) (Workflow, bool) {
	for _, w := range workflows {
		if w.Kind == kind {
			return w, true
		}
	}
	return Workflow{}, false
}

// Parse converts user input to a workflow kind.
func Parse(value string) (Workflow, error) {
	w, ok := Lookup(Kind(strings.ToLower(strings.TrimSpace(value))))
	if !ok {
		return Workflow{}, fmt.Errorf("unknown workflow %q (expected one of %s)", value, KindNames())
	}
	return w, nil
}

// All returns every workflow in catalog order.
func All() []Workflow {
	out := make([]Workflow, len(workflows))
	copy(out, workflows)
	return out
}

// KindNames returns the comma-separated list of valid workflow kinds.
func KindNames() string {
	names := make([]string, 0, len(workflows))
	for _, w := range workflows {
		names = append(names, string(w.Kind))
	}
	return strings.Join(names, ", ")
}
