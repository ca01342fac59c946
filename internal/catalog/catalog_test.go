package catalog

import (
	"strings"
	"testing"

	"capstan/internal/statusdoc"
)

func videoWith(mutate func(*statusdoc.Video)) *statusdoc.Video {
	v := &statusdoc.Video{
		ID:           "vid-1",
		SourceURL:    "https://youtube.com/watch?v=vid-1",
		ChannelID:    "chan-9",
		Translations: map[string]statusdoc.Step{},
	}
	if mutate != nil {
		mutate(v)
	}
	return v
}

func completed() statusdoc.Step {
	return statusdoc.Step{Status: statusdoc.StepCompleted}
}

func TestParseRejectsUnknownKind(t *testing.T) {
	if _, err := Parse("encode"); err == nil || !strings.Contains(err.Error(), "unknown workflow") {
		t.Fatalf("expected unknown workflow error, got %v", err)
	}
}

func TestParseNormalizesInput(t *testing.T) {
	w, err := Parse(" Translate-AR ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.Kind != KindTranslateAr || w.Event != "translate-ar" {
		t.Fatalf("unexpected workflow: %+v", w)
	}
}

func TestTranslatePayloadCarriesLanguage(t *testing.T) {
	w, _ := Lookup(KindTranslateAr)
	payload, err := w.BuildPayload("vid-1", "alice", videoWith(nil), nil)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if payload["language"] != "ar" {
		t.Fatalf("expected language ar, got %#v", payload["language"])
	}
	if payload["videoId"] != "vid-1" || payload["requestedBy"] != "alice" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestDownloadPayloadNeverCarriesLanguage(t *testing.T) {
	w, _ := Lookup(KindDownload)
	payload, err := w.BuildPayload("vid-1", "alice", videoWith(nil), nil)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if _, ok := payload["language"]; ok {
		t.Fatalf("download payload must not carry language: %#v", payload)
	}
	if payload["sourceUrl"] != "https://youtube.com/watch?v=vid-1" {
		t.Fatalf("expected sourceUrl from status document, got %#v", payload["sourceUrl"])
	}
	if payload["channelId"] != "chan-9" {
		t.Fatalf("expected channelId from status document, got %#v", payload["channelId"])
	}
}

func TestDownloadPayloadRequiresSourceURL(t *testing.T) {
	w, _ := Lookup(KindDownload)
	if _, err := w.BuildPayload("vid-new", "alice", nil, nil); err == nil {
		t.Fatal("expected sourceUrl requirement for unknown video")
	}

	payload, err := w.BuildPayload("vid-new", "alice", nil, map[string]any{
		"sourceUrl": "https://youtube.com/watch?v=vid-new",
	})
	if err != nil {
		t.Fatalf("build payload with override: %v", err)
	}
	if payload["sourceUrl"] != "https://youtube.com/watch?v=vid-new" {
		t.Fatalf("override not applied: %#v", payload)
	}
}

func TestOverridesWinOverInjectedActor(t *testing.T) {
	w, _ := Lookup(KindTranscribe)
	payload, err := w.BuildPayload("vid-1", "alice", videoWith(nil), map[string]any{
		"requestedBy": "automation-bot",
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if payload["requestedBy"] != "automation-bot" {
		t.Fatalf("override should win: %#v", payload)
	}
}

func TestResetStepValidatesTarget(t *testing.T) {
	w, _ := Lookup(KindResetStep)
	if _, err := w.BuildPayload("vid-1", "alice", videoWith(nil), map[string]any{"resetStep": "encode"}); err == nil {
		t.Fatal("expected unknown step error")
	}

	payload, err := w.BuildPayload("vid-1", "alice", videoWith(nil), map[string]any{"resetStep": "translations.ar"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if payload["resetStep"] != "translations.ar" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestEligibilityChain(t *testing.T) {
	fresh := videoWith(nil)
	downloaded := videoWith(func(v *statusdoc.Video) { v.Download = completed() })
	transcribed := videoWith(func(v *statusdoc.Video) {
		v.Download = completed()
		v.Transcription = completed()
	})
	split := videoWith(func(v *statusdoc.Video) {
		v.Download = completed()
		v.Transcription = completed()
		v.Split.Step = completed()
	})
	translated := videoWith(func(v *statusdoc.Video) {
		v.Download = completed()
		v.Transcription = completed()
		v.Split.Step = completed()
		v.Translations["ar"] = completed()
	})

	cases := []struct {
		kind   Kind
		target *statusdoc.Video
		want   bool
	}{
		{KindDownload, fresh, true},
		{KindDownload, downloaded, false},
		{KindDownload, nil, true},
		{KindTranscribe, fresh, false},
		{KindTranscribe, downloaded, true},
		{KindTranscribe, transcribed, false},
		{KindSplit, downloaded, false},
		{KindSplit, transcribed, true},
		{KindSplit, split, false},
		{KindTranslateAr, transcribed, false},
		{KindTranslateAr, split, true},
		{KindTranslateAr, translated, false},
		{KindTranslateTr, translated, true},
		{KindDelete, fresh, false},
		{KindDelete, downloaded, true},
		{KindResetStep, fresh, true},
	}
	for _, tc := range cases {
		w, ok := Lookup(tc.kind)
		if !ok {
			t.Fatalf("missing workflow %s", tc.kind)
		}
		if got := w.Eligible(tc.target); got != tc.want {
			t.Errorf("%s eligibility = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestTranslateLabelsUseDisplayNames(t *testing.T) {
	ar, _ := Lookup(KindTranslateAr)
	if ar.Label != "Translate (Arabic)" {
		t.Fatalf("unexpected label %q", ar.Label)
	}
	tr, _ := Lookup(KindTranslateTr)
	if tr.Label != "Translate (Turkish)" {
		t.Fatalf("unexpected label %q", tr.Label)
	}
}

func TestAllIsCopy(t *testing.T) {
	list := All()
	list[0].Event = "mutated"
	if w, _ := Lookup(KindDownload); w.Event != "download" {
		t.Fatal("All must return a copy")
	}
}
