package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupInstallsContextDefault(t *testing.T) {
	prevGlobal, prevDefault := log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = prevGlobal
		zerolog.DefaultContextLogger = prevDefault
	})

	var buf bytes.Buffer
	SetupWriter(&buf, "api", "warn")

	log.Ctx(context.Background()).Info().Msg("dropped")
	log.Ctx(context.Background()).Warn().Str("doc", "a.pdf").Msg("kept")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "api" || entry["message"] != "kept" || entry["doc"] != "a.pdf" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
