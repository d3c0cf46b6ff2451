package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.InfoLevel)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()

	if Level(true) != zerolog.DebugLevel || Level(false) != zerolog.InfoLevel {
		t.Fatalf("Level mapping wrong")
	}
}

func TestWithRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, id := WithRunID(NewWithWriter(&buf, zerolog.InfoLevel))
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}
	log.Info().Msg("x")
	if !strings.Contains(buf.String(), `"run_id":"`+id+`"`) {
		t.Fatalf("run_id missing from %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithContext(context.Background(), NewWithWriter(&buf, zerolog.InfoLevel))
	l := FromContext(ctx)
	l.Info().Msg("from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("expected output from context logger, got %q", buf.String())
	}

	nop := FromContext(context.Background())
	if nop.GetLevel() != zerolog.Disabled {
		t.Fatalf("default logger level=%v, want disabled", nop.GetLevel())
	}
}
