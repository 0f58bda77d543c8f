package cli

import (
	"testing"

	"live-quiz-service/internal/config"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"start", "migrate", "import"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	cfg := config.Config{}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "console"
	logger, err := newLogger(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("debug must be disabled at warn level")
	}

	cfg.Log.Level = "loud"
	if _, err := newLogger(cfg); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSampleQuizzesAreValid(t *testing.T) {
	for id, quiz := range sampleQuizzes() {
		if err := quiz.Validate(); err != nil {
			t.Fatalf("sample quiz %s invalid: %v", id, err)
		}
	}
}
