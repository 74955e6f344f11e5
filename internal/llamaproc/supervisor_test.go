package llamaproc

import (
	"context"
	"testing"
	"time"

	"modeld/pkg/types"
)

func TestSupervisorStartIsIdempotentAndHealthy(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	dir := buildFakeInstallation(t)
	inst, err := DetectInstallation(dir)
	if err != nil || inst == nil {
		t.Fatalf("DetectInstallation: inst=%v err=%v", inst, err)
	}

	sup := NewSupervisor(inst, types.ServerConfig{ModelPath: "fake.gguf"})
	sup.LogWriter = discardWriter{}
	defer func() { _ = sup.Stop(true) }()

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
	if sup.Status() != StatusRunning {
		t.Fatalf("expected status running, got %s", sup.Status())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := NewCompletionClient(sup.BaseURL())
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	dir := buildFakeInstallation(t)
	inst, err := DetectInstallation(dir)
	if err != nil || inst == nil {
		t.Fatalf("DetectInstallation: inst=%v err=%v", inst, err)
	}

	sup := NewSupervisor(inst, types.ServerConfig{ModelPath: "fake.gguf"})
	sup.LogWriter = discardWriter{}
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Stop(false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sup.Stop(false); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
	if sup.Status() != StatusAbsent {
		t.Fatalf("expected status absent after stop, got %s", sup.Status())
	}
}

func TestSupervisorStartRequiresModelPath(t *testing.T) {
	sup := NewSupervisor(&Installation{}, types.ServerConfig{})
	err := sup.Start()
	if err == nil {
		t.Fatalf("expected an error for missing modelPath")
	}
	if KindOf(err) != KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", KindOf(err))
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
