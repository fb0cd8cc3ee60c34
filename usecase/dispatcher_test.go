package usecase

import (
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
)

func TestDispatcherConfidenceGate(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	calls := 0
	cmd := testCommand("nova_conversa", "nova conversa")
	cmd.Action = func(entities.CommandParams) error {
		calls++
		return nil
	}
	if err := registry.Register(cmd); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.ProcessTranscript("nova conversa", 0.5)
	if calls != 0 {
		t.Errorf("sub-threshold transcript must not dispatch, got %d calls", calls)
	}

	d.ProcessTranscript("nova conversa", 0.9)
	if calls != 1 {
		t.Errorf("expected exactly one dispatch, got %d", calls)
	}
}

func TestDispatcherFirstRegisteredWins(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	var fired []string
	for _, name := range []string{"primeiro", "segundo"} {
		name := name
		cmd := testCommand(name, "limpar chat")
		cmd.Action = func(entities.CommandParams) error {
			fired = append(fired, name)
			return nil
		}
		if err := registry.Register(cmd); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	d.ProcessTranscript("limpar chat", 0.9)

	if len(fired) != 1 || fired[0] != "primeiro" {
		t.Errorf("expected only the earlier-registered command to fire, got %v", fired)
	}
}

func TestDispatcherBoundedHistory(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	for i := 0; i < 15; i++ {
		name := fmt.Sprintf("comando_%d", i)
		cmd := testCommand(name, fmt.Sprintf("frase numero %d", i))
		if err := registry.Register(cmd); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	for i := 0; i < 15; i++ {
		d.ProcessTranscript(fmt.Sprintf("frase numero %d", i), 0.9)
	}

	history := d.History()
	if len(history) != 10 {
		t.Fatalf("expected history capped at 10, got %d", len(history))
	}

	// Most recent first: commands 14 down to 5.
	for i, record := range history {
		want := fmt.Sprintf("comando_%d", 14-i)
		if record.CommandName != want {
			t.Errorf("history[%d] = %s, want %s", i, record.CommandName, want)
		}
	}
}

func TestDispatcherActionErrorIsolation(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	panicking := testCommand("explosivo", "explodir agora")
	panicking.Action = func(entities.CommandParams) error {
		panic("boom")
	}
	if err := registry.Register(panicking); err != nil {
		t.Fatalf("register: %v", err)
	}

	calls := 0
	healthy := testCommand("saudavel", "nova conversa")
	healthy.Action = func(entities.CommandParams) error {
		calls++
		return nil
	}
	if err := registry.Register(healthy); err != nil {
		t.Fatalf("register: %v", err)
	}

	// A panicking action must not escape ProcessTranscript.
	d.ProcessTranscript("explodir agora", 0.9)

	// And a later unrelated transcript must still dispatch.
	d.ProcessTranscript("nova conversa", 0.9)
	if calls != 1 {
		t.Errorf("expected healthy command to dispatch after a panicking one, got %d calls", calls)
	}

	// The failed dispatch still counts as executed.
	history := d.History()
	if len(history) != 2 || history[1].CommandName != "explosivo" {
		t.Errorf("unexpected history: %v", history)
	}
}

func TestDispatcherNoMatchNoEffect(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	calls := 0
	cmd := testCommand("nova_conversa", "nova conversa")
	cmd.Action = func(entities.CommandParams) error {
		calls++
		return nil
	}
	if err := registry.Register(cmd); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.ProcessTranscript("qual a previsão do tempo amanhã", 0.95)

	if calls != 0 {
		t.Errorf("expected zero action invocations, got %d", calls)
	}
	if len(d.History()) != 0 {
		t.Error("no-match transcript must not touch the history")
	}
}

func TestDispatcherParameterForwarding(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	var got string
	cmd := testCommand("enviar", "enviar [TEXTO]")
	cmd.Action = func(params entities.CommandParams) error {
		got = params["texto"]
		return nil
	}
	if err := registry.Register(cmd); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.ProcessTranscript("quero enviar oi para o chat", 0.9)

	if got != "oi para o chat" {
		t.Errorf("expected parameter 'oi para o chat', got %q", got)
	}
}

func TestDispatcherOnExecutedNotification(t *testing.T) {
	registry := NewCommandRegistry()
	d := NewDispatcher(registry, zap.NewNop())

	if err := registry.Register(testCommand("nova_conversa", "nova conversa")); err != nil {
		t.Fatalf("register: %v", err)
	}

	var executed string
	d.OnExecuted = func(cmd entities.VoiceCommand, _ entities.CommandParams) {
		executed = cmd.Name
	}

	d.ProcessTranscript("nova conversa", 0.9)

	if executed != "nova_conversa" {
		t.Errorf("expected executed notification for nova_conversa, got %q", executed)
	}
}
