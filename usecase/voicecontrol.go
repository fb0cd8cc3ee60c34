package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
	"github.com/cdichat/voicebridge/internal/bus"
)

// ActionCallbacks are the application-supplied hooks a voice control
// session drives. Every callback is optional; a dispatched command
// whose callback is absent is a no-op.
type ActionCallbacks struct {
	OnSendMessage        func(text string)
	OnNewConversation    func()
	OnClearChat          func()
	OnToggleRecording    func()
	OnNavigateToPage     func(page string)
	OnSelectConversation func(id string)
	OnAdjustSettings     func(setting, value string)
}

// SpeechSettings hold the per-session voice feedback configuration
type SpeechSettings struct {
	Voice             string
	Speed             float64
	Model             string
	Muted             bool
	AutoPlayResponses bool
}

const (
	minSpeechSpeed  = 0.5
	maxSpeechSpeed  = 2.0
	speechSpeedStep = 0.25
)

// VoiceControl wires chat application actions to the voice-command
// pipeline: it owns the registry, registers the default and
// chat-specific commands, mirrors hands-free state, keeps the last
// spoken response for "repeat", and triggers spoken feedback through
// the text-to-speech round trip.
type VoiceControl struct {
	session    *RecognitionSession
	registry   *CommandRegistry
	dispatcher *Dispatcher
	tts        repositories.TextToSpeech
	sink       repositories.AudioSink
	events     *bus.Bus
	callbacks  ActionCallbacks
	logger     *zap.Logger

	// OnCommandExecuted, when set, observes every successful dispatch.
	OnCommandExecuted func(cmd entities.VoiceCommand, params entities.CommandParams)

	mu           sync.Mutex
	enabled      bool
	lastResponse string
	settings     SpeechSettings
	unsubscribe  func()
}

// NewVoiceControl builds the orchestrator and registers its commands.
// The registry and dispatcher are owned by this session; nothing is
// shared across sessions.
func NewVoiceControl(
	session *RecognitionSession,
	registry *CommandRegistry,
	dispatcher *Dispatcher,
	tts repositories.TextToSpeech,
	sink repositories.AudioSink,
	events *bus.Bus,
	callbacks ActionCallbacks,
	settings SpeechSettings,
	logger *zap.Logger,
) (*VoiceControl, error) {
	if settings.Speed == 0 {
		settings.Speed = 1.0
	}

	v := &VoiceControl{
		session:    session,
		registry:   registry,
		dispatcher: dispatcher,
		tts:        tts,
		sink:       sink,
		events:     events,
		callbacks:  callbacks,
		settings:   settings,
		logger:     logger,
		enabled:    true,
	}

	dispatcher.OnExecuted = v.handleExecuted

	if err := v.registerBaseCommands(); err != nil {
		return nil, err
	}
	if err := v.registerChatCommands(); err != nil {
		return nil, err
	}

	v.unsubscribe = events.Subscribe(v.handleBusEvent)
	return v, nil
}

// registerBaseCommands registers the message, control and navigation
// commands. Registration order matters: earlier commands win on
// overlapping phrases, so the broad navigation templates go last.
func (v *VoiceControl) registerBaseCommands() error {
	commands := []entities.VoiceCommand{
		{
			Name:        "enviar_mensagem",
			Phrases:     []string{"enviar [TEXTO]", "mandar [TEXTO]"},
			Category:    entities.CategoryMessage,
			Description: "Envia uma mensagem para o chat",
			Action: func(params entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionSendMessage, Text: params["texto"]})
				return nil
			},
		},
		{
			Name:        "nova_conversa",
			Phrases:     []string{"nova conversa", "criar conversa"},
			Category:    entities.CategoryMessage,
			Description: "Inicia uma nova conversa",
			Action: func(entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionNewConversation})
				return nil
			},
		},
		{
			Name:        "limpar_chat",
			Phrases:     []string{"limpar chat", "limpar conversa", "apagar mensagens"},
			Category:    entities.CategoryMessage,
			Description: "Limpa as mensagens da conversa atual",
			Action: func(entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionClearChat})
				return nil
			},
		},
		{
			Name:        "gravar_mensagem",
			Phrases:     []string{"gravar mensagem", "gravar áudio", "parar gravação"},
			Category:    entities.CategoryControl,
			Description: "Liga ou desliga a gravação de áudio",
			Action: func(entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionToggleRecording})
				return nil
			},
		},
		{
			Name:        "desativar_maos_livres",
			Phrases:     []string{"desativar modo mãos livres", "sair do modo mãos livres", "parar de ouvir"},
			Category:    entities.CategoryControl,
			Description: "Desativa o modo mãos livres",
			Action: func(entities.CommandParams) error {
				return v.session.SetHandsFree(context.Background(), false)
			},
		},
		{
			Name:        "ativar_maos_livres",
			Phrases:     []string{"ativar modo mãos livres", "modo mãos livres"},
			Category:    entities.CategoryControl,
			Description: "Ativa o modo mãos livres",
			Action: func(entities.CommandParams) error {
				return v.session.SetHandsFree(context.Background(), true)
			},
		},
		{
			Name:        "selecionar_conversa",
			Phrases:     []string{"selecionar conversa [NUMERO]", "abrir conversa [NUMERO]"},
			Category:    entities.CategoryNavigation,
			Description: "Abre uma conversa pelo número",
			Action: func(params entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionSelectConversation, ConversationID: params["numero"]})
				return nil
			},
		},
		{
			Name:        "navegar",
			Phrases:     []string{"ir para [PAGINA]", "abrir [PAGINA]"},
			Category:    entities.CategoryNavigation,
			Description: "Navega para uma página",
			Action: func(params entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionNavigate, Page: params["pagina"]})
				return nil
			},
		},
	}

	for _, cmd := range commands {
		if err := v.registry.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// chatCommandNames are the session-specific commands removed when voice
// control is disabled.
var chatCommandNames = []string{
	"responder",
	"repetir_resposta",
	"falar_mais_rapido",
	"falar_mais_devagar",
	"mudar_voz",
	"silenciar",
	"ativar_som",
	"listar_comandos",
}

func (v *VoiceControl) registerChatCommands() error {
	commands := []entities.VoiceCommand{
		{
			Name:        "responder",
			Phrases:     []string{"responder [TEXTO]", "responda [TEXTO]"},
			Category:    entities.CategoryMessage,
			Description: "Responde com o texto ditado",
			Action: func(params entities.CommandParams) error {
				v.publish(bus.Event{Action: bus.ActionSendMessage, Text: params["texto"]})
				return nil
			},
		},
		{
			Name:        "repetir_resposta",
			Phrases:     []string{"repetir resposta", "repetir última resposta", "repetir"},
			Category:    entities.CategorySystem,
			Description: "Repete a última resposta em voz alta",
			Action: func(entities.CommandParams) error {
				v.mu.Lock()
				text := v.lastResponse
				v.mu.Unlock()
				if text == "" {
					return nil
				}
				go v.Speak(context.Background(), text)
				return nil
			},
		},
		{
			Name:        "falar_mais_rapido",
			Phrases:     []string{"falar mais rápido", "fale mais rápido"},
			Category:    entities.CategorySystem,
			Description: "Aumenta a velocidade da fala",
			Action: func(entities.CommandParams) error {
				v.adjustSpeed(speechSpeedStep)
				return nil
			},
		},
		{
			Name:        "falar_mais_devagar",
			Phrases:     []string{"falar mais devagar", "fale mais devagar"},
			Category:    entities.CategorySystem,
			Description: "Diminui a velocidade da fala",
			Action: func(entities.CommandParams) error {
				v.adjustSpeed(-speechSpeedStep)
				return nil
			},
		},
		{
			Name:        "mudar_voz",
			Phrases:     []string{"mudar voz para [VOZ]", "trocar voz para [VOZ]"},
			Category:    entities.CategorySystem,
			Description: "Troca a voz usada nas respostas",
			Action: func(params entities.CommandParams) error {
				voice := params["voz"]
				if voice == "" {
					return nil
				}
				v.mu.Lock()
				v.settings.Voice = voice
				v.mu.Unlock()
				v.publish(bus.Event{Action: bus.ActionAdjustSetting, Setting: "voice", Value: voice})
				return nil
			},
		},
		{
			Name:        "silenciar",
			Phrases:     []string{"silenciar", "ficar em silêncio", "mudo"},
			Category:    entities.CategorySystem,
			Description: "Silencia as respostas faladas",
			Action: func(entities.CommandParams) error {
				v.setMuted(true)
				return nil
			},
		},
		{
			Name:        "ativar_som",
			Phrases:     []string{"ativar som", "tirar do mudo"},
			Category:    entities.CategorySystem,
			Description: "Reativa as respostas faladas",
			Action: func(entities.CommandParams) error {
				v.setMuted(false)
				return nil
			},
		},
		{
			Name:        "listar_comandos",
			Phrases:     []string{"listar comandos", "quais comandos", "ajuda"},
			Category:    entities.CategorySystem,
			Description: "Fala os comandos disponíveis",
			Action: func(entities.CommandParams) error {
				go v.Speak(context.Background(), v.describeCommands())
				return nil
			},
		},
	}

	for _, cmd := range commands {
		if err := v.registry.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// handleExecuted runs after every successful dispatch
func (v *VoiceControl) handleExecuted(cmd entities.VoiceCommand, params entities.CommandParams) {
	v.events.Publish(bus.Event{Action: bus.ActionCommandExecuted, Value: cmd.Name})
	if v.OnCommandExecuted != nil {
		v.OnCommandExecuted(cmd, params)
	}
}

// handleBusEvent is the indirection layer: commands publish events
// instead of holding function references, and this handler routes them
// to whichever application callbacks are present.
func (v *VoiceControl) handleBusEvent(ev bus.Event) {
	switch ev.Action {
	case bus.ActionSendMessage:
		if v.callbacks.OnSendMessage != nil && ev.Text != "" {
			v.callbacks.OnSendMessage(ev.Text)
		}
	case bus.ActionNewConversation:
		if v.callbacks.OnNewConversation != nil {
			v.callbacks.OnNewConversation()
		}
	case bus.ActionClearChat:
		if v.callbacks.OnClearChat != nil {
			v.callbacks.OnClearChat()
		}
	case bus.ActionToggleRecording:
		if v.callbacks.OnToggleRecording != nil {
			v.callbacks.OnToggleRecording()
		}
	case bus.ActionNavigate:
		if v.callbacks.OnNavigateToPage != nil && ev.Page != "" {
			v.callbacks.OnNavigateToPage(ev.Page)
		}
	case bus.ActionSelectConversation:
		if v.callbacks.OnSelectConversation != nil && ev.ConversationID != "" {
			v.callbacks.OnSelectConversation(ev.ConversationID)
		}
	case bus.ActionAdjustSetting:
		if v.callbacks.OnAdjustSettings != nil {
			v.callbacks.OnAdjustSettings(ev.Setting, ev.Value)
		}
	case bus.ActionSpeak:
		if ev.Text != "" {
			go v.Speak(context.Background(), ev.Text)
		}
	}
}

func (v *VoiceControl) publish(ev bus.Event) {
	v.events.Publish(ev)
}

func (v *VoiceControl) adjustSpeed(delta float64) {
	v.mu.Lock()
	speed := v.settings.Speed + delta
	if speed < minSpeechSpeed {
		speed = minSpeechSpeed
	}
	if speed > maxSpeechSpeed {
		speed = maxSpeechSpeed
	}
	v.settings.Speed = speed
	v.mu.Unlock()

	v.publish(bus.Event{
		Action:  bus.ActionAdjustSetting,
		Setting: "speech_rate",
		Value:   fmt.Sprintf("%.2f", speed),
	})
}

func (v *VoiceControl) setMuted(muted bool) {
	v.mu.Lock()
	v.settings.Muted = muted
	v.mu.Unlock()

	value := "off"
	if muted {
		value = "on"
	}
	v.publish(bus.Event{Action: bus.ActionAdjustSetting, Setting: "muted", Value: value})
}

func (v *VoiceControl) describeCommands() string {
	var b strings.Builder
	b.WriteString("Comandos disponíveis: ")
	for i, cmd := range v.registry.Commands() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(cmd.Description)
	}
	return b.String()
}

// SetResponseForTTS records the latest assistant response. When
// hands-free mode and auto-play are both active and the session is not
// muted, playback starts immediately without blocking the caller.
func (v *VoiceControl) SetResponseForTTS(text string) {
	v.mu.Lock()
	v.lastResponse = text
	autoPlay := v.settings.AutoPlayResponses && !v.settings.Muted
	v.mu.Unlock()

	if autoPlay && v.session.HandsFree() {
		go v.Speak(context.Background(), text)
	}
}

// Speak synthesizes the text with the current voice settings and plays
// it through the audio sink. Failures are logged and never propagate.
func (v *VoiceControl) Speak(ctx context.Context, text string) {
	if text == "" || v.tts == nil || v.sink == nil {
		return
	}

	v.mu.Lock()
	if v.settings.Muted {
		v.mu.Unlock()
		return
	}
	config := repositories.VoiceConfig{
		Voice: v.settings.Voice,
		Speed: v.settings.Speed,
		Model: v.settings.Model,
	}
	v.mu.Unlock()

	audio, err := v.tts.SynthesizeSpeech(ctx, text, config)
	if err != nil {
		v.logger.Error("Speech synthesis failed", zap.Error(err))
		return
	}

	if err := v.sink.Play(ctx, audio); err != nil {
		v.logger.Error("Audio playback failed", zap.Error(err))
	}
}

// SetEnabled toggles voice control. Disabling unregisters the
// chat-specific commands; the base commands stay available.
func (v *VoiceControl) SetEnabled(enabled bool) error {
	v.mu.Lock()
	if v.enabled == enabled {
		v.mu.Unlock()
		return nil
	}
	v.enabled = enabled
	v.mu.Unlock()

	if enabled {
		return v.registerChatCommands()
	}
	for _, name := range chatCommandNames {
		v.registry.Unregister(name)
	}
	return nil
}

// Enabled reports whether voice control is active
func (v *VoiceControl) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabled
}

// Settings returns a copy of the current speech settings
func (v *VoiceControl) Settings() SpeechSettings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settings
}

// History returns the bounded command execution history
func (v *VoiceControl) History() []entities.ExecutionRecord {
	return v.dispatcher.History()
}

// Session exposes the underlying recognition session
func (v *VoiceControl) Session() *RecognitionSession {
	return v.session
}

// Commands returns the currently registered commands
func (v *VoiceControl) Commands() []entities.VoiceCommand {
	return v.registry.Commands()
}

// Close tears the session down: stops listening and detaches from the
// event bus.
func (v *VoiceControl) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
	}
	v.session.Stop()
}
