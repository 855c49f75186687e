// handlers/audio_handler.go

package handlers

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/utils"
)

// AudioSink receives raw microphone audio.
type AudioSink interface {
	Send(data []byte) error
	Close()
}

type AudioHandler struct {
	session         *VoiceSession
	sink            AudioSink
	transcriptionCh chan string
	interimCh       chan string

	currentTranscript string

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

func InitAudioHandler(session *VoiceSession, cfg utils.DeepgramConfig) (*AudioHandler, error) {
	session.Logger.Info("Initializing Audio Handler...")

	transcriptionCh := make(chan string, 100)
	interimCh := make(chan string, 100)

	deepgramClient, err := utils.InitDeepgramClient(cfg, transcriptionCh, interimCh)
	if err != nil {
		return nil, err
	}

	// Connect to Deepgram
	if err := deepgramClient.Connect(); err != nil {
		return nil, err
	}

	session.Logger.Info("Audio Handler initialized and connected to Deepgram")
	return newAudioHandler(session, deepgramClient, transcriptionCh, interimCh), nil
}

func newAudioHandler(session *VoiceSession, sink AudioSink, transcriptionCh, interimCh chan string) *AudioHandler {
	h := &AudioHandler{
		session:         session,
		sink:            sink,
		transcriptionCh: transcriptionCh,
		interimCh:       interimCh,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}

	// Start the handler goroutine to listen for SESSION_END
	go h.handleTranscript()

	return h
}

func (h *AudioHandler) handleTranscript() {
	defer close(h.stopped)

	for {
		select {
		case <-h.done:
			return

		case transcript := <-h.interimCh:
			h.session.sendSessionEvent("transcript_interim", map[string]string{
				"transcript": strings.TrimSpace(h.currentTranscript + transcript),
			})

		case transcript := <-h.transcriptionCh:
			if transcript == models.SESSION_END {
				h.session.Logger.Info("Audio handler received SESSION_END")
				return
			}

			h.session.Logger.Debug("Received transcript", zap.String("transcript", transcript))

			if transcript == models.END_OF_SPEECH {
				h.finishUtterance()
				continue
			}

			// Accumulate transcript (filter out empty/whitespace)
			if strings.TrimSpace(transcript) != "" {
				h.currentTranscript += transcript + " "
			}
		}
	}
}

func (h *AudioHandler) finishUtterance() {
	utterance := strings.TrimSpace(h.currentTranscript)
	h.currentTranscript = ""
	if utterance == "" {
		return
	}

	h.session.Logger.Info("End of speech detected, recording user turn", zap.String("transcript", utterance))
	h.session.Pipeline.AddUserMessage(utterance)
	h.session.sendSessionEvent("transcript_final", map[string]string{
		"transcript": utterance,
	})
}

// ProcessAudioData sends audio data directly to speech to text
func (h *AudioHandler) ProcessAudioData(audioData []byte) error {
	err := h.sink.Send(audioData)
	if err != nil {
		h.session.Logger.Error("Failed to send audio data to Deepgram", zap.Error(err))
		return err
	}

	return nil
}

func (h *AudioHandler) Close() {
	h.closeOnce.Do(func() {
		h.session.Logger.Info("Closing Audio Handler")
		close(h.done)
		<-h.stopped

		if h.sink != nil {
			h.sink.Close()
		}
	})
}
