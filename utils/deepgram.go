package utils

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

// DeepgramConfig configures live speech to text for the user's microphone.
type DeepgramConfig struct {
	APIKey   string
	Language string
	UseNova3 bool

	// UtteranceEndMs enables utterance-end events when positive.
	UtteranceEndMs      int
	ConfidenceThreshold float64

	Encoding   string
	SampleRate int
}

func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		Language:            "en",
		UseNova3:            true,
		ConfidenceThreshold: 0.3,
		Encoding:            "linear16",
		SampleRate:          16000,
	}
}

type DeepgramCallback struct {
	TranscriptionChannel    chan string
	InterimChannel          chan string
	useDeepgramUtteranceEnd bool
	confidenceThreshold     float64

	lang                string
	totalAudioBytesSent atomic.Int64
}

type DeepgramClient struct {
	dgClient *listen.WSCallback
	callback *DeepgramCallback
}

func NewDeepgramCallback(lang string, confidenceThreshold float64, useUtteranceEnd bool, transcriptionCh, interimCh chan string) *DeepgramCallback {
	return &DeepgramCallback{
		TranscriptionChannel:    transcriptionCh,
		InterimChannel:          interimCh,
		useDeepgramUtteranceEnd: useUtteranceEnd,
		confidenceThreshold:     confidenceThreshold,
		lang:                    lang,
	}
}

// InitDeepgramClient prepares a live transcription socket. Final sentences
// and END_OF_SPEECH markers are sent on transcriptionCh; interimCh may be nil.
func InitDeepgramClient(cfg DeepgramConfig, transcriptionCh, interimCh chan string) (*DeepgramClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if apiKey == "" {
		log.Error("DEEPGRAM_API_KEY environment variable not set")
		return nil, errors.New("deepgram api key is not configured")
	}

	model := "nova-3"
	if !cfg.UseNova3 {
		model = "nova-2"
	}

	ctx := context.Background()
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Language:       cfg.Language,
		Encoding:       cfg.Encoding,
		SampleRate:     cfg.SampleRate,
		Channels:       1,
		Endpointing:    "100",
		InterimResults: true,
		FillerWords:    true,
		Model:          model,
	}

	// the dashboard is bilingual; nova-3 handles Arabic through the multilingual model
	if cfg.Language != "en" && model == "nova-3" {
		log.Warn("Using multilingual model for non-English language on Nova 3: ", cfg.Language)
		transcriptOptions.Language = "multi"
	}

	useUtteranceEnd := cfg.UtteranceEndMs > 0
	if useUtteranceEnd {
		transcriptOptions.UtteranceEndMs = strconv.Itoa(cfg.UtteranceEndMs)
	}

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	log.Info("Confidence threshold: ", cfg.ConfidenceThreshold)
	callback := NewDeepgramCallback(cfg.Language, cfg.ConfidenceThreshold, useUtteranceEnd, transcriptionCh, interimCh)

	dgClient, err := listen.NewWebSocketUsingCallback(ctx, apiKey, clientOptions, transcriptOptions, callback)
	if err != nil {
		log.Error("ERROR creating LiveTranscription connection: ", err)
		return nil, err
	}

	return &DeepgramClient{
		dgClient: dgClient,
		callback: callback,
	}, nil
}

func (d *DeepgramClient) Connect() error {
	if !d.dgClient.Connect() {
		log.Error("ERROR: Failed to connect to Deepgram WebSocket")
		return errors.New("failed to connect to deepgram")
	}
	return nil
}

func (d *DeepgramClient) Send(data []byte) error {
	reader := bufio.NewReader(bytes.NewReader(data))
	err := d.dgClient.Stream(reader)
	if err != nil && err != io.EOF {
		log.Error("Error streaming to Deepgram: ", err)
		return err
	}
	d.callback.recordSent(len(data))
	return nil
}

// BytesSent is safe to call while audio is streaming.
func (d *DeepgramClient) BytesSent() int64 {
	return d.callback.totalAudioBytesSent.Load()
}

func (c *DeepgramCallback) recordSent(n int) {
	c.totalAudioBytesSent.Add(int64(n))
}

func (d *DeepgramClient) Close() {
	d.dgClient.Stop()
}

func (c *DeepgramCallback) Open(or *msginterfaces.OpenResponse) error {
	log.Info("Deepgram socket connection opened")
	return nil
}

func (c *DeepgramCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		log.Warn("No transcription alternatives provided")
		return nil
	}

	alternative := mr.Channel.Alternatives[0]
	c.handleAlternative(alternative.Transcript, alternative.Confidence, mr.IsFinal, mr.SpeechFinal)
	return nil
}

func (c *DeepgramCallback) handleAlternative(transcript string, confidence float64, isFinal, speechFinal bool) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}

	if confidence < c.confidenceThreshold {
		log.Debug("Discarding low confidence transcript: ", transcript)
		return
	}

	if isFinal {
		log.Debug("Final word of a sentence received: ", transcript)
		c.emit(c.TranscriptionChannel, transcript)
	} else {
		log.Debug("Interim transcript: ", transcript)
		c.emit(c.InterimChannel, transcript)
	}

	if !c.useDeepgramUtteranceEnd && speechFinal {
		log.Debug("Speech final")
		c.emit(c.TranscriptionChannel, models.END_OF_SPEECH)
	}
}

func (c *DeepgramCallback) emit(ch chan string, msg string) {
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
		log.Warn("Transcript channel full, dropping: ", msg)
	}
}

func (c *DeepgramCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	log.Debug("Received metadata: ", md)
	return nil
}

func (c *DeepgramCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	log.Debug("Speech started")
	return nil
}

func (c *DeepgramCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	log.Debug("Utterance ended")
	c.emit(c.TranscriptionChannel, models.END_OF_SPEECH)
	return nil
}

func (c *DeepgramCallback) Close(cr *msginterfaces.CloseResponse) error {
	log.Info("WebSocket connection closed")
	return nil
}

func (c *DeepgramCallback) Error(er *msginterfaces.ErrorResponse) error {
	log.Error("WebSocket error: ", er)
	return nil
}

func (c *DeepgramCallback) UnhandledEvent(byData []byte) error {
	log.Warn("Unhandled event: ", string(byData))
	return nil
}
