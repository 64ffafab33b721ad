package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	// LiveAPIKey authenticates against the hosted voice session endpoint.
	LiveAPIKey string
	// LiveModel names the hosted voice model to connect to.
	LiveModel string
	// LiveEndpoint overrides the default websocket endpoint (tests, proxies).
	LiveEndpoint string
	// CatalogPath points at the store catalog JSON file.
	CatalogPath string
	// TuningPath optionally points at a YAML file overriding Tuning defaults.
	TuningPath string

	Tuning Tuning
}

// Tuning collects the real-time constants of the audio and session pipelines.
// None of these are invariants; they are starting points tuned on real kiosks.
type Tuning struct {
	// Capture side, 16 kHz mono PCM16.
	CaptureRate     int `yaml:"capture_rate"`
	FrameMs         int `yaml:"frame_ms"`
	BatchFrames     int `yaml:"batch_frames"`
	SilenceRMS      int `yaml:"silence_rms"`
	SpeechRMS       int `yaml:"speech_rms"`
	SilenceCommitMs int `yaml:"silence_commit_ms"`
	SpeechConfirm   int `yaml:"speech_confirm_batches"`
	PartialFlushMs  int `yaml:"partial_flush_ms"`
	DeviceRate      int `yaml:"device_rate"`

	// Playback side, 24 kHz mono PCM16.
	PlaybackRate int `yaml:"playback_rate"`
	MinBufferMs  int `yaml:"min_buffer_ms"`
	MaxBufferMs  int `yaml:"max_buffer_ms"`
	FlushMs      int `yaml:"flush_ms"`

	// Session behaviour.
	DedupWindowMs    int `yaml:"dedup_window_ms"`
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`
	ScreenMinGapMs   int `yaml:"screen_min_gap_ms"`
}

// DefaultTuning mirrors the constants the kiosk shipped with.
func DefaultTuning() Tuning {
	return Tuning{
		CaptureRate:      16000,
		FrameMs:          20,
		BatchFrames:      2,
		SilenceRMS:       180,
		SpeechRMS:        260,
		SilenceCommitMs:  280,
		SpeechConfirm:    1,
		PartialFlushMs:   60,
		DeviceRate:       48000,
		PlaybackRate:     24000,
		MinBufferMs:      8,
		MaxBufferMs:      150,
		FlushMs:          10,
		DedupWindowMs:    200,
		SilenceTimeoutMs: 300000,
		ScreenMinGapMs:   300,
	}
}

// SilenceTimeout returns the idle watchdog duration.
func (t Tuning) SilenceTimeout() time.Duration {
	return time.Duration(t.SilenceTimeoutMs) * time.Millisecond
}

// DedupWindow returns the add-to-cart suppression window.
func (t Tuning) DedupWindow() time.Duration {
	return time.Duration(t.DedupWindowMs) * time.Millisecond
}

// Load reads environment variables and the optional tuning file, returning
// Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	apiKey := os.Getenv("LIVE_API_KEY")
	if apiKey == "" {
		log.Println("Warning: LIVE_API_KEY not set - voice ordering will not connect")
	}

	model := os.Getenv("LIVE_MODEL")
	if model == "" {
		model = "gemini-2.5-flash-native-audio-preview-12-2025"
	}

	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "catalog.json"
	}

	cfg := Config{
		HTTPAddress:  addr,
		LiveAPIKey:   apiKey,
		LiveModel:    model,
		LiveEndpoint: os.Getenv("LIVE_ENDPOINT"),
		CatalogPath:  catalogPath,
		TuningPath:   os.Getenv("TUNING_PATH"),
		Tuning:       DefaultTuning(),
	}

	if cfg.TuningPath != "" {
		if err := loadTuning(cfg.TuningPath, &cfg.Tuning); err != nil {
			log.Printf("tuning file ignored: %v", err)
		}
	}

	return cfg
}

// loadTuning overlays YAML values onto the defaults already present in t.
func loadTuning(path string, t *Tuning) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("parse tuning file: %w", err)
	}
	return nil
}
