package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hammamikhairi/guardian/internal/classifier"
	"github.com/hammamikhairi/guardian/internal/config"
	"github.com/hammamikhairi/guardian/internal/cooldown"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/engine"
	"github.com/hammamikhairi/guardian/internal/escalation"
	"github.com/hammamikhairi/guardian/internal/features"
	"github.com/hammamikhairi/guardian/internal/gpt"
	"github.com/hammamikhairi/guardian/internal/library"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/lullaby"
	"github.com/hammamikhairi/guardian/internal/messaging"
	"github.com/hammamikhairi/guardian/internal/metrics"
	"github.com/hammamikhairi/guardian/internal/onnx"
	"github.com/hammamikhairi/guardian/internal/policy"
	"github.com/hammamikhairi/guardian/internal/speech"
	"github.com/hammamikhairi/guardian/internal/storage"
)

// app is the fully wired service.
type app struct {
	engine       *engine.Engine
	library      *library.Library
	orchestrator *escalation.Orchestrator
	lullabies    *lullaby.Generator // nil when content generation is off
	metrics      *metrics.Metrics

	closers []func() error
}

// build constructs every component from cfg. Model loading failures are
// fatal. Extra engine options (observers) are appended last.
func build(ctx context.Context, cfg *config.Config, log *logger.Logger, extra ...engine.Option) (*app, error) {
	a := &app{metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	extractor, cls, err := a.buildModel(cfg.Model, log)
	if err != nil {
		return nil, err
	}

	state, err := a.buildState(ctx, cfg.State, log)
	if err != nil {
		return nil, err
	}

	records, err := a.buildRecords(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	blobs, err := storage.NewFileBlobStore(cfg.Storage.BlobDir, log)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	a.lullabies = buildLullabies(cfg, log)

	libOpts := []library.Option{library.WithMetrics(a.metrics)}
	if a.lullabies != nil {
		libOpts = append(libOpts, library.WithGenerator(a.lullabies))
	}
	a.library = library.New(records, blobs, log, libOpts...)

	orchOpts := []escalation.Option{
		escalation.WithRecipient(cfg.Escalation.NotifyTo, cfg.Escalation.NotifyFrom),
		escalation.WithStepTimeout(cfg.Escalation.StepTimeout),
		escalation.WithHistory(cfg.Escalation.History),
		escalation.WithMetrics(a.metrics),
	}
	if cfg.Escalation.Content && a.lullabies != nil {
		orchOpts = append(orchOpts, escalation.WithContent(a.lullabies, cfg.Escalation.Topic, a.library))
	}
	a.orchestrator = escalation.New(buildGateway(cfg, log), log, orchOpts...)

	engOpts := []engine.Option{
		engine.WithEscalator(a.orchestrator),
		engine.WithMetrics(a.metrics),
	}
	if a.lullabies != nil {
		engOpts = append(engOpts, engine.WithLullabies(a.lullabies))
	}
	engOpts = append(engOpts, extra...)

	decider := policy.New(state, policy.WithCooldown(cfg.Escalation.Cooldown))
	a.engine = engine.New(extractor, cls, decider, log, engOpts...)
	ok = true
	return a, nil
}

// Close releases models and connections in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) buildModel(cfg config.ModelConfig, log *logger.Logger) (*features.Extractor, *classifier.Classifier, error) {
	switch cfg.Backend {
	case "logistic":
		weights, err := classifier.LoadLogistic(cfg.LogisticWeights)
		if err != nil {
			return nil, nil, err
		}
		ext := features.NewExtractor(features.EnergyModel{}, log)
		cls, err := classifier.New(weights, ext.Dim(), log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("model: logistic over energy features (dim=%d)", ext.Dim())
		return ext, cls, nil

	default:
		rt, err := onnx.Init(cfg.ONNXLibrary, log)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, rt.Close)

		yam, err := onnx.NewYAMNet(onnx.YAMNetConfig{ModelPath: cfg.EmbeddingModel}, log)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, yam.Close)

		head, err := onnx.NewClassifier(cfg.ClassifierModel, log)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, head.Close)

		ext := features.NewExtractor(yam, log, features.WithSampleRate(onnx.YAMNetSampleRate))
		cls, err := classifier.New(head, ext.Dim(), log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("model: onnx %s -> %s (dim=%d)", cfg.EmbeddingModel, cfg.ClassifierModel, ext.Dim())
		return ext, cls, nil
	}
}

func (a *app) buildState(ctx context.Context, cfg config.StateConfig, log *logger.Logger) (domain.EscalationState, error) {
	if cfg.Backend != "redis" {
		return cooldown.NewMemoryState(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info("cooldown state: redis %s db=%d", cfg.RedisAddr, cfg.RedisDB)
	return cooldown.NewRedisState(rdb), nil
}

func (a *app) buildRecords(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (domain.RecordStore, error) {
	if cfg.Backend != "postgres" {
		return storage.NewMemoryStore(log), nil
	}
	db, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := storage.Migrate(db); err != nil {
		return nil, err
	}
	log.Info("lullaby records: postgres")
	return storage.NewPostgresStore(db, log), nil
}

func buildGateway(cfg *config.Config, log *logger.Logger) domain.MessagingGateway {
	if cfg.Messaging.Provider == "twilio" {
		log.Info("messaging: twilio -> %s", cfg.Escalation.NotifyTo)
		return messaging.NewTwilio(cfg.Messaging.TwilioSID, cfg.Messaging.TwilioToken, log)
	}
	return messaging.NewLogGateway(log)
}

// buildLullabies returns nil unless both stages are configured.
func buildLullabies(cfg *config.Config, log *logger.Logger) *lullaby.Generator {
	if !cfg.LullabiesEnabled() {
		log.Info("lullabies disabled: configure text.provider and speech.provider to enable")
		return nil
	}

	textOpts := []gpt.ClientOption{
		gpt.WithAuthStyle(gpt.AuthStyle(cfg.Text.Auth)),
		gpt.WithHTTPClient(&http.Client{
			Timeout:   cfg.Text.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.Text.Model != "" {
		textOpts = append(textOpts, gpt.WithModel(cfg.Text.Model))
	}
	writer := gpt.NewClient(cfg.Text.Endpoint, cfg.Text.APIKey, log, textOpts...)

	var voice domain.SpeechSynthesizer
	switch cfg.Speech.Provider {
	case "elevenlabs":
		opts := []speech.ElevenLabsOption{speech.WithElevenLabsTimeout(cfg.Speech.Timeout)}
		if cfg.Speech.ElevenLabsVoice != "" {
			opts = append(opts, speech.WithElevenLabsVoice(cfg.Speech.ElevenLabsVoice))
		}
		if cfg.Speech.ElevenLabsModel != "" {
			opts = append(opts, speech.WithElevenLabsModel(cfg.Speech.ElevenLabsModel))
		}
		voice = speech.NewElevenLabsClient(cfg.Speech.ElevenLabsKey, log, opts...)
	default:
		voice = speech.NewAzureClient(cfg.Speech.AzureKey, cfg.Speech.AzureRegion, log,
			speech.WithVoice(cfg.Speech.AzureVoice),
			speech.WithHTTPTimeout(cfg.Speech.Timeout),
		)
	}
	log.Info("lullabies enabled (text=%s, speech=%s)", cfg.Text.Provider, cfg.Speech.Provider)

	return lullaby.New(writer, voice, log,
		lullaby.WithTextTimeout(cfg.Text.Timeout),
		lullaby.WithSpeechTimeout(cfg.Speech.Timeout),
	)
}
