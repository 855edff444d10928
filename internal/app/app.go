package app

import (
	"context"
	"errors"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/voxline/internal/config"
	sysmanager "github.com/xpanvictor/voxline/internal/domains/sys_manager"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/internal/handlers"
	"github.com/xpanvictor/voxline/internal/handlers/websocket"
	convoRepo "github.com/xpanvictor/voxline/internal/repository/conversation"
	"github.com/xpanvictor/voxline/internal/server"
	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/assistant"
	"github.com/xpanvictor/voxline/pkg/io/workpool"
	"gorm.io/gorm"
)

// App represents the application with all its dependencies
type App struct {
	Config *config.Settings
	Logger *Logger.Logger
	DB     *gorm.DB
	RC     *redis.Client

	Store         *session.Store
	PipelineDeps  *pipeline.Deps
	Voice         *websocket.WebSocketHandler
	SystemManager *sysmanager.SystemManager
	ServerDeps    server.Dependencies

	closers []func() error
}

// NewApp wires every component. db and rc are optional; without them turns
// are not archived and sessions do not survive a restart.
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger, db *gorm.DB, rc *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		RC:     rc,
	}

	if err := app.setupDependencies(ctx); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (a *App) setupDependencies(ctx context.Context) error {
	sttReg, err := a.buildSTT()
	if err != nil {
		return err
	}
	ttsReg, err := a.buildTTS()
	if err != nil {
		return err
	}
	mux, err := a.buildLLM(ctx)
	if err != nil {
		return err
	}

	gate := a.buildVAD()
	if gate != nil {
		a.closers = append(a.closers, gate.Close)
	}

	var snaps session.Snapshotter
	if a.Config.Session.Snapshots {
		if a.RC != nil {
			snaps = session.NewRedisSnapshotter(a.RC)
		} else {
			a.Logger.Warn("session snapshots enabled but redis is not connected")
		}
	}
	a.Store = session.NewStore(a.Config.Session, snaps, a.Logger)

	a.PipelineDeps = &pipeline.Deps{
		Config:    a.Config.Pipeline,
		Store:     a.Store,
		STT:       sttReg,
		TTS:       ttsReg,
		Assistant: assistant.New(mux),
		VAD:       gate,
		STTPool:   workpool.New("stt", a.Config.Pipeline.STTWorkers),
		TTSPool:   workpool.New("tts", a.Config.Pipeline.TTSWorkers),
		Logger:    a.Logger,
	}
	if a.DB != nil {
		a.PipelineDeps.Archive = convoRepo.NewGormTurnRepo(a.DB)
	}

	// validate the defaults once so a typo fails at boot, not per connection
	if err := a.PipelineDeps.Validate(session.ConfigFromDefaults(a.Config.Defaults)); err != nil {
		return err
	}

	a.SystemManager = sysmanager.NewSystemManager(a.Logger)
	a.SystemManager.RegisterTask(sysmanager.NewSessionSweepTask(a.Store, a.Logger, a.Config.Session.SweepInterval))

	a.Voice = websocket.NewWebSocketHandler(a.Logger, a.Config, a.PipelineDeps)

	var validator *handlers.TokenValidator
	if a.Config.Auth.JWTSecret != "" {
		validator = handlers.NewTokenValidator(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer)
	} else {
		a.Logger.Warn("JWT secret not configured, voice endpoint is unauthenticated")
	}

	a.ServerDeps = server.Dependencies{
		Configs: a.Config,
		Logger:  a.Logger,
		Voice:   a.Voice,
		Auth:    validator,
		Backends: map[string][]string{
			"stt": sttReg.Names(),
			"tts": ttsReg.Names(),
			"llm": mux.Backends(),
		},
	}
	return nil
}

// Start launches background tasks.
func (a *App) Start() error {
	return a.SystemManager.Start()
}

// Shutdown closes live voice sessions, then stops background tasks.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Voice != nil {
		errs = append(errs, a.Voice.Close(ctx))
	}
	if a.SystemManager != nil && a.SystemManager.IsRunning() {
		errs = append(errs, a.SystemManager.Stop())
	}
	errs = append(errs, a.Close())
	return errors.Join(errs...)
}

// Close releases provider clients. Database and redis belong to the caller.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
