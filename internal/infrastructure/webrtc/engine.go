package webrtc

import (
	"context"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config carries the pion-level settings of the engine.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Engine is the pion-backed media engine. Each router it creates owns the
// producer registry consulted by capability checks; each transport wraps one
// peer connection.
type Engine struct {
	api    *webrtc.API
	config Config
	logger *zap.SugaredLogger
}

func NewEngine(config Config, logger *zap.SugaredLogger) (*Engine, error) {
	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max); err != nil {
			return nil, err
		}
	}

	return &Engine{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		config: config,
		logger: logger,
	}, nil
}

func (e *Engine) CreateRouter(ctx context.Context) (domain.Router, error) {
	r := &router{
		id:           uuid.New().String(),
		engine:       e,
		capabilities: routerRtpCapabilities(),
		producers:    make(map[string]*producer),
		canConsume:   kindMatch,
		logger:       e.logger,
	}
	e.logger.Infow("router created", "router_id", r.id)
	return r, nil
}

func (e *Engine) newPeerConnection() (*webrtc.PeerConnection, error) {
	return e.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   e.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
}

var _ ports.MediaEngine = (*Engine)(nil)
