package app

import (
	"context"
	"fmt"

	"go-bridge/internal/clients"
	"go-bridge/internal/config"
	"go-bridge/internal/db"
	"go-bridge/internal/events"
	"go-bridge/internal/models"
	"go-bridge/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const devnetGuardians = 3

// ServiceContainer everything one bridge process runs
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database
	DB *gorm.DB

	// Relay network
	NATSClient  *clients.NATSClient
	Devnet      *clients.DevnetNetwork
	RelayServer *clients.NATSRelayServer
	Relay       clients.RelayClient

	// Core services
	Registry *services.ChainRegistry
	Custody  *services.CustodyService
	EventBus *services.EventBus
	Bridge   *services.BridgeService

	// Event fan-out
	WebSocketPushService *services.WebSocketPushService
	EventPublisher       *events.NATSEventPublisher

	Monitoring *services.MonitoringService
}

// NewServiceContainer opens the database, builds the relay client and bootstraps the bridge
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	c := &ServiceContainer{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	database, err := db.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	c.DB = database

	if cfg.NATS.URL != "" {
		if c.NATSClient, err = clients.NewNATSClient(cfg.NATS); err != nil {
			return nil, err
		}
	}

	emitter, err := clients.ParseEmitter(cfg.Bridge.EmitterAddress)
	if err != nil {
		return nil, fmt.Errorf("bridge.emitterAddress: %w", err)
	}
	if err := c.initRelay(emitter); err != nil {
		return nil, err
	}

	c.Registry = services.NewChainRegistry(database)
	c.Custody = services.NewCustodyService(common.HexToAddress(cfg.Bridge.CustodyAddress), cfg.Bridge.FungibleReleasePolicy, logger)
	c.EventBus = services.NewEventBus(logger)

	c.WebSocketPushService = services.NewWebSocketPushService(logger, cfg.CORS.AllowedOrigins)
	c.WebSocketPushService.Attach(c.EventBus)
	if c.NATSClient != nil && cfg.NATS.EventSubject != "" {
		c.EventPublisher = events.NewNATSEventPublisher(c.NATSClient.GetConnection(), cfg.NATS.EventSubject, logger)
		c.EventPublisher.Attach(c.EventBus)
	}

	c.Bridge, err = services.NewBridgeService(ctx, database, c.Relay, c.Registry, c.Custody, c.EventBus,
		services.BridgeOptions{
			LocalChainID:    cfg.Bridge.LocalChainID,
			ExternalChainID: cfg.Bridge.ExternalChainID,
			Emitter:         emitter,
			RelayTimeout:    cfg.RelayTimeout(),
			Defaults: models.BridgeSetting{
				ConsistencyLevel: cfg.Bridge.ConsistencyLevel,
				TokenContract:    normalized(cfg.Bridge.TokenContract),
				NFTContract:      normalized(cfg.Bridge.NFTContract),
			},
		}, logger)
	if err != nil {
		return nil, err
	}

	if err := c.Bridge.Bootstrap(ctx, addresses(cfg.Bridge.Admins), addresses(cfg.Bridge.Relayers)); err != nil {
		return nil, fmt.Errorf("bootstrap bridge: %w", err)
	}

	c.Monitoring = services.NewMonitoringService(database, 0, logger)
	c.Monitoring.Start()

	logger.WithFields(logrus.Fields{
		"local_chain":    cfg.Bridge.LocalChainID,
		"external_chain": cfg.Bridge.ExternalChainID,
		"emitter":        emitter.String(),
		"relay_mode":     cfg.Relay.Mode,
		"release_policy": cfg.Bridge.FungibleReleasePolicy,
	}).Info("✅ Bridge initialized")
	ok = true
	return c, nil
}

func (c *ServiceContainer) initRelay(emitter clients.EmitterAddress) error {
	cfg := c.Config
	switch cfg.Relay.Mode {
	case config.RelayModeNATS:
		if c.NATSClient == nil {
			return fmt.Errorf("relay mode nats requires nats.url")
		}
		c.Relay = clients.NewNATSRelayClient(c.NATSClient.GetConnection(), cfg.Relay.SubjectPrefix, cfg.Bridge.ExternalChainID, emitter)
		return nil

	case config.RelayModeDevnet:
		keys, err := clients.ParseGuardianKeys(cfg.Relay.GuardianKeys)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			c.Logger.Warn("⚠️ No relay.guardianKeys configured, generating an ephemeral devnet guardian set")
			if keys, err = clients.GenerateGuardianKeys(devnetGuardians); err != nil {
				return err
			}
		}
		c.Devnet = clients.NewDevnetNetwork(keys)
		c.Relay = c.Devnet.Client(cfg.Bridge.ExternalChainID, emitter)

		if cfg.Relay.ServeDevnet {
			if c.NATSClient == nil {
				return fmt.Errorf("relay.serveDevnet requires nats.url")
			}
			c.RelayServer = clients.NewNATSRelayServer(c.NATSClient.GetConnection(), cfg.Relay.SubjectPrefix, c.Devnet)
			if err := c.RelayServer.Start(); err != nil {
				return err
			}
			c.Logger.WithField("prefix", cfg.Relay.SubjectPrefix).Info("📡 Devnet relay served on NATS")
		}
		return nil

	default:
		return fmt.Errorf("unsupported relay mode %q", cfg.Relay.Mode)
	}
}

// Close stops background services and releases connections
func (c *ServiceContainer) Close() {
	if c.Monitoring != nil {
		c.Monitoring.Stop()
	}
	if c.WebSocketPushService != nil {
		c.WebSocketPushService.Stop()
	}
	if c.RelayServer != nil {
		c.RelayServer.Stop()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func addresses(values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for _, v := range values {
		out = append(out, common.HexToAddress(v))
	}
	return out
}

func normalized(value string) string {
	if value == "" {
		return ""
	}
	return common.HexToAddress(value).Hex()
}
