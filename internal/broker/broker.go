// Package broker connects skatepedia to NATS JetStream, optionally running
// an embedded server for single-node deployments.
package broker

import (
	"errors"
	"fmt"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/config"
)

const readyTimeout = 10 * time.Second

// Broker is a JetStream connection, plus the embedded server behind it when
// one was started.
type Broker struct {
	server  *natsserver.Server
	conn    *nats.Conn
	js      nats.JetStreamContext
	tempDir string
	logger  *zap.Logger
}

// Connect starts the embedded server if cfg asks for it and connects to
// JetStream.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{logger: logger.Named("broker")}

	url := cfg.URL
	if cfg.Embedded {
		if err := b.startEmbedded(cfg.StoreDir); err != nil {
			b.Close()
			return nil, err
		}
		url = b.server.ClientURL()
	}
	if url == "" {
		return nil, errors.New("nats url is empty")
	}

	nc, err := nats.Connect(url,
		nats.Name("skatepedia"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait.Duration()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn("disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	b.conn = nc

	js, err := nc.JetStream()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	b.js = js

	b.logger.Info("connected to NATS",
		zap.String("url", nc.ConnectedUrlRedacted()),
		zap.Bool("embedded", cfg.Embedded))
	return b, nil
}

func (b *Broker) startEmbedded(storeDir string) error {
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "skatepedia-nats-")
		if err != nil {
			return fmt.Errorf("creating NATS store dir: %w", err)
		}
		b.tempDir = dir
		storeDir = dir
		b.logger.Warn("nats.store_dir not set, data will not survive restarts", zap.String("store_dir", dir))
	}

	srv, err := natsserver.NewServer(&natsserver.Options{
		ServerName: "skatepedia",
		Host:       "127.0.0.1",
		Port:       -1,
		NoLog:      true,
		NoSigs:     true,
		JetStream:  true,
		StoreDir:   storeDir,
	})
	if err != nil {
		return fmt.Errorf("creating embedded NATS server: %w", err)
	}
	b.server = srv

	go srv.Start()
	if !srv.ReadyForConnections(readyTimeout) {
		return errors.New("embedded NATS server not ready")
	}
	b.logger.Info("embedded NATS server started",
		zap.String("url", srv.ClientURL()),
		zap.String("store_dir", storeDir))
	return nil
}

// JetStream returns the JetStream context.
func (b *Broker) JetStream() nats.JetStreamContext { return b.js }

// Conn returns the NATS connection.
func (b *Broker) Conn() *nats.Conn { return b.conn }

// Embedded reports whether an embedded server is running.
func (b *Broker) Embedded() bool { return b.server != nil }

// Healthy reports whether the connection is up.
func (b *Broker) Healthy() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close closes the connection and stops the embedded server.
func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
		b.server = nil
	}
	if b.tempDir != "" {
		_ = os.RemoveAll(b.tempDir)
		b.tempDir = ""
	}
}
