// Command pgoutputd runs a single logical-replication consumer against an
// already-existing slot and publication, serving decoded change events over
// an HTTP/websocket/SSE control plane. It is the spiritual successor of the
// teacher's example/example.go, expanded per SPEC_FULL.md's CLI section.
//
// Creating publications/slots is out of scope, per spec.md §1 — this binary
// assumes they already exist.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nikunjy/pgoutputd/internal/api"
	"github.com/nikunjy/pgoutputd/internal/config"
	"github.com/nikunjy/pgoutputd/logger"
	"github.com/nikunjy/pgoutputd/lsn"
	"github.com/nikunjy/pgoutputd/pgoutput"
	"github.com/nikunjy/pgoutputd/protoerr"
	"github.com/nikunjy/pgoutputd/replication"
	"github.com/nikunjy/pgoutputd/typeparser"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	host := flag.String("pgHost", "", "Postgres server hostname")
	port := flag.Int("pgPort", 0, "Postgres server port")
	dbName := flag.String("db", "", "Name of the database to connect to")
	pgUser := flag.String("user", "", "Postgres user name")
	pgPass := flag.String("password", "", "Postgres password")
	slotName := flag.String("slot", "", "Replication slot name")
	pubName := flag.String("publication", "", "Publication name")
	listenAddr := flag.String("listen", "", "HTTP control-plane listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	applyFlagOverrides(&cfg, *host, *port, *dbName, *pgUser, *pgPass, *slotName, *pubName, *listenAddr)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("pgoutputd exited with error")
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *config.Config, host string, port int, db, user, pass, slot, pub, listen string) {
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if db != "" {
		cfg.Database = db
	}
	if user != "" {
		cfg.User = user
	}
	if pass != "" {
		cfg.Password = pass
	}
	if slot != "" {
		cfg.SlotName = slot
	}
	if pub != "" {
		cfg.PublicationName = pub
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
}

func run(ctx context.Context, cfg config.Config, log logger.Logger) error {
	startLSN, err := lsn.Parse(cfg.StartLSN)
	if err != nil {
		return fmt.Errorf("parse startLsn: %w", err)
	}

	connConfig, err := pgconn.ParseConfig(fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password))
	if err != nil {
		return fmt.Errorf("parse connection config: %w", err)
	}

	session, err := replication.Open(ctx, replication.Options{
		ClientConfig:          connConfig,
		SlotName:              cfg.SlotName,
		PublicationName:       cfg.PublicationName,
		ProtocolVersion:       cfg.ProtocolVersion,
		LSN:                   startLSN,
		IncludeCustomMessages: cfg.IncludeCustomMessages,
		Logger:                log,
	})
	if err != nil {
		return fmt.Errorf("open replication session: %w", err)
	}

	stream := replication.NewStream(session, typeparser.NewDefaultRegistry())
	server := api.NewServer(stream, log)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler()}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("control-plane HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("control-plane HTTP server failed")
		}
	}()

	defer func() {
		server.Stop()
		_ = httpServer.Close()
		_ = stream.Dispose(context.Background())
	}()

	var lastCommitLSN lsn.LSN
	for {
		frame, err := stream.Next(ctx)
		if err != nil {
			if protoerr.IsCleanEnd(err) || ctx.Err() != nil {
				log.Info("replication stream ended")
				return nil
			}
			return fmt.Errorf("pull frame: %w", err)
		}

		server.Broadcast(frame)

		switch frame.Kind {
		case pgoutput.FrameWalData:
			if commit, ok := frame.Payload.(pgoutput.CommitMessage); ok {
				lastCommitLSN = commit.CommitLSN
				if err := stream.Acknowledge(ctx, lastCommitLSN.String()); err != nil {
					log.WithError(err).Warn("acknowledge failed")
				}
			}
		case pgoutput.FrameKeepalive:
			if frame.ShouldRespond {
				// the server is asking for a status update even though we
				// have nothing newer to commit-ack; reply with whichever of
				// the keepalive's own position or our last commit is ahead,
				// so a quiet session doesn't hit wal_sender_timeout.
				ackLSN := frame.CurrentLSN
				if lastCommitLSN.Compare(ackLSN) > 0 {
					ackLSN = lastCommitLSN
				}
				if err := stream.Acknowledge(ctx, ackLSN.String()); err != nil {
					log.WithError(err).Warn("keepalive acknowledge failed")
				}
			}
		}
	}
}
