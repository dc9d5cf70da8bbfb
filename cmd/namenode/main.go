package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/theritikchoure/logx"

	"github.com/mini_hdfs_project/chunkserver"
	"github.com/mini_hdfs_project/frontend"
	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/master"
)

var flags struct {
	config        string
	logFile       string
	httpAddr      string
	heartbeatPort int
	metadataFile  string
}

func main() {
	cmd := &cobra.Command{
		Use:   "namenode",
		Short: "Coordinator: chunk placement, heartbeat registry and HTTP front end",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
	cmd.Flags().StringVar(&flags.config, "config", "", "YAML config file")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "append logs to this file instead of stderr")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().IntVar(&flags.heartbeatPort, "heartbeat-port", 0, "heartbeat TCP port (overrides config)")
	cmd.Flags().StringVar(&flags.metadataFile, "metadata", "", "catalog snapshot file (overrides config)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flags.logFile != "" {
		logfile, err := helper.RedirectLog(flags.logFile)
		if err != nil {
			log.Fatalln("[Namenode] Error opening log file:", err)
		}
		defer logfile.Close()
	}

	cfg, err := helper.LoadMasterConfig(flags.config)
	if err != nil {
		log.Fatalln("[Namenode] Invalid configuration:", err)
	}
	if flags.httpAddr != "" {
		cfg.HTTPAddress = flags.httpAddr
	}
	if flags.heartbeatPort != 0 {
		cfg.HeartbeatPort = flags.heartbeatPort
	}
	if flags.metadataFile != "" {
		cfg.MetadataFile = flags.metadataFile
	}

	catalog, err := master.OpenCatalog(cfg.MetadataFile, cfg.Replicas)
	if err != nil {
		log.Fatalln("[Namenode] Cannot load catalog:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := master.NewLivenessRegistry(catalog, cfg.HeartbeatTimeoutDuration())
	go func() {
		if err := registry.ListenAndServe(cfg.HeartbeatPort); err != nil {
			log.Fatalln("[Namenode] Heartbeat listener stopped:", err)
		}
	}()
	go catalog.RunSnapshotter(ctx, cfg.SnapshotIntervalDuration())

	mn := master.NewMasterNode(catalog, registry, chunkserver.NewClient(cfg.DialTimeoutDuration()), cfg)
	server := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: frontend.NewServer(mn).Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		registry.Close()
	}()

	logx.Logf("[Namenode] HTTP front end on %s, replicas %v", logx.FGBLUE, logx.BGWHITE, cfg.HTTPAddress, cfg.Replicas)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	if err := catalog.Snapshot(); err != nil {
		log.Println("[Namenode] Final snapshot failed:", err)
	}
	return nil
}
