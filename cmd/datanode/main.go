package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/theritikchoure/logx"

	"github.com/mini_hdfs_project/chunkserver"
	"github.com/mini_hdfs_project/helper"
)

var flags struct {
	config            string
	logFile           string
	namenodePort      int
	heartbeatInterval int
}

func main() {
	cmd := &cobra.Command{
		Use:     "datanode <id> <port> <storage_dir> [namenode_host]",
		Short:   "Chunk store: serves STORE/RETRIEVE and heartbeats the namenode",
		Example: "  datanode 0 7001 storage/d0 172.28.204.229\n  datanode 1 7002 storage/d1 172.28.204.229",
		Args:    cobra.RangeArgs(3, 4),
		RunE:    run,
	}
	cmd.Flags().StringVar(&flags.config, "config", "", "YAML config file")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "append logs to this file instead of stderr")
	cmd.Flags().IntVar(&flags.namenodePort, "namenode-port", 0, "namenode heartbeat port (overrides config)")
	cmd.Flags().IntVar(&flags.heartbeatInterval, "heartbeat-interval", 0, "seconds between heartbeats (overrides config)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flags.logFile != "" {
		logfile, err := helper.RedirectLog(flags.logFile)
		if err != nil {
			log.Fatalln("[Datanode] Error opening log file:", err)
		}
		defer logfile.Close()
	}

	cfg, err := helper.LoadChunkServerConfig(flags.config)
	if err != nil {
		log.Fatalln("[Datanode] Invalid configuration:", err)
	}
	cfg.NodeID = args[0]
	if cfg.Port, err = strconv.Atoi(args[1]); err != nil {
		return err
	}
	cfg.StorageRoot = args[2]
	if len(args) == 4 {
		cfg.MasterHost = args[3]
	}
	if flags.namenodePort != 0 {
		cfg.MasterPort = flags.namenodePort
	}
	if flags.heartbeatInterval != 0 {
		cfg.HeartbeatInterval = flags.heartbeatInterval
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cs := chunkserver.NewChunkServer(cfg)
	masterAddr := net.JoinHostPort(cfg.MasterHost, strconv.Itoa(cfg.MasterPort))
	logx.Logf("DATANODE %s STARTED, namenode %s", logx.FGBLACK, logx.BGGREEN, cfg.NodeID, masterAddr)

	go cs.SendHeartbeats(ctx, masterAddr, cfg.HeartbeatIntervalDuration())
	go func() {
		<-ctx.Done()
		done := make(chan struct{})
		go func() {
			cs.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}()

	return cs.ListenAndServe()
}
