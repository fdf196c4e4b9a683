package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"audiocast/internal/client"
	"audiocast/internal/core/domain"
	"audiocast/internal/infrastructure/audio"
	"audiocast/internal/protocol"
	"audiocast/pkg/backoff"
	"audiocast/pkg/config"
	"audiocast/pkg/logger"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	clientID := flag.String("client-id", "", "client identifier (random when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	id := *clientID
	if id == "" {
		id = uuid.NewString()
	}

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	threshold := time.Duration(cfg.Client.BufferThresholdSeconds * float64(time.Second))

	decoder := audio.NewMP3Decoder(log)
	output := audio.NewSpeakerOutput(log)

	// The coordinator, accumulator, and connection reference each other
	// through callbacks; the coordinator variable is filled in last.
	var coordinator *client.Coordinator

	accConfig := client.DefaultAccumulatorConfig()
	accConfig.BufferThreshold = threshold
	accConfig.AssumedByteRate = cfg.Client.AssumedByteRate

	acc := client.NewAccumulator(accConfig, decoder, func(unit *domain.AudioUnit) {
		coordinator.HandleDecoded(unit)
	}, log)

	signaling := client.NewSignalingClient(cfg.Client.SignalingURL)

	conn := client.NewConnection(
		client.ConnectionConfig{
			ClientID:             id,
			ICEServers:           iceServers,
			MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
			Backoff: backoff.Config{
				InitialDelay: cfg.Client.ReconnectInitialDelay,
				MaxDelay:     cfg.Client.ReconnectMaxDelay,
				Multiplier:   2.0,
			},
		},
		signaling,
		client.ConnectionCallbacks{
			OnStateChange: func(state domain.ConnectionState) {
				coordinator.HandleConnectionState(state)
			},
			OnControl: func(ctrl protocol.Control) {
				coordinator.HandleControl(ctrl)
			},
			OnChunk: func(chunk []byte) {
				acc.AddChunk(chunk)
			},
			OnError: func(err error) {
				coordinator.HandleError(err)
			},
		},
		log,
	)

	coordinator = client.NewCoordinator(threshold, acc, conn, output, log)

	fmt.Printf("audiocast player (client %s)\n", id)
	fmt.Println("commands: play, pause, stop, status, retry, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "play":
			if err := coordinator.Play(); err != nil {
				fmt.Printf("play failed: %v\n", err)
			}
		case "pause":
			if err := coordinator.Pause(); err != nil {
				fmt.Printf("pause failed: %v\n", err)
			}
		case "stop":
			coordinator.Stop()
		case "status":
			printStatus(coordinator.Status())
		case "retry":
			if err := coordinator.Retry(); err != nil {
				fmt.Printf("retry failed: %v\n", err)
			}
		case "quit", "exit":
			coordinator.Stop()
			return
		case "":
		default:
			fmt.Println("unknown command")
		}
	}

	coordinator.Stop()
}

func printStatus(status client.PlaybackStatus) {
	fmt.Printf("connection: %s  playback: %s\n", status.Connection, status.State)
	fmt.Printf("buffered: %.1fs (estimate)  decoded: %.1fs  position: %.1fs\n",
		status.Buffered.Seconds(),
		status.Decoded.Seconds(),
		status.Position.Seconds(),
	)
	if status.Err != "" {
		fmt.Printf("error: %s\n", status.Err)
	}
}
