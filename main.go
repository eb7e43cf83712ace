package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/cellular/modem"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.String("apn", "", "Access point name for packet data (empty for SMS only)")
	flag.String("apn-user", "", "APN user name")
	flag.String("apn-password", "", "APN password")
	flag.Bool("wait-forever", false, "Wait for network registration without timeout")
	flag.Bool("connect", true, "Connect to the network at startup")
	flag.String("api-token", "", "Bearer token required by the HTTP API")
	flag.String("mqtt-broker", "", "MQTT broker URL (empty disables MQTT)")
	flag.String("mqtt-topic", "sms/send", "MQTT topic to receive SMS requests on")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithSMSTimeout(time.Minute).
		WithSimPIN(config.SimPIN).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting cellular gateway", "modem", m)

	connect := modem.ConnectParams{
		APN:         config.APN,
		User:        config.APNUser,
		Password:    config.APNPassword,
		WaitForever: config.WaitForever,
	}
	if config.ConnectOnStart {
		go func() {
			outcome, err := m.Connect(ctx, connect)
			if err != nil {
				logger.Error("Failed to connect", "outcome", outcome, "error", err)
				return
			}
			logger.Info("Network connected", "outcome", outcome, "apn", config.APN)
		}()
	}

	bridge := &Bridge{
		Logger:   logger.With("component", "mqtt"),
		Modem:    m,
		Broker:   config.MQTTBroker,
		ClientID: config.MQTTClientID,
		Topic:    config.MQTTTopic,
		Username: config.MQTTUsername,
		Password: config.MQTTPassword,
	}
	if err := bridge.Start(ctx); err != nil {
		logger.Error("Failed to start MQTT bridge", "error", err)
	}

	server := &Server{
		Logger:  logger.With("component", "server"),
		Modem:   m,
		Connect: connect,
		Token:   config.APIToken,
	}
	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server.Routes(),
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	bridge.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
		os.Exit(1)
	}
}
