package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/digitalis-io/kafcat/pkg/kafka"
	"github.com/digitalis-io/kafcat/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgHost          string
	cfgPort          int
	cfgFromBeginning bool
	cfgFollow        bool
	cfgIdleTimeout   time.Duration
	cfgLogLevel      string
	cfgLogFile       string
	cfgSaslEnabled   bool
	cfgSaslMechanism string
	cfgSaslUsername  string
	cfgSaslPassword  string
	cfgSaslProtocol  string
	cfgTlsEnabled    bool
	cfgTlsCACert     string
	cfgTlsClientCert string
	cfgTlsClientKey  string
	cfgTlsSkipVerify bool
)

// These variables are set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kafcat [flags] TOPIC",
		Short: "Read Kafka topic contents and output it to the stdout",
		Long: `kafcat tails a Kafka topic and prints message payloads to stdout,
one per line. Offsets are committed under the consumer group "kafcat",
so consecutive runs resume where the previous one stopped.`,
		Args: func(cmd *cobra.Command, args []string) error {
			// --version needs no topic
			if viper.GetBool("version") {
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("requires exactly one TOPIC argument")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Handle version flag
			if viper.GetBool("version") {
				fmt.Printf("kafcat version %s\n", Version)
				fmt.Printf("  Build Time: %s\n", BuildTime)
				fmt.Printf("  Git Commit: %s\n", GitCommit)
				return nil
			}

			// Arguments parsed fine; any error past this point is a runtime
			// failure and should not trigger the usage text.
			cmd.SilenceUsage = true

			// Merge Viper and flags
			host := viper.GetString("host")
			port := viper.GetInt("port")
			fromBeginning := viper.GetBool("from_beginning")
			follow := viper.GetBool("follow")
			idleTimeout := viper.GetDuration("idle_timeout")
			logLevel := viper.GetString("log_level")
			logFile := viper.GetString("log_file")
			saslEnabled := viper.GetBool("sasl_enabled")
			saslMechanism := viper.GetString("sasl_mechanism")
			saslUsername := viper.GetString("sasl_username")
			saslPassword := viper.GetString("sasl_password")
			saslProtocol := viper.GetString("sasl_protocol")
			tlsEnabled := viper.GetBool("tls_enabled")
			tlsCACert := viper.GetString("tls_ca_cert")
			tlsClientKey := viper.GetString("tls_client_key")
			tlsClientCert := viper.GetString("tls_client_cert")
			tlsSkipVerify := viper.GetBool("tls_skip_verify")

			// Initialize logger
			if err := logger.Init(logLevel, logFile); err != nil {
				return fmt.Errorf("failed to initialize logger: %v", err)
			}

			// Create SASL config if authentication is enabled
			var saslConfig *kafka.SASLConfig
			if saslEnabled {
				saslConfig = &kafka.SASLConfig{
					Enabled:   true,
					Mechanism: saslMechanism,
					Username:  saslUsername,
					Password:  saslPassword,
					Protocol:  saslProtocol,
				}
			}

			// Create TLS config if SSL is enabled or SASL_SSL is used
			var tlsConfig *kafka.TLSConfig
			if tlsEnabled || (saslConfig != nil && saslProtocol == "SASL_SSL") {
				tlsConfig = &kafka.TLSConfig{
					Enabled:            true,
					CACert:             tlsCACert,
					ClientCert:         tlsClientCert,
					ClientKey:          tlsClientKey,
					InsecureSkipVerify: tlsSkipVerify,
				}
			}

			// An interrupt anywhere from here on unwinds through the
			// commit-and-exit path.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Kafka client with optional SASL authentication and TLS
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			client, err := kafka.NewClientWithAuth([]string{addr}, saslConfig, tlsConfig)
			if err != nil {
				if ctx.Err() != nil {
					return context.Canceled
				}
				return fmt.Errorf("failed to connect to Kafka: %v", err)
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Get().WithError(err).Warn("Error closing Kafka client")
				}
			}()

			tailer := kafka.NewTailer(client, kafka.Options{
				Topic:         args[0],
				FromBeginning: fromBeginning,
				Follow:        follow,
				IdleTimeout:   idleTimeout,
			}, os.Stdout)

			if err := tailer.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return context.Canceled
				}
				return err
			}
			return nil
		},
	}

	// Define flags
	rootCmd.Flags().StringVar(&cfgHost, "host", "localhost", "Kafka node hostname")
	rootCmd.Flags().IntVar(&cfgPort, "port", 9092, "Kafka node port number")
	rootCmd.Flags().BoolVarP(&cfgFromBeginning, "from-beginning", "b", false, "Extract from the beginning")
	rootCmd.Flags().BoolVarP(&cfgFollow, "follow", "f", false, "Output appended data as the topic grows")
	rootCmd.Flags().DurationVar(&cfgIdleTimeout, "idle-timeout", kafka.DefaultIdleTimeout, "Idle period after which a one-shot run stops")
	rootCmd.Flags().StringVar(&cfgLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&cfgLogFile, "log-file", "", "Log file path (if empty, logs to stderr)")

	// SASL authentication flags
	rootCmd.Flags().BoolVar(&cfgSaslEnabled, "sasl", false, "Enable SASL authentication")
	rootCmd.Flags().StringVar(&cfgSaslMechanism, "sasl-mechanism", "PLAIN", "SASL mechanism (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)")
	rootCmd.Flags().StringVar(&cfgSaslUsername, "sasl-username", "", "SASL username")
	rootCmd.Flags().StringVar(&cfgSaslPassword, "sasl-password", "", "SASL password")
	rootCmd.Flags().StringVar(&cfgSaslProtocol, "sasl-protocol", "SASL_PLAINTEXT", "Security protocol (SASL_PLAINTEXT, SASL_SSL)")

	// TLS/SSL flags
	rootCmd.Flags().BoolVar(&cfgTlsEnabled, "tls", false, "Enable TLS/SSL")
	rootCmd.Flags().StringVar(&cfgTlsCACert, "tls-ca-cert", "", "Path to CA certificate file")
	rootCmd.Flags().StringVar(&cfgTlsClientCert, "tls-client-cert", "", "Path to client certificate file")
	rootCmd.Flags().StringVar(&cfgTlsClientKey, "tls-client-key", "", "Path to client key file")
	rootCmd.Flags().BoolVar(&cfgTlsSkipVerify, "tls-skip-verify", false, "Skip TLS certificate verification (insecure)")

	// Version flag
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	// Bind Viper to flags
	_ = viper.BindPFlag("host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("from_beginning", rootCmd.Flags().Lookup("from-beginning"))
	_ = viper.BindPFlag("follow", rootCmd.Flags().Lookup("follow"))
	_ = viper.BindPFlag("idle_timeout", rootCmd.Flags().Lookup("idle-timeout"))
	_ = viper.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("log_file", rootCmd.Flags().Lookup("log-file"))
	_ = viper.BindPFlag("sasl_enabled", rootCmd.Flags().Lookup("sasl"))
	_ = viper.BindPFlag("sasl_mechanism", rootCmd.Flags().Lookup("sasl-mechanism"))
	_ = viper.BindPFlag("sasl_username", rootCmd.Flags().Lookup("sasl-username"))
	_ = viper.BindPFlag("sasl_password", rootCmd.Flags().Lookup("sasl-password"))
	_ = viper.BindPFlag("sasl_protocol", rootCmd.Flags().Lookup("sasl-protocol"))
	_ = viper.BindPFlag("tls_enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls_ca_cert", rootCmd.Flags().Lookup("tls-ca-cert"))
	_ = viper.BindPFlag("tls_client_cert", rootCmd.Flags().Lookup("tls-client-cert"))
	_ = viper.BindPFlag("tls_client_key", rootCmd.Flags().Lookup("tls-client-key"))
	_ = viper.BindPFlag("tls_skip_verify", rootCmd.Flags().Lookup("tls-skip-verify"))
	_ = viper.BindPFlag("version", rootCmd.Flags().Lookup("version"))

	// Environment variable support
	viper.SetEnvPrefix("KAFCAT") // e.g. KAFCAT_HOST
	viper.AutomaticEnv()

	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted; progress was already committed on the way out.
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
