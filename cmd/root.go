package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satriahrh/wavebridge/internal/config"
)

var (
	cfgFile string
	envFile string

	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "wavebridge",
	Short: "Audio tone modem bridge to a conversational model",
	Long: `wavebridge decodes messages sent as audio tones, asks a language model
for a reply as a doctor's office assistant, and answers with the reply
encoded as audio tones.

Start the server:
  wavebridge

Start with custom settings:
  wavebridge serve --listen 0.0.0.0:8000 --protocol 1 --volume 20

Use environment variables:
  GEMINI_API_KEY=... WAVEBRIDGE_MODEM_VOLUME=50 wavebridge`,
	SilenceUsage: true,
	RunE:         runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wavebridge %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", BuildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	flags.String("listen", "0.0.0.0:8000", "Server listen address")
	flags.Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	flags.Duration("write-timeout", 120*time.Second, "HTTP write timeout")

	flags.Int("protocol", 1, "Tone protocol id used for replies (0-5)")
	flags.Int("volume", 20, "Tone volume used for replies (1-100)")

	flags.String("llm-provider", "gemini", "Responder (gemini, openai, mock)")
	flags.String("llm-model", "", "Model name (default depends on provider)")
	flags.String("practice", "", "Practice name used in the assistant prompt")

	flags.String("history-store", "none", "Exchange history store (none, memory, mongo)")
	flags.String("jwt-secret", "", "HS256 secret for device tokens (empty = no auth)")

	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, console)")

	bindFlags()

	rootCmd.AddCommand(serveCmd, versionCmd, tokenCmd, encodeCmd, decodeCmd, sendCmd)
}

func bindFlags() {
	bindings := []struct {
		key  string
		flag string
	}{
		{"server.listen", "listen"},
		{"server.read_timeout", "read-timeout"},
		{"server.write_timeout", "write-timeout"},
		{"modem.protocol_id", "protocol"},
		{"modem.volume", "volume"},
		{"llm.provider", "llm-provider"},
		{"llm.model", "llm-model"},
		{"prompt.practice", "practice"},
		{"history.store", "history-store"},
		{"auth.jwt_secret", "jwt-secret"},
		{"logging.level", "log-level"},
		{"logging.format", "log-format"},
	}

	for _, b := range bindings {
		flag := rootCmd.PersistentFlags().Lookup(b.flag)
		if flag == nil {
			continue
		}
		_ = viper.BindPFlag(b.key, flag)
	}
}

func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())
	bindFlags()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
