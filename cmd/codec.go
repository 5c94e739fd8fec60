package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/adapters/modem"
	"github.com/satriahrh/wavebridge/domain/repositories"
	"github.com/satriahrh/wavebridge/usecase"
)

var encodeCmd = &cobra.Command{
	Use:   "encode <text>",
	Short: "Encode text as a tone WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		signal, err := encodeText(cmd.Context(), args[0], transmitProfile())
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), out, signal)
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <file.wav>",
	Short: "Decode the text carried by a tone WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signal, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		text, err := decodeSignal(cmd.Context(), signal)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	encodeCmd.Flags().StringP("out", "o", "-", "Output file (- for stdout)")
}

func transmitProfile() repositories.TransmitProfile {
	return repositories.TransmitProfile{
		ProtocolID: viper.GetInt("modem.protocol_id"),
		Volume:     viper.GetInt("modem.volume"),
	}
}

func encodeText(ctx context.Context, text string, profile repositories.TransmitProfile) ([]byte, error) {
	return modem.NewToneModem(zap.NewNop()).Encode(ctx, text, profile)
}

func decodeSignal(ctx context.Context, signal []byte) (string, error) {
	payload, err := modem.NewToneModem(zap.NewNop()).Decode(ctx, signal)
	if err != nil {
		return "", err
	}
	return usecase.DecodeLossy(payload), nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
