package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/satriahrh/wavebridge/domain"
	"github.com/satriahrh/wavebridge/internal/api"
	ws "github.com/satriahrh/wavebridge/internal/websocket"
)

const sendTimeout = 2 * time.Minute

// sendOptions describes where and how a message is sent
type sendOptions struct {
	ServerURL string
	WebSocket bool
	Token     string
	DeviceID  string
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Encode text, send it to a server and decode the reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := sendOptions{}
		opts.ServerURL, _ = cmd.Flags().GetString("url")
		opts.WebSocket, _ = cmd.Flags().GetBool("ws")
		opts.Token, _ = cmd.Flags().GetString("token")
		opts.DeviceID, _ = cmd.Flags().GetString("device-id")
		out, _ := cmd.Flags().GetString("out")

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()

		signal, err := encodeText(ctx, args[0], transmitProfile())
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}

		reply, err := sendSignal(ctx, opts, signal)
		if err != nil {
			return err
		}

		if out != "" {
			if err := writeOutput(cmd.OutOrStdout(), out, reply); err != nil {
				return err
			}
		}

		text, err := decodeSignal(ctx, reply)
		if err != nil {
			return fmt.Errorf("failed to decode reply: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	sendCmd.Flags().String("url", "http://localhost:8000", "Server base URL")
	sendCmd.Flags().Bool("ws", false, "Send over the WebSocket endpoint instead of HTTP")
	sendCmd.Flags().String("token", "", "Device token for servers with auth enabled")
	sendCmd.Flags().String("device-id", "", "Device id sent when auth is disabled")
	sendCmd.Flags().String("out", "", "Also save the reply WAV to this file")
}

func sendSignal(ctx context.Context, opts sendOptions, signal []byte) ([]byte, error) {
	if opts.WebSocket {
		return sendWebSocket(ctx, opts, signal)
	}
	return sendHTTP(ctx, opts, signal)
}

func sendHTTP(ctx context.Context, opts sendOptions, signal []byte) ([]byte, error) {
	body, err := json.Marshal(domain.ProcessAudioRequest{
		AudioData: base64.StdEncoding.EncodeToString(signal),
	})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(opts.ServerURL, "/") + "/process_audio/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", api.MIMEApplicationJSON)
	setIdentity(req.Header, opts)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d %s: %s", resp.StatusCode, apiErr.Error, apiErr.Detail)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var out domain.ProcessAudioResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return base64.StdEncoding.DecodeString(out.AudioData)
}

func sendWebSocket(ctx context.Context, opts sendOptions, signal []byte) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(opts.ServerURL, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	headers := http.Header{}
	setIdentity(headers, opts)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	messageID := uuid.NewString()
	if err := conn.WriteJSON(ws.AudioMessage{
		Type:      ws.MessageTypeAudio,
		MessageID: messageID,
		AudioData: base64.StdEncoding.EncodeToString(signal),
	}); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}

		var envelope struct {
			Type      ws.MessageType `json:"type"`
			MessageID string         `json:"message_id"`
			AudioData string         `json:"audio_data"`
			Code      string         `json:"error_code"`
			Message   string         `json:"message"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("invalid frame: %w", err)
		}
		if envelope.MessageID != "" && envelope.MessageID != messageID {
			continue
		}

		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		switch envelope.Type {
		case ws.MessageTypeAudioResponse:
			return base64.StdEncoding.DecodeString(envelope.AudioData)
		case ws.MessageTypeError:
			return nil, fmt.Errorf("server error %s: %s", envelope.Code, envelope.Message)
		default:
			return nil, fmt.Errorf("unexpected frame type %q", envelope.Type)
		}
	}
}

func setIdentity(header http.Header, opts sendOptions) {
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.DeviceID != "" {
		header.Set(api.HeaderDeviceID, opts.DeviceID)
	}
}
