package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar names the environment variable read when no level is passed
// to Initialize. Valid values: "debug", "info", "warn", "error".
const LogLevelEnvVar = "OINK_LOG_LEVEL"

// maxDumpBytes bounds the hex and ASCII renderings of raw frames
const maxDumpBytes = 256

var logger *zap.Logger

// Initialize installs a console logger on stderr at level, falling back to
// $OINK_LOG_LEVEL. With neither set the logger discards everything.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

// InitializeFromEnv is Initialize("")
func InitializeFromEnv() error {
	return Initialize("")
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil || l > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return l
}

// SetLogger replaces the global logger; nil restores the silent default
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger, which is a nop until initialized
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// LogConnection records a receiver or event stream connection changing state
func LogConnection(peer string, event string) {
	Info("Connection event",
		zap.String("peer", peer),
		zap.String("event", event),
	)
}

// LogPacket logs a decoded eISCP packet at debug level
func LogPacket(receiver string, direction string, command string, parameter string, deviceType string) {
	Debug("eISCP packet",
		zap.String("remote_addr", receiver),
		zap.String("direction", direction),
		zap.String("command", command),
		zap.String("parameter", parameter),
		zap.String("device_type", deviceType),
	)
}

// LogHTTPRequest logs a bridge request as it arrives
func LogHTTPRequest(remoteAddr string, method string, path string) {
	Info("Bridge request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
	)
}

// LogHTTPResponse logs the status and body size of a bridge reply
func LogHTTPResponse(remoteAddr string, statusCode int, size int) {
	Info("Bridge response",
		zap.String("remote_addr", remoteAddr),
		zap.Int("status_code", statusCode),
		zap.Int("size", size),
	)
}

// LogEventFrame logs an event stream frame. JSON frames are logged as
// text; CBOR frames only by length.
func LogEventFrame(clientID string, direction string, binary bool, data []byte) {
	fields := []zap.Field{
		zap.String("client_id", clientID),
		zap.String("direction", direction),
		zap.Int("length", len(data)),
	}
	if !binary {
		fields = append(fields, zap.ByteString("content", data))
	}
	Debug("Event stream frame", fields...)
}

// LogRawBytes dumps bytes that could not be decoded
func LogRawBytes(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

// asciiDump keeps printable bytes and replaces the rest with '.', so the
// "!1MVL..." segment of a frame stays readable next to the hex.
func asciiDump(data []byte) string {
	if len(data) > maxDumpBytes {
		data = data[:maxDumpBytes]
	}
	out := make([]byte, len(data))
	for i, b := range data {
		if b < ' ' || b > '~' {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}

// Sync flushes buffered entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
