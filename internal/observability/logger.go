package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithSession adds session_id context to logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("session_id", sessionID).Logger(),
	}
}

// WithRole adds a role field ("sender" or "receiver") distinguishing which
// side of a session emitted a log line, since both run the same binary.
func (l *Logger) WithRole(role string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("role", role).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// TransferStarted logs transfer session start.
func (l *Logger) TransferStarted(sessionID, baseDir string, transferSize int64, totalChunks int) {
	l.logger.Info().
		Str("session_id", sessionID).
		Str("base_dir", baseDir).
		Int64("transfer_size", transferSize).
		Int("total_chunks", totalChunks).
		Msg("transfer session started")
}

// TransferCompleted logs a successful transfer, computing throughput from
// the observed wall-clock duration rather than a caller-supplied estimate.
func (l *Logger) TransferCompleted(sessionID string, transferSize int64, totalChunks int, duration time.Duration) {
	var bytesPerSecond float64
	if duration > 0 {
		bytesPerSecond = float64(transferSize) / duration.Seconds()
	}
	l.logger.Info().
		Str("session_id", sessionID).
		Int64("transfer_size", transferSize).
		Int("total_chunks", totalChunks).
		Float64("duration_seconds", duration.Seconds()).
		Float64("bytes_per_second", bytesPerSecond).
		Msg("transfer completed successfully")
}

// TransferDeclined logs that the receiver rejected a proposed transfer
// during negotiation.
func (l *Logger) TransferDeclined(sessionID string) {
	l.logger.Warn().
		Str("session_id", sessionID).
		Msg("transfer declined by receiver")
}

// HandshakeFailed logs a failed handshake, either due to a transport error
// or a rejected password proof.
func (l *Logger) HandshakeFailed(sessionID, remoteAddr string, err error) {
	l.logger.Error().
		Str("session_id", sessionID).
		Str("remote_addr", remoteAddr).
		Err(err).
		Msg("handshake failed")
}

// ChunkAuthFailed logs an AEAD authentication failure on one chunk during
// streaming, identified by its sequence number in the nonce counter.
func (l *Logger) ChunkAuthFailed(sessionID string, seq uint64, err error) {
	l.logger.Error().
		Str("session_id", sessionID).
		Uint64("chunk_seq", seq).
		Err(err).
		Msg("chunk authentication failed")
}

// ConnectionEstablished logs connection establishment.
func (l *Logger) ConnectionEstablished(remoteAddr string, sessionID string) {
	l.logger.Info().
		Str("remote_addr", remoteAddr).
		Str("session_id", sessionID).
		Msg("connection established")
}

// ConnectionFailed logs connection failure.
func (l *Logger) ConnectionFailed(remoteAddr string, err error) {
	l.logger.Error().
		Str("remote_addr", remoteAddr).
		Err(err).
		Msg("connection failed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
