package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nimbusio/beam/internal/chunk"
	"github.com/nimbusio/beam/internal/cryptoengine"
	"github.com/nimbusio/beam/internal/observability"
	"github.com/nimbusio/beam/internal/pipeline"
	"github.com/nimbusio/beam/internal/queue"
	"github.com/nimbusio/beam/internal/transfer"
	"github.com/nimbusio/beam/internal/workerctx"
	"github.com/nimbusio/beam/internal/xerrors"
)

// Sender drives one outbound transfer through Init -> Connected ->
// Handshaken -> Negotiated -> Streaming -> Done|Failed.
type Sender struct {
	Addr     string
	Password string
	BaseDir  string
	Files    []string
	Log      *observability.Logger
	Metrics  *observability.Metrics

	state State
}

// NewSender builds a Sender targeting addr with the given password and the
// paths (relative to baseDir) to transfer.
func NewSender(addr, password, baseDir string, files []string, log *observability.Logger) *Sender {
	if log == nil {
		log = observability.NewLogger("beam-sender", "dev", nil)
	}
	return &Sender{Addr: addr, Password: password, BaseDir: baseDir, Files: files, Log: log.WithRole("sender"), Metrics: observability.DefaultMetrics(), state: StateInit}
}

// State reports the sender's current lifecycle state.
func (s *Sender) State() State { return s.state }

// Run executes the full session. It returns xerrors.ErrDeclined, not an
// error in the fault sense, if the receiver rejects the proposed transfer.
func (s *Sender) Run() error {
	sessionID := newSessionID()
	log := s.Log.WithSession(sessionID)
	start := time.Now()
	s.Metrics.RecordTransferStart()

	ctx, span := tracer.Start(context.Background(), "sender.session")
	defer span.End()

	req, err := transfer.New(s.BaseDir, s.Files)
	if err != nil {
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return err
	}

	conn, err := net.Dial("tcp", s.Addr)
	if err != nil {
		s.state = StateFailed
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return xerrors.NewNet(xerrors.ConnectFailed, err)
	}
	defer conn.Close()
	s.state = StateConnected
	log.ConnectionEstablished(s.Addr, sessionID)

	key, header, err := s.handshake(ctx, conn)
	if err != nil {
		s.state = StateFailed
		log.ConnectionFailed(s.Addr, err)
		log.HandshakeFailed(sessionID, s.Addr, err)
		s.Metrics.RecordHandshakeFailure()
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return err
	}
	s.state = StateHandshaken

	accepted, err := s.negotiate(ctx, conn, req)
	if err != nil {
		s.state = StateFailed
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return err
	}
	if !accepted {
		s.state = StateFailed
		log.TransferDeclined(sessionID)
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return xerrors.ErrDeclined
	}
	s.state = StateNegotiated

	enc, err := cryptoengine.NewEncryptorWithHeader(key, header)
	if err != nil {
		s.state = StateFailed
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return err
	}

	s.state = StateStreaming
	if err := s.stream(ctx, conn, req, enc, sessionID, log); err != nil {
		s.state = StateFailed
		s.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return err
	}

	s.state = StateDone
	log.TransferCompleted(sessionID, int64(req.TransferSize), int(req.NumChunks), time.Since(start))
	s.Metrics.ChunksSentTotal.Add(float64(req.NumChunks))
	s.Metrics.BytesTransferredTotal.WithLabelValues("sent").Add(float64(req.TransferSize))
	s.Metrics.RecordTransferComplete(true, time.Since(start).Seconds())
	return nil
}

func (s *Sender) handshake(ctx context.Context, conn net.Conn) (key cryptoengine.Key, header cryptoengine.Header, err error) {
	err = traceStep(ctx, "sender.handshake", func() error {
		salt, err := cryptoengine.RandomSalt()
		if err != nil {
			return err
		}
		key, err = cryptoengine.DeriveKey(s.Password, salt)
		if err != nil {
			return err
		}
		nonce, ciphertext, err := cryptoengine.SealHandshake(key)
		if err != nil {
			return err
		}
		rawHeader, err := cryptoengine.RandomNonce()
		if err != nil {
			return err
		}
		header = cryptoengine.Header(rawHeader)

		if err := writeHandshakePrelude(conn, salt, nonce, ciphertext, header); err != nil {
			return err
		}
		ok, err := readAck(conn)
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.NewCrypto(xerrors.AuthFailed, fmt.Errorf("receiver rejected handshake"))
		}
		return nil
	})
	return key, header, err
}

func (s *Sender) negotiate(ctx context.Context, conn net.Conn, req *transfer.Request) (accepted bool, err error) {
	err = traceStep(ctx, "sender.negotiate", func() error {
		if err := transfer.WriteFramed(conn, req); err != nil {
			return err
		}
		accepted, err = readAccept(conn)
		return err
	})
	return accepted, err
}

func (s *Sender) stream(parent context.Context, conn net.Conn, req *transfer.Request, enc *cryptoengine.Encryptor, sessionID string, log *observability.Logger) error {
	_, span := tracer.Start(parent, "sender.stream")
	defer span.End()

	ctx := workerctx.New()

	plainQ, err := queue.New[*chunk.Chunk](QueueCapacity)
	if err != nil {
		return err
	}
	cipherQ, err := queue.New[*chunk.Chunk](QueueCapacity)
	if err != nil {
		return err
	}
	var readDone, encDone pipeline.AtomicFlag
	var chunksSent pipeline.Counter

	reader := pipeline.NewReader(ctx, s.BaseDir, req, plainQ, &readDone)
	encrypter := pipeline.NewEncryptStage(ctx, enc, uint64(req.NumChunks), plainQ, &readDone, cipherQ, &encDone)
	sender := pipeline.NewFrameSender(ctx, conn, cipherQ, &encDone, &chunksSent)

	log.TransferStarted(sessionID, s.BaseDir, int64(req.TransferSize), int(req.NumChunks))

	errCh := make(chan error, 3)
	go func() { errCh <- reader.Run() }()
	go func() { errCh <- encrypter.Run() }()
	go func() { errCh <- sender.Run() }()

	var first error
	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && first == nil {
		first = ctxErr
	}
	if first != nil {
		span.RecordError(first)
		log.Error(first, "send pipeline failed")
		return first
	}
	return nil
}
