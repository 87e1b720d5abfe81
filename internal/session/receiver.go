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
	"github.com/nimbusio/beam/internal/ratelimit"
	"github.com/nimbusio/beam/internal/transfer"
	"github.com/nimbusio/beam/internal/workerctx"
)

// Receiver listens on one address and accepts transfers, writing received
// files under BaseDir. It loops across failed handshakes and declined
// requests, throttled per remote address so a single misbehaving peer
// cannot spin the accept loop against everyone else, and exits the process
// once one transfer completes.
type Receiver struct {
	Addr     string
	Password string
	BaseDir  string
	Log      *observability.Logger
	Metrics  *observability.Metrics

	// AcceptPolicy decides whether a proposed TransferRequest should be
	// accepted. A nil AcceptPolicy accepts every well-formed request,
	// so the core is never itself the authority on negotiation policy —
	// callers such as cmd/beam wire their own policy (an interactive
	// prompt, a disk-space check, ...).
	AcceptPolicy func(req *transfer.Request) bool

	reconnectLimiter *ratelimit.PeerLimiter
}

// NewReceiver builds a Receiver listening on addr, writing accepted
// transfers under baseDir.
func NewReceiver(addr, password, baseDir string, log *observability.Logger) *Receiver {
	if log == nil {
		log = observability.NewLogger("beam-receiver", "dev", nil)
	}
	return &Receiver{
		Addr:             addr,
		Password:         password,
		BaseDir:          baseDir,
		Log:              log.WithRole("receiver"),
		Metrics:          observability.DefaultMetrics(),
		reconnectLimiter: ratelimit.NewPeerLimiter(2, 5),
	}
}

// Run listens on Addr and serves connections until one transfer completes
// successfully, then returns. Failed handshakes and declined offers do not
// terminate the loop; they log and re-listen.
func (r *Receiver) Run() error {
	ln, err := net.Listen("tcp", r.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", r.Addr, err)
	}
	defer ln.Close()
	r.Log.Info("listening for incoming transfer on " + r.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		peer := conn.RemoteAddr().String()
		if !r.reconnectLimiter.Allow(peer, 1) {
			r.Log.Warn("rejecting connection from " + peer + ": reconnecting too fast")
			conn.Close()
			continue
		}

		done, err := r.serve(conn)
		conn.Close()
		if err != nil {
			r.Log.Error(err, "transfer attempt failed, waiting for next connection")
			continue
		}
		if done {
			return nil
		}
	}
}

// serve handles exactly one accepted connection: handshake, negotiation,
// and if accepted, the receive pipeline. done is true iff a transfer
// completed successfully on this connection.
func (r *Receiver) serve(conn net.Conn) (done bool, err error) {
	sessionID := newSessionID()
	log := r.Log.WithSession(sessionID)
	start := time.Now()
	r.Metrics.RecordTransferStart()

	ctx, span := tracer.Start(context.Background(), "receiver.session")
	defer span.End()

	key, header, err := r.handshake(ctx, conn, sessionID, log)
	if err != nil {
		r.Metrics.RecordHandshakeFailure()
		r.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return false, err
	}

	req, accept, err := r.negotiate(ctx, conn)
	if err != nil {
		r.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return false, err
	}
	if !accept {
		log.TransferDeclined(sessionID)
		r.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return false, nil
	}

	dec, err := cryptoengine.NewDecryptor(key, header)
	if err != nil {
		r.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return false, err
	}

	log.TransferStarted(sessionID, r.BaseDir, int64(req.TransferSize), int(req.NumChunks))
	if err := r.stream(ctx, conn, req, dec, sessionID, log); err != nil {
		r.Metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		return false, err
	}
	log.TransferCompleted(sessionID, int64(req.TransferSize), int(req.NumChunks), time.Since(start))
	r.Metrics.ChunksReceivedTotal.Add(float64(req.NumChunks))
	r.Metrics.BytesTransferredTotal.WithLabelValues("received").Add(float64(req.TransferSize))
	r.Metrics.RecordTransferComplete(true, time.Since(start).Seconds())
	return true, nil
}

func (r *Receiver) handshake(ctx context.Context, conn net.Conn, sessionID string, log *observability.Logger) (key cryptoengine.Key, header cryptoengine.Header, err error) {
	err = traceStep(ctx, "receiver.handshake", func() error {
		salt, nonce, ciphertext, hdr, err := readHandshakePrelude(conn)
		header = hdr
		if err != nil {
			return err
		}
		key, err = cryptoengine.DeriveKey(r.Password, salt)
		if err != nil {
			writeAck(conn, false)
			return err
		}
		if !cryptoengine.OpenHandshake(key, nonce, ciphertext) {
			writeAck(conn, false)
			failErr := fmt.Errorf("handshake failed: wrong password")
			log.HandshakeFailed(sessionID, conn.RemoteAddr().String(), failErr)
			return failErr
		}
		return writeAck(conn, true)
	})
	return key, header, err
}

func (r *Receiver) negotiate(ctx context.Context, conn net.Conn) (req *transfer.Request, accept bool, err error) {
	err = traceStep(ctx, "receiver.negotiate", func() error {
		req, err = transfer.ReadFramed(conn)
		if err != nil {
			return err
		}
		accept = true
		if r.AcceptPolicy != nil {
			accept = r.AcceptPolicy(req)
		}
		return writeAccept(conn, accept)
	})
	return req, accept, err
}

func (r *Receiver) stream(parent context.Context, conn net.Conn, req *transfer.Request, dec *cryptoengine.Decryptor, sessionID string, log *observability.Logger) error {
	_, span := tracer.Start(parent, "receiver.stream")
	defer span.End()

	ctx := workerctx.New()

	cipherQ, err := queue.New[*chunk.Chunk](QueueCapacity)
	if err != nil {
		return err
	}
	plainQ, err := queue.New[*chunk.Chunk](QueueCapacity)
	if err != nil {
		return err
	}
	var recvDone, decDone pipeline.AtomicFlag
	var chunksWritten pipeline.Counter

	receiver := pipeline.NewFrameReceiver(ctx, conn, req.NumChunks, cipherQ, &recvDone)
	decrypter := pipeline.NewDecryptStage(ctx, dec, uint64(req.NumChunks), cipherQ, &recvDone, plainQ, &decDone)
	decrypter.AuthFailHook = func(seq uint64, err error) { log.ChunkAuthFailed(sessionID, seq, err) }
	writer := pipeline.NewWriter(ctx, r.BaseDir, req, plainQ, &decDone, &chunksWritten)

	errCh := make(chan error, 2)
	go func() { errCh <- receiver.Run() }()
	go func() { errCh <- decrypter.Run() }()
	writerErr := writer.Run()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	if writerErr != nil && first == nil {
		first = writerErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil && first == nil {
		first = ctxErr
	}
	if first != nil {
		span.RecordError(first)
		log.Error(first, "receive pipeline failed")
	}
	return first
}
