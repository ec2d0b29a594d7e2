package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/theone-pang/gdaxbook/domain/book"
	"github.com/theone-pang/gdaxbook/domain/feed"
	"github.com/theone-pang/gdaxbook/infra/memory"
	"github.com/theone-pang/gdaxbook/infra/queue"
)

// ErrFeedTimeout means the feed never delivered a snapshot within the
// configured readiness window.
var ErrFeedTimeout = errors.New("service: book not ready before timeout")

// Source delivers raw feed payloads in arrival order. Run blocks until
// the stream ends or Stop is called; Stop must unblock Run's receive
// loop even when it is idle.
type Source interface {
	Run(ctx context.Context, handle func([]byte)) error
	Stop()
}

type Config struct {
	// Product identifies the order book to subscribe to.
	Product string

	// ReadyTimeout bounds how long New waits for the first snapshot.
	// Zero waits forever, matching the feed's historical behavior.
	ReadyTimeout time.Duration

	// ReclaimEvery is the number of applied messages between
	// reclamation passes on the book's retire ring.
	ReclaimEvery int
}

// Stats is a point-in-time copy of the processing counters.
type Stats struct {
	Processed    uint64
	Snapshots    uint64
	Reloads      uint64
	Updates      uint64
	Unrecognized uint64
	DecodeErrors uint64
}

// BookService is the consumer-facing facade: construction spawns the
// receive and process goroutines and blocks until the book is ready;
// Close drives the two-goroutine shutdown handshake. The side maps it
// exposes are read-only for callers by contract - the processing
// goroutine is the book's single writer.
type BookService struct {
	cfg    Config
	log    zerolog.Logger
	source Source
	book   *book.Book
	queue  *queue.Queue

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	processed    atomic.Uint64
	snapshots    atomic.Uint64
	reloads      atomic.Uint64
	updates      atomic.Uint64
	unrecognized atomic.Uint64
	decodeErrors atomic.Uint64
}

// New starts the pipeline for cfg.Product (BTC-USD when empty) and blocks
// until the first snapshot is applied. On ErrFeedTimeout the partially
// started pipeline is already shut down when New returns.
func New(cfg Config, source Source, log zerolog.Logger) (*BookService, error) {
	if cfg.Product == "" {
		cfg.Product = "BTC-USD"
	}
	if cfg.ReclaimEvery <= 0 {
		cfg.ReclaimEvery = 1024
	}

	s := &BookService{
		cfg:    cfg,
		log:    log.With().Str("product", cfg.Product).Logger(),
		source: source,
		book:   book.New(),
		queue:  queue.New(),
		stop:   make(chan struct{}),
	}

	s.wg.Add(2)
	go s.receiveLoop()
	go s.processLoop()

	if err := s.waitReady(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *BookService) waitReady() error {
	if s.cfg.ReadyTimeout <= 0 {
		<-s.book.ReadyCh()
		return nil
	}
	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-s.book.ReadyCh():
		return nil
	case <-timer.C:
		return ErrFeedTimeout
	}
}

// receiveLoop owns the transport: every payload it yields goes straight
// onto the queue, unparsed, so map latency never backs up the wire.
func (s *BookService) receiveLoop() {
	defer s.wg.Done()
	if err := s.source.Run(context.Background(), s.queue.Enqueue); err != nil {
		// The book stays readable; it just stops getting fresher.
		s.log.Error().Err(err).Msg("feed source terminated")
	}
}

// processLoop drains the queue and applies each message to the book. It
// parks on the queue's wake channel when idle so the stop signal is
// observed promptly; messages still queued at shutdown are discarded.
func (s *BookService) processLoop() {
	defer s.wg.Done()
	defer s.book.Reclaim()

	sinceReclaim := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		payload, ok := s.queue.TryDequeue()
		if !ok {
			select {
			case <-s.stop:
				return
			case <-s.queue.Wake():
			}
			continue
		}

		s.apply(payload)
		if sinceReclaim++; sinceReclaim >= s.cfg.ReclaimEvery {
			s.book.Reclaim()
			sinceReclaim = 0
		}
	}
}

func (s *BookService) apply(payload []byte) {
	msg, err := feed.Decode(payload)
	if err != nil {
		s.decodeErrors.Add(1)
		s.log.Warn().Err(err).Msg("skipping undecodable feed message")
		return
	}

	switch msg.Kind {
	case feed.KindSnapshot:
		if s.book.Ready() {
			s.reloads.Add(1)
			s.log.Info().Msg("snapshot resent, resetting book")
		}
		s.book.LoadSnapshot(msg.Bids, msg.Asks)
		s.snapshots.Add(1)
	case feed.KindUpdate:
		s.book.ApplyChanges(msg.Changes)
		s.updates.Add(1)
	case feed.KindUnrecognized:
		s.unrecognized.Add(1)
	}
	s.processed.Add(1)
}

// Close stops the transport, signals the processing goroutine, and joins
// both before returning. Idempotent, and safe even when construction's
// readiness wait timed out.
func (s *BookService) Close() {
	s.closeOnce.Do(func() {
		s.source.Stop()
		close(s.stop)
		s.wg.Wait()
	})
}

func (s *BookService) Product() string { return s.cfg.Product }

// Bids and Asks expose the live side maps for reading. Callers must wrap
// lookups and walks in Enter/Exit on a reader from NewReader.
func (s *BookService) Bids() *book.SideMap { return s.book.Bids() }
func (s *BookService) Asks() *book.SideMap { return s.book.Asks() }

// NewReader registers a reader with the book's reclamation domain.
func (s *BookService) NewReader() *memory.Reader { return s.book.NewReader() }

// Ready reports whether the first snapshot has been applied.
func (s *BookService) Ready() bool { return s.book.Ready() }

// QueueDepth reports the ingest backlog, for observability.
func (s *BookService) QueueDepth() int { return s.queue.Len() }

func (s *BookService) Stats() Stats {
	return Stats{
		Processed:    s.processed.Load(),
		Snapshots:    s.snapshots.Load(),
		Reloads:      s.reloads.Load(),
		Updates:      s.updates.Load(),
		Unrecognized: s.unrecognized.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}
