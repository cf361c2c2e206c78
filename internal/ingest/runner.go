// ABOUTME: Line-oriented ingest runner that feeds contributions into a quorum accumulator.
// ABOUTME: Filters replays, partitions work by key hash, and hands resolutions to a sink.

package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-accumulator/internal/dedupe"
)

// queueDepth is the per-worker buffer between the reader and a worker.
const queueDepth = 64

// Accumulator is the part of a quorum accumulator the runner drives.
// It must be safe for concurrent use when more than one worker is configured.
type Accumulator interface {
	Add(key, value string) ([]string, bool)
	Quorum() int
}

// Resolution is reported every time an Add reports quorum.
type Resolution struct {
	Key            string
	Values         []string
	Quorum         int
	ContributionID string // contribution that triggered the report
	Line           int    // 1-based input line of that contribution
}

// Sink receives resolutions. An error stops the run.
type Sink func(ctx context.Context, r Resolution) error

// Stats summarises a run.
type Stats struct {
	Lines         int // lines read, including blanks and comments
	Contributions int // contributions applied to the accumulator
	Replays       int // contributions dropped as already seen
	Malformed     int // lines that did not parse
	Resolutions   int // resolutions handed to the sink
}

type counters struct {
	lines, contributions, replays, malformed, resolutions atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Lines:         int(c.lines.Load()),
		Contributions: int(c.contributions.Load()),
		Replays:       int(c.replays.Load()),
		Malformed:     int(c.malformed.Load()),
		Resolutions:   int(c.resolutions.Load()),
	}
}

type contribution struct {
	key, value, id string
	generatedID    bool
	line           int
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of workers. Values below one select one.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = max(n, 1) }
}

// WithLogger replaces the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner reads contributions and drives an accumulator.
type Runner struct {
	acc     Accumulator
	filter  *dedupe.Filter
	sink    Sink
	workers int
	logger  *slog.Logger
}

// NewRunner creates a runner. filter and sink may be nil to disable replay
// filtering or discard resolutions.
func NewRunner(acc Accumulator, filter *dedupe.Filter, sink Sink, opts ...Option) *Runner {
	r := &Runner{
		acc:     acc,
		filter:  filter,
		sink:    sink,
		workers: 1,
		logger:  slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads in until EOF, cancellation, or a sink error. Cancellation is
// observed between lines. The returned Stats are valid even when err is
// non-nil.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Stats, error) {
	var c counters

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan contribution, r.workers)
	for i := range queues {
		q := make(chan contribution, queueDepth)
		queues[i] = q
		g.Go(func() error {
			return r.work(gctx, q, &c)
		})
	}

	readErr := r.read(gctx, in, queues, &c)
	for _, q := range queues {
		close(q)
	}
	err := g.Wait()
	if err == nil {
		err = readErr
	}

	stats := c.snapshot()
	r.logger.Info("ingest finished",
		"lines", stats.Lines,
		"contributions", stats.Contributions,
		"replays", stats.Replays,
		"malformed", stats.Malformed,
		"resolutions", stats.Resolutions,
	)
	if err != nil && ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, err
}

func (r *Runner) read(ctx context.Context, in io.Reader, queues []chan contribution, c *counters) error {
	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		c.lines.Add(1)

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		contrib, err := parseLine(text)
		if err != nil {
			c.malformed.Add(1)
			r.logger.Warn("skipping malformed line", "line", line, "error", err)
			continue
		}
		contrib.line = line

		q := queues[partition(contrib.key, len(queues))]
		select {
		case q <- contrib:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (r *Runner) work(ctx context.Context, q <-chan contribution, c *counters) error {
	for contrib := range q {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.filter != nil && !contrib.generatedID && r.filter.CheckAndMark(contrib.id) {
			c.replays.Add(1)
			r.logger.Debug("dropping replayed contribution", "id", contrib.id, "line", contrib.line)
			continue
		}

		values, reached := r.acc.Add(contrib.key, contrib.value)
		c.contributions.Add(1)
		if !reached {
			continue
		}

		c.resolutions.Add(1)
		if r.sink == nil {
			continue
		}
		res := Resolution{
			Key:            contrib.key,
			Values:         values,
			Quorum:         r.acc.Quorum(),
			ContributionID: contrib.id,
			Line:           contrib.line,
		}
		if err := r.sink(ctx, res); err != nil {
			return fmt.Errorf("sink rejected resolution for %q: %w", contrib.key, err)
		}
	}
	return nil
}

var errFieldCount = errors.New("expected key value [contribution-id]")

func parseLine(text string) (contribution, error) {
	fields := strings.Fields(text)
	switch len(fields) {
	case 2:
		return contribution{key: fields[0], value: fields[1], id: uuid.NewString(), generatedID: true}, nil
	case 3:
		return contribution{key: fields[0], value: fields[1], id: fields[2]}, nil
	default:
		return contribution{}, fmt.Errorf("%w: got %d fields", errFieldCount, len(fields))
	}
}

// partition keeps every contribution for a key on the same worker.
func partition(key string, n int) int {
	if n == 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
