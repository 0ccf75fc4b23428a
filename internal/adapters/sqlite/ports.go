package sqlite

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// lockRetryInterval is the interval between attempts to take the port
// allocation lock.
const lockRetryInterval = 50 * time.Millisecond

// PortRange bounds the host ports handed out to demos.
type PortRange struct {
	Min, Max int
}

// PortAllocator reserves host ports for demos. Reservations live in the
// database so that a port is never handed out twice, and a file lock next to
// the database serializes allocations across origamid processes.
type PortAllocator struct {
	store    *Store
	rng      PortRange
	lockPath string
	// probe reports whether the host port can currently be bound.
	probe func(port int) bool
	log   *log.Logger
}

var _ ports.PortAllocator = (*PortAllocator)(nil)

// NewPortAllocator creates an allocator handing out ports from rng.
func NewPortAllocator(store *Store, rng PortRange, logger *log.Logger) (*PortAllocator, error) {
	if rng.Min <= 0 || rng.Max > 65535 || rng.Min > rng.Max {
		return nil, fmt.Errorf("invalid port range %d-%d", rng.Min, rng.Max)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &PortAllocator{
		store:    store,
		rng:      rng,
		lockPath: store.path + ".ports.lock",
		probe:    portFree,
		log:      logger,
	}, nil
}

// Allocate reserves the lowest port of the range that no demo holds and
// that is currently free on the host.
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	fl, err := acquireFileLock(ctx, a.lockPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := fl.Close(); err != nil {
			a.log.Debug("failed to release port lock", "path", fl.Path(), "err", err)
		}
	}()

	taken, err := a.takenPorts(ctx)
	if err != nil {
		return 0, err
	}

	for port := a.rng.Min; port <= a.rng.Max; port++ {
		if _, ok := taken[port]; ok {
			continue
		}
		if !a.probe(port) {
			a.log.Debug("port busy on host, skipping", "port", port)
			continue
		}
		if _, err := a.store.db.ExecContext(ctx,
			`INSERT INTO port_reservations (port, reserved_at) VALUES (?, ?)`,
			port, time.Now().UTC(),
		); err != nil {
			return 0, fmt.Errorf("reserve port %d: %w", port, err)
		}
		return port, nil
	}
	return 0, fmt.Errorf("%w %d-%d", domain.ErrPortsExhausted, a.rng.Min, a.rng.Max)
}

func (a *PortAllocator) takenPorts(ctx context.Context) (map[int]struct{}, error) {
	rows, err := a.store.db.QueryContext(ctx, `
		SELECT port FROM demos WHERE port IS NOT NULL
		UNION
		SELECT port FROM port_reservations`)
	if err != nil {
		return nil, fmt.Errorf("query taken ports: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	taken := make(map[int]struct{})
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return nil, fmt.Errorf("scan port row: %w", err)
		}
		taken[port] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate port rows: %w", err)
	}
	return taken, nil
}

func acquireFileLock(ctx context.Context, lockPath string) (*flock.Flock, error) {
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring file lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("acquiring file lock %s: lock not acquired", lockPath)
	}
	return fl, nil
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
