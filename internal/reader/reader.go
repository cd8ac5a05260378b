// internal/reader/reader.go
package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// DefaultChunkLimit is the per-request register ceiling of the kiosk firmware.
const DefaultChunkLimit uint16 = 16

// ErrChunkReadFailed marks a chunk whose addresses are missing from a result.
var ErrChunkReadFailed = errors.New("reader: chunk read failed")

// RegisterReader is the part of the port manager the reader needs.
type RegisterReader interface {
	ReadRegisters(ctx context.Context, path string, unitID uint8, start, count uint16) ([]uint16, error)
}

// Reader turns sparse address sets into batched wire reads against one catalog.
type Reader struct {
	ports   RegisterReader
	catalog *registers.Catalog
	limit   uint16
	log     zerolog.Logger
}

// New creates a reader. A zero chunkLimit selects DefaultChunkLimit.
func New(ports RegisterReader, catalog *registers.Catalog, chunkLimit uint16, log zerolog.Logger) *Reader {
	if chunkLimit == 0 {
		chunkLimit = DefaultChunkLimit
	}
	return &Reader{
		ports:   ports,
		catalog: catalog,
		limit:   chunkLimit,
		log:     log.With().Str("component", "reader").Logger(),
	}
}

func (r *Reader) Catalog() *registers.Catalog { return r.catalog }

// ChunkLimit returns the effective per-request ceiling.
func (r *Reader) ChunkLimit() uint16 { return r.limit }

// ReadMany reads every wanted address and returns readings keyed by name.
//
// Best effort: a failed chunk is logged and its addresses are absent from
// the result. Addresses unknown to the catalog are dropped.
func (r *Reader) ReadMany(ctx context.Context, path string, unitID uint8, wanted []uint16) map[string]registers.Reading {
	out, _ := r.ReadManyReport(ctx, path, unitID, wanted)
	return out
}

// ReadManyReport is ReadMany that also returns the chunk failures, each
// wrapping ErrChunkReadFailed. A canceled context stops issuing further chunks.
func (r *Reader) ReadManyReport(ctx context.Context, path string, unitID uint8, wanted []uint16) (map[string]registers.Reading, []error) {
	out := make(map[string]registers.Reading, len(wanted))
	var failures []error

	for _, ch := range Plan(wanted, r.limit) {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Errorf("%w: %d+%d: %v", ErrChunkReadFailed, ch.Start, ch.Count, err))
			continue
		}

		raw, err := r.ports.ReadRegisters(ctx, path, unitID, ch.Start, ch.Count)
		if err == nil && len(raw) != int(ch.Count) {
			err = fmt.Errorf("short response: got %d registers, want %d", len(raw), ch.Count)
		}
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("port", path).
				Uint8("unit", unitID).
				Uint16("start", ch.Start).
				Uint16("count", ch.Count).
				Msg("chunk read failed")
			failures = append(failures, fmt.Errorf("%w: %d+%d: %v", ErrChunkReadFailed, ch.Start, ch.Count, err))
			continue
		}

		for _, rd := range registers.ParseBlock(r.catalog, ch.Start, raw) {
			if rd.Name == registers.UnknownName {
				continue
			}
			out[rd.Name] = rd
		}
	}
	return out, failures
}

// ReadAll reads the whole catalog.
func (r *Reader) ReadAll(ctx context.Context, path string, unitID uint8) map[string]registers.Reading {
	return r.ReadMany(ctx, path, unitID, r.catalog.Addresses())
}
