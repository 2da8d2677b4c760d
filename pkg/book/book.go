// Package book keeps opening move counts keyed by packed position.
package book

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"zshogi/pkg/shogi"
)

var ErrNotFound = errors.New("position not in book")

// Entry is the value stored per position. SFEN is the first text seen for
// the position, move number included.
type Entry struct {
	SFEN  string            `json:"sfen"`
	Moves map[string]uint32 `json:"moves"`
}

type MoveCount struct {
	Move  string
	Count uint32
}

// Total is the number of times the position was reached with a move.
func (e Entry) Total() uint32 {
	var n uint32
	for _, c := range e.Moves {
		n += c
	}
	return n
}

// Ranked returns moves by count descending, then by text.
func (e Entry) Ranked() []MoveCount {
	ms := make([]MoveCount, 0, len(e.Moves))
	for m, c := range e.Moves {
		ms = append(ms, MoveCount{m, c})
	}
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Count != ms[j].Count {
			return ms[i].Count > ms[j].Count
		}
		return ms[i].Move < ms[j].Move
	})
	return ms
}

// Sample is one move played from a position.
type Sample struct {
	Key  shogi.Packed256
	SFEN string
	Move shogi.Move
}

// NewSample packs pos. It fails for positions without both kings or with
// a non-standard piece set.
func NewSample(pos *shogi.Position, m shogi.Move) (Sample, error) {
	packed, err := shogi.Pack256(pos)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Key: packed, SFEN: pos.SFEN(), Move: m}, nil
}

// Book wraps a badger database. Writes are serialized so concurrent
// feeders never hit transaction conflicts.
type Book struct {
	db *badger.DB
	mu sync.Mutex
}

// Open opens or creates a book in dir.
func Open(dir string) (*Book, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return open(opts)
}

func OpenInMemory() (*Book, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Book, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Book{db: db}, nil
}

func (b *Book) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Add records that m was played from pos.
func (b *Book) Add(pos *shogi.Position, m shogi.Move) error {
	s, err := NewSample(pos, m)
	if err != nil {
		return err
	}
	return b.AddSamples([]Sample{s})
}

// AddSamples counts every sample in one transaction.
func (b *Book) AddSamples(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		pending := make(map[shogi.Packed256]*Entry)
		for _, s := range samples {
			e := pending[s.Key]
			if e == nil {
				loaded, err := getEntry(txn, s.Key.Bytes())
				if errors.Is(err, ErrNotFound) {
					loaded = Entry{SFEN: s.SFEN, Moves: make(map[string]uint32)}
				} else if err != nil {
					return err
				}
				e = &loaded
				pending[s.Key] = e
			}
			e.Moves[s.Move.String()]++
		}
		for key, e := range pending {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(key.Bytes(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lookup returns the entry for pos or ErrNotFound.
func (b *Book) Lookup(pos *shogi.Position) (Entry, error) {
	packed, err := shogi.Pack256(pos)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	err = b.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getEntry(txn, packed.Bytes())
		return err
	})
	return e, err
}

func getEntry(txn *badger.Txn, key []byte) (Entry, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err
}

// Each calls fn for every entry in key order.
func (b *Book) Each(fn func(key shogi.Packed256, e Entry) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key, err := shogi.Packed256FromBytes(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			var e Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if err := fn(key, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Book) Len() (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Prune deletes positions reached fewer than threshold times and returns
// how many were removed.
func (b *Book) Prune(threshold uint32) (int, error) {
	var stale [][]byte
	err := b.Each(func(key shogi.Packed256, e Entry) error {
		if e.Total() < threshold {
			stale = append(stale, key.Bytes())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// WriteYaneuraOuDB writes the book in the YANEURAOU-DB2016 text format,
// positions sorted by SFEN.
func (b *Book) WriteYaneuraOuDB(w io.Writer) error {
	var entries []Entry
	if err := b.Each(func(_ shogi.Packed256, e Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SFEN < entries[j].SFEN
	})

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#YANEURAOU-DB2016 1.00")
	for _, e := range entries {
		fmt.Fprintf(bw, "sfen %s\n", e.SFEN)
		// <move> <response> <eval> <depth> <count>
		for _, m := range e.Ranked() {
			fmt.Fprintf(bw, "%s none 0 0 %d\n", m.Move, m.Count)
		}
	}
	return bw.Flush()
}
