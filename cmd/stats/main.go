package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"zshogi/pkg/kif"
	"zshogi/pkg/record"
)

type ratingStats struct {
	binSize     int
	known       int
	unknown     int
	min         int
	max         int
	initialized bool
	bins        map[int]int
}

type userRatingAgg struct {
	sum   int64
	count int
}

func newRatingStats(binSize int) *ratingStats {
	return &ratingStats{
		binSize: binSize,
		bins:    make(map[int]int),
	}
}

func (rs *ratingStats) Add(rating int32) {
	if rating <= 0 {
		rs.unknown++
		return
	}
	value := int(rating)
	rs.known++
	if !rs.initialized {
		rs.min, rs.max = value, value
		rs.initialized = true
	} else {
		rs.min = min(rs.min, value)
		rs.max = max(rs.max, value)
	}
	rs.bins[(value/rs.binSize)*rs.binSize]++
}

// summary aggregates results and game lengths across records.
type summary struct {
	games     int
	moves     int
	longest   int
	results   map[string]int
	reasons   map[string]int
	evaluated int
	users     map[string]*userRatingAgg
	convert   []*record.Conversion
}

func newSummary(thresholds []int) *summary {
	s := &summary{
		results: make(map[string]int),
		reasons: make(map[string]int),
		users:   make(map[string]*userRatingAgg),
	}
	for _, th := range thresholds {
		s.convert = append(s.convert, &record.Conversion{Threshold: th})
	}
	return s
}

func (s *summary) add(r record.GameRecord) {
	s.games++
	s.moves += int(r.MoveCount)
	s.longest = max(s.longest, int(r.MoveCount))
	s.results[r.Result]++
	if r.WinReason != "" {
		s.reasons[r.WinReason]++
	}
	if len(r.MoveEvals) > 0 {
		s.evaluated++
		for _, c := range s.convert {
			c.Add(r)
		}
	}
	s.addUser(r.SenteName, r.SenteRating)
	s.addUser(r.GoteName, r.GoteRating)
}

func (s *summary) addUser(name string, rating int32) {
	if name == "" {
		return
	}
	entry, ok := s.users[name]
	if !ok {
		entry = &userRatingAgg{}
		s.users[name] = entry
	}
	if rating > 0 {
		entry.sum += int64(rating)
		entry.count++
	}
}

func main() {
	kifDir := flag.String("kif-dir", "", "input directory for KIF files")
	parquetPath := flag.String("parquet", "", "input parquet file")
	binSize := flag.Int("bin-size", 100, "rating bin size")
	minGames := flag.Int("min-games", 2, "minimum games per user to count")
	thresholdsArg := flag.String("thresholds", "300,500,1000", "comma-separated eval thresholds for conversion rates")
	flag.Parse()

	if *binSize <= 0 {
		fatal(fmt.Errorf("bin-size must be > 0"))
	}
	if *minGames <= 0 {
		fatal(fmt.Errorf("min-games must be > 0"))
	}
	if (*kifDir == "") == (*parquetPath == "") {
		fatal(fmt.Errorf("specify exactly one of -kif-dir or -parquet"))
	}

	thresholds, err := parseIntList(*thresholdsArg)
	if err != nil {
		fatal(err)
	}
	sort.Ints(thresholds)

	s := newSummary(thresholds)
	failed := 0
	if *parquetPath != "" {
		if err := record.ScanParquet(*parquetPath, 4, func(r record.GameRecord) error {
			s.add(r)
			return nil
		}); err != nil {
			fatal(err)
		}
		fmt.Printf("input parquet: %s\n", *parquetPath)
	} else {
		files, err := kif.CollectKIF(*kifDir)
		if err != nil {
			fatal(err)
		}
		if len(files) == 0 {
			fatal(fmt.Errorf("no .kif files found in %s", *kifDir))
		}
		for _, path := range files {
			g, err := kif.Load(path)
			if err == nil {
				var r record.GameRecord
				r, err = record.FromGame(path, g)
				if errors.Is(err, kif.ErrNoMoves) {
					// Aborted before the first move; still a game.
					r, err = record.GameRecord{GameID: path, Result: g.Result, WinReason: g.WinReason,
						SenteName: g.Players.SenteName, SenteRating: g.Players.SenteRating,
						GoteName: g.Players.GoteName, GoteRating: g.Players.GoteRating}, nil
				}
				if err == nil {
					s.add(r)
				}
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to parse %s: %v\n", path, err)
				failed++
			}
		}
		fmt.Printf("kif dir: %s\n", *kifDir)
	}

	fmt.Printf("failed files: %d\n", failed)
	printSummary(s, *binSize, *minGames)
}

func printSummary(s *summary, binSize, minGames int) {
	fmt.Printf("games: %d (evaluated %d)\n", s.games, s.evaluated)
	if s.games > 0 {
		fmt.Printf("moves: total=%d avg=%.1f longest=%d\n", s.moves, float64(s.moves)/float64(s.games), s.longest)
	}
	fmt.Println("results:")
	for _, k := range sortedKeys(s.results) {
		fmt.Printf("  %s,%d\n", k, s.results[k])
	}
	fmt.Println("reasons:")
	for _, k := range sortedKeys(s.reasons) {
		fmt.Printf("  %s,%d\n", k, s.reasons[k])
	}
	if len(s.convert) > 0 && s.evaluated > 0 {
		fmt.Println("threshold,crossings,wins,win_rate")
		for _, c := range s.convert {
			fmt.Printf("%d,%d,%d,%.6f\n", c.Threshold, c.Crossings, c.Wins, c.Rate())
		}
	}

	ratings := newRatingStats(binSize)
	unknownUsers, usersAtLeast := 0, 0
	for _, agg := range s.users {
		if agg.count == 0 {
			unknownUsers++
			continue
		}
		if agg.count >= minGames {
			usersAtLeast++
		}
		ratings.Add(int32(agg.sum / int64(agg.count)))
	}
	fmt.Printf("unique users: %d\n", len(s.users))
	fmt.Printf("ratings: known=%d (users without rating=%d)\n", ratings.known, unknownUsers)
	fmt.Printf("users with >= %d rated games: %d\n", minGames, usersAtLeast)
	if ratings.known > 0 {
		fmt.Printf("rating range: %d-%d\n", ratings.min, ratings.max)
	}
	fmt.Printf("rating distribution (bin size=%d):\n", ratings.binSize)
	keys := make([]int, 0, len(ratings.bins))
	for key := range ratings.bins {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	for _, start := range keys {
		fmt.Printf("%d-%d,%d\n", start, start+ratings.binSize-1, ratings.bins[start])
	}
}

func parseIntList(raw string) ([]int, error) {
	var values []int
	for _, part := range strings.Split(raw, ",") {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		value, err := strconv.Atoi(segment)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
