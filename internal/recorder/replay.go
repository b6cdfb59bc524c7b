package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// ReadLines parses a recording. Blank lines are skipped.
func ReadLines(r io.Reader) ([]Line, error) {
	var out []Line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var l Line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, l)
	}
	return out, sc.Err()
}

// ReadFile is ReadLines on a file path.
func ReadFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLines(f)
}

// Replay calls emit for each line at its recorded offset, divided by speed.
// A speed <= 0 replays without delays.
func Replay(ctx context.Context, lines []Line, speed float64, emit func(types.Detection)) error {
	start := time.Now()
	for _, l := range lines {
		if speed > 0 {
			due := start.Add(time.Duration(float64(l.OffsetMs) * float64(time.Millisecond) / speed))
			if wait := time.Until(due); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		emit(l.Detection)
	}
	return nil
}
