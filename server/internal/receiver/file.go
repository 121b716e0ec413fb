package receiver

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ReadDir reads every regular file in dir, in name order, and hands each
// non-blank line to rx. It returns the number of records stored. Per-line
// errors are counted by rx; only I/O failures are returned.
func ReadDir(ctx context.Context, dir string, rx *Receiver) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("receiver: read dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := ReadFile(ctx, filepath.Join(dir, name), rx)
		total += n
		if err != nil {
			return total, err
		}
	}
	slog.Info("receiver: directory loaded", "dir", dir, "files", len(names), "records", total)
	return total, nil
}

// ReadFile hands each non-blank line of path to rx and returns the number of
// records stored.
func ReadFile(ctx context.Context, path string, rx *Receiver) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("receiver: open %q: %w", path, err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if rx.Handle(path, line) == nil {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("receiver: scan %q: %w", path, err)
	}
	return n, nil
}
