package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/tidwall/gjson"
)

const maxLineBytes = 16 << 20

// File reads runs from an export on disk: either a JSON array of run
// objects or JSON Lines with one run per line.
type File struct {
	Path string
}

// Runs opens the file lazily on first iteration. Lines that are not valid
// JSON become runs carrying a DecodeError that the classifier rejects.
// Cancellation ends the stream with ctx.Err().
func (f File) Runs(ctx context.Context) iter.Seq2[types.Run, error] {
	return func(yield func(types.Run, error) bool) {
		fh, err := os.Open(f.Path)
		if err != nil {
			yield(types.Run{}, unavailable("open "+f.Path, err))
			return
		}
		defer fh.Close()

		br := bufio.NewReader(fh)
		first, err := peekNonSpace(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				yield(types.Run{}, unavailable("read "+f.Path, err))
			}
			return
		}
		if first == '[' {
			raw, err := readAll(br)
			if err != nil {
				yield(types.Run{}, unavailable("read "+f.Path, err))
				return
			}
			if !gjson.ValidBytes(raw) {
				yield(types.Run{}, unavailable("read "+f.Path, fmt.Errorf("invalid JSON array")))
				return
			}
			gjson.ParseBytes(raw).ForEach(func(_, value gjson.Result) bool {
				if err := ctx.Err(); err != nil {
					yield(types.Run{}, err)
					return false
				}
				return yield(decodeRun([]byte(value.Raw)), nil)
			})
			return
		}

		sc := bufio.NewScanner(br)
		sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
		line := 0
		for sc.Scan() {
			line++
			text := bytes.TrimSpace(sc.Bytes())
			if len(text) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(types.Run{}, err)
				return
			}
			run := types.Run{ID: fmt.Sprintf("%s:%d", f.Path, line), DecodeError: "invalid JSON"}
			if gjson.ValidBytes(text) {
				run = decodeRun(append([]byte(nil), text...))
				if run.ID == "" {
					run.ID = fmt.Sprintf("%s:%d", f.Path, line)
				}
			}
			if !yield(run, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(types.Run{}, unavailable("read "+f.Path, err))
		}
	}
}

// peekNonSpace returns the first non-whitespace byte without consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func readAll(br *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(br); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
