package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ctxCheckEvery is how many lines ScanChains reads between cancellation checks.
const ctxCheckEvery = 4096

// ScanChains is the light first pass: it reads every line of src but only
// runs the chain pattern on lines holding both '|' and '['. fn is called
// for every node in file order, so the same external id can arrive twice.
func ScanChains(ctx context.Context, src Source, fn func(ChainNode)) error {
	rc, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(decode(rc), 64*1024)
	var n int
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			n++
			if n%ctxCheckEvery == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
			}
			if strings.Contains(line, "|") && strings.Contains(line, "[") {
				for _, node := range parseChain(line) {
					fn(node)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			return fmt.Errorf("scan %s: %w", src.Name(), err)
		}
	}
}
