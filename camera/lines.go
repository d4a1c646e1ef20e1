package camera

import (
	"bufio"
	"context"
	"io"

	goerrors "github.com/goliatone/go-errors"

	scanner "github.com/goliatone/go-scanner"
)

// PumpLines publishes every line read from r into feed until r is exhausted
// or ctx is done. Handheld QR readers present themselves as keyboards and
// terminate each code with a newline.
func PumpLines(ctx context.Context, r io.Reader, feed *Feed, source string) error {
	if source == "" {
		source = "reader"
	}

	lines := bufio.NewScanner(r)
	for lines.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !feed.Publish(scanner.Token(lines.Text()), source) {
			feed.logger.Debug("decoded line dropped", "source", source)
		}
	}

	if err := lines.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read decoded lines")
	}
	return nil
}
