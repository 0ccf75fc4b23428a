package lifecycle

import (
	"io"

	"github.com/charmbracelet/log"
)

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}
