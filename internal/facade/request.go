package facade

import (
	"io"
	"net/http"

	"github.com/obscore/supervisor/internal/schedule"
)

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func parseDescriptor(body []byte) (*schedule.Descriptor, error) {
	return schedule.Parse(body)
}
