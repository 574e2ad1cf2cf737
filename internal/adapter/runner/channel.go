package runner

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/bnema/videocut/internal/domain"
)

// Encoder writes result events as newline-delimited JSON. It is safe for
// concurrent use so the heartbeat goroutine and the executor can share it.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Encode(ev domain.ResultEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(ev)
}

// Decoder reads the events written by an Encoder, in order.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode returns io.EOF once the writer side is closed.
func (d *Decoder) Decode() (domain.ResultEvent, error) {
	var ev domain.ResultEvent
	err := d.dec.Decode(&ev)
	return ev, err
}
