package enrich

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"hivetrap/internal/metrics"
)

// Pipeline turns event lines into enriched lines. Valid JSON records gain
// geoip, threat_intel, threat_level and enriched_at; anything else is echoed
// verbatim and never dropped.
type Pipeline struct {
	geo    *GeoIPResolver
	threat *Assessor
	logger *slog.Logger
}

func NewPipeline(geo *GeoIPResolver, threat *Assessor, logger *slog.Logger) *Pipeline {
	return &Pipeline{geo: geo, threat: threat, logger: logger}
}

// ipFieldAliases mirrors the field names the capturing side has used over
// time; the first populated one wins.
var ipFieldAliases = []string{"ip", "source_ip", "client_ip"}

func (p *Pipeline) Enrich(ctx context.Context, line string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil || obj == nil {
		return line
	}

	ip := ""
	for _, key := range ipFieldAliases {
		if v, ok := obj[key].(string); ok && v != "" {
			ip = v
			break
		}
	}
	if ip == "" {
		return line
	}

	geo := p.geo.Resolve(ctx, ip)
	assessment := p.threat.Assess(ctx, ip, geo)
	obj["geoip"] = geo
	obj["threat_intel"] = assessment
	obj["threat_level"] = assessment.Level
	obj["enriched_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	out, err := json.Marshal(obj)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("enriched record marshal failed, passing through", "err", err)
		}
		return line
	}
	metrics.EnrichedRecords.Inc()
	return string(out)
}

// Run consumes lines until the input closes or ctx is cancelled; the record
// in flight is always finished and written before exit.
func (p *Pipeline) Run(ctx context.Context, in <-chan string, sink Sink) {
	for {
		select {
		case line, ok := <-in:
			if !ok {
				return
			}
			if err := sink.Write(p.Enrich(ctx, line)); err != nil && p.logger != nil {
				p.logger.Warn("enrichment sink write failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sink is where enriched lines go.
type Sink interface {
	Write(line string) error
	Close() error
}

type writerSink struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

func NewWriterSink(w io.Writer) Sink {
	s := &writerSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok && w != os.Stdout {
		s.c = c
	}
	return s
}

func NewFileSink(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewWriterSink(f), nil
}

func (s *writerSink) Write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *writerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// StartStdin feeds newline-delimited input into out, the original transport
// for this pipeline. Closes out at EOF.
func StartStdin(ctx context.Context, r io.Reader, out chan<- string, logger *slog.Logger) {
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && logger != nil {
			logger.Warn("stdin scanner error", "err", err)
		}
	}()
}
