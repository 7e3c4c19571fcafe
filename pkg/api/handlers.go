package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/query"
	"github.com/ssargent/frost/pkg/report"
)

const bagExt = ".bag"

var errBadName = errors.New("invalid bag name")

type bagFile struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleListBags(w http.ResponseWriter, r *http.Request) {
	files, err := s.bagFiles()
	if err != nil {
		s.logger.Error("failed to list data directory", "error", err)
		sendError(w, "Failed to list bags", http.StatusInternalServerError)
		return
	}

	summaries := make([]BagSummary, 0, len(files))
	for _, f := range files {
		summary := BagSummary{Name: f.name, SizeBytes: f.size, ModTime: f.modTime}
		meta, err := s.readMetadata(f.path)
		if err != nil {
			// One unreadable file does not fail the listing.
			summary.Error = err.Error()
		} else {
			summary.Messages = meta.MessageCount()
			summary.Topics = meta.Topics()
			summary.DurationSeconds = meta.Duration().Seconds()
		}
		summaries = append(summaries, summary)
	}
	sendSuccess(w, summaries)
}

func (s *Server) handleGetBag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.resolve(name)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	meta, err := s.readMetadata(path)
	if err != nil {
		s.sendBagError(w, name, err)
		return
	}

	summary := report.NewSummary(meta, false)
	summary.Path = name
	sendSuccess(w, summary)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.resolve(name)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), s.config.MaxMessages)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	withData := r.URL.Query().Get("data") == "true"

	start := time.Now()
	b, err := bag.Open(path, bag.WithMetrics(s.chunkMetrics), bag.WithLogger(s.logger))
	s.metrics.RecordBagOpen(err == nil, time.Since(start))
	if err != nil {
		s.sendBagError(w, name, err)
		return
	}
	defer b.Close()

	it, err := b.ReadMessages(q)
	if err != nil {
		s.sendBagError(w, name, err)
		return
	}
	defer it.Close()

	resp := MessagesResponse{Query: q.String(), Messages: []MessageRecord{}}
	for it.Next() {
		if len(resp.Messages) == limit {
			resp.Truncated = true
			break
		}
		msg := it.Message()
		rec := MessageRecord{
			Time:  msg.Time.String(),
			Stamp: msg.Time.Float64(),
			Topic: msg.Topic,
			Type:  msg.Connection.Type,
			Size:  msg.Size(),
		}
		if withData {
			rec.Data = append([]byte(nil), msg.Data...)
		}
		resp.Messages = append(resp.Messages, rec)
	}
	if err := it.Err(); err != nil {
		s.sendBagError(w, name, err)
		return
	}

	s.metrics.RecordMessagesServed(len(resp.Messages))
	sendSuccess(w, resp)
}

// readMetadata reads through the configured source and records metrics.
func (s *Server) readMetadata(path string) (*bag.Metadata, error) {
	start := time.Now()
	meta, err := s.source.ReadMetadata(path)
	s.metrics.RecordBagOpen(err == nil, time.Since(start))
	return meta, err
}

// resolve maps a bag name from the URL to a path inside the data directory.
func (s *Server) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || filepath.Ext(name) != bagExt {
		return "", errors.Wrapf(errBadName, "%q", name)
	}
	return filepath.Join(s.config.DataDir, name), nil
}

// bagFiles lists the *.bag files of the data directory, sorted by name.
func (s *Server) bagFiles() ([]bagFile, error) {
	entries, err := os.ReadDir(s.config.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read data directory")
	}
	var files []bagFile
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != bagExt || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, bagFile{
			name:    e.Name(),
			path:    filepath.Join(s.config.DataDir, e.Name()),
			size:    info.Size(),
			modTime: info.ModTime().UTC(),
		})
	}
	return files, nil
}

func (s *Server) sendBagError(w http.ResponseWriter, name string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("failed to read bag", "name", name, "error", err)
	} else {
		s.logger.Debug("bag request failed", "name", name, "status", code, "error", err)
	}
	if code == http.StatusNotFound {
		sendError(w, "Bag not found", code)
		return
	}
	sendError(w, err.Error(), code)
}

// statusFor maps read errors to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, os.ErrNotExist) {
		return http.StatusNotFound
	}
	switch bagerr.KindOf(err) {
	case bagerr.KindInvalidFormat, bagerr.KindMalformedRecord, bagerr.KindMissingIndex,
		bagerr.KindUnsupportedCompression, bagerr.KindDecompression:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// parseQuery builds a query from repeated topic parameters and optional
// start and end times. A missing bound is open.
func parseQuery(r *http.Request) (query.Query, error) {
	values := r.URL.Query()
	q := query.All()
	if topics := values["topic"]; len(topics) > 0 {
		q = query.ByTopic(topics...)
	}

	startStr, endStr := values.Get("start"), values.Get("end")
	if startStr == "" && endStr == "" {
		return q, nil
	}
	start, end := codec.MinTime, codec.MaxTime
	var err error
	if startStr != "" {
		if start, err = query.ParseTime(startStr); err != nil {
			return q, errors.Wrap(err, "invalid start")
		}
	}
	if endStr != "" {
		if end, err = query.ParseTime(endStr); err != nil {
			return q, errors.Wrap(err, "invalid end")
		}
	}
	return q.WithTimeRange(start, end), nil
}

func parseLimit(s string, maxLimit int) (int, error) {
	if s == "" {
		return min(defaultLimit, maxLimit), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid limit %q", s)
	}
	return min(n, maxLimit), nil
}
