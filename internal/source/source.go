// Package source turns one upstream payload into member records.
package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/member-qa/internal/fetcher"
	"github.com/sells-group/member-qa/internal/model"
)

// Payload formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatAuto = "auto"
)

const hashPrefix = "sha256:"

// Options configures a Loader.
type Options struct {
	URL      string
	Format   string
	IDKeys   []string
	NameKeys []string
}

// Result is one load of the upstream feed.
type Result struct {
	Records     []model.MemberRecord
	Signature   string
	NotModified bool
	Skipped     int
}

// Loader fetches and decodes the member feed.
type Loader struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewLoader creates a Loader reading opts.URL through f.
func NewLoader(f fetcher.Fetcher, opts Options) *Loader {
	if opts.Format == "" {
		opts.Format = FormatAuto
	}
	if len(opts.IDKeys) == 0 {
		opts.IDKeys = []string{"id"}
	}
	if len(opts.NameKeys) == 0 {
		opts.NameKeys = []string{"name"}
	}
	return &Loader{fetcher: f, opts: opts}
}

// Load fetches the feed. prevSignature is the signature of the snapshot the
// caller already holds; when the upstream reports no change (ETag match or
// identical body hash) the result has NotModified set and no records.
func (l *Loader) Load(ctx context.Context, prevSignature string) (*Result, error) {
	etag := ""
	if prevSignature != "" && !strings.HasPrefix(prevSignature, hashPrefix) {
		etag = prevSignature
	}

	body, newETag, changed, err := l.fetcher.DownloadIfChanged(ctx, l.opts.URL, etag)
	if err != nil {
		return nil, eris.Wrap(err, "source: fetch")
	}
	if !changed {
		return &Result{Signature: prevSignature, NotModified: true}, nil
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "source: read body")
	}

	sig := newETag
	if sig == "" {
		sum := sha256.Sum256(data)
		sig = hashPrefix + hex.EncodeToString(sum[:])
	}
	if sig == prevSignature {
		return &Result{Signature: sig, NotModified: true}, nil
	}

	items, skipped, err := l.decode(ctx, data)
	if err != nil {
		return nil, err
	}
	records := l.ToRecords(items)

	zap.L().Debug("source: loaded feed",
		zap.String("url", l.opts.URL),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
		zap.String("signature", sig),
	)
	return &Result{Records: records, Signature: sig, Skipped: skipped}, nil
}

func (l *Loader) decode(ctx context.Context, data []byte) ([]map[string]any, int, error) {
	format := l.opts.Format
	if format == FormatAuto {
		format = FormatJSON
		if strings.HasSuffix(strings.ToLower(l.opts.URL), ".csv") {
			format = FormatCSV
		}
	}

	switch format {
	case FormatJSON:
		items, skipped, err := fetcher.DecodeJSONItems(data)
		if err != nil {
			return nil, 0, eris.Wrap(err, "source: decode json")
		}
		return items, skipped, nil
	case FormatCSV:
		items, err := fetcher.DecodeCSVItems(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, 0, eris.Wrap(err, "source: decode csv")
		}
		return items, 0, nil
	default:
		return nil, 0, eris.Errorf("source: unknown format %q", format)
	}
}

// ToRecords converts decoded items into member records. The first ID key and
// name key present on an item become the record's ID and display name; all
// remaining keys become fields. Items without an ID get a positional one and
// repeated IDs are suffixed so IDs stay unique within the result.
func (l *Loader) ToRecords(items []map[string]any) []model.MemberRecord {
	records := make([]model.MemberRecord, 0, len(items))
	seen := make(map[string]int, len(items))

	for i, item := range items {
		id, idKey := firstScalar(item, l.opts.IDKeys)
		if id == "" {
			id = fmt.Sprintf("row-%d", i)
		}
		if n := seen[id]; n > 0 {
			base := id
			for {
				n++
				id = fmt.Sprintf("%s#%d", base, n)
				if seen[id] == 0 {
					break
				}
			}
			seen[base] = n
			zap.L().Warn("source: repeated record id", zap.String("id", base), zap.String("assigned", id))
		}
		seen[id]++

		name, nameKey := firstScalar(item, l.opts.NameKeys)

		fields := make(map[string]any, len(item))
		for k, v := range item {
			if k == idKey || k == nameKey {
				continue
			}
			fields[k] = v
		}
		records = append(records, model.MemberRecord{ID: id, Name: strings.TrimSpace(name), Fields: fields})
	}
	return records
}

// firstScalar returns the first key in keys holding a non-empty scalar,
// rendered as a string, and the key it came from.
func firstScalar(item map[string]any, keys []string) (string, string) {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if strings.TrimSpace(s) != "" {
			return s, k
		}
	}
	return "", ""
}
