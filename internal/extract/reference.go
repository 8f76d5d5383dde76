package extract

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	maxReferenceChunks    = 5
	maxReferenceChunkSize = 2000
)

// Source is an uploaded file waiting to be read.
type Source struct {
	Name string
	R    io.ReaderAt
	Size int64
}

// ExtractReference reads notes files used as reference material. Files that
// cannot be read are skipped with a warning. The result is already chunked.
func (e *Extractor) ExtractReference(ctx context.Context, sources []Source) string {
	var parts []string
	for _, src := range sources {
		head := make([]byte, 16)
		n, _ := src.R.ReadAt(head, 0)

		format, err := DetectFormat(src.Name, head[:n])
		if err == nil {
			var doc Document
			doc, err = e.Extract(ctx, src.R, src.Size, format)
			if err == nil {
				parts = append(parts, doc.Text)
				continue
			}
		}
		log.Warn().Err(err).Str("file", src.Name).Msg("could not process notes file")
	}
	return ChunkReference(strings.Join(parts, "\n\n"))
}

var sentence = regexp.MustCompile(`[^.!?]+[.!?]*`)

// ChunkReference packs sentences into chunks of at most 2000 characters and
// keeps the first five. A single sentence longer than the limit becomes its
// own chunk.
func ChunkReference(content string) string {
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, s := range sentence.FindAllString(content, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || strings.Trim(s, ".!?") == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(s) > maxReferenceChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
		if len(chunks) >= maxReferenceChunks {
			break
		}
	}
	flush()

	if len(chunks) > maxReferenceChunks {
		chunks = chunks[:maxReferenceChunks]
	}
	return strings.Join(chunks, "\n\n")
}
