// Package extract turns uploaded files into plain text. Plain text and
// markup are read directly, PDFs are partitioned with the pdf library, and
// audio/video go through the transcription collaborator (video is demuxed
// to a WAV track with ffmpeg first).
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Media types attached to chunk metadata.
const (
	MediaText  = "text"
	MediaAudio = "audio"
	MediaVideo = "video"
	MediaPDF   = "pdf"
)

var (
	// ErrUnsupportedType means no extractor exists for the file's extension.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrExtractionFailed means the extractor ran but produced no usable text.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrMissingCapability means an optional extractor dependency is absent
	// (no transcription server configured, or ffmpeg not installed).
	ErrMissingCapability = errors.New("missing extraction capability")
)

var (
	textExtensions  = map[string]bool{".txt": true, ".md": true, ".py": true, ".go": true, ".json": true, ".csv": true, ".html": true, ".htm": true, ".js": true, ".css": true}
	audioExtensions = map[string]bool{".mp3": true, ".wav": true, ".ogg": true}
	videoExtensions = map[string]bool{".mp4": true, ".avi": true, ".mov": true}
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Extractor extracts plain text from files. A nil Transcriber makes
// audio/video extraction report ErrMissingCapability.
type Extractor struct {
	transcriber Transcriber
}

// New creates an Extractor with the given transcription collaborator.
func New(transcriber Transcriber) *Extractor {
	return &Extractor{transcriber: transcriber}
}

// Classify maps a filename to its media type by extension.
func Classify(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case textExtensions[ext]:
		return MediaText, nil
	case ext == ".pdf":
		return MediaPDF, nil
	case audioExtensions[ext]:
		return MediaAudio, nil
	case videoExtensions[ext]:
		return MediaVideo, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// Classify maps a filename to its media type by extension.
func (e *Extractor) Classify(filename string) (string, error) {
	return Classify(filename)
}

// Extract returns the plain text of the file at path, classified by the
// declared filename. The returned media type matches Classify.
func (e *Extractor) Extract(ctx context.Context, path, filename string) (string, string, error) {
	mediaType, err := Classify(filename)
	if err != nil {
		return "", "", err
	}

	var text string
	switch mediaType {
	case MediaText:
		text, err = readText(path, filename)
	case MediaPDF:
		text, err = readPDF(path)
	case MediaAudio:
		text, err = e.transcribeAudio(ctx, path)
	case MediaVideo:
		text, err = e.transcribeVideo(ctx, path)
	}
	if err != nil {
		return "", mediaType, err
	}

	if strings.TrimSpace(text) == "" {
		return "", mediaType, fmt.Errorf("%w: no text in %s", ErrExtractionFailed, filename)
	}
	return text, mediaType, nil
}

func readText(path, filename string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, filename, err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".html" || ext == ".htm" {
		return stripMarkup(data)
	}
	return string(data), nil
}

// stripMarkup walks the HTML tree and collects text nodes, skipping
// script and style subtrees.
func stripMarkup(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: parsing html: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return sb.String(), nil
}

func readPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", ErrExtractionFailed, err)
	}
	defer f.Close()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: partitioning pdf: %v", ErrExtractionFailed, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return "", fmt.Errorf("%w: reading pdf text: %v", ErrExtractionFailed, err)
	}
	return buf.String(), nil
}

func (e *Extractor) transcribeAudio(ctx context.Context, path string) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("%w: no transcription server configured", ErrMissingCapability)
	}
	text, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return text, nil
}

// transcribeVideo demuxes the audio track to a temporary WAV with ffmpeg,
// then transcribes it.
func (e *Extractor) transcribeVideo(ctx context.Context, path string) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("%w: no transcription server configured", ErrMissingCapability)
	}

	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found in PATH", ErrMissingCapability)
	}

	wav, err := os.CreateTemp("", "docqa-demux-*.wav")
	if err != nil {
		return "", fmt.Errorf("creating temp audio file: %w", err)
	}
	wav.Close()
	defer os.Remove(wav.Name())

	cmd := exec.CommandContext(ctx, ffmpeg, "-y", "-i", path, "-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", wav.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: demuxing audio track: %v (%s)", ErrExtractionFailed, err, firstLine(out))
	}

	return e.transcribeAudio(ctx, wav.Name())
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
