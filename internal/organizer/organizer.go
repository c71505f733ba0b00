// Package organizer places ingested media under the templated library tree,
// never overwriting existing files, and writes the sidecar descriptor and
// cover image alongside.
package organizer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hubward/internal/logging"
	"hubward/internal/services"
	"hubward/internal/textutil"
)

// DefaultTemplate is the stock destination layout.
const DefaultTemplate = "{Category}/{HubName} ({Year})/{Format}/{HubName} ({Edition}){Ext}"

// renameAttempts bounds retries on transient rename failures.
const renameAttempts = 3

// Placement describes one file's destination inputs.
type Placement struct {
	Category string
	HubName  string
	Year     string
	Format   string
	Edition  string
	Ext      string
}

// Organizer resolves destinations and moves files into the library.
type Organizer struct {
	root     string
	template string
	logger   *slog.Logger
}

// New constructs an organizer rooted at the library directory. An empty
// template selects DefaultTemplate.
func New(root, template string, logger *slog.Logger) *Organizer {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	return &Organizer{
		root:     root,
		template: template,
		logger:   logging.NewComponentLogger(logger, "organizer"),
	}
}

// ResolvePath expands the template for the placement, sanitising each
// segment. Empty expansions collapse: "Dune ()" becomes "Dune", and empty
// directory segments are dropped.
func (o *Organizer) ResolvePath(p Placement) string {
	replacer := strings.NewReplacer(
		"{Category}", textutil.SanitizeFilename(p.Category),
		"{HubName}", textutil.SanitizeFilename(p.HubName),
		"{Year}", textutil.SanitizeFilename(p.Year),
		"{Format}", textutil.SanitizeFilename(p.Format),
		"{Edition}", textutil.SanitizeFilename(p.Edition),
		"{Ext}", p.Ext,
	)
	expanded := replacer.Replace(o.template)

	segments := strings.Split(expanded, "/")
	kept := segments[:0]
	for _, segment := range segments {
		segment = collapseEmptyParens(segment)
		if segment == "" {
			continue
		}
		kept = append(kept, segment)
	}
	return filepath.Join(append([]string{o.root}, kept...)...)
}

// Organize moves sourcePath to the resolved destination, suffixing " (2)",
// " (3)", … on collision and retrying transient failures a bounded number of
// times. The final path is returned.
func (o *Organizer) Organize(sourcePath string, p Placement) (string, error) {
	target := o.ResolvePath(p)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "organizing", "ensure destination", "", err)
	}

	var lastErr error
	for attempt := 1; attempt <= renameAttempts; attempt++ {
		destination, err := nextFreePath(target)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "organizing", "allocate destination", "", err)
		}
		if err := Move(sourcePath, destination); err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
			continue
		}
		o.logger.Info("organized into library",
			logging.String("source", sourcePath),
			logging.String("destination", destination),
		)
		return destination, nil
	}
	return "", services.Wrap(services.ErrTransient, "organizing", "move to library", "rename retries exhausted", lastErr)
}

// WriteSidecar places descriptor bytes beside the organised file.
func (o *Organizer) WriteSidecar(mediaPath string, descriptor []byte) (string, error) {
	path := SidecarPath(mediaPath)
	if err := os.WriteFile(path, descriptor, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "organizing", "write sidecar", "", err)
	}
	return path, nil
}

// WriteCover places the cover image beside the organised file. The filename
// is cover.jpg, or cover.png for PNG payloads.
func (o *Organizer) WriteCover(mediaPath string, cover []byte, mime string) (string, error) {
	if len(cover) == 0 {
		return "", nil
	}
	name := "cover.jpg"
	if strings.Contains(strings.ToLower(mime), "png") {
		name = "cover.png"
	}
	path := filepath.Join(filepath.Dir(mediaPath), name)
	if err := os.WriteFile(path, cover, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "organizing", "write cover", "", err)
	}
	return path, nil
}

// SidecarPath derives the descriptor path for a media file. The full media
// filename is kept so the inhale pass can recover the media path exactly.
func SidecarPath(mediaPath string) string {
	return mediaPath + ".hubward.xml"
}

// nextFreePath returns target if unused, else the first " (n)" variant that
// does not exist.
func nextFreePath(target string) (string, error) {
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return target, nil
		}
		return "", err
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for n := 2; n < 10000; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted collision suffixes for %s", target)
}

// Move renames, falling back to copy+remove across devices. Shared with the
// ingest quarantine path.
func Move(source, destination string) error {
	err := os.Rename(source, destination)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if copyErr := copyFile(source, destination); copyErr != nil {
			return copyErr
		}
		return os.Remove(source)
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func collapseEmptyParens(segment string) string {
	segment = strings.ReplaceAll(segment, "()", "")
	segment = strings.Join(strings.Fields(segment), " ")
	// An empty expansion before the extension leaves a stray space.
	return strings.ReplaceAll(segment, " .", ".")
}
