// Package archive maintains the local append-only record of every alert
// the poller has ever received. Entries are written before (and regardless
// of) delivery, so the archive is the durable audit trail even when the
// mailer or the remote queue misbehaves.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"healthwatch/internal/model"
)

// Delimiter bounds every entry. The format matches the existing email_log
// layout so archives written by earlier deployments keep parsing.
const Delimiter = "----------------------------------------------------------------"

// ErrNoArchive is returned by Tail when the archive file does not exist,
// meaning no alerts have been processed locally yet.
var ErrNoArchive = errors.New("archive does not exist")

// Archive appends and reads delimiter-bounded alert records at a fixed path.
type Archive struct {
	path string
}

func New(path string) *Archive {
	return &Archive{path: path}
}

// Append writes one entry and closes the file. Prior content is never
// truncated; each call is an independent atomic append. Parent directories
// are created on first use.
func (a *Archive) Append(e model.ArchiveEntry) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	var b strings.Builder
	b.WriteString(Delimiter + "\n")
	fmt.Fprintf(&b, "TIME:    %s\n", e.Time)
	fmt.Fprintf(&b, "SUBJECT: %s\n", e.Subject)
	b.WriteString("MESSAGE:\n")
	b.WriteString(strings.TrimRight(e.Body, " \t\r\n") + "\n")
	b.WriteString(Delimiter + "\n\n")

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("write archive entry: %w", err)
	}
	return f.Close()
}

// Tail returns at most the last n entries in original (chronological)
// order. A missing archive yields ErrNoArchive; an empty one yields no
// entries. Fragments that do not parse as entries are skipped.
func (a *Archive) Tail(n int) ([]model.ArchiveEntry, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoArchive
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	var entries []model.ArchiveEntry
	for _, frag := range strings.Split(string(data), Delimiter+"\n\n") {
		e, ok := parseEntry(frag)
		if ok {
			entries = append(entries, e)
		}
	}

	if n >= 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func parseEntry(frag string) (model.ArchiveEntry, bool) {
	frag = strings.TrimSpace(frag)
	frag = strings.TrimPrefix(frag, Delimiter)
	frag = strings.TrimLeft(frag, "\n")
	if frag == "" {
		return model.ArchiveEntry{}, false
	}

	var e model.ArchiveEntry
	rest := frag
	for _, want := range []string{"TIME:", "SUBJECT:"} {
		line, remainder, found := strings.Cut(rest, "\n")
		if !found || !strings.HasPrefix(line, want) {
			return model.ArchiveEntry{}, false
		}
		if want == "TIME:" {
			e.Time = strings.TrimSpace(strings.TrimPrefix(line, want))
		} else {
			e.Subject = strings.TrimSpace(strings.TrimPrefix(line, want))
		}
		rest = remainder
	}

	line, body, _ := strings.Cut(rest, "\n")
	if line != "MESSAGE:" {
		return model.ArchiveEntry{}, false
	}
	e.Body = strings.TrimRight(body, "\n")
	return e, true
}
