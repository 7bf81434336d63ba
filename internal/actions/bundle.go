package actions

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// PortPlaceholder in default urls is replaced with the local http port.
const PortPlaceholder = "__LOCAL_PORT__"

const (
	bundleFile = "actions.json"
	schemaFile = "schema.cue"
)

//go:embed defaults
var embedded embed.FS

// DefaultBundle returns the built-in defaults: actions.json, schema.cue and
// the icons they reference.
func DefaultBundle() fs.FS {
	sub, err := fs.Sub(embedded, "defaults")
	if err != nil {
		panic(err)
	}
	return sub
}

// defaultAction is one entry of the bundle before its icon is resolved.
type defaultAction struct {
	Action
	IconSrc string
}

// ValidateBundle checks data against the CUE schema of the bundle.
func ValidateBundle(schema, data []byte) error {
	ctx := cuecontext.New()

	s := ctx.CompileBytes(schema, cue.Filename(schemaFile))
	if err := s.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename(bundleFile))
	if err := v.Err(); err != nil {
		return fmt.Errorf("parsing bundle: %w", err)
	}

	unified := s.LookupPath(cue.ParsePath("#Bundle")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}
	return nil
}

// readBundle validates and decodes the bundle in fsys, substituting the
// local port in urls.
func readBundle(fsys fs.FS, port int) ([]defaultAction, error) {
	data, err := fs.ReadFile(fsys, bundleFile)
	if err != nil {
		return nil, fmt.Errorf("reading defaults: %w", err)
	}
	schema, err := fs.ReadFile(fsys, schemaFile)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	if err := ValidateBundle(schema, data); err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding defaults: %w", err)
	}

	p := strconv.Itoa(port)
	out := make([]defaultAction, 0, len(entries))
	for _, raw := range entries {
		var d defaultAction
		if err := json.Unmarshal(raw, &d.Action); err != nil {
			return nil, fmt.Errorf("decoding action: %w", err)
		}
		var icon struct {
			Icon string `json:"icon"`
		}
		if err := json.Unmarshal(raw, &icon); err != nil {
			return nil, fmt.Errorf("decoding action icon: %w", err)
		}
		d.URL = strings.ReplaceAll(d.URL, PortPlaceholder, p)
		d.App = strings.ReplaceAll(d.App, PortPlaceholder, p)
		d.IconSrc = strings.ReplaceAll(icon.Icon, PortPlaceholder, p)
		out = append(out, d)
	}
	return out, nil
}

// isRemote reports whether src must be fetched rather than read from the
// bundle.
func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// loadIcons resolves the icon of every default action in parallel. A
// failed icon leaves its action without one.
func (s *Store) loadIcons(ctx context.Context, fsys fs.FS, fetcher service.Fetcher, defaults []defaultAction) []*Action {
	out := make([]*Action, len(defaults))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, d := range defaults {
		a := d.Action.Clone()
		out[i] = &a
		if d.IconSrc == "" {
			continue
		}
		g.Go(func() error {
			var (
				blob resource.Blob
				err  error
			)
			if isRemote(d.IconSrc) {
				blob, err = fetcher.Fetch(gctx, d.IconSrc)
			} else {
				blob, err = readIcon(fsys, d.IconSrc)
			}
			if err != nil {
				s.logger.Warn("failed to load default icon", "action", d.ID, "src", d.IconSrc, "error", err)
				return nil
			}
			a.Icon = &blob
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func readIcon(fsys fs.FS, name string) (resource.Blob, error) {
	data, err := fs.ReadFile(fsys, path.Clean(name))
	if err != nil {
		return resource.Blob{}, err
	}
	mimeType := mime.TypeByExtension(path.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return resource.Blob{MimeType: mimeType, Data: data}, nil
}
