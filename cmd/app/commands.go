package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/collection"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/repository"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/server"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/service"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/utils"
)

const usage = `Usage: screenshot-note <command> [arguments]

Commands:
  list [-q term]           list screenshots, newest first
  add <image>...           copy images into the collection
  import <file.json>       merge exported notes, skipping known filenames
  export [-assets dir] [file.json]
                           write notes as JSON (and copy the images)
  rm <id>                  remove a screenshot
  describe <id> <text>     set a description
  clear                    remove every screenshot
  sample <file.json>       replace the collection with a data file
  browse                   interactive search
  diagnose                 print paths and counts
`

var errUsage = errors.New("invalid usage")

type cli struct {
	cfg *config.Config
	svc *server.Services
	log *zap.Logger
	in  io.Reader
	out io.Writer
	now func() time.Time
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return c.list(rest)
	case "add":
		return c.add(ctx, rest)
	case "import":
		return c.importFile(rest)
	case "export":
		return c.export(rest)
	case "rm":
		return c.remove(rest)
	case "describe":
		return c.describe(rest)
	case "clear":
		return c.clear()
	case "sample":
		return c.sample(rest)
	case "browse":
		return c.browse()
	case "diagnose":
		return c.diagnose()
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprintf(c.out, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

func (c *cli) list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(c.out)
	query := fs.String("q", "", "search term")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	c.printRecords(c.svc.Screenshots.List(*query))
	return nil
}

func (c *cli) add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: add needs at least one image", errUsage)
	}

	summary, err := c.svc.Ingestion.IngestPaths(ctx, args)
	for _, r := range summary.Rejections {
		fmt.Fprintf(c.out, "skipped %s: %s\n", r.Name, r.Reason)
	}
	if err != nil {
		return err
	}

	for _, a := range summary.Assets {
		fmt.Fprintf(c.out, "added %s (%dx%d, %s)\n", a.Filename, a.Width, a.Height, repository.FormatFileSize(a.Size))
	}
	fmt.Fprintf(c.out, "%d added, %d failed\n", summary.Succeeded, summary.Failed)
	return nil
}

func (c *cli) importFile(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: import needs one file", errUsage)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var entries []domain.ExportEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return domain.NewValidationError(args[0], "expected an array of screenshots")
	}

	added, skipped, err := c.svc.Screenshots.Import(entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "imported %d screenshot(s), skipped %d\n", added, skipped)
	return nil
}

func (c *cli) export(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(c.out)
	assetsDir := fs.String("assets", "", "directory to copy image files into")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	target := service.ExportFilename(c.now())
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}

	entries := c.svc.Screenshots.Export()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	fmt.Fprintf(c.out, "exported %d screenshot(s) to %s\n", len(entries), target)

	if *assetsDir == "" {
		return nil
	}
	copied := 0
	for _, e := range entries {
		src := c.svc.Assets.AbsPath(e.Filename)
		if err := utils.CopyFile(src, filepath.Join(*assetsDir, e.Filename)); err != nil {
			c.log.Warn("Failed to copy asset", zap.String("file", e.Filename), zap.Error(err))
			continue
		}
		copied++
	}
	fmt.Fprintf(c.out, "copied %d image(s) to %s\n", copied, *assetsDir)
	return nil
}

func (c *cli) remove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: rm needs an id", errUsage)
	}

	removed, err := c.svc.Screenshots.Remove(args[0])
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(c.out, "no screenshot with id %s\n", args[0])
		return nil
	}
	fmt.Fprintf(c.out, "removed %s\n", args[0])
	return nil
}

func (c *cli) describe(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: describe needs an id and text", errUsage)
	}

	if err := c.svc.Screenshots.UpdateDescription(args[0], strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "updated %s\n", args[0])
	return nil
}

func (c *cli) clear() error {
	if err := c.svc.Screenshots.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "cleared")
	return nil
}

func (c *cli) sample(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: sample needs a data file name", errUsage)
	}

	n, err := c.svc.Screenshots.LoadSample(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "loaded %d screenshot(s) from %s\n", n, args[0])
	return nil
}

// browse reads commands from c.in. Plain lines change the search query;
// lines starting with ':' act on the collection.
func (c *cli) browse() error {
	view := collection.NewSearchView(c.svc.Store, c.cfg.App.SearchDelay, func(query string, results []domain.Screenshot) {
		fmt.Fprintf(c.out, "-- %d result(s) for %q\n", len(results), query)
		c.printRecords(results)
	})
	c.printRecords(view.Results())

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ":") {
			view.SetQuery(line)
			continue
		}

		view.Flush()
		fields := strings.Fields(line)
		var intent collection.Intent
		switch fields[0] {
		case ":q", ":quit":
			return nil
		case ":rm":
			if len(fields) != 2 {
				fmt.Fprintln(c.out, "usage: :rm <id>")
				continue
			}
			intent = collection.RemoveRequested{ID: fields[1]}
		case ":desc":
			if len(fields) < 2 {
				fmt.Fprintln(c.out, "usage: :desc <id> <text>")
				continue
			}
			intent = collection.DescriptionEdited{ID: fields[1], Text: strings.Join(fields[2:], " ")}
		case ":clear":
			intent = collection.ClearRequested{}
		default:
			fmt.Fprintf(c.out, "unknown command %s\n", fields[0])
			continue
		}

		outcome, err := c.svc.Store.Dispatch(intent)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}
		if !outcome.Changed {
			fmt.Fprintln(c.out, "nothing changed")
			continue
		}
		view.Refresh()
	}
	view.Flush()
	return scanner.Err()
}

func (c *cli) diagnose() error {
	info := c.svc.Screenshots.Info()
	fmt.Fprintf(c.out, "%s %s\n", info.Name, info.Version)
	fmt.Fprintf(c.out, "root dir:        %s\n", c.cfg.App.RootDir)
	fmt.Fprintf(c.out, "data dir:        %s\n", info.DataDir)
	fmt.Fprintf(c.out, "screenshots dir: %s\n", info.AssetsDir)

	storePath := c.svc.Records.Path()
	if st, err := os.Stat(storePath); err == nil {
		fmt.Fprintf(c.out, "store file:      %s (%s)\n", storePath, repository.FormatFileSize(st.Size()))
	} else {
		fmt.Fprintf(c.out, "store file:      %s (missing)\n", storePath)
	}
	fmt.Fprintf(c.out, "records:         %d\n", info.Count)

	files, err := c.svc.Assets.List()
	if err != nil {
		return fmt.Errorf("failed to list screenshots dir: %w", err)
	}
	fmt.Fprintf(c.out, "image files:     %d\n", len(files))

	missing := 0
	for _, r := range c.svc.Store.List() {
		if !c.svc.Assets.Exists(r.Filename) {
			missing++
		}
	}
	fmt.Fprintf(c.out, "missing images:  %d\n", missing)

	blobs, err := c.svc.Screenshots.ListData()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "data files:      %d\n", len(blobs))
	for _, b := range blobs {
		fmt.Fprintf(c.out, "  %s (%s)\n", b.Name, b.Size)
	}
	fmt.Fprintf(c.out, "formats:         %s\n", strings.Join(info.SupportedFormats, ", "))
	fmt.Fprintf(c.out, "s3 mirror:       %t\n", info.MirrorEnabled)
	return nil
}

func (c *cli) printRecords(records []domain.Screenshot) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "no screenshots")
		return
	}
	for _, r := range records {
		desc := r.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(c.out, "%s  %s  %s  %s\n", r.ID, r.Date.Local().Format("2006-01-02 15:04"), r.Filename, desc)
	}
}
