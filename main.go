//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"flashstr/internal/catalog"
	"flashstr/internal/flash"
	"flashstr/internal/server"
	"flashstr/internal/store"
	"flashstr/internal/util"

	"github.com/lmittmann/tint"
)

const usage = `usage: flashstr [flags] <command> [args]

commands:
  init                  create an erased image (-layout esp8266|compact, -pages N)
  save NAME FILE        store FILE (- for stdin) under NAME
  load NAME             write the payload of NAME to stdout
  erase NAME            erase NAME
  erase-all             erase every page in scope (-all for odd pages too)
  list                  list records and free pages (-sum for xxhash64)
  dump PAGE             hex dump page PAGE (catalog index)
  serve                 HTTP inspector on -addr

flags:
`

type cli struct {
	image		string
	verbose		bool
	layout		string
	pages		int
	all			bool
	markerLast	bool
	sum			bool
	addr		string

	stdin		io.Reader
	stdout		io.Writer
}

// parseArgs returns the parsed flags and the remaining command words.
func parseArgs(args []string, output io.Writer) (*cli, []string, error) {
	cl := &cli{stdin: os.Stdin, stdout: os.Stdout}

	fs := flag.NewFlagSet("flashstr", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cl.image, "image", "flash.img", "flash image file")
	fs.BoolVar(&cl.verbose, "v", false, "debug logging")
	fs.StringVar(&cl.layout, "layout", "esp8266", "init: esp8266 or compact")
	fs.IntVar(&cl.pages, "pages", 8, "init: region pages for the compact layout")
	fs.BoolVar(&cl.all, "all", false, "erase-all: include the odd pages")
	fs.BoolVar(&cl.markerLast, "marker-last", false, "save: write the marker byte last")
	fs.BoolVar(&cl.sum, "sum", false, "list: print xxhash64 of each payload")
	fs.StringVar(&cl.addr, "addr", "127.0.0.1:8266", "serve: listen address")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("no command")
	}
	return cl, fs.Args(), nil
}

func main() {
	cl, args, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cl.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	if args[0] == "init" {
		layout, err := cl.initLayout()
		if err != nil { fatal(err) }
		img, err := flash.CreateImage(cl.image, layout)
		if err != nil { fatal(err) }
		defer img.Close()
		slog.Info("created", "image", cl.image, "pages", catalog.FromDriver(img, layout.PageSize).PageCount())
		return
	}

	img, err := flash.OpenImage(cl.image)
	if err != nil { fatal(err) }
	defer img.Close()

	if err := cl.run(cl.open(img, img.Layout().PageSize), img, args); err != nil {
		img.Close()
		fatal(err)
	}
}

func (cl *cli) initLayout() (flash.Layout, error) {
	switch cl.layout {
	case "esp8266":
		return flash.ESP8266Layout(), nil
	case "compact":
		return flash.CompactLayout(flash.ESP8266Layout().PageSize, cl.pages), nil
	}
	return flash.Layout{}, fmt.Errorf("unknown layout %q", cl.layout)
}

func (cl *cli) open(drv flash.Driver, pageSize uint32) *store.Store {
	scope := store.ScopeRegion
	if cl.all {
		scope = store.ScopeNamespace
	}
	return store.New(drv, catalog.FromDriver(drv, pageSize),
		store.WithEraseAllScope(scope),
		store.WithMarkerLast(cl.markerLast))
}

func (cl *cli) run(st *store.Store, drv flash.Driver, args []string) error {
	need := func(n int) error {
		if len(args) < n+1 {
			return fmt.Errorf("%s: expected %d argument(s)", args[0], n)
		}
		return nil
	}

	switch args[0] {
	case "save":
		if err := need(2); err != nil { return err }
		var payload []byte
		var err error
		if args[2] == "-" {
			payload, err = io.ReadAll(cl.stdin)
		} else {
			payload, err = os.ReadFile(args[2])
		}
		if err != nil { return err }
		return st.Save(args[1], payload)

	case "load":
		if err := need(1); err != nil { return err }
		view, ok, err := st.Load(args[1])
		if err != nil { return err }
		if !ok {
			return fmt.Errorf("%q not found", args[1])
		}
		_, err = cl.stdout.Write(view)
		return err

	case "erase":
		if err := need(1); err != nil { return err }
		return st.Erase(args[1])

	case "erase-all":
		return st.EraseAll()

	case "list":
		return cl.list(st)

	case "dump":
		if err := need(1); err != nil { return err }
		i, err := strconv.Atoi(args[1])
		if err != nil { return err }
		cat := st.Catalog()
		if i < 0 || i >= cat.PageCount() {
			return fmt.Errorf("page %d out of range [0,%d)", i, cat.PageCount())
		}
		pageAddr := cat.PageAddress(i)
		page, err := drv.Read(int(cat.PageSize()), pageAddr)
		if err != nil { return err }
		_, err = fmt.Fprint(cl.stdout, util.PrettyPrintPage(util.TrimErased(page, 32), pageAddr, -1))
		return err

	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.New(st).ListenAndServe(ctx, cl.addr)
	}

	return fmt.Errorf("unknown command %q", args[0])
}

func (cl *cli) list(st *store.Store) error {
	l, err := st.List()
	if err != nil { return err }

	tw := tabwriter.NewWriter(cl.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tNAME\tSIZE\tADDRESS\tXXH64")
	for _, e := range l.Entries {
		digest := "-"
		if cl.sum {
			d, ok, err := st.Digest(e.Name)
			if err != nil { return err }
			if ok {
				digest = fmt.Sprintf("%016x", d)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%v\t%s\n", e.Page, e.Name, e.Size, e.Address, digest)
	}
	if err := tw.Flush(); err != nil { return err }
	_, err = fmt.Fprintf(cl.stdout, "+%d free pages\n", l.Free)
	return err
}

func fatal(err error) {
	if errors.Is(err, store.ErrNoSpace) {
		slog.Error("no free page, erase something first", "err", err)
	} else {
		slog.Error("flashstr", "err", err)
	}
	os.Exit(1)
}
