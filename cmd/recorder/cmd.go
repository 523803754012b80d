package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/capture"
	"rollcall/internal/config"
	"rollcall/internal/connectivity"
	"rollcall/internal/reconcile"
	"rollcall/internal/slot"
	"rollcall/internal/transport"
)

var (
	errHelp = errors.New("help provided")
	// errIncomplete means some captures are still only on this device.
	errIncomplete = errors.New("some captures are not on the server yet")

	today = func() slot.Date { return slot.DateOf(time.Now()) } // mockable
)

type commandLine struct {
	cfg      config.Recorder
	out      io.Writer
	client   *transport.Client
	backlog  capture.Backlog
	detector *connectivity.Detector
	prober   *connectivity.Prober
	store    *capture.Store
	importer *reconcile.Importer
}

func newCommandLine(cfg config.Recorder, backlog capture.Backlog, out io.Writer) *commandLine {
	client := transport.New(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)
	detector := connectivity.NewDetector(connectivity.Offline)
	store := capture.NewStore(backlog, client, detector, cfg.ExportDir)
	return &commandLine{
		cfg:      cfg,
		out:      out,
		client:   client,
		backlog:  backlog,
		detector: detector,
		prober:   connectivity.NewProber(detector, client, cfg.ProbeInterval, cfg.RequestTimeout),
		store:    store,
		importer: reconcile.NewImporter(store),
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage: recorder [-config recorder.yaml] COMMAND")
	fmt.Fprintln(cli.out, "  register                                        - obtain a recorder token")
	fmt.Fprintln(cli.out, "  capture -slot N -class NAME [-date YYYY-MM-DD]")
	fmt.Fprintln(cli.out, "          [-absent id,..] [-late id,..] [-offline] - record a slot, submit or export")
	fmt.Fprintln(cli.out, "  import FILE...                                  - reconcile exported files")
	fmt.Fprintln(cli.out, "  pending                                         - list captures not yet on the server")
	fmt.Fprintln(cli.out, "  sync [-watch]                                   - submit the backlog, or keep doing so on reconnect")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	captureCmd := flag.NewFlagSet("capture", flag.ContinueOnError)
	captureCmd.SetOutput(cli.out)
	captureDate := captureCmd.String("date", "", "capture date, YYYY-MM-DD (default today)")
	captureSlot := captureCmd.Int("slot", 0, "slot number, 1-10")
	captureClass := captureCmd.String("class", "", "class name as configured")
	captureAbsent := captureCmd.String("absent", "", "comma-separated ids of absent students")
	captureLate := captureCmd.String("late", "", "comma-separated ids of late students")
	captureOffline := captureCmd.Bool("offline", false, "skip the online attempt and export straight away")

	syncCmd := flag.NewFlagSet("sync", flag.ContinueOnError)
	syncCmd.SetOutput(cli.out)
	syncWatch := syncCmd.Bool("watch", false, "keep running and drain on every reconnect")

	ctx := context.Background()

	switch args[1] {
	case "register":
		return cli.register(ctx)
	case "capture":
		if err := captureCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *captureSlot == 0 || *captureClass == "" {
			captureCmd.Usage()
			return errHelp
		}
		date := today()
		if *captureDate != "" {
			d, err := slot.ParseDate(*captureDate)
			if err != nil {
				return err
			}
			date = d
		}
		statuses := make(map[string]attendance.Status)
		for _, id := range splitIDs(*captureAbsent) {
			statuses[id] = attendance.Absent
		}
		for _, id := range splitIDs(*captureLate) {
			if _, dup := statuses[id]; dup {
				return fmt.Errorf("student %s marked both absent and late", id)
			}
			statuses[id] = attendance.Late
		}
		return cli.capture(ctx, date, *captureSlot, *captureClass, statuses, *captureOffline)
	case "import":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.importFiles(ctx, args[2:])
	case "pending":
		return cli.pending(ctx)
	case "sync":
		if err := syncCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *syncWatch {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cli.watch(ctx)
		}
		return cli.sync(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) register(ctx context.Context) error {
	if cli.cfg.RecorderID == "" {
		return errors.New("recorder_id is required to register")
	}
	tokens, err := cli.client.Register(ctx, cli.cfg.RecorderID, cli.cfg.TeacherID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "registered %s for %s\n", cli.cfg.RecorderID, cli.cfg.TeacherID)
	fmt.Fprintf(cli.out, "token: %s\n", tokens.AccessToken)
	fmt.Fprintf(cli.out, "expires: %s\n", time.Unix(tokens.ExpiresAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintln(cli.out, "set it as token in the config file or RECORDER_TOKEN")
	return nil
}

func (cli *commandLine) capture(ctx context.Context, date slot.Date, slotNumber int, className string, statuses map[string]attendance.Status, offline bool) error {
	desc, ok := cli.cfg.Slot(className, slotNumber)
	if !ok {
		return fmt.Errorf("no slot %d configured for class %q", slotNumber, className)
	}
	roster, err := config.LoadRoster(desc.RosterFile)
	if err != nil {
		return err
	}
	rec, err := attendance.Build(attendance.BuildInput{
		Date:       date,
		SlotNumber: slotNumber,
		StartTime:  desc.StartTime,
		EndTime:    desc.EndTime,
		ClassName:  desc.ClassName,
		Course:     desc.Course,
		Room:       desc.Room,
		TeacherID:  cli.cfg.TeacherID,
		Roster:     roster,
		Statuses:   statuses,
	})
	if err != nil {
		return err
	}

	if !offline {
		cli.prober.Probe(ctx)
		if cli.store.Suggest() == capture.ActionExport {
			fmt.Fprintln(cli.out, "server looks unreachable, trying anyway")
		}
	}

	receipt, err := cli.store.Capture(ctx, rec, offline)
	if err != nil {
		return err
	}
	key := rec.Identity().Key()
	res := receipt.Submission.Result
	switch {
	case receipt.Exported != nil:
		fmt.Fprintf(cli.out, "%s saved offline: %s\n", key, receipt.Exported.ExportedTo)
	case res.Outcome == transport.Duplicate:
		fmt.Fprintf(cli.out, "warning: %s was already recorded; this capture was not stored\n", key)
	default:
		fmt.Fprintf(cli.out, "%s recorded (%s)\n", key, res.ID)
	}
	return nil
}

func (cli *commandLine) importFiles(ctx context.Context, paths []string) error {
	report := cli.importer.ImportFiles(ctx, paths...)
	cli.printReport(report)
	if !report.OK() {
		return errIncomplete
	}
	return nil
}

func (cli *commandLine) sync(ctx context.Context) error {
	report, err := cli.importer.Drain(ctx)
	if err != nil {
		return err
	}
	if len(report.Items) == 0 {
		fmt.Fprintln(cli.out, "nothing pending")
		return nil
	}
	cli.printReport(report)
	if !report.OK() {
		return errIncomplete
	}
	return nil
}

func (cli *commandLine) watch(ctx context.Context) error {
	go cli.prober.Run(ctx)
	fmt.Fprintln(cli.out, "watching connectivity, ctrl-c to stop")
	if err := cli.importer.Watch(ctx, cli.detector); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (cli *commandLine) pending(ctx context.Context) error {
	entries, err := cli.store.Pending(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cli.out, "nothing pending")
		return nil
	}
	for _, e := range entries {
		where := e.ExportedTo
		if where == "" {
			where = "(no file)"
		}
		fmt.Fprintf(cli.out, "%s  %s  %s  %s\n", e.ID[:12], e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Record.Identity().Key(), where)
	}
	return nil
}

func (cli *commandLine) printReport(report reconcile.Report) {
	for _, it := range report.Items {
		line := fmt.Sprintf("%-16s %s", it.Outcome, it.Source)
		if it.Identity != (slot.Identity{}) {
			line += "  " + it.Identity.Key()
		}
		if it.Err != nil && !it.Outcome.Success() {
			line += ": " + it.Err.Error()
		}
		fmt.Fprintln(cli.out, line)
	}
	fmt.Fprintf(cli.out, "%d reconciled, %d already recorded, %d rejected, %d failed, %d corrupt\n",
		report.Count(reconcile.Reconciled), report.Count(reconcile.AlreadyRecorded),
		report.Count(reconcile.Rejected), report.Count(reconcile.Failed), report.Count(reconcile.CorruptFile))
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
