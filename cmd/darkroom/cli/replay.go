package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/majorcontext/darkroom/internal/editor"
	"github.com/majorcontext/darkroom/internal/id"
	"github.com/majorcontext/darkroom/internal/log"
	"github.com/majorcontext/darkroom/internal/pixbuf"
	"github.com/majorcontext/darkroom/internal/snapshot"
	"github.com/majorcontext/darkroom/internal/ui"
	"github.com/majorcontext/darkroom/internal/undo"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Run an edit script through an editing session",
	Long: `Run a YAML edit script against a synthetic image and print the resulting
undo history, save-point position and snapshot cache counters.

Example script:

  image: {width: 640, height: 480, alpha: true, fill: 255}
  token: file:input.tif
  steps:
    - op: invert
    - op: fill
      value: 0
    - op: save
      token: file:output.tif
    - op: xor
      mask: 15
    - op: rotate
      n: 1
    - op: undo
      count: 2
    - op: rollback

Operations: invert, xor (mask), rotate (n), fill (value), save (token),
undo (count), redo (count), rollback.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var replayTrace bool

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayTrace, "trace", false, "print the image fingerprint after every step")
}

type replayScript struct {
	Image struct {
		Width      uint32 `yaml:"width"`
		Height     uint32 `yaml:"height"`
		SixteenBit bool   `yaml:"sixteen_bit"`
		Alpha      bool   `yaml:"alpha"`
		Fill       byte   `yaml:"fill"`
		Profile    string `yaml:"profile"`
	} `yaml:"image"`
	Token string       `yaml:"token"`
	Steps []replayStep `yaml:"steps"`
}

type replayStep struct {
	Op    string `yaml:"op"`
	Title string `yaml:"title,omitempty"`
	Mask  byte   `yaml:"mask,omitempty"`
	N     int    `yaml:"n,omitempty"`
	Value byte   `yaml:"value,omitempty"`
	Token string `yaml:"token,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

func loadReplayScript(path string) (*replayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var s replayScript
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.Image.Width == 0 || s.Image.Height == 0 {
		return nil, fmt.Errorf("%s: image width and height are required", path)
	}
	return &s, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	script, err := loadReplayScript(args[0])
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	store, err := snapshot.Open(snapshot.Options{
		Dir:          globalCfg.Cache.Dir,
		AppPrefix:    globalCfg.Cache.Prefix,
		MinFreeBytes: globalCfg.Cache.MinFreeBytes,
		Registerer:   reg,
	})
	if err != nil {
		return fmt.Errorf("opening undo cache: %w", err)
	}
	defer store.Close()
	log.SetSession(id.Session(os.Getpid()))

	img := script.Image
	meta := undo.Metadata{History: undo.History{{Name: "open"}}}
	if img.Profile != "" {
		meta.Profile = undo.ColorProfile{Name: img.Profile}
	}
	core, err := editor.New(pixbuf.Filled(img.Width, img.Height, img.SixteenBit, img.Alpha, img.Fill), meta, script.Token, store)
	if err != nil {
		return err
	}
	defer core.Close()

	out := cmd.OutOrStdout()
	for i, st := range script.Steps {
		if err := runReplayStep(core, st); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		if replayTrace {
			fmt.Fprintf(out, "%3d  %-10s %016x  origin=%s\n", i+1, st.Op, core.Fingerprint(), core.History().Origin())
		}
	}

	printReplaySummary(out, core, reg)
	return nil
}

func runReplayStep(core *editor.Core, st replayStep) error {
	title := st.Title
	if title == "" {
		title = st.Op
	}
	times := max(st.Count, 1)

	switch st.Op {
	case "invert":
		return core.Apply(title, editor.Invert())
	case "xor":
		return core.Apply(title, editor.XOR(st.Mask))
	case "rotate":
		return core.Apply(title, editor.RotateChannels(st.N))
	case "fill":
		return core.ApplyIrreversible(title, "fill", editor.Fill(st.Value))
	case "save":
		core.Save(st.Token)
		return nil
	case "undo":
		for range times {
			if err := core.Undo(); err != nil {
				return err
			}
		}
		return nil
	case "redo":
		for range times {
			if err := core.Redo(); err != nil {
				return err
			}
		}
		return nil
	case "rollback":
		return core.Rollback()
	}
	return fmt.Errorf("unknown operation %q", st.Op)
}

func printReplaySummary(w io.Writer, core *editor.Core, reg *prometheus.Registry) {
	h := core.History()

	fmt.Fprintln(w, ui.Bold("Undo history")+ui.Dim(" (most recent first)"))
	printTitles(w, h.UndoHistory())
	fmt.Fprintln(w, ui.Bold("Redo history"))
	printTitles(w, h.RedoHistory())

	state := ui.Green("saved")
	if core.Modified() {
		state = ui.Yellow("modified")
	}
	fmt.Fprintf(w, "Origin: %s (%s)  token: %s\n", h.Origin(), state, core.FileOriginToken())
	fmt.Fprintf(w, "Image:  %016x  history: %s\n", core.Fingerprint(), strings.Join(core.Metadata().History.Names(), " > "))

	fmt.Fprintln(w, ui.Bold("Snapshot cache"))
	families, err := reg.Gather()
	if err != nil {
		log.Warn("gathering cache metrics", "error", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("  %s %g", name, v))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func printTitles(w io.Writer, titles []string) {
	if len(titles) == 0 {
		fmt.Fprintln(w, "  "+ui.Dim("(empty)"))
		return
	}
	for _, t := range titles {
		fmt.Fprintf(w, "  %s\n", t)
	}
}
