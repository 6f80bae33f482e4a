package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gdamore/tcell"
	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/advisor"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/topology"
	"github.com/rivo/tview"
)

const logo = `
 ____    _ __   __ ____  ___ __  __
| __ )  / \\ \ / // ___||_ _|  \/  |
|  _ \ / _ \\ V / \___ \ | || |\/| |
| |_) / ___ \| |   ___) || || |  | |
|____/_/   \_\_|  |____/|___|_|  |_|
`

const help = "[yellow]o[white] open  [yellow]c[white] close  [yellow]f[white] fault  [yellow]r[white] reset  [yellow]1-3[white] scenario  [yellow]q[white] quit"

type HMI func(*tview.Pages) (title string, content tview.Primitive)

type console struct {
	app     *tview.Application
	engine  *engine.Engine
	table   *tview.Table
	logView *tview.TextView
	status  *tview.TextView
	advice  *tview.TextView
	rows    []string
}

func main() {
	tutor := flag.String("advisor", "rules", "tutor backend: rules or offline")
	engineConfig := flag.String("engine", "./config/engine.json", "engine configuration")
	flag.Parse()

	cfg, err := engine.ReadConfig(*engineConfig)
	if err != nil {
		log.Println("[Console] using default engine config:", err)
		cfg = engine.DefaultConfig()
	}
	e := engine.New(engine.WithConfig(cfg))
	e.Start()
	defer e.Stop()

	var a advisor.Advisor = advisor.Rules{}
	if *tutor == "offline" {
		a = advisor.Offline{}
	}
	service, err := advisor.NewService(a, e, 10*time.Second)
	if err != nil {
		panic(err)
	}
	go service.Run()
	defer service.Stop()

	c := &console{app: tview.NewApplication(), engine: e}
	pages := tview.NewPages()
	for _, hmi := range []HMI{c.Splash, c.Bay} {
		title, primitive := hmi(pages)
		pages.AddPage(title, primitive, true, title == "Splash")
	}

	pid := uuid.New()
	status, err := e.Subscribe(pid, msg.Status)
	if err != nil {
		panic(err)
	}
	advice, err := service.Subscribe(pid, msg.Advice)
	if err != nil {
		panic(err)
	}
	go c.follow(status, advice)

	c.render(e.Snapshot())
	if err := c.app.SetRoot(pages, true).Run(); err != nil {
		panic(err)
	}
}

func (c *console) Splash(pages *tview.Pages) (title string, content tview.Primitive) {
	lines := strings.Split(logo, "\n")
	logoWidth := 0
	for _, line := range lines {
		if len(line) > logoWidth {
			logoWidth = len(line)
		}
	}
	logoBox := tview.NewTextView().
		SetTextColor(tcell.ColorGreen).
		SetDoneFunc(func(key tcell.Key) {
			pages.SwitchToPage("Bay")
		})
	fmt.Fprint(logoBox, logo)

	frame := tview.NewFrame(tview.NewBox()).
		SetBorders(0, 0, 0, 0, 0, 0).
		AddText("Substation Bay Training Simulator", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("press enter", true, tview.AlignCenter, tcell.ColorDarkMagenta)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewBox(), 0, 5, false).
		AddItem(tview.NewFlex().
			AddItem(tview.NewBox(), 0, 1, false).
			AddItem(logoBox, logoWidth, 1, true).
			AddItem(tview.NewBox(), 0, 1, false), len(lines), 1, true).
		AddItem(frame, 0, 10, false)

	return "Splash", flex
}

func (c *console) Bay(pages *tview.Pages) (title string, content tview.Primitive) {
	c.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	c.table.SetBorder(true).SetTitle(" Bay ")
	c.table.SetSelectionChangedFunc(func(row, column int) {
		if row > 0 && row <= len(c.rows) {
			go c.engine.SelectNode(c.rows[row-1])
		}
	})

	c.logView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	c.logView.SetBorder(true).SetTitle(" Operator Log ")

	c.advice = tview.NewTextView().SetWordWrap(true)
	c.advice.SetBorder(true).SetTitle(" Tutor ")

	c.status = tview.NewTextView().SetDynamicColors(true)

	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.logView, 0, 3, false).
		AddItem(c.advice, 0, 1, false)

	body := tview.NewFlex().
		AddItem(c.table, 0, 1, true).
		AddItem(right, 0, 1, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(c.status, 1, 0, false).
		AddItem(tview.NewTextView().SetDynamicColors(true).SetText(help), 1, 0, false)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'o':
			c.operate(engine.OpenCmd)
		case 'c':
			c.operate(engine.CloseCmd)
		case 'f':
			go c.engine.InjectFault()
		case 'r':
			go c.engine.Reset()
		case '1', '2', '3':
			go c.engine.LoadScenario("sc-" + string(event.Rune()))
		case 'q':
			c.app.Stop()
		default:
			return event
		}
		return nil
	})

	return "Bay", layout
}

// operate runs on the event loop; the engine call must not block it.
func (c *console) operate(cmd engine.Command) {
	row, _ := c.table.GetSelection()
	if row > 0 && row <= len(c.rows) {
		go c.engine.Operate(c.rows[row-1], cmd)
	}
}

func (c *console) follow(status, advice <-chan msg.Msg) {
	for {
		select {
		case m, ok := <-status:
			if !ok {
				return
			}
			if snap, ok := m.Payload().(engine.Snapshot); ok {
				c.app.QueueUpdateDraw(func() { c.render(snap) })
			}
		case m, ok := <-advice:
			if !ok {
				return
			}
			if text, ok := m.Payload().(string); ok {
				c.app.QueueUpdateDraw(func() { c.advice.SetText(text) })
			}
		}
	}
}

var severityColor = map[eventlog.Severity]string{
	eventlog.Info:    "white",
	eventlog.Success: "green",
	eventlog.Warning: "yellow",
	eventlog.Error:   "red",
}

func stateColor(n topology.Node) tcell.Color {
	switch n.State {
	case topology.Closed:
		return tcell.ColorRed
	case topology.Tripped:
		return tcell.ColorYellow
	}
	return tcell.ColorGreen
}

func (c *console) render(snap engine.Snapshot) {
	headers := []string{"ID", "Name", "Kind", "State", "Live", "kV"}
	for col, h := range headers {
		c.table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	c.rows = c.rows[:0]
	for i, n := range snap.Nodes {
		c.rows = append(c.rows, n.ID)
		live, liveColor := "DEAD", tcell.ColorGray
		if n.Energized {
			live, liveColor = "LIVE", tcell.ColorOrange
		}
		if n.Faulted {
			live, liveColor = live+" FAULT", tcell.ColorRed
		}
		cells := []*tview.TableCell{
			tview.NewTableCell(n.ID),
			tview.NewTableCell(n.Name),
			tview.NewTableCell(n.Kind.String()),
			tview.NewTableCell(n.State.String()).SetTextColor(stateColor(n)),
			tview.NewTableCell(live).SetTextColor(liveColor),
			tview.NewTableCell(fmt.Sprintf("%.1f", n.VoltageKV)).SetAlign(tview.AlignRight),
		}
		for col, cell := range cells {
			c.table.SetCell(i+1, col, cell)
		}
	}

	var b strings.Builder
	for _, e := range snap.Logs {
		fmt.Fprintf(&b, "[%s]%s %s[white]\n", severityColor[e.Severity], e.Timestamp.Format("15:04:05"), tview.Escape(e.String()))
	}
	c.logView.SetText(b.String())
	c.logView.ScrollToEnd()

	scenarioID := snap.ScenarioID
	if scenarioID == "" {
		scenarioID = "free play"
	}
	c.status.SetText(fmt.Sprintf(" Health [green]%d%%[white]  Load [orange]%.0f MW[white]  Scenario %s",
		snap.SystemHealth, snap.ActiveLoadMW, scenarioID))
}
