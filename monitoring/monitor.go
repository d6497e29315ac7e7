// Package monitoring serves the pulse compiler over HTTP so that programs can
// be compiled and inspected from a browser.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/pulsec/config"
	"github.com/sarchlab/pulsec/diagnostic"
	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/monitoring/web"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/shortpulse"
	"github.com/sarchlab/pulsec/timeline"
)

// Monitor turns the compiler into a server. Every request builds its own
// compiler from the settings of the monitor.
type Monitor struct {
	settings        config.Settings
	portNumber      int
	openBrowser     bool
	profileDuration time.Duration

	requests *ProgressBar

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor serving compilers built from s.
func NewMonitor(s config.Settings) *Monitor {
	m := &Monitor{
		settings:        s,
		profileDuration: time.Second,
	}

	m.requests = m.CreateProgressBar("requests", 0)

	return m
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the page in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/compile", m.compile).Methods(http.MethodPost)
	r.HandleFunc("/api/timeline", m.timeline).Methods(http.MethodPost)
	r.HandleFunc("/api/config", m.listConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)
	fmt.Fprintf(os.Stderr, "Monitoring pulse compiler with %s\n", url)

	router := m.Router()
	go func() {
		err := http.Serve(listener, router)
		dieOnErr(err)
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}

	return port
}

type errorRsp struct {
	Error string `json:"error"`
}

type compileRsp struct {
	Instructions program.Program `json:"instructions"`
	Runs         []shortpulse.Run `json:"runs"`
	Folded       int              `json:"folded"`
	MaxEdgeShift float64          `json:"max_edge_shift"`
	Listing      string           `json:"listing"`
}

// request is a decoded document together with the settings to compile it
// with.
type request struct {
	settings config.Settings
	lookup   *flags.Lookup
	program  program.Program
}

func (m *Monitor) decodeRequest(r *http.Request) (*request, error) {
	doc, err := program.ReadDocument(r.Body)
	if err != nil {
		return nil, err
	}

	s := m.settings.ForDocument(doc)

	q := r.URL.Query()
	if v := q.Get("strategy"); v != "" {
		if s.Strategy, err = shortpulse.ParseStrategy(v); err != nil {
			return nil, err
		}
	}

	if v := q.Get("align"); v != "" {
		if s.AlignToTicks, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("align: %w", err)
		}
	}

	l, err := doc.Lookup(s.Width)
	if err != nil {
		return nil, err
	}

	p, err := doc.Program(l)
	if err != nil {
		return nil, err
	}

	return &request{settings: s, lookup: l, program: p}, nil
}

func (m *Monitor) compile(w http.ResponseWriter, r *http.Request) {
	m.requests.IncrementInProgress(1)
	defer m.requests.MoveInProgressToFinished(1)

	req, err := m.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := req.settings.Compiler()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, report, err := c.CompileWithReport(req.program)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	writeJSON(w, compileRsp{
		Instructions: out,
		Runs:         report.Runs,
		Folded:       report.Folded,
		MaxEdgeShift: float64(report.MaxEdgeShift),
		Listing:      diagnostic.FormatProgram(out, req.lookup, c.Width()),
	})
}

func (m *Monitor) timeline(w http.ResponseWriter, r *http.Request) {
	m.requests.IncrementInProgress(1)
	defer m.requests.MoveInProgressToFinished(1)

	req, err := m.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p := req.program
	var opts []timeline.Option

	compiled, _ := strconv.ParseBool(r.URL.Query().Get("compiled"))
	if compiled {
		c, err := req.settings.Compiler()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if p, err = c.Compile(p); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}

		opts = req.settings.TimelineOptions()
	}

	writeJSON(w, timeline.Reconstruct(p, req.lookup, opts...).PlotLines())
}

func (m *Monitor) listConfig(w http.ResponseWriter, _ *http.Request) {
	settings := m.settings

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&settings)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	snapshots := make([]ProgressSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		snapshots = append(snapshots, b.Snapshot())
	}

	writeJSON(w, snapshots)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	bytes, mErr := json.Marshal(errorRsp{Error: err.Error()})
	dieOnErr(mErr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
