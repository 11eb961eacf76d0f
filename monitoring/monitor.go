// Package monitoring turns a running experiment into a small HTTP
// server so the operator can watch builder and sweep progress, inspect
// component state, and capture profiles while the measurement runs for
// minutes at a time.
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
	"sort"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor exposes a running experiment over HTTP for external
// observation.
type Monitor struct {
	portNumber int

	componentsLock sync.Mutex
	components     map[string]any

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		components: make(map[string]any),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterComponent registers a named component whose state can be
// inspected over the API.
func (m *Monitor) RegisterComponent(name string, c any) {
	m.componentsLock.Lock()
	defer m.componentsLock.Unlock()

	m.components[name] = c
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// StartServer starts the monitor as an HTTP server. It never blocks the
// measurement threads: everything it serves is read on demand.
func (m *Monitor) StartServer(openBrowser bool) error {
	listener, err := net.Listen("tcp",
		fmt.Sprintf("localhost:%d", m.portNumber))
	if err != nil {
		return err
	}

	url := "http://" + listener.Addr().String()
	fmt.Fprintf(os.Stderr, "Monitoring experiment at %s\n", url)

	r := mux.NewRouter()
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.serializeComponent)
	r.HandleFunc("/api/resources", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	http.Handle("/", r)

	if openBrowser {
		if err := browser.OpenURL(url + "/api/progress"); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	go func() {
		if err := http.Serve(listener, nil); err != nil {
			log.Printf("monitoring server stopped: %v", err)
		}
	}()

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.componentsLock.Lock()
	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}
	m.componentsLock.Unlock()

	sort.Strings(names)
	writeJSON(w, names)
}

func (m *Monitor) serializeComponent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.componentsLock.Lock()
	c, found := m.components[name]
	m.componentsLock.Unlock()

	if !found {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)

	var buf bytes.Buffer
	if err := serializer.Serialize(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, _ := p.CPUPercent()
	memInfo, _ := p.MemoryInfo()

	status := struct {
		CPUPercent float64 `json:"cpu_percent"`
		RSSBytes   uint64  `json:"rss_bytes"`
	}{
		CPUPercent: cpuPercent,
	}

	if memInfo != nil {
		status.RSSBytes = memInfo.RSS
	}

	writeJSON(w, status)
}

// collectProfile captures a short CPU profile of the running process
// and responds with the flat totals per function. Profiling perturbs
// the timing measurements; use it for diagnosis only.
func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer

	if err := pprof.StartCPUProfile(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	time.Sleep(2 * time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.Parse(&buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type sample struct {
		Function string `json:"function"`
		Value    int64  `json:"value"`
	}

	totals := make(map[string]int64)
	for _, s := range prof.Sample {
		if len(s.Location) == 0 || len(s.Location[0].Line) == 0 {
			continue
		}

		fn := s.Location[0].Line[0].Function
		if fn == nil {
			continue
		}

		totals[fn.Name] += s.Value[len(s.Value)-1]
	}

	samples := make([]sample, 0, len(totals))
	for name, v := range totals {
		samples = append(samples, sample{Function: name, Value: v})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Value > samples[j].Value
	})

	writeJSON(w, samples)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
