package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

type Provider interface {
	Incr(name string)
	Decr(name string)
	Add(name string, delta int)
	RegisterMetric(name string)
	Run()
}

// Updater maintains an expvar map of integer counters. Updates are
// serialized through a single channel so callers never contend on the map.
type Updater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
}

// top-level expvar names can only be published once per process
var chathubVars = expvar.NewMap("chathub-stats")

type metricsUpdateReq struct {
	name  string
	value int
}

func (su *Updater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewUpdater creates an updater and mounts its handler on mux.
func NewUpdater(mux *http.ServeMux) *Updater {
	su := &Updater{
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	su.vars = chathubVars
	su.initializeMetrics()

	return su
}

func (su *Updater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

func (su *Updater) updateMetrics() {
	for req := range su.updateChan {
		metric := su.vars.Get(req.name)
		if metric == nil {
			// counters may be updated before RegisterMetric is called
			v := new(expvar.Int)
			su.vars.Set(req.name, v)
			metric = v
		}

		metric.(*expvar.Int).Add(int64(req.value))
	}
}

func (su *Updater) Incr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (su *Updater) Decr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

func (su *Updater) Add(name string, delta int) {
	su.updateChan <- &metricsUpdateReq{name: name, value: delta}
}

func (su *Updater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *Updater) Run() {
	go su.updateMetrics()
}

func (su *Updater) Stop() {
	close(su.updateChan)
}
