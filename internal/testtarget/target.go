// Package testtarget is a small product catalogue API used as a local load
// target. It serves the endpoints the default traffic mix requests.
package testtarget

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Options controls the simulated behaviour.
type Options struct {
	// Latency is added to every response
	Latency time.Duration

	// ErrorRate is the fraction of requests answered with 500
	ErrorRate float64

	// Products is the catalogue size (default 50)
	Products int
}

type product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

var categories = []string{"electronics", "clothing", "home"}

// Target is the mock API. It counts requests per route.
type Target struct {
	opts     Options
	products []product
	requests atomic.Int64
}

// New builds a target.
func New(opts Options) *Target {
	if opts.Products <= 0 {
		opts.Products = 50
	}
	t := &Target{opts: opts}
	for i := 1; i <= opts.Products; i++ {
		t.products = append(t.products, product{
			ID:       i,
			Name:     "Product " + strconv.Itoa(i),
			Category: categories[i%len(categories)],
			Price:    float64(i*100) / 10,
		})
	}
	return t
}

// Requests returns how many requests were served.
func (t *Target) Requests() int64 {
	return t.requests.Load()
}

// Handler returns the routes.
func (t *Target) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(t.simulate)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, envelope{Success: true})
	})
	r.Get("/api/products", t.list)
	r.Get("/api/products/search", t.search)
	r.Get("/api/products/{id}", t.get)
	return r
}

func (t *Target) simulate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.requests.Add(1)
		if t.opts.Latency > 0 {
			time.Sleep(t.opts.Latency)
		}
		if t.opts.ErrorRate > 0 && rand.Float64() < t.opts.ErrorRate {
			writeJSON(w, http.StatusInternalServerError, envelope{Error: "simulated failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Target) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: t.products})
}

func (t *Target) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 || id > len(t.products) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "product not found"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: t.products[id-1]})
}

func (t *Target) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	var out []product
	for _, p := range t.products {
		if q == "" || p.Category == q || strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
