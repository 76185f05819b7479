// Package registrytest is a fake Emily server for tests, built on
// julienschmidt/httprouter the way the teacher's own JSON-RPC-ish HTTP
// services are routed, even though the real Emily wire format is out of
// scope (design §1).
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/sbtc-core/signer/model"
)

type depositDTO struct {
	Txid          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	DepositScript string `json:"deposit_script"`
	ReclaimScript string `json:"reclaim_script"`
}

// Server is an in-process Emily double: callers seed it with candidate
// deposits via Seed and can inspect AcceptedSweeps afterward.
type Server struct {
	mu             sync.Mutex
	deposits       []model.CandidateDeposit
	acceptedSweeps int

	httpServer *httptest.Server
}

func New() *Server {
	s := &Server{}
	router := httprouter.New()
	router.GET("/deposits", s.handleGetDeposits)
	router.POST("/deposits/accept", s.handleAcceptDeposits)
	s.httpServer = httptest.NewServer(router)
	return s
}

func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

func (s *Server) Seed(deposits ...model.CandidateDeposit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposits = append(s.deposits, deposits...)
}

func (s *Server) AcceptedSweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptedSweeps
}

func (s *Server) handleGetDeposits(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]depositDTO, 0, len(s.deposits))
	for _, d := range s.deposits {
		out = append(out, depositDTO{
			Txid:          d.Outpoint.Txid.String(),
			Vout:          d.Outpoint.Vout,
			DepositScript: string(d.DepositScript),
			ReclaimScript: string(d.ReclaimScript),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleAcceptDeposits(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	s.acceptedSweeps++
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
