package api

import (
	"encoding/json"
	"net/http"
)

import (
	"github.com/nanjiek/pixiu-score/internal/types"
)

type ComputeRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// ComputeResponse is the data member of a compute or lookup response.
// Score holds a types.WalletScore, or a *types.WalletScoreError when computation failed.
type ComputeResponse struct {
	WalletAddress string `json:"wallet_address"`
	Score         any    `json:"score"`
	Rating        string `json:"rating,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Store     string `json:"store,omitempty"`
}

type DeleteResponse struct {
	WalletAddress string `json:"wallet_address"`
	Deleted       bool   `json:"deleted"`
}

func writeJSON(w http.ResponseWriter, status int, env types.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func okResp(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusOK, types.Envelope{Message: msg, Data: data})
}

func errResp(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.Envelope{Message: msg, IsError: true})
}
