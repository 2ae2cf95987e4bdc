package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

import (
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const wallet = "So11111111111111111111111111111111111111112"

// fakeRPC answers like the provider: ten signatures a year old and five assets.
func fakeRPC(t *testing.T) *httptest.Server {
	t.Helper()
	blockTime := time.Now().Add(-365*24*time.Hour - time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch gjson.GetBytes(body, "method").String() {
		case "getSignaturesForAddress":
			sigs := make([]string, 10)
			for i := range sigs {
				sigs[i] = fmt.Sprintf(`{"signature":"s%d","slot":%d,"blockTime":%d}`, i, 100-i, blockTime)
			}
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":"1","result":[%s]}`, strings.Join(sigs, ","))
		case "getAssetsByOwner":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":{"total":5,"limit":1,"page":1,"items":[]}}`)
		default:
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"Method not found"}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "score.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: 127.0.0.1:6379
solana:
  apiKey: k
rateLimit:
  maxRequests: 5
`)
	out, err := run(t, "check-config", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "rateLimit=5/60s")
	assert.Contains(t, out, "keyStrategy=user")
}

func TestCheckConfigReportsMissing(t *testing.T) {
	path := writeConfig(t, "server:\n  httpAddr: \":9000\"\n")
	_, err := run(t, "check-config", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solana.apiKey")
	assert.Contains(t, err.Error(), "redis.url|redis.addr")
}

func TestScoreAndPurge(t *testing.T) {
	mr := miniredis.RunT(t)
	rpcSrv := fakeRPC(t)
	path := writeConfig(t, fmt.Sprintf(`
redis:
  addr: %s
solana:
  rpcUrl: %s
  apiKey: test-key
log:
  level: error
`, mr.Addr(), rpcSrv.URL))

	out, err := run(t, "score", wallet, "-c", path)
	require.NoError(t, err)

	var res struct {
		WalletAddress string `json:"wallet_address"`
		Score         struct {
			FinalScore  int `json:"final_score"`
			TnxScore    int `json:"tnx_score"`
			AgeScore    int `json:"age_score"`
			AssetsScore int `json:"assets_score"`
		} `json:"score"`
		Rating string `json:"rating"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, wallet, res.WalletAddress)
	assert.Equal(t, 23, res.Score.TnxScore)
	assert.Equal(t, 86, res.Score.AgeScore)
	assert.Equal(t, 67, res.Score.AssetsScore)
	assert.Equal(t, 57, res.Score.FinalScore)
	assert.Equal(t, "Good", res.Rating)
	assert.True(t, mr.Exists("score:"+wallet))

	out, err = run(t, "purge", wallet, "-c", path)
	require.NoError(t, err)
	assert.Equal(t, "purged "+wallet+"\n", out)
	assert.False(t, mr.Exists("score:"+wallet))

	out, err = run(t, "purge", wallet, "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no cached score")
}

func TestScoreRequiresAddress(t *testing.T) {
	_, err := run(t, "score")
	assert.Error(t, err)
}
