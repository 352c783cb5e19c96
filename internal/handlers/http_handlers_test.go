package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"lotteryledger/internal/chain"
	"lotteryledger/internal/models"
	"lotteryledger/internal/services"
)

type fixture struct {
	router *gin.Engine
	chain  *chain.Chain
	ledger models.Address
	owner  *chain.Key
	player *chain.Key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := chain.New(chain.Config{GasPrice: big.NewInt(1000), Randomness: services.FixedRandomness(0)})
	owner := chain.DevKey("handler test", 0)
	player := chain.DevKey("handler test", 1)
	c.Fund(owner.Address(), chain.MustParseEther("10"))
	c.Fund(player.Address(), chain.MustParseEther("10"))

	ledger, receipt, err := chain.NewClient(c, owner).Deploy(context.Background(), services.NewMemoryStore())
	if err != nil || receipt.Status != 1 {
		t.Fatalf("Expected deploy to succeed, but got %v (%s)", err, receipt.Error)
	}

	router := gin.New()
	NewHTTPHandler(c).RegisterRoutes(router)
	return &fixture{router: router, chain: c, ledger: ledger, owner: owner, player: player}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) signed(t *testing.T, key *chain.Key, tx chain.Transaction) chain.SignedTx {
	t.Helper()
	tx.Nonce = f.chain.Nonce(key.Address())
	stx, err := chain.Sign(key, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return stx
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestHTTPHandler_Enter(t *testing.T) {
	f := newFixture(t)
	base := "/v1/lotteries/" + f.ledger.String()
	stake := chain.MustParseEther("0.001")

	t.Run("Test entering through the API", func(t *testing.T) {
		stx := f.signed(t, f.player, chain.Transaction{To: &f.ledger, Method: chain.MethodEnter, Label: "Shahrukh", Value: stake})
		w := f.do(t, http.MethodPost, "/v1/transactions", stx)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, but got %d: %s", w.Code, w.Body.String())
		}
		receipt := decode[chain.Receipt](t, w)
		if receipt.Status != 1 || receipt.From != f.player.Address() {
			t.Fatalf("Expected a successful receipt from %s, but got %+v", f.player.Address(), receipt)
		}

		w = f.do(t, http.MethodGet, base+"/count", nil)
		if got := decode[map[string]int](t, w); got["count"] != 1 {
			t.Errorf("Expected count 1, but got %v", got)
		}

		w = f.do(t, http.MethodGet, base+"/entries/0", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, but got %d", w.Code)
		}
		entry := decode[models.Entry](t, w)
		if entry.UserAddress != f.player.Address() || entry.Name != "Shahrukh" || entry.Amount.Cmp(stake) != 0 {
			t.Errorf("Expected the stored entry, but got %+v", entry)
		}

		var raw map[string]json.RawMessage
		_ = json.Unmarshal(w.Body.Bytes(), &raw)
		for _, field := range []string{"userAddress", "name", "amount"} {
			if _, ok := raw[field]; !ok {
				t.Errorf("Expected field %q in %s", field, w.Body.String())
			}
		}
	})

	t.Run("Test zero stake is reverted", func(t *testing.T) {
		stx := f.signed(t, f.player, chain.Transaction{To: &f.ledger, Method: chain.MethodEnter, Label: "free", Value: big.NewInt(0)})
		w := f.do(t, http.MethodPost, "/v1/transactions", stx)
		receipt := decode[chain.Receipt](t, w)
		if w.Code != http.StatusOK || receipt.Status != 0 || receipt.Error == "" {
			t.Fatalf("Expected a reverted receipt, but got %d %+v", w.Code, receipt)
		}
	})

	t.Run("Test lottery summary", func(t *testing.T) {
		w := f.do(t, http.MethodGet, base, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, but got %d", w.Code)
		}
		summary := decode[struct {
			Owner      models.Address `json:"owner"`
			EntryCount int            `json:"entryCount"`
			Pool       *big.Int       `json:"pool"`
			Custody    *big.Int       `json:"custody"`
		}](t, w)
		if summary.Owner != f.owner.Address() || summary.EntryCount != 1 {
			t.Errorf("Expected owner %s with one entry, but got %+v", f.owner.Address(), summary)
		}
		if summary.Pool.Cmp(stake) != 0 || summary.Custody.Cmp(stake) != 0 {
			t.Errorf("Expected pool and custody of %s, but got %s and %s", stake, summary.Pool, summary.Custody)
		}
	})
}

func TestHTTPHandler_PickWinner(t *testing.T) {
	f := newFixture(t)
	stake := chain.MustParseEther("1")
	f.do(t, http.MethodPost, "/v1/transactions", f.signed(t, f.player, chain.Transaction{To: &f.ledger, Method: chain.MethodEnter, Label: "p", Value: stake}))

	w := f.do(t, http.MethodPost, "/v1/transactions", f.signed(t, f.player, chain.Transaction{To: &f.ledger, Method: chain.MethodPickWinner}))
	if receipt := decode[chain.Receipt](t, w); receipt.Status != 0 {
		t.Fatalf("Expected a non-owner settlement to revert, but got %+v", receipt)
	}

	w = f.do(t, http.MethodPost, "/v1/transactions", f.signed(t, f.owner, chain.Transaction{To: &f.ledger, Method: chain.MethodPickWinner}))
	receipt := decode[chain.Receipt](t, w)
	if receipt.Status != 1 || receipt.Settlement == nil || receipt.Settlement.Winner != f.player.Address() {
		t.Fatalf("Expected %s to win, but got %+v", f.player.Address(), receipt)
	}
	if receipt.Settlement.Amount.Cmp(stake) != 0 {
		t.Errorf("Expected a payout of %s, but got %s", stake, receipt.Settlement.Amount)
	}
}

func TestHTTPHandler_Errors(t *testing.T) {
	f := newFixture(t)
	base := "/v1/lotteries/" + f.ledger.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"Test entry out of range", http.MethodGet, base + "/entries/0", nil, http.StatusNotFound},
		{"Test negative entry", http.MethodGet, base + "/entries/-1", nil, http.StatusNotFound},
		{"Test non-numeric entry", http.MethodGet, base + "/entries/first", nil, http.StatusBadRequest},
		{"Test malformed address", http.MethodGet, "/v1/lotteries/0x12/count", nil, http.StatusBadRequest},
		{"Test unknown ledger", http.MethodGet, "/v1/lotteries/" + (models.Address{9}).String() + "/count", nil, http.StatusNotFound},
		{"Test malformed transaction", http.MethodPost, "/v1/transactions", "not a tx", http.StatusBadRequest},
		{"Test oversized transaction", http.MethodPost, "/v1/transactions", chain.SignedTx{Tx: chain.Transaction{To: &f.ledger, Method: chain.MethodEnter, Label: strings.Repeat("x", MaxRequestBytes)}}, http.StatusRequestEntityTooLarge},
		{"Test label over size limit", http.MethodPost, "/v1/transactions", f.signed(t, f.player, chain.Transaction{To: &f.ledger, Method: chain.MethodEnter, Label: strings.Repeat("x", chain.MaxLabelBytes+1), Value: big.NewInt(1)}), http.StatusBadRequest},
		{"Test unsigned transaction", http.MethodPost, "/v1/transactions", chain.SignedTx{Tx: chain.Transaction{To: &f.ledger, Method: chain.MethodEnter}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected %d, but got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestHTTPHandler_Chain(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/accounts/"+f.player.Address().String(), nil)
	account := decode[struct {
		Balance *big.Int `json:"balance"`
		Nonce   uint64   `json:"nonce"`
	}](t, w)
	if account.Balance.Cmp(chain.MustParseEther("10")) != 0 || account.Nonce != 0 {
		t.Errorf("Expected a fresh funded account, but got %+v", account)
	}

	w = f.do(t, http.MethodGet, "/v1/blocks/latest", nil)
	block := decode[models.Block](t, w)
	if block.Number != 1 || block.Hash == "" {
		t.Errorf("Expected the deploy block, but got %+v", block)
	}
}
