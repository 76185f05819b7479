package registryport

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sbtc-core/signer/bitcoin"
	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
)

type depositDTO struct {
	Txid          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	DepositScript string `json:"deposit_script"`
	ReclaimScript string `json:"reclaim_script"`
}

// HTTPClient is the production registryport.Port implementation: a thin
// net/http client against Emily's REST surface. The wire format itself is
// out of scope (design §1); this client only needs to agree with
// registrytest's fake server for this repo's tests.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, HTTP: http.DefaultClient}
}

func (c *HTTPClient) GetDeposits(ctx context.Context) ([]model.CandidateDeposit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/deposits", nil)
	if err != nil {
		return nil, errs.New(errs.Registry, "registry.get_deposits", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errs.New(errs.Registry, "registry.get_deposits", err)
	}
	defer resp.Body.Close()

	var dtos []depositDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, errs.New(errs.Registry, "registry.get_deposits.decode", err)
	}

	out := make([]model.CandidateDeposit, 0, len(dtos))
	for _, d := range dtos {
		txid, err := chainhash.NewHashFromStr(d.Txid)
		if err != nil {
			continue
		}
		out = append(out, model.CandidateDeposit{
			Outpoint:      model.Outpoint{Txid: *txid, Vout: d.Vout},
			DepositScript: []byte(d.DepositScript),
			ReclaimScript: []byte(d.ReclaimScript),
		})
	}
	return out, nil
}

func (c *HTTPClient) AcceptDeposits(ctx context.Context, tx *wire.MsgTx, stacksTip model.StacksBlockID) error {
	raw, err := bitcoin.EncodeTx(tx)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(struct {
		Tx        string `json:"tx"`
		StacksTip string `json:"stacks_tip"`
	}{
		Tx:        hex.EncodeToString(raw),
		StacksTip: hex.EncodeToString(stacksTip[:]),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/deposits/accept", bytes.NewReader(body))
	if err != nil {
		return errs.New(errs.Registry, "registry.accept_deposits", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errs.New(errs.Registry, "registry.accept_deposits", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Registry, "registry.accept_deposits", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

var _ Port = (*HTTPClient)(nil)
