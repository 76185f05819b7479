package stacksport

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
)

// jsonCodec lets this client exchange JSON-encoded request/response structs
// through grpc's ordinary call machinery (deadlines, interceptors, retries)
// without generated protobuf stubs for the Stacks node's own wire contract,
// which design §1 places out of scope. grpc's codec registry is built for
// exactly this kind of pluggable encoding.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCClient is the production stacksport.Port implementation: a thin gRPC
// client, the shape the teacher's own RPC surfaces take (grpc is a direct
// teacher dependency).
type GRPCClient struct {
	conn *grpc.ClientConn
}

func Dial(target string) (*GRPCClient, error) {
	conn, err := grpc.Dial(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, errs.New(errs.StacksRPC, "stacksport.dial", err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

const servicePrefix = "/sbtc.stacks.Stacks/"

type tenureInfoResp struct {
	TipBlockID string `json:"tip_block_id"`
	TipHeight  uint64 `json:"tip_height"`
}

func (c *GRPCClient) GetTenureInfo(ctx context.Context) (model.TenureInfo, error) {
	var resp tenureInfoResp
	if err := c.conn.Invoke(ctx, servicePrefix+"GetTenureInfo", struct{}{}, &resp); err != nil {
		return model.TenureInfo{}, errs.New(errs.StacksRPC, "stacksport.get_tenure_info", err)
	}
	id, err := decodeBlockID(resp.TipBlockID)
	if err != nil {
		return model.TenureInfo{}, errs.New(errs.StacksRPC, "stacksport.get_tenure_info", err)
	}
	return model.TenureInfo{TipBlockID: id, TipHeight: resp.TipHeight}, nil
}

type blockDTO struct {
	ID                string `json:"id"`
	ParentID          string `json:"parent_id"`
	ChainLength       uint64 `json:"chain_length"`
	TenureBitcoinHash string `json:"tenure_bitcoin_hash"`
}

func (d blockDTO) toModel() (model.StacksBlock, error) {
	id, err := decodeBlockID(d.ID)
	if err != nil {
		return model.StacksBlock{}, err
	}
	parent, err := decodeBlockID(d.ParentID)
	if err != nil {
		return model.StacksBlock{}, err
	}
	tenureHash, err := decodeHash(d.TenureBitcoinHash)
	if err != nil {
		return model.StacksBlock{}, err
	}
	return model.StacksBlock{
		ID:                id,
		ParentID:          parent,
		ChainLength:       d.ChainLength,
		TenureBitcoinHash: tenureHash,
	}, nil
}

type getBlockReq struct {
	ID string `json:"id"`
}

type getBlockResp struct {
	Found bool     `json:"found"`
	Block blockDTO `json:"block"`
}

func (c *GRPCClient) GetBlock(ctx context.Context, id model.StacksBlockID) (model.StacksBlock, bool, error) {
	var resp getBlockResp
	req := getBlockReq{ID: encodeBytes(id[:])}
	if err := c.conn.Invoke(ctx, servicePrefix+"GetBlock", req, &resp); err != nil {
		return model.StacksBlock{}, false, errs.New(errs.StacksRPC, "stacksport.get_block", err)
	}
	if !resp.Found {
		return model.StacksBlock{}, false, nil
	}
	blk, err := resp.Block.toModel()
	if err != nil {
		return model.StacksBlock{}, false, errs.New(errs.StacksRPC, "stacksport.get_block", err)
	}
	return blk, true, nil
}

type getTenureResp struct {
	Blocks []blockDTO `json:"blocks"`
}

func (c *GRPCClient) GetTenure(ctx context.Context, id model.StacksBlockID) ([]model.StacksBlock, error) {
	var resp getTenureResp
	req := getBlockReq{ID: encodeBytes(id[:])}
	if err := c.conn.Invoke(ctx, servicePrefix+"GetTenure", req, &resp); err != nil {
		return nil, errs.New(errs.StacksRPC, "stacksport.get_tenure", err)
	}
	out := make([]model.StacksBlock, 0, len(resp.Blocks))
	for _, d := range resp.Blocks {
		blk, err := d.toModel()
		if err != nil {
			return nil, errs.New(errs.StacksRPC, "stacksport.get_tenure", err)
		}
		out = append(out, blk)
	}
	return out, nil
}

type getAccountReq struct {
	Address string `json:"address"`
}

type getAccountResp struct {
	Nonce uint64 `json:"nonce"`
}

func (c *GRPCClient) GetAccount(ctx context.Context, address []byte) (model.Account, error) {
	var resp getAccountResp
	req := getAccountReq{Address: encodeBytes(address)}
	if err := c.conn.Invoke(ctx, servicePrefix+"GetAccount", req, &resp); err != nil {
		return model.Account{}, errs.New(errs.StacksRPC, "stacksport.get_account", err)
	}
	return model.Account{Nonce: resp.Nonce}, nil
}

type poxInfoResp struct {
	CurrentBurnchainBlockHeight uint64  `json:"current_burnchain_block_height"`
	NakamotoStartHeight         *uint64 `json:"nakamoto_start_height,omitempty"`
}

func (c *GRPCClient) GetPoxInfo(ctx context.Context) (model.PoxInfo, error) {
	var resp poxInfoResp
	if err := c.conn.Invoke(ctx, servicePrefix+"GetPoxInfo", struct{}{}, &resp); err != nil {
		return model.PoxInfo{}, errs.New(errs.StacksRPC, "stacksport.get_pox_info", err)
	}
	return model.PoxInfo{
		CurrentBurnchainBlockHeight: resp.CurrentBurnchainBlockHeight,
		NakamotoStartHeight:         resp.NakamotoStartHeight,
	}, nil
}

type walletDTO struct {
	AggregateKey string   `json:"aggregate_key"`
	SignerSet    []string `json:"signer_set"`
	Threshold    uint32   `json:"threshold"`
	Nonce        uint64   `json:"nonce"`
}

func toWalletDTO(w model.SignerWallet) walletDTO {
	set := make([]string, 0, len(w.SignerSet))
	for _, k := range w.SignerSet {
		set = append(set, encodeBytes(k.SerializeCompressed()))
	}
	dto := walletDTO{SignerSet: set, Threshold: w.Threshold, Nonce: w.Nonce}
	if w.AggregateKey != nil {
		dto.AggregateKey = encodeBytes(w.AggregateKey.SerializeCompressed())
	}
	return dto
}

type estimateFeesReq struct {
	Wallet   walletDTO `json:"wallet"`
	Payload  string    `json:"payload"`
	Priority int       `json:"priority"`
}

type estimateFeesResp struct {
	Fee uint64 `json:"fee"`
}

func (c *GRPCClient) EstimateFees(ctx context.Context, wallet model.SignerWallet, payload ContractCallPayload, priority Priority) (uint64, error) {
	var resp estimateFeesResp
	req := estimateFeesReq{Wallet: toWalletDTO(wallet), Payload: encodeBytes(payload), Priority: int(priority)}
	if err := c.conn.Invoke(ctx, servicePrefix+"EstimateFees", req, &resp); err != nil {
		return 0, errs.New(errs.StacksRPC, "stacksport.estimate_fees", err)
	}
	return resp.Fee, nil
}

type submitTxReq struct {
	Raw string `json:"raw"`
}

type submitTxResp struct {
	Accepted bool   `json:"accepted"`
	Txid     string `json:"txid"`
	Reason   string `json:"reason"`
}

func (c *GRPCClient) SubmitTx(ctx context.Context, raw []byte) (SubmitResult, error) {
	var resp submitTxResp
	req := submitTxReq{Raw: encodeBytes(raw)}
	if err := c.conn.Invoke(ctx, servicePrefix+"SubmitTx", req, &resp); err != nil {
		return SubmitResult{}, errs.New(errs.StacksRPC, "stacksport.submit_tx", err)
	}
	result := SubmitResult{Accepted: resp.Accepted, Reason: resp.Reason}
	if resp.Txid != "" {
		txid, err := decodeHash(resp.Txid)
		if err != nil {
			return SubmitResult{}, errs.New(errs.StacksRPC, "stacksport.submit_tx", err)
		}
		result.Txid = txid
	}
	return result, nil
}

type deployerReq struct {
	Deployer string `json:"deployer"`
}

type aggregateKeyResp struct {
	Found bool   `json:"found"`
	Key   string `json:"key"`
}

func (c *GRPCClient) GetCurrentSignersAggregateKey(ctx context.Context, deployer []byte) (*model.PublicKey, bool, error) {
	var resp aggregateKeyResp
	req := deployerReq{Deployer: encodeBytes(deployer)}
	if err := c.conn.Invoke(ctx, servicePrefix+"GetCurrentSignersAggregateKey", req, &resp); err != nil {
		return nil, false, errs.New(errs.StacksRPC, "stacksport.get_current_signers_aggregate_key", err)
	}
	if !resp.Found {
		return nil, false, nil
	}
	raw, err := hex.DecodeString(resp.Key)
	if err != nil {
		return nil, false, errs.New(errs.StacksRPC, "stacksport.get_current_signers_aggregate_key", err)
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, false, errs.New(errs.StacksRPC, "stacksport.get_current_signers_aggregate_key", err)
	}
	return key, true, nil
}

type isDeployedReq struct {
	Deployer     string `json:"deployer"`
	ContractName string `json:"contract_name"`
}

type isDeployedResp struct {
	Deployed bool `json:"deployed"`
}

func (c *GRPCClient) IsContractDeployed(ctx context.Context, deployer []byte, contractName string) (bool, error) {
	var resp isDeployedResp
	req := isDeployedReq{Deployer: encodeBytes(deployer), ContractName: contractName}
	if err := c.conn.Invoke(ctx, servicePrefix+"IsContractDeployed", req, &resp); err != nil {
		return false, errs.New(errs.StacksRPC, "stacksport.is_contract_deployed", err)
	}
	return resp.Deployed, nil
}

func encodeBytes(b []byte) string { return hex.EncodeToString(b) }

func decodeHash(s string) (model.BitcoinHash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return model.BitcoinHash{}, err
	}
	var h model.BitcoinHash
	copy(h[:], raw)
	return h, nil
}

func decodeBlockID(s string) (model.StacksBlockID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return model.StacksBlockID{}, err
	}
	var id model.StacksBlockID
	copy(id[:], raw)
	return id, nil
}

var _ Port = (*GRPCClient)(nil)
