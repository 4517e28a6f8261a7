package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/cryptguard/cryptguard/internal/common"
)

const defaultRPCTimeout = 15 * time.Second

// EthClient reads the registry contract over plain JSON-RPC. The contract
// surface used here is a single view function, so hand-rolled call data is
// simpler than pulling in a full ABI toolchain.
type EthClient struct {
	rpcURL          string
	contractAddress string
	client          *http.Client
}

func NewEthClient(rpcURL, contractAddress string) *EthClient {
	return &EthClient{
		rpcURL:          rpcURL,
		contractAddress: contractAddress,
		client:          &http.Client{Timeout: defaultRPCTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// revertErrorCode is the JSON-RPC error code for an execution revert
// (EIP-1474). Geth historically reports reverts with message text instead.
const revertErrorCode = 3

func (e *rpcError) isRevert() bool {
	return e.Code == revertErrorCode ||
		strings.Contains(strings.ToLower(e.Message), "execution reverted")
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// methodSelector returns the first four bytes of the keccak-256 hash of the
// canonical signature, per the contract ABI.
func methodSelector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// packVerifyFileCall ABI-encodes verifyFile(uint256,string). Layout: the
// uint256 index word, the offset word pointing at the string head, then the
// string length word and the padded string bytes.
func packVerifyFileCall(index int64, fileHash string) []byte {
	var buf bytes.Buffer
	buf.Write(methodSelector("verifyFile(uint256,string)"))

	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], uint64(index))
	buf.Write(word[:])

	word = [32]byte{}
	word[31] = 0x40
	buf.Write(word[:])

	word = [32]byte{}
	binary.BigEndian.PutUint64(word[24:], uint64(len(fileHash)))
	buf.Write(word[:])

	buf.WriteString(fileHash)
	if pad := len(fileHash) % 32; pad != 0 {
		buf.Write(make([]byte, 32-pad))
	}
	return buf.Bytes()
}

func (c *EthClient) VerifyFile(ctx context.Context, index int64, fileHash string) (bool, error) {
	callData := "0x" + hex.EncodeToString(packVerifyFileCall(index, fileHash))

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []any{
			map[string]string{"to": c.contractAddress, "data": callData},
			"latest",
		},
		ID: 1,
	})
	if err != nil {
		return false, fmt.Errorf("encoding rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("building rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: eth_call: %v", common.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: eth_call: unexpected status %d", common.ErrDependencyUnavailable, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return false, fmt.Errorf("%w: eth_call: decoding response: %v", common.ErrDependencyUnavailable, err)
	}
	if rr.Error != nil {
		// Only a revert (index out of range) means the file is not anchored
		// there. Any other rpc error is a node problem and must stay
		// retryable.
		if rr.Error.isRevert() {
			return false, nil
		}
		return false, fmt.Errorf("%w: eth_call: rpc error %d: %s",
			common.ErrDependencyUnavailable, rr.Error.Code, rr.Error.Message)
	}

	return decodeBoolResult(rr.Result)
}

func decodeBoolResult(result string) (bool, error) {
	if len(result) >= 2 && result[:2] == "0x" {
		result = result[2:]
	}
	raw, err := hex.DecodeString(result)
	if err != nil {
		return false, fmt.Errorf("%w: eth_call: malformed result: %v", common.ErrDependencyUnavailable, err)
	}
	if len(raw) != 32 {
		return false, fmt.Errorf("%w: eth_call: result is %d bytes, want 32", common.ErrDependencyUnavailable, len(raw))
	}
	return raw[31] == 1, nil
}
