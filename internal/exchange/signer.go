package exchange

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Exchange actions are signed as an EIP-712 "Agent" message whose
// connectionId is the keccak hash of the msgpack-encoded action.
const l1ChainID = 1337

var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	agentTypeHash = ethcrypto.Keccak256(
		[]byte("Agent(string source,bytes32 connectionId)"),
	)
	exchangeDomainSep = ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte("Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		common.LeftPadBytes(big.NewInt(l1ChainID).Bytes(), 32),
		common.LeftPadBytes(common.Address{}.Bytes(), 32),
	)
)

type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return &Signer{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

func (s *Signer) Address() common.Address { return s.address }

// SignAction signs an exchange action for the given nonce.
func (s *Signer) SignAction(action any, nonce int64, mainnet bool) (Signature, error) {
	digest, err := actionDigest(action, nonce, mainnet)
	if err != nil {
		return Signature{}, err
	}
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, errors.Wrap(err, "sign action")
	}
	return Signature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}

func actionHash(action any, nonce int64) ([]byte, error) {
	b, err := msgpack.Marshal(action)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack action")
	}
	b = binary.BigEndian.AppendUint64(b, uint64(nonce))
	b = append(b, 0x00) // no vault address
	return ethcrypto.Keccak256(b), nil
}

func actionDigest(action any, nonce int64, mainnet bool) ([]byte, error) {
	connectionID, err := actionHash(action, nonce)
	if err != nil {
		return nil, err
	}
	source := "b"
	if mainnet {
		source = "a"
	}
	structHash := ethcrypto.Keccak256(
		agentTypeHash,
		ethcrypto.Keccak256([]byte(source)),
		connectionID,
	)
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, exchangeDomainSep, structHash), nil
}
