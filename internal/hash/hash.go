package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Genesis is the previous hash of the first entry in a chain.
const Genesis = "genesis"

func Calculate(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

func CalculateString(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Link returns the chain hash of an entry whose content hashes to dataHash.
func Link(previousHash, dataHash string) string {
	return CalculateString(previousHash + dataHash)
}

type HashChain struct {
	previousHash string
}

func NewHashChain(initialHash string) *HashChain {
	if initialHash == "" {
		initialHash = Genesis
	}
	return &HashChain{
		previousHash: initialHash,
	}
}

func (hc *HashChain) Add(data interface{}) (string, error) {
	dataHash, err := Calculate(data)
	if err != nil {
		return "", err
	}
	return hc.AddHash(dataHash), nil
}

// AddHash extends the chain with an already computed content hash.
func (hc *HashChain) AddHash(dataHash string) string {
	hc.previousHash = Link(hc.previousHash, dataHash)
	return hc.previousHash
}

func (hc *HashChain) GetPreviousHash() string {
	return hc.previousHash
}

func (hc *HashChain) SetPreviousHash(hash string) {
	hc.previousHash = hash
}

// MerkleTree keeps leaves in insertion order. Audit positions are part of what
// the root commits to, so leaves are never sorted.
type MerkleTree struct {
	leaves []string
}

func NewMerkleTree() *MerkleTree {
	return &MerkleTree{
		leaves: make([]string, 0),
	}
}

func (mt *MerkleTree) AddLeaf(data interface{}) error {
	hash, err := Calculate(data)
	if err != nil {
		return err
	}
	mt.leaves = append(mt.leaves, hash)
	return nil
}

func (mt *MerkleTree) AddLeafHash(hash string) {
	mt.leaves = append(mt.leaves, hash)
}

func (mt *MerkleTree) GetRoot() string {
	if len(mt.leaves) == 0 {
		return ""
	}

	level := make([]string, len(mt.leaves))
	copy(level, mt.leaves)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, CalculateString(level[i]+right))
		}
		level = next
	}

	return level[0]
}

func (mt *MerkleTree) Reset() {
	mt.leaves = make([]string, 0)
}

func (mt *MerkleTree) LeafCount() int {
	return len(mt.leaves)
}
