// Package artifact loads compiled contract artifacts produced by the Solidity
// toolchain (Truffle, Hardhat or Foundry) and prepares them for deployment.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedArtifact is returned when an artifact file cannot be decoded
	// or lacks one of the fields every artifact must carry.
	ErrMalformedArtifact = errors.New("malformed artifact")
	// ErrArtifactNotFound is returned when no artifact file exists for a name.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrEmptyBytecode is returned when an artifact has no creation code to deploy.
	ErrEmptyBytecode = errors.New("empty bytecode")
)

var validate = validator.New()

// Artifact is the subset of a compiled contract artifact this tool relies on.
// Unknown fields in the file are ignored.
type Artifact struct {
	ContractName     string          `json:"contractName" validate:"required"`
	ABI              json.RawMessage `json:"abi,omitempty"`
	Bytecode         *Bytecode       `json:"bytecode,omitempty"`
	DeployedBytecode *Bytecode       `json:"deployedBytecode" validate:"required"`
	SourcePath       string          `json:"sourcePath,omitempty"`
}

// Bytecode holds hex encoded EVM code. Truffle writes it as a plain string,
// Foundry and Hardhat nest it under an "object" key; both decode the same way.
type Bytecode struct {
	hex string
}

// NewBytecode wraps a hex string.
func NewBytecode(s string) *Bytecode {
	return &Bytecode{hex: s}
}

func (b *Bytecode) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &b.hex); err == nil {
		return nil
	}
	var nested struct {
		Object *string `json:"object"`
	}
	if err := json.Unmarshal(data, &nested); err != nil || nested.Object == nil {
		return errors.New(`bytecode is neither a hex string nor {"object": "<hex>"}`)
	}
	b.hex = *nested.Object
	return nil
}

// MarshalJSON always writes the plain string form.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode as written in the artifact, 0x prefix included.
func (b Bytecode) String() string {
	return b.hex
}

// Hex returns the bytecode without a 0x prefix.
func (b Bytecode) Hex() string {
	return strip0x(b.hex)
}

// Size returns the code size in bytes: two hex characters per byte.
func (b Bytecode) Size() int {
	return len(b.Hex()) / 2
}

// Bytes decodes the bytecode. It fails while library placeholders remain.
func (b Bytecode) Bytes() ([]byte, error) {
	h := b.Hex()
	if h == "" {
		return nil, ErrEmptyBytecode
	}
	if refs := Unlinked(h); len(refs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnlinkedLibrary, strings.Join(refs, ", "))
	}
	return hexutil.Decode("0x" + h)
}

func strip0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// Decode parses artifact JSON and checks the required fields.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}
	if err := validate.Struct(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}
	if len(a.DeployedBytecode.Hex())%2 != 0 {
		return nil, fmt.Errorf("%w: odd length deployedBytecode", ErrMalformedArtifact)
	}
	return &a, nil
}

// Load reads and decodes a single artifact file.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	a, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return a, nil
}

// EncodeConstructorArgs encodes constructor arguments using the contract's ABI.
// Returns the encoded args (without bytecode prefix) ready to append to bytecode.
// The number of args must match the constructor's inputs; an artifact without
// an ABI only accepts no args.
func (a *Artifact) EncodeConstructorArgs(args ...any) ([]byte, error) {
	if len(a.ABI) == 0 && len(args) == 0 {
		return nil, nil
	}

	parsedABI, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	inputs := parsedABI.Constructor.Inputs
	if len(inputs) == 0 && len(args) == 0 {
		return nil, nil
	}
	if inputs == nil {
		return nil, fmt.Errorf("contract %s has no constructor", a.ContractName)
	}
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("constructor of %s takes %d arguments, got %d",
			a.ContractName, len(parsedABI.Constructor.Inputs), len(args))
	}

	converted := make([]any, len(args))
	for i, arg := range args {
		input := parsedABI.Constructor.Inputs[i]
		v, err := ConvertArg(input.Type, arg)
		if err != nil {
			return nil, fmt.Errorf("constructor argument %d (%s): %w", i, input.Name, err)
		}
		converted[i] = v
	}

	packed, err := parsedABI.Constructor.Inputs.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor args: %w", err)
	}
	return packed, nil
}

// ParsedABI returns the parsed ABI for direct access.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	if len(a.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("contract %s has no ABI", a.ContractName)
	}
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse ABI: %w", err)
	}
	return parsed, nil
}

// Store loads artifacts by contract name from a build directory
// (e.g. build/contracts/RootChain.json) and caches them.
type Store struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]*Artifact),
	}
}

// Dir returns the build directory.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the artifact for a contract name.
func (s *Store) Get(name string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.cache[name]; ok {
		return a, nil
	}

	path := filepath.Join(s.dir, name+".json")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, s.dir)
	}

	a, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.cache[name] = a
	return a, nil
}
